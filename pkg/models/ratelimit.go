package models

// RateLimits holds per-granularity request quotas for a client.
type RateLimits struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	PerDay    int `json:"per_day" yaml:"per_day"`
}

// RateTier assigns limits to clients whose identifier starts with Prefix.
type RateTier struct {
	Name   string     `json:"name" yaml:"name"`
	Prefix string     `json:"prefix" yaml:"prefix"`
	Limits RateLimits `json:"limits" yaml:"limits"`
}
