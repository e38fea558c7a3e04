package models

import "time"

// BudgetPeriod defines the calendar window of a spend ceiling.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetLimits holds the organization-wide spend ceilings.
type BudgetLimits struct {
	Daily          float64 `json:"daily" yaml:"daily"`
	Monthly        float64 `json:"monthly" yaml:"monthly"`
	MaxCostPerCall float64 `json:"max_cost_per_call" yaml:"max_cost_per_call"`
}

// BudgetSpend is the accumulated spend for the current periods.
type BudgetSpend struct {
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
}

// BudgetStatus is the outcome of a budget check.
type BudgetStatus struct {
	Allowed   bool         `json:"allowed"`
	Reason    string       `json:"reason,omitempty"`
	ResetTime time.Time    `json:"reset_time,omitempty"`
	Current   BudgetSpend  `json:"current"`
	Remaining BudgetSpend  `json:"remaining"`
	Limits    BudgetLimits `json:"limits"`
}

// BudgetAlert flags a period whose spend crossed the alert threshold.
type BudgetAlert struct {
	Period     BudgetPeriod `json:"period"`
	Percentage float64      `json:"percentage"`
	Remaining  float64      `json:"remaining"`
	Threshold  float64      `json:"threshold"`
}
