package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/ilearnhow/lessongen/pkg/budget"
	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/router"
)

const (
	defaultTimeout          = 60 * time.Second
	defaultBreakerThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// Response is a successful generation.
type Response struct {
	Text     string
	Content  models.Payload
	Usage    models.Usage
	Cost     float64
	Provider string
	Model    string
	Degraded bool
}

// Endpoint binds a backend to its call policy and pricing.
type Endpoint struct {
	Backend          Backend
	Cost             budget.CostFunc
	Timeout          time.Duration
	MaxRetries       int
	BreakerThreshold uint32
}

// Observer receives per-call outcomes.
type Observer interface {
	ObserveCall(provider, outcome string, d time.Duration)
	SetBreakerState(provider string, state string)
}

type endpoint struct {
	Endpoint
	breaker *gobreaker.CircuitBreaker[Completion]
}

// Client generates text through the router's provider chain.
type Client struct {
	router     *router.Router
	endpoints  map[string]*endpoint
	log        zerolog.Logger
	observer   Observer
	newBackOff func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "provider").Logger() }
}

// WithObserver sets a call observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithBackOff overrides the retry backoff policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// New creates a Client. endpoints is keyed by provider name.
func New(r *router.Router, endpoints map[string]Endpoint, opts ...Option) *Client {
	c := &Client{
		router:     r,
		endpoints:  make(map[string]*endpoint, len(endpoints)),
		log:        zerolog.Nop(),
		newBackOff: defaultBackOff,
	}
	for _, o := range opts {
		o(c)
	}
	for name, ep := range endpoints {
		if ep.Timeout <= 0 {
			ep.Timeout = defaultTimeout
		}
		if ep.Cost == nil {
			ep.Cost = budget.PerMillion(budget.DefaultPricing)
		}
		if ep.BreakerThreshold == 0 {
			ep.BreakerThreshold = defaultBreakerThreshold
		}
		c.endpoints[name] = &endpoint{Endpoint: ep, breaker: c.newBreaker(name, ep.BreakerThreshold)}
	}
	return c
}

func (c *Client) newBreaker(name string, threshold uint32) *gobreaker.CircuitBreaker[Completion] {
	return gobreaker.NewCircuitBreaker[Completion](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			if c.observer != nil {
				c.observer.SetBreakerState(name, to.String())
			}
		},
	})
}

// BuildEndpoints creates endpoints from provider configuration.
func BuildEndpoints(providers []config.ProviderConfig) map[string]Endpoint {
	out := make(map[string]Endpoint, len(providers))
	for _, p := range providers {
		var b Backend
		switch p.Type {
		case "openai":
			b = NewOpenAI(p.Name, p.URL, p.APIKey)
		default:
			b = NewAnthropic(p.Name, p.URL, p.APIKey)
		}
		out[p.Name] = Endpoint{
			Backend:    b,
			Cost:       budget.PerMillion(p.Pricing),
			Timeout:    p.Timeout,
			MaxRetries: p.MaxRetries,
		}
	}
	return out
}

// Generate performs one logical generation. Retryable failures are retried
// with backoff per provider, then the next provider in the chain is tried.
// The returned error is a *ProviderError when every provider failed.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	routes, err := c.router.Resolve(req.Model)
	if err != nil {
		return nil, &ProviderError{Provider: "router", Message: err.Error(), Err: err}
	}

	var lastErr error
	for _, rt := range routes {
		ep, ok := c.endpoints[rt.Provider.Name]
		if !ok {
			continue
		}
		start := time.Now()
		comp, err := c.call(ctx, ep, rt.Model, req)
		if err != nil {
			c.observe(rt.Provider.Name, "error", time.Since(start))
			c.log.Warn().Err(err).Str("route", rt.String()).Msg("provider call failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.observe(rt.Provider.Name, "ok", time.Since(start))
		return c.finish(ep, rt, req, comp), nil
	}

	if lastErr == nil {
		return nil, &ProviderError{Provider: "router", Message: fmt.Sprintf("no endpoint for %q", req.Model)}
	}
	var pe *ProviderError
	if !errors.As(lastErr, &pe) {
		lastErr = &ProviderError{Message: lastErr.Error(), Err: lastErr}
	}
	return nil, lastErr
}

func (c *Client) call(ctx context.Context, ep *endpoint, model string, req Request) (Completion, error) {
	op := func() (Completion, error) {
		comp, err := ep.breaker.Execute(func() (Completion, error) {
			callCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
			defer cancel()
			return ep.Backend.Complete(callCtx, model, req)
		})
		if err == nil {
			return comp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Completion{}, backoff.Permanent(&ProviderError{Provider: ep.Backend.Name(), Message: "circuit open", Err: err})
		}
		if !retryable(err) {
			return Completion{}, backoff.Permanent(err)
		}
		return Completion{}, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(ep.MaxRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Debug().Err(err).Str("provider", ep.Backend.Name()).Dur("wait", wait).Msg("retrying provider call")
		}),
	)
}

func (c *Client) finish(ep *endpoint, rt router.Route, req Request, comp Completion) *Response {
	resp := &Response{
		Text:     comp.Text,
		Usage:    comp.Usage,
		Cost:     ep.Cost(comp.Usage),
		Provider: rt.Provider.Name,
		Model:    rt.Model,
	}
	if req.Mode == ModeText {
		resp.Content = FortunePayload(comp.Text)
		return resp
	}
	payload, err := ExtractStructuredPayload(comp.Text)
	if err != nil {
		c.log.Warn().Err(err).Str("route", rt.String()).Msg("using placeholder payload")
		payload = Placeholder(comp.Text)
		resp.Degraded = true
	}
	resp.Content = payload
	return resp
}

func (c *Client) observe(provider, outcome string, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveCall(provider, outcome, d)
	}
}

// BreakerStates returns the circuit state per provider.
func (c *Client) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.endpoints))
	for name, ep := range c.endpoints {
		out[name] = ep.breaker.State().String()
	}
	return out
}
