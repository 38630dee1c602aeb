// Package provider holds the outbound delivery adapters. Each adapter wraps
// exactly one third-party transport behind a common contract: ordinary
// delivery failures come back as a failed SendResult, never as an error.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

var (
	// ErrRateLimited rejects a send before the transport is contacted
	ErrRateLimited = errors.New("recipient rate limit exceeded")
	// ErrNoProvider means no configured adapter exists for the channel
	ErrNoProvider = errors.New("no provider configured for channel")
	// ErrNotConfigured rejects registration of an adapter with missing credentials
	ErrNotConfigured = errors.New("provider configuration is incomplete")
)

// OutboundMessage is one fully rendered message handed to an adapter
type OutboundMessage struct {
	MessageID string
	ChurchID  uint
	Channel   string
	Recipient string
	Subject   string
	Body      string
}

// SendResult is the normalized outcome of one send attempt
type SendResult struct {
	Status       string
	Provider     string
	ExternalID   string
	ErrorMessage string
	Metadata     map[string]string
}

// Provider is the contract every channel adapter implements
type Provider interface {
	Name() string
	Channel() string
	ValidateConfig() bool
	Send(ctx context.Context, msg *OutboundMessage) *SendResult
}

// Registry holds the configured adapters, one default per channel, and runs
// the per-recipient rate limiter in front of every dispatch.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]map[string]Provider // channel -> name -> provider
	defaults  map[string]string              // channel -> default provider name
	limiter   RateLimiter
	logger    *log.Logger
}

func NewRegistry(limiter RateLimiter, logger *log.Logger) *Registry {
	return &Registry{
		providers: make(map[string]map[string]Provider),
		defaults:  make(map[string]string),
		limiter:   limiter,
		logger:    logger,
	}
}

// Register adds an adapter. Adapters with incomplete configuration are
// rejected here so they can never be selected for a send.
func (r *Registry) Register(p Provider, makeDefault bool) error {
	if !p.ValidateConfig() {
		return fmt.Errorf("%w: %s/%s", ErrNotConfigured, p.Channel(), p.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers[p.Channel()] == nil {
		r.providers[p.Channel()] = make(map[string]Provider)
	}
	r.providers[p.Channel()][p.Name()] = p
	if makeDefault || r.defaults[p.Channel()] == "" {
		r.defaults[p.Channel()] = p.Name()
	}
	r.logger.Printf("Registered %s provider %q (default: %t)", p.Channel(), p.Name(), r.defaults[p.Channel()] == p.Name())
	return nil
}

// ForChannel returns the default adapter for a channel
func (r *Registry) ForChannel(channel string) (Provider, error) {
	return r.Get(channel, "")
}

// Get returns a named adapter, or the channel default when name is empty
func (r *Registry) Get(channel, name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaults[channel]
	}
	if p, ok := r.providers[channel][name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, channel)
}

// Dispatch checks the recipient's rate budget and hands the message to the
// channel's default adapter. A rate-limited recipient is rejected without the
// transport ever being contacted.
func (r *Registry) Dispatch(ctx context.Context, msg *OutboundMessage) (*SendResult, error) {
	p, err := r.ForChannel(msg.Channel)
	if err != nil {
		return nil, err
	}

	if err := r.limiter.Allow(ctx, msg.Channel, msg.Recipient); err != nil {
		return nil, err
	}

	result := p.Send(ctx, msg)
	result.Provider = p.Name()
	return result, nil
}
