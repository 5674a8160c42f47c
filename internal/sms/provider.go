// Package sms defines the phone verification channel: the capability to
// deliver a one-time code out-of-band and to describe itself so clients can
// tell users what to expect.
package sms

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrDelivery is returned when a code cannot be delivered. The caller
// treats it as terminal for the request; the user re-requests a fresh code.
var ErrDelivery = errors.New("verification code delivery failed")

// Provider delivers verification codes to phone numbers. SenderID and
// Instructions are queried fresh per response so a hot-swapped provider is
// reflected immediately.
type Provider interface {
	SendCode(ctx context.Context, phone, code string) error
	SenderID() string
	Instructions() string
}

// Config is a provider's raw sub-configuration, decoded from YAML and
// passed through unexamined to the provider's own constructor.
type Config map[string]string

// Factory builds a provider from its sub-configuration.
type Factory func(cfg Config) (Provider, error)

var factories = map[string]Factory{}

// Register makes a provider constructor available under name. Called from
// init; the registry is resolved once at startup and read-only afterwards.
func Register(name string, f Factory) {
	if _, dup := factories[name]; dup {
		panic("sms: provider registered twice: " + name)
	}
	factories[name] = f
}

// New resolves a provider name into a concrete capability object.
func New(name string, cfg Config) (Provider, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown sms provider %q", name)
	}
	return f(cfg)
}

// LoadConfig reads a provider sub-configuration YAML file. An empty path
// yields an empty config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}
