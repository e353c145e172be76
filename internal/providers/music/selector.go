package music

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config is a snapshot of every vendor credential plus the optional explicit
// provider override. It is re-resolved on every dispatcher call rather than
// cached, so rotating a credential in the environment takes effect
// immediately.
type Config struct {
	ProviderOverride string

	DefAPIKey     string
	DefAPIBaseURL string

	KieKey     string
	KieBaseURL string

	SunoOrgKey     string
	SunoOrgBaseURL string

	HTTPClient *http.Client
	Timeout    time.Duration
}

// ConfigFromEnv reads the provider configuration from the process
// environment.
func ConfigFromEnv() Config {
	return Config{
		ProviderOverride: os.Getenv("MUSIC_PROVIDER"),
		DefAPIKey:        os.Getenv("DEFAPI_API_KEY"),
		DefAPIBaseURL:    os.Getenv("DEFAPI_BASE_URL"),
		KieKey:           os.Getenv("KIE_API_KEY"),
		KieBaseURL:       os.Getenv("KIE_BASE_URL"),
		SunoOrgKey:       os.Getenv("SUNOORG_API_KEY"),
		SunoOrgBaseURL:   os.Getenv("SUNOORG_BASE_URL"),
	}
}

// providerFactories is the adapter registry in precedence order: when no
// override is set, the first entry with a credential wins.
var providerFactories = []struct {
	name       string
	configured func(Config) bool
	build      func(Config) Provider
}{
	{
		name:       ProviderDefAPI,
		configured: func(c Config) bool { return strings.TrimSpace(c.DefAPIKey) != "" },
		build: func(c Config) Provider {
			return NewDefAPI(DefAPIOptions{APIKey: c.DefAPIKey, BaseURL: c.DefAPIBaseURL, HTTPClient: c.HTTPClient, Timeout: c.Timeout})
		},
	},
	{
		name:       ProviderKie,
		configured: func(c Config) bool { return strings.TrimSpace(c.KieKey) != "" },
		build: func(c Config) Provider {
			return NewKie(KieOptions{APIKey: c.KieKey, BaseURL: c.KieBaseURL, HTTPClient: c.HTTPClient, Timeout: c.Timeout})
		},
	},
	{
		name:       ProviderSunoOrg,
		configured: func(c Config) bool { return strings.TrimSpace(c.SunoOrgKey) != "" },
		build: func(c Config) Provider {
			return NewSunoOrg(SunoOrgOptions{APIKey: c.SunoOrgKey, BaseURL: c.SunoOrgBaseURL, HTTPClient: c.HTTPClient, Timeout: c.Timeout})
		},
	},
}

// Select resolves the active provider for this call. An explicit override
// naming a known adapter wins even when its credential is missing (so the
// resulting vendor error is visible instead of silently routing elsewhere);
// an override naming an unknown adapter is a configuration error. Without an
// override the registry precedence applies over configured providers.
func (c Config) Select() (Provider, error) {
	if override := strings.ToLower(strings.TrimSpace(c.ProviderOverride)); override != "" {
		for _, factory := range providerFactories {
			if factory.name == override {
				return factory.build(c), nil
			}
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, override)
	}
	for _, factory := range providerFactories {
		if factory.configured(c) {
			return factory.build(c), nil
		}
	}
	return nil, ErrNotConfigured
}

// Dispatcher is the facade route handlers and the worker talk to. It holds no
// state of its own beyond the config resolver, so every call observes the
// current environment.
type Dispatcher struct {
	resolve func() Config
}

// NewDispatcher builds a dispatcher around a config resolver. Pass
// ConfigFromEnv for production wiring.
func NewDispatcher(resolve func() Config) *Dispatcher {
	if resolve == nil {
		resolve = ConfigFromEnv
	}
	return &Dispatcher{resolve: resolve}
}

// IsConfigured reports whether any provider credential is present.
func (d *Dispatcher) IsConfigured() bool {
	cfg := d.resolve()
	for _, factory := range providerFactories {
		if factory.configured(cfg) {
			return true
		}
	}
	return false
}

// ProviderName returns the name of the adapter a call would use right now, or
// the empty string when none is configured.
func (d *Dispatcher) ProviderName() string {
	provider, err := d.resolve().Select()
	if err != nil {
		return ""
	}
	return provider.Name()
}

// StartGeneration submits the request to the active provider.
func (d *Dispatcher) StartGeneration(ctx context.Context, req GenerationRequest) (*Job, error) {
	provider, err := d.resolve().Select()
	if err != nil {
		return nil, err
	}
	return provider.Generate(ctx, req)
}

// CheckStatus polls the active provider for the given job id. Ids are only
// meaningful within the provider that issued them; callers that persist jobs
// should refuse to poll a job recorded under a different provider name.
func (d *Dispatcher) CheckStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	provider, err := d.resolve().Select()
	if err != nil {
		return nil, err
	}
	return provider.GetStatus(ctx, id)
}

// GetUserInfo returns account details for the active provider, or nil when
// the provider does not support account introspection or the lookup fails.
// It never returns an error: account info is advisory.
func (d *Dispatcher) GetUserInfo(ctx context.Context) *AccountInfo {
	provider, err := d.resolve().Select()
	if err != nil {
		return nil
	}
	reporter, ok := provider.(AccountReporter)
	if !ok {
		return nil
	}
	info, err := reporter.GetUser(ctx)
	if err != nil {
		return nil
	}
	return info
}
