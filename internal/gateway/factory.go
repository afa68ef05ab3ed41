package gateway

import (
	"fmt"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/provider"
)

// Factory builds a provider client from a config snapshot and its resolved
// credentials.
type Factory func(cfg *domain.GatewayConfig, creds Credentials, opts provider.Options) (provider.Client, error)

// DefaultFactories returns the HTTP provider constructors.
func DefaultFactories() map[domain.GatewayKind]Factory {
	return map[domain.GatewayKind]Factory{
		domain.GatewayStripe:  newStripe,
		domain.GatewayPayPal:  newPayPal,
		domain.GatewayRevolut: newRevolut,
	}
}

func withBaseURL(opts provider.Options, creds Credentials) provider.Options {
	if u := creds[CredBaseURL]; u != "" {
		opts.BaseURL = u
	}
	return opts
}

func newStripe(_ *domain.GatewayConfig, creds Credentials, opts provider.Options) (provider.Client, error) {
	p, err := provider.NewStripeProvider(provider.StripeConfig{
		SecretKey:     creds[CredSecretKey],
		WebhookSecret: creds[CredWebhookSecret],
		Options:       withBaseURL(opts, creds),
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe client: %w", err)
	}
	return p, nil
}

func newPayPal(cfg *domain.GatewayConfig, creds Credentials, opts provider.Options) (provider.Client, error) {
	p, err := provider.NewPayPalProvider(provider.PayPalConfig{
		ClientID:     creds[CredClientID],
		ClientSecret: creds[CredClientSecret],
		WebhookID:    creds[CredWebhookID],
		Environment:  cfg.Environment,
		Options:      withBaseURL(opts, creds),
	})
	if err != nil {
		return nil, fmt.Errorf("build paypal client: %w", err)
	}
	return p, nil
}

func newRevolut(cfg *domain.GatewayConfig, creds Credentials, opts provider.Options) (provider.Client, error) {
	p, err := provider.NewRevolutProvider(provider.RevolutConfig{
		APIKey:          creds[CredAPIKey],
		WebhookSecret:   creds[CredWebhookSecret],
		BusinessToken:   creds[CredBusinessToken],
		SourceAccountID: creds[CredSourceAccountID],
		Environment:     cfg.Environment,
		Options:         withBaseURL(opts, creds),
	})
	if err != nil {
		return nil, fmt.Errorf("build revolut client: %w", err)
	}
	return p, nil
}
