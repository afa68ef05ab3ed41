package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/secrets"
)

// Credential names understood by the built-in factories.
const (
	CredSecretKey       = "secret_key"
	CredWebhookSecret   = "webhook_secret"
	CredClientID        = "client_id"
	CredClientSecret    = "client_secret"
	CredWebhookID       = "webhook_id"
	CredAPIKey          = "api_key"
	CredBusinessToken   = "business_token"
	CredSourceAccountID = "source_account_id"
	CredBaseURL         = "base_url"
)

// Credentials are the resolved plaintext values handed to a factory.
type Credentials map[string]string

type credentialSpec struct {
	name     string
	envKey   string
	required bool
}

var credentialSpecs = map[domain.GatewayKind][]credentialSpec{
	domain.GatewayStripe: {
		{name: CredSecretKey, envKey: "STRIPE_SECRET_KEY", required: true},
		{name: CredWebhookSecret, envKey: "STRIPE_WEBHOOK_SECRET"},
		{name: CredBaseURL, envKey: "STRIPE_BASE_URL"},
	},
	domain.GatewayPayPal: {
		{name: CredClientID, envKey: "PAYPAL_CLIENT_ID", required: true},
		{name: CredClientSecret, envKey: "PAYPAL_CLIENT_SECRET", required: true},
		{name: CredWebhookID, envKey: "PAYPAL_WEBHOOK_ID"},
		{name: CredBaseURL, envKey: "PAYPAL_BASE_URL"},
	},
	domain.GatewayRevolut: {
		{name: CredAPIKey, envKey: "REVOLUT_API_KEY", required: true},
		{name: CredWebhookSecret, envKey: "REVOLUT_WEBHOOK_SECRET"},
		{name: CredBusinessToken, envKey: "REVOLUT_BUSINESS_TOKEN"},
		{name: CredSourceAccountID, envKey: "REVOLUT_SOURCE_ACCOUNT_ID"},
		{name: CredBaseURL, envKey: "REVOLUT_BASE_URL"},
	},
}

// CredentialNames lists the credential names a gateway accepts.
func CredentialNames(kind domain.GatewayKind) []string {
	specs := credentialSpecs[kind]
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.name)
	}
	return out
}

// SecretKey is the secret store key holding a gateway credential,
// e.g. "stripe.sandbox.secret_key".
func SecretKey(kind domain.GatewayKind, env domain.Environment, name string) string {
	return fmt.Sprintf("%s.%s.%s", kind.Lower(), strings.ToLower(string(env)), name)
}

// resolveCredentials applies the layered lookup: value on the config row,
// then the secret store, then the environment fallback.
func resolveCredentials(ctx context.Context, store secrets.Getter, cfg *domain.GatewayConfig) (Credentials, error) {
	out := Credentials{}
	for _, spec := range credentialSpecs[cfg.Gateway] {
		if v := cfg.Credentials[spec.name]; v != "" {
			out[spec.name] = v
			continue
		}
		v, err := store.Get(ctx, SecretKey(cfg.Gateway, cfg.Environment, spec.name), secrets.GetOptions{
			FallbackEnv: spec.envKey,
			Optional:    !spec.required,
		})
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return nil, fmt.Errorf("missing %s credential %s", cfg.Gateway, spec.name)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s credential %s: %w", cfg.Gateway, spec.name, err)
		}
		if v != "" {
			out[spec.name] = v
		}
	}
	return out, nil
}
