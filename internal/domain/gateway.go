package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GatewayKind identifies an external payment provider.
type GatewayKind string

const (
	GatewayStripe  GatewayKind = "STRIPE"
	GatewayPayPal  GatewayKind = "PAYPAL"
	GatewayRevolut GatewayKind = "REVOLUT"
)

// AllGateways lists every supported provider in a stable order.
func AllGateways() []GatewayKind {
	return []GatewayKind{GatewayStripe, GatewayPayPal, GatewayRevolut}
}

// Valid reports whether k is one of the supported providers.
func (k GatewayKind) Valid() bool {
	switch k {
	case GatewayStripe, GatewayPayPal, GatewayRevolut:
		return true
	}
	return false
}

// ParseGatewayKind normalizes user input ("stripe", " PayPal ") into a GatewayKind.
func ParseGatewayKind(s string) (GatewayKind, error) {
	k := GatewayKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown gateway: %q", s)
	}
	return k, nil
}

// Lower returns the lowercase provider name used in URLs and metric labels.
func (k GatewayKind) Lower() string { return strings.ToLower(string(k)) }

// Environment selects sandbox or live credentials and endpoints.
type Environment string

const (
	EnvSandbox Environment = "SANDBOX"
	EnvLive    Environment = "LIVE"
)

func (e Environment) Valid() bool { return e == EnvSandbox || e == EnvLive }

// FeeSchedule describes what a gateway charges per deposit.
type FeeSchedule struct {
	Percent  decimal.Decimal `json:"fee_percent"`
	FixedFee int64           `json:"fixed_fee"` // minor units
}

// Compute returns fee = amount*percent/100 + fixed (half-up to the minor unit)
// and net = amount - fee. Fee never exceeds amount.
func (f FeeSchedule) Compute(amount int64) (fee, net int64) {
	pct := decimal.NewFromInt(amount).Mul(f.Percent).Div(decimal.NewFromInt(100)).Round(0)
	fee = pct.IntPart() + f.FixedFee
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return fee, amount - fee
}

// AmountLimits bounds a single deposit or withdrawal. Zero max means unbounded.
type AmountLimits struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Check validates amount against the limits.
func (l AmountLimits) Check(amount int64) error {
	if l.Min > 0 && amount < l.Min {
		return fmt.Errorf("amount %s below minimum %s", FormatMinor(amount), FormatMinor(l.Min))
	}
	if l.Max > 0 && amount > l.Max {
		return fmt.Errorf("amount %s above maximum %s", FormatMinor(amount), FormatMinor(l.Max))
	}
	return nil
}

// GatewayConfig is one gateway_configs row: the per-gateway, per-environment
// switchboard an admin edits. Treated as an immutable snapshot once loaded.
type GatewayConfig struct {
	ID                  uuid.UUID         `json:"id"`
	Gateway             GatewayKind       `json:"gateway"`
	Environment         Environment       `json:"environment"`
	Enabled             bool              `json:"enabled"`
	Deposit             AmountLimits      `json:"deposit_limits"`
	Withdrawal          AmountLimits      `json:"withdrawal_limits"`
	Fees                FeeSchedule       `json:"fees"`
	AllowedCountries    []string          `json:"allowed_countries"`
	RestrictedCountries []string          `json:"restricted_countries"`
	Credentials         map[string]string `json:"-"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// CredentialsJSON encodes the credential overrides stored on the row.
func (c *GatewayConfig) CredentialsJSON() json.RawMessage {
	if len(c.Credentials) == 0 {
		return json.RawMessage(`{}`)
	}
	raw, _ := json.Marshal(c.Credentials)
	return raw
}

// CountryAllowed applies the allow list (if any) and then the deny list.
func (c *GatewayConfig) CountryAllowed(country string) bool {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return len(c.AllowedCountries) == 0
	}
	for _, r := range c.RestrictedCountries {
		if strings.EqualFold(r, country) {
			return false
		}
	}
	if len(c.AllowedCountries) == 0 {
		return true
	}
	for _, a := range c.AllowedCountries {
		if strings.EqualFold(a, country) {
			return true
		}
	}
	return false
}

// GatewayState is the registry's view of a gateway client.
type GatewayState string

const (
	GatewayUninitialized GatewayState = "UNINITIALIZED"
	GatewayInitialized   GatewayState = "INITIALIZED"
	GatewayDisabled      GatewayState = "DISABLED"
	GatewayInitFailed    GatewayState = "INIT_FAILED"
)
