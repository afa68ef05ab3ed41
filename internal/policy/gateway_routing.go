package policy

import (
	"fmt"

	"github.com/rafflehub/platform/internal/domain"
)

// RouteEvaluation holds the result of a gateway routing check.
type RouteEvaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateGatewayRoute checks a movement of amount through cfg for a user in
// country. Withdrawals also check the payout destination is one the gateway
// can pay to; dest is ignored for deposits.
func EvaluateGatewayRoute(cfg *domain.GatewayConfig, kind LimitKind, amount int64, country string, dest *domain.PayoutDestination) RouteEvaluation {
	if !cfg.Enabled {
		return RouteEvaluation{Allowed: false, Reason: "gateway disabled"}
	}

	if !cfg.CountryAllowed(country) {
		return RouteEvaluation{Allowed: false, Reason: fmt.Sprintf("country %q not served by %s", country, cfg.Gateway)}
	}

	bounds := cfg.Deposit
	if kind == LimitWithdrawal {
		bounds = cfg.Withdrawal
	}
	if err := bounds.Check(amount); err != nil {
		return RouteEvaluation{Allowed: false, Reason: err.Error()}
	}

	if kind == LimitWithdrawal {
		if dest == nil {
			return RouteEvaluation{Allowed: false, Reason: "payout destination is required"}
		}
		if err := dest.Validate(); err != nil {
			return RouteEvaluation{Allowed: false, Reason: err.Error()}
		}
		if !dest.SupportedBy(cfg.Gateway) {
			return RouteEvaluation{Allowed: false, Reason: fmt.Sprintf("%s cannot pay out to %s", cfg.Gateway, dest.Kind)}
		}
	}

	return RouteEvaluation{Allowed: true}
}
