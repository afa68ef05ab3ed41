//go:build integration

package integration

import (
	"errors"

	"github.com/rafflehub/platform/internal/provider"
)

func declineCharge(provider.ChargeRequest) (*provider.ChargeResult, error) {
	return nil, errors.New("card_declined")
}

func failRefund(provider.RefundRequest) (*provider.RefundResult, error) {
	return nil, errors.New("charge_already_refunded")
}
