package domain

import "time"

// GatewayReportRow aggregates completed volume per gateway and type.
type GatewayReportRow struct {
	Gateway     GatewayKind     `json:"gateway"`
	Type        TransactionType `json:"type"`
	Count       int64           `json:"count"`
	TotalAmount int64           `json:"total_amount"`
	TotalFees   int64           `json:"total_fees"`
}

// PeriodReportRow aggregates completed volume per day or month.
type PeriodReportRow struct {
	Period      time.Time `json:"period"`
	Deposits    int64     `json:"deposits"`
	Withdrawals int64     `json:"withdrawals"`
	Purchases   int64     `json:"purchases"`
	Refunds     int64     `json:"refunds"`
	Fees        int64     `json:"fees"`
	Count       int64     `json:"count"`
}

// TransactionDetail is the admin view of one transaction with its linked rows.
type TransactionDetail struct {
	Transaction *Transaction    `json:"transaction"`
	Request     *PaymentRequest `json:"payment_request,omitempty"`
	Payment     *Payment        `json:"payment,omitempty"`
	Refunds     []Refund        `json:"refunds"`
	// ProcessingFee is the fee stored when the transaction was created.
	ProcessingFee int64 `json:"processing_fee"`
}
