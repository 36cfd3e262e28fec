package models

// ProviderState is a provider-reported state for an order or a payment attempt
type ProviderState string

const (
	StateCompleted ProviderState = "COMPLETED"
	StatePending   ProviderState = "PENDING"
	StateFailed    ProviderState = "FAILED"
)

// PaymentAttempt is one payment attempt inside a provider status response.
// Providers report attempts with their own states, which may disagree with
// the order-level state.
type PaymentAttempt struct {
	ProviderTransactionID string        `json:"transactionId"`
	State                 ProviderState `json:"state"`
	Mode                  string        `json:"paymentMode,omitempty"`
	ErrorCode             string        `json:"errorCode,omitempty"`
	Timestamp             int64         `json:"timestamp,omitempty"`
}

// ProviderStatus is the normalized result of a provider status query or
// webhook payload: an order-level state plus zero or more attempts.
type ProviderStatus struct {
	Gateway               GatewayType      `json:"gateway"`
	MerchantTransactionID string           `json:"merchantTransactionId"`
	OrderTransactionID    string           `json:"orderTransactionId,omitempty"`
	OrderState            ProviderState    `json:"orderState"`
	AmountMinorUnits      int64            `json:"amountMinorUnits,omitempty"`
	Attempts              []PaymentAttempt `json:"attempts,omitempty"`
}

// LastAttempt returns the most recent attempt, or nil when none exist.
func (p *ProviderStatus) LastAttempt() *PaymentAttempt {
	if len(p.Attempts) == 0 {
		return nil
	}
	return &p.Attempts[len(p.Attempts)-1]
}

// CompletedAttempt returns the first attempt in COMPLETED state, or nil.
func (p *ProviderStatus) CompletedAttempt() *PaymentAttempt {
	for i := range p.Attempts {
		if p.Attempts[i].State == StateCompleted {
			return &p.Attempts[i]
		}
	}
	return nil
}
