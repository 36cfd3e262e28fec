package models

// CreatePaymentRequest represents a request to originate a payment
type CreatePaymentRequest struct {
	Amount      float64          `json:"amount" binding:"required"`
	ServiceID   string           `json:"serviceId"`
	ServiceName string           `json:"serviceName"`
	Gateway     GatewayType      `json:"gateway"`
	Customer    *CustomerDetails `json:"customerDetails"`
}

// CustomerDetails carries optional customer contact info from the checkout form
type CustomerDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// CreatePaymentResponse represents the result of originating a payment
type CreatePaymentResponse struct {
	MerchantTransactionID string      `json:"merchantTransactionId"`
	Gateway               GatewayType `json:"gateway"`
	RedirectURL           string      `json:"redirectUrl,omitempty"`
	ProviderOrderID       string      `json:"providerOrderId,omitempty"`
	KeyID                 string      `json:"keyId,omitempty"`
	AmountMinorUnits      int64       `json:"amountMinorUnits"`
	Currency              string      `json:"currency"`
}

// VerifyPaymentRequest represents a client verification poll after redirect
type VerifyPaymentRequest struct {
	MerchantTransactionID string `json:"merchantTransactionId" binding:"required"`

	// Optional Razorpay checkout callback fields
	RazorpayPaymentID string `json:"razorpayPaymentId,omitempty"`
	RazorpaySignature string `json:"razorpaySignature,omitempty"`
}

// VerifyPaymentResponse mirrors the reconciled record plus derived flags
type VerifyPaymentResponse struct {
	Payment     *PaymentRecord `json:"payment"`
	IsCompleted bool           `json:"isCompleted"`
	IsPending   bool           `json:"isPending"`
	IsFailed    bool           `json:"isFailed"`
	Warning     string         `json:"warning,omitempty"`
}

// ReceiptRequest represents a synchronous PDF receipt request
type ReceiptRequest struct {
	MerchantTransactionID string `json:"merchantTransactionId" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
