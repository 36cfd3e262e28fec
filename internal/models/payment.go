package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Payment processing errors
var (
	ErrValidation       = errors.New("invalid payment request")
	ErrConfiguration    = errors.New("payment credentials not configured")
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	ErrProviderAuth     = errors.New("payment provider rejected credentials")
	// ErrTransactionNotFound means the provider has no record of the
	// transaction yet. Status polling retries on this error only.
	ErrTransactionNotFound = errors.New("transaction not found at provider")
	// ErrPaymentNotFound means no payment record exists locally for the
	// merchant transaction ID.
	ErrPaymentNotFound = errors.New("payment record not found")
)

// GatewayType represents the payment gateway provider
type GatewayType string

const (
	GatewayPhonePe  GatewayType = "PHONEPE"
	GatewayRazorpay GatewayType = "RAZORPAY"
)

// PaymentStatus represents the payment lifecycle status
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Environment represents the trust tier the service runs in
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// JSONB custom type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(j))
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*j = JSONB(m)
	return nil
}

// PaymentRecord is the canonical view of one payment attempt, keyed by the
// caller-generated merchant transaction id. It is created when the payment
// intent is initiated and enriched by whichever lifecycle signal (webhook or
// verification poll) arrives first.
type PaymentRecord struct {
	MerchantTransactionID string        `gorm:"type:varchar(64);primaryKey" json:"merchantTransactionId"`
	ProviderTransactionID string        `gorm:"type:varchar(255);index:idx_payments_provider_txn" json:"providerTransactionId,omitempty"`
	Gateway               GatewayType   `gorm:"type:varchar(20);not null" json:"gateway"`
	Status                PaymentStatus `gorm:"type:varchar(20);not null;index:idx_payments_status" json:"status"`

	// Amount in the smallest currency unit (paise). Set at creation, never mutated.
	AmountMinorUnits int64  `gorm:"not null" json:"amountMinorUnits"`
	Currency         string `gorm:"type:varchar(3);default:'INR'" json:"currency"`

	// Customer details captured at intent creation
	CustomerName    string `gorm:"type:varchar(255)" json:"customerName,omitempty"`
	CustomerEmail   string `gorm:"type:varchar(255)" json:"customerEmail,omitempty"`
	CustomerPhone   string `gorm:"type:varchar(50)" json:"customerPhone,omitempty"`
	CustomerMessage string `gorm:"type:text" json:"customerMessage,omitempty"`

	ServiceID   string `gorm:"type:varchar(100)" json:"serviceId,omitempty"`
	ServiceName string `gorm:"type:varchar(255)" json:"serviceName,omitempty"`

	// Set once the provider reports how the customer paid (UPI, card, ...)
	PaymentMode string `gorm:"type:varchar(50)" json:"paymentMode,omitempty"`

	// One-time dispatch guard; flipped false->true exactly once via
	// the store's TryClaimNotification.
	NotificationsSent bool `gorm:"default:false" json:"notificationsSent"`

	Environment Environment `gorm:"type:varchar(20);default:'sandbox'" json:"environment"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_payments_created" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for PaymentRecord
func (PaymentRecord) TableName() string {
	return "payment_records"
}

// PaymentPatch carries the mutable fields a reconciliation may set. Empty
// fields are left untouched by the store's merge.
type PaymentPatch struct {
	ProviderTransactionID string
	PaymentMode           string
	CustomerEmail         string
	CustomerPhone         string
}

// WebhookEvent records an inbound webhook delivery for audit and duplicate
// detection.
type WebhookEvent struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Gateway     GatewayType `gorm:"type:varchar(20);not null;index:idx_webhooks_gateway" json:"gateway"`
	EventID     string      `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhooks_event" json:"eventId"`
	EventType   string      `gorm:"type:varchar(100);not null" json:"eventType"`
	Payload     JSONB       `gorm:"type:jsonb" json:"payload"`
	Processed   bool        `gorm:"default:false" json:"processed"`
	ProcessedAt *time.Time  `json:"processedAt,omitempty"`
	Error       string      `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}
