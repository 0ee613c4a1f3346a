package models

import "time"

// Invoice statuses.
const (
	InvoiceStatusDraft  = "draft"
	InvoiceStatusSent   = "sent"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusFailed = "failed"
	InvoiceStatusVoid   = "void"
)

// Invoice bills a client for project work. Amounts are stored as integer
// cents; checkout happens through the payment processor's hosted page.
type Invoice struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	ClientID  string `gorm:"type:uuid;not null;index" json:"client_id"`
	Client    *User  `gorm:"foreignKey:ClientID" json:"client,omitempty"`

	Number      string `gorm:"uniqueIndex;not null" json:"number"`
	Description string `gorm:"type:text" json:"description"`
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(8);default:'usd'" json:"currency"`
	Status      string `gorm:"type:varchar(16);default:'draft';index" json:"status"`

	CheckoutSessionID string     `gorm:"index" json:"-"`
	PaidAt            *time.Time `json:"paid_at"`
}
