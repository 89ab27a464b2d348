package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // awaiting admin review
	PaymentStatusApproved PaymentStatus = "approved" // confirmed, credits added
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Payment records a manual top-up request backed by a payment screenshot.
// The PENDING -> APPROVED|REJECTED transition is guarded by a conditional
// update so concurrent admin clicks cannot credit the balance twice; the
// approval path is the only coupling point into the credit ledger.
type Payment struct {
	ID             string // UUID
	UserID         int64
	Credits        int64 // credits to add on approval
	AmountUZS      int64 // price paid, in UZS
	ScreenshotURL  string
	Status         PaymentStatus
	IdempotencyKey *string
	AdminID        *int64
	AdminMessage   string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
