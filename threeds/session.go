package threeds

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is a 3-D Secure step-up transaction. It holds the card token, never
// card data.
type Session struct {
	ID            string          `json:"id"`
	CardToken     string          `json:"card_token"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OrderID       string          `json:"order_id,omitempty"`
	Description   string          `json:"description,omitempty"`
	MD            string          `json:"md"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	TransactionID string          `json:"transaction_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// record is the stored form of a session. Claim is set by the one complete
// call that won the compare-and-swap; a claimed session is invisible to
// everybody else while the ACS verifies the PARes.
type record struct {
	Session
	Claim string `json:"claim,omitempty"`
}

// wellFormed reports whether amount and currency, which every session must
// carry from creation on, are present.
func (r *record) wellFormed() bool {
	return r.Amount.IsPositive() && r.Currency != ""
}
