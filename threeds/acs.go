package threeds

import (
	"context"

	"github.com/alovak/paytrust/vault"
	"github.com/shopspring/decimal"
)

type ChallengeRequest struct {
	Card        vault.CardData
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	Description string
}

// Challenge is the step-up material the browser is redirected with.
type Challenge struct {
	ACSURL string
	PAReq  string
	MD     string
}

type Verification struct {
	Success bool
	Reason  string
}

// ACS is the Access Control Server the orchestrator delegates to.
//
// Challenge returns a *ChallengeError when the ACS declines; any other error
// is treated as an infrastructure failure. Verify reports an authentication
// outcome in Verification and returns an error only when the outcome is
// unknown.
type ACS interface {
	Challenge(ctx context.Context, req ChallengeRequest) (*Challenge, error)
	Verify(ctx context.Context, md, pares string) (*Verification, error)
}
