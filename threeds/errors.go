package threeds

import "errors"

var (
	// ErrInvalidOrExpiredToken is returned when the card token cannot be resolved.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired card token")
	// ErrInvalidOrExpiredSession covers unknown, expired, completed and failed
	// sessions alike.
	ErrInvalidOrExpiredSession = errors.New("invalid or expired session")
	ErrInvalidRequest          = errors.New("invalid request")
	// ErrInfrastructure wraps failures of the ACS or the session store.
	ErrInfrastructure = errors.New("infrastructure error")
)

// AuthenticationError means the ACS rejected the PARes. Reason comes from
// the ACS and is returned verbatim.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "authentication failed"
	}
	return e.Reason
}

// ChallengeError means the ACS declined to start a challenge.
type ChallengeError struct {
	Reason string
}

func (e *ChallengeError) Error() string {
	if e.Reason == "" {
		return "challenge declined"
	}
	return e.Reason
}
