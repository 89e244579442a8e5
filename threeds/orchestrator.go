// Package threeds runs 3-D Secure step-up sessions: it resolves a card
// token, asks the ACS for a challenge and completes the session exactly once
// with the PARes the browser brings back.
package threeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/alovak/paytrust/internal/money"
	"github.com/alovak/paytrust/internal/redact"
	"github.com/alovak/paytrust/internal/security"
	"github.com/alovak/paytrust/vault"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

const (
	SessionPrefix     = "3ds_"
	TransactionPrefix = "txn_"

	DefaultSessionTTL = 10 * time.Minute
	DefaultACSTimeout = 10 * time.Second

	keyPrefix = "3ds:"
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

type lookupReason int

const (
	lookupFound lookupReason = iota
	lookupNotFound
	lookupExpired
	lookupTerminal
	lookupClaimed
	lookupMalformed
)

func (r lookupReason) String() string {
	switch r {
	case lookupFound:
		return "found"
	case lookupNotFound:
		return "not_found"
	case lookupExpired:
		return "expired"
	case lookupTerminal:
		return "terminal"
	case lookupClaimed:
		return "in_flight"
	case lookupMalformed:
		return "malformed"
	}
	return "unknown"
}

// TokenResolver is the part of the vault the orchestrator borrows card data from.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*vault.CardData, error)
}

type Config struct {
	SessionTTL time.Duration
	ACSTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionTTL: DefaultSessionTTL,
		ACSTimeout: DefaultACSTimeout,
	}
}

type InitiateRequest struct {
	CardToken   string
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	Description string
}

type InitiateResult struct {
	SessionID string `json:"session_id"`
	ACSURL    string `json:"acs_url"`
	PAReq     string `json:"pareq"`
	MD        string `json:"md"`
}

type Completion struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// MarshalJSON writes the amount as a JSON number with the currency's
// minor-unit digits, e.g. "amount": 150.50.
func (c Completion) MarshalJSON() ([]byte, error) {
	type completion Completion
	return json.Marshal(struct {
		completion
		Amount json.Number `json:"amount"`
	}{completion(c), json.Number(money.Format(c.Amount, c.Currency))})
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithIDGenerator(ids *security.IDGenerator) Option {
	return func(o *Orchestrator) {
		o.ids = ids
	}
}

type Orchestrator struct {
	store  kvstore.Store
	tokens TokenResolver
	acs    ACS
	ids    *security.IDGenerator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewOrchestrator(store kvstore.Store, tokens TokenResolver, acs ACS, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ACSTimeout <= 0 {
		cfg.ACSTimeout = DefaultACSTimeout
	}
	o := &Orchestrator{
		store:  store,
		tokens: tokens,
		acs:    acs,
		ids:    security.NewIDGenerator(nil, SessionPrefix, 16),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "threeds")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initiate creates a pending session and returns the ACS challenge material.
// Nothing is stored unless the ACS issued a challenge.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	card, err := o.tokens.Resolve(ctx, req.CardToken)
	if errors.Is(err, vault.ErrTokenNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolving card token: %w", ErrInfrastructure, err)
	}

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if !currencyRe.MatchString(req.Currency) {
		return nil, fmt.Errorf("%w: currency must be a 3-letter ISO 4217 code", ErrInvalidRequest)
	}

	id, err := o.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("%w: generating session id: %w", ErrInfrastructure, err)
	}

	now := o.now().UTC()
	rec := &record{Session: Session{
		ID:          id,
		CardToken:   req.CardToken,
		Amount:      req.Amount,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(o.cfg.SessionTTL),
	}}

	acsCtx, cancel := context.WithTimeout(ctx, o.cfg.ACSTimeout)
	defer cancel()

	challenge, err := o.acs.Challenge(acsCtx, ChallengeRequest{
		Card:        *card,
		Amount:      req.Amount,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
	})
	if err != nil {
		var ce *ChallengeError
		if errors.As(err, &ce) {
			o.logger.Info("acs declined challenge", redact.IDAttr("session", id), slog.String("reason", ce.Reason))
			return nil, ce
		}
		return nil, fmt.Errorf("%w: acs challenge: %w", ErrInfrastructure, err)
	}

	rec.MD = challenge.MD
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if err := o.store.Create(ctx, keyPrefix+id, data, o.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("%w: storing session: %w", ErrInfrastructure, err)
	}

	o.logger.Info("3ds session initiated",
		redact.IDAttr("session", id),
		redact.IDAttr("card_token", req.CardToken),
		slog.String("currency", req.Currency),
	)

	return &InitiateResult{
		SessionID: id,
		ACSURL:    challenge.ACSURL,
		PAReq:     challenge.PAReq,
		MD:        challenge.MD,
	}, nil
}

// Get returns a session only while it is pending and not expired.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*Session, error) {
	_, rec, reason, err := o.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if reason != lookupFound {
		return nil, ErrInvalidOrExpiredSession
	}
	s := rec.Session
	return &s, nil
}

// Complete verifies the PARes and moves the session to a terminal state. Of
// any number of concurrent calls for one session at most one gets past the
// claim; the others see ErrInvalidOrExpiredSession.
func (o *Orchestrator) Complete(ctx context.Context, sessionID, pares string) (*Completion, error) {
	raw, rec, reason, err := o.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch reason {
	case lookupFound:
	case lookupExpired:
		o.expire(raw, rec)
		return nil, ErrInvalidOrExpiredSession
	default:
		return nil, ErrInvalidOrExpiredSession
	}

	if pares == "" {
		return nil, fmt.Errorf("%w: pares is required", ErrInvalidRequest)
	}

	claimed := *rec
	claimed.Claim = uuid.NewString()
	claimedRaw, ok, err := o.swap(ctx, raw, &claimed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOrExpiredSession
	}

	acsCtx, cancel := context.WithTimeout(ctx, o.cfg.ACSTimeout)
	defer cancel()

	verification, err := o.acs.Verify(acsCtx, rec.MD, pares)
	if err != nil {
		o.finish(claimedRaw, &claimed, StatusFailed, "", "acs verification error")
		return nil, fmt.Errorf("%w: acs verify: %w", ErrInfrastructure, err)
	}

	if !verification.Success {
		o.finish(claimedRaw, &claimed, StatusFailed, "", verification.Reason)
		o.logger.Info("3ds authentication failed", redact.IDAttr("session", sessionID))
		return nil, &AuthenticationError{Reason: verification.Reason}
	}

	txnID := TransactionPrefix + uuid.NewString()
	if err := o.finish(claimedRaw, &claimed, StatusCompleted, txnID, ""); err != nil {
		return nil, err
	}

	o.logger.Info("3ds session completed",
		redact.IDAttr("session", sessionID),
		slog.String("transaction_id", txnID),
	)

	return &Completion{
		TransactionID: txnID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
	}, nil
}

// lookup reads a session and tells why it is not usable. Only store and
// decoding failures are returned as err.
func (o *Orchestrator) lookup(ctx context.Context, sessionID string) ([]byte, *record, lookupReason, error) {
	raw, err := o.store.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil, lookupNotFound, nil
	}
	if err != nil {
		return nil, nil, lookupNotFound, fmt.Errorf("%w: reading session: %w", ErrInfrastructure, err)
	}

	rec := &record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, nil, lookupNotFound, fmt.Errorf("%w: decoding session: %w", ErrInfrastructure, err)
	}

	reason := lookupFound
	switch {
	case !rec.wellFormed():
		reason = lookupMalformed
		o.logger.Warn("session without amount or currency", redact.IDAttr("session", sessionID))
	case rec.Status.Terminal():
		reason = lookupTerminal
	case rec.Claim != "":
		reason = lookupClaimed
	case !o.now().Before(rec.ExpiresAt):
		reason = lookupExpired
	}

	if reason != lookupFound {
		o.logger.Debug("session lookup failed", redact.IDAttr("session", sessionID), slog.String("reason", reason.String()))
	}
	return raw, rec, reason, nil
}

func (o *Orchestrator) swap(ctx context.Context, old []byte, rec *record) ([]byte, bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("encoding session: %w", err)
	}
	ok, err := o.store.CompareAndSwap(ctx, keyPrefix+rec.ID, old, data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: updating session: %w", ErrInfrastructure, err)
	}
	return data, ok, nil
}

// detached returns a context for terminal writes. They run even when the
// caller's context is already done.
func (o *Orchestrator) detached() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.cfg.ACSTimeout)
}

// finish performs the terminal transition of a claimed session.
func (o *Orchestrator) finish(claimedRaw []byte, claimed *record, status Status, txnID, reason string) error {
	ctx, cancel := o.detached()
	defer cancel()

	final := *claimed
	final.Status = status
	final.TransactionID = txnID
	final.FailureReason = reason

	_, ok, err := o.swap(ctx, claimedRaw, &final)
	if err != nil {
		o.logger.Error("finishing session", redact.IDAttr("session", claimed.ID), "err", err)
		return err
	}
	if !ok {
		// only the claim holder writes a claimed session, so this means the
		// entry expired under us
		o.logger.Warn("session vanished before it was finished", redact.IDAttr("session", claimed.ID))
		return ErrInvalidOrExpiredSession
	}
	return nil
}

// expire marks an expired pending session as failed. It is best effort: the
// expiry check alone already keeps the session unusable.
func (o *Orchestrator) expire(raw []byte, rec *record) {
	ctx, cancel := o.detached()
	defer cancel()

	failed := *rec
	failed.Status = StatusFailed
	failed.FailureReason = "expired"
	if _, _, err := o.swap(ctx, raw, &failed); err != nil {
		o.logger.Debug("marking expired session failed", redact.IDAttr("session", rec.ID), "err", err)
	}
}
