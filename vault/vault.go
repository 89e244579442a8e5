// Package vault issues opaque card tokens and resolves them back to card
// data or a masked projection for a bounded lifetime.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/alovak/paytrust/internal/redact"
	"github.com/alovak/paytrust/internal/security"
	"golang.org/x/exp/slog"
)

const (
	TokenPrefix   = "tok_"
	DefaultTTL    = 15 * time.Minute
	maxHolderName = 26
	keyPrefix     = "token:"
	createRetries = 3
)

var (
	// ErrTokenNotFound covers unknown and expired tokens alike.
	ErrTokenNotFound = errors.New("invalid or expired token")
	ErrInvalidCard   = errors.New("invalid card")
)

type lookupReason int

const (
	lookupFound lookupReason = iota
	lookupNotFound
	lookupExpired
)

func (r lookupReason) String() string {
	switch r {
	case lookupFound:
		return "found"
	case lookupNotFound:
		return "not_found"
	case lookupExpired:
		return "expired"
	}
	return "unknown"
}

type Config struct {
	TTL time.Duration
	// PANHashKey keys the PAN fingerprint kept next to each token.
	PANHashKey []byte
}

func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

type Option func(*Vault)

func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

func WithIDGenerator(ids *security.IDGenerator) Option {
	return func(v *Vault) {
		v.ids = ids
	}
}

type Vault struct {
	store  kvstore.Store
	ids    *security.IDGenerator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(store kvstore.Store, cfg Config, logger *slog.Logger, opts ...Option) *Vault {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	v := &Vault{
		store:  store,
		ids:    security.NewIDGenerator(nil, TokenPrefix, 16),
		cfg:    cfg,
		logger: logger.With(slog.String("component", "vault")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Tokenize validates the card and stores it under a fresh token.
// Only the token and its expiry are returned.
func (v *Vault) Tokenize(ctx context.Context, card Card) (*Token, error) {
	rec, err := v.validate(card)
	if err != nil {
		return nil, err
	}

	rec.IssuedAt = v.now().UTC()
	rec.ExpiresAt = rec.IssuedAt.Add(v.cfg.TTL)

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding token record: %w", err)
	}
	defer security.Wipe(data)

	for attempt := 0; attempt < createRetries; attempt++ {
		token, err := v.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}

		err = v.store.Create(ctx, keyPrefix+token, data, v.cfg.TTL)
		if errors.Is(err, kvstore.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("storing token: %w", err)
		}

		attrs := append([]any{redact.IDAttr("token", token)}, redact.PANAttrs(rec.PAN)...)
		v.logger.Info("card tokenized", attrs...)

		return &Token{Token: token, ExpiresAt: rec.ExpiresAt}, nil
	}

	return nil, fmt.Errorf("could not allocate a unique token after %d attempts", createRetries)
}

func (v *Vault) validate(card Card) (*record, error) {
	pan := cardgen.NormalizePAN(card.PAN)
	if err := cardgen.ValidatePAN(pan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}

	year, err := expiry.ValidateCardExpiry(card.ExpiryMonth, card.ExpiryYear, v.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}

	cvv := strings.TrimSpace(card.CVV)
	if l := len(cvv); l < 3 || l > 4 || !cardgen.IsDigits(cvv) {
		return nil, fmt.Errorf("%w: cvv must be 3 or 4 digits", ErrInvalidCard)
	}

	rec := &record{
		PAN:         pan,
		ExpiryMonth: card.ExpiryMonth,
		ExpiryYear:  year,
		CVV:         cvv,
		HolderName:  NormalizeHolderName(card.HolderName),
		Brand:       cardgen.Brand(pan),
	}
	if len(v.cfg.PANHashKey) > 0 {
		rec.Fingerprint = cardgen.Fingerprint(pan, v.cfg.PANHashKey)
	}
	return rec, nil
}

// NormalizeHolderName collapses whitespace and upper-cases the name as it is
// imprinted on the card face (at most 26 characters).
func NormalizeHolderName(name string) string {
	holder := strings.ToUpper(strings.Join(strings.Fields(name), " "))
	if r := []rune(holder); len(r) > maxHolderName {
		holder = string(r[:maxHolderName])
	}
	return holder
}

// Resolve returns the card data behind a live token.
func (v *Vault) Resolve(ctx context.Context, token string) (*CardData, error) {
	rec, reason, err := v.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason != lookupFound {
		v.logger.Debug("token lookup failed", redact.IDAttr("token", token), slog.String("reason", reason.String()))
		return nil, ErrTokenNotFound
	}
	return rec.cardData(), nil
}

// SecureInfo returns the masked projection of a live token.
func (v *Vault) SecureInfo(ctx context.Context, token string) (*SecureCardInfo, error) {
	rec, reason, err := v.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if reason != lookupFound {
		v.logger.Debug("token lookup failed", redact.IDAttr("token", token), slog.String("reason", reason.String()))
		return nil, ErrTokenNotFound
	}
	return rec.secureInfo(), nil
}

// lookup tells apart unknown and expired tokens. Only errors from the
// store are returned as err.
func (v *Vault) lookup(ctx context.Context, token string) (*record, lookupReason, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, lookupNotFound, nil
	}

	data, err := v.store.Get(ctx, keyPrefix+token)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, lookupNotFound, nil
	}
	if err != nil {
		return nil, lookupNotFound, fmt.Errorf("reading token: %w", err)
	}

	rec := &record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, lookupNotFound, fmt.Errorf("decoding token record: %w", err)
	}

	if !v.now().Before(rec.ExpiresAt) {
		return nil, lookupExpired, nil
	}
	return rec, lookupFound, nil
}
