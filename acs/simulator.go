// Package acs is an in-process Access Control Server simulator. It issues
// challenge material without card numbers and signs PARes payloads as HS256
// JWTs so the gateway can be exercised end to end without a card network.
package acs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/internal/redact"
	"github.com/alovak/paytrust/threeds"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

const (
	StatusAuthenticated = "Y"
	StatusRejected      = "N"

	defaultIssuer   = "paytrust-acs-simulator"
	defaultPAResTTL = 5 * time.Minute
)

// Reasons returned in failed verifications.
const (
	ReasonInvalidSignature = "PARes signature invalid"
	ReasonExpired          = "PARes expired"
	ReasonMismatch         = "PARes does not belong to this session"
	ReasonRejected         = "cardholder authentication failed"
	ReasonNotEnrolled      = "card not enrolled in 3-D Secure"
)

type Config struct {
	// URL is where the browser is sent for the challenge.
	URL        string
	SigningKey []byte
	PAResTTL   time.Duration
	// NotEnrolled lists PANs the simulator refuses to challenge.
	NotEnrolled []string
}

func DefaultConfig() Config {
	return Config{
		URL:         "http://localhost:9090/acs/challenge",
		SigningKey:  []byte("acs-simulator-dev-key"),
		PAResTTL:    defaultPAResTTL,
		NotEnrolled: []string{"4000000000000002"},
	}
}

// PAReq is the decoded challenge request. It carries the last four digits
// only.
type PAReq struct {
	MD          string `json:"md"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id,omitempty"`
	Description string `json:"description,omitempty"`
	LastFour    string `json:"last_four"`
	Brand       string `json:"brand"`
	Expiry      string `json:"expiry"`
	CreatedAt   int64  `json:"created_at"`
}

type paresClaims struct {
	MD     string `json:"md"`
	Status string `json:"status"`
	jwt.RegisteredClaims
}

type Option func(*Simulator)

func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator implements threeds.ACS. It keeps no state: everything it needs
// to verify a PARes is in the signed token.
type Simulator struct {
	cfg         Config
	notEnrolled map[string]bool
	logger      *slog.Logger
	now         func() time.Time
}

func NewSimulator(cfg Config, logger *slog.Logger, opts ...Option) (*Simulator, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("acs simulator needs a signing key")
	}
	if cfg.PAResTTL <= 0 {
		cfg.PAResTTL = defaultPAResTTL
	}

	s := &Simulator{
		cfg:         cfg,
		notEnrolled: make(map[string]bool, len(cfg.NotEnrolled)),
		logger:      logger.With(slog.String("component", "acs-simulator")),
		now:         time.Now,
	}
	for _, pan := range cfg.NotEnrolled {
		s.notEnrolled[cardgen.NormalizePAN(pan)] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Simulator) Challenge(ctx context.Context, req threeds.ChallengeRequest) (*threeds.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pan := req.Card.PAN
	if s.notEnrolled[pan] {
		s.logger.Info("challenge declined", redact.PANAttrs(pan)...)
		return nil, &threeds.ChallengeError{Reason: ReasonNotEnrolled}
	}

	md := uuid.NewString()
	pareq, err := EncodePAReq(PAReq{
		MD:          md,
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
		LastFour:    cardgen.LastN(pan, 4),
		Brand:       cardgen.Brand(pan),
		Expiry:      expiry.YYMM(req.Card.ExpiryMonth, req.Card.ExpiryYear),
		CreatedAt:   s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}

	return &threeds.Challenge{
		ACSURL: s.cfg.URL,
		PAReq:  pareq,
		MD:     md,
	}, nil
}

// Authenticate plays the cardholder: it mints the PARes the ACS would post
// back after the challenge.
func (s *Simulator) Authenticate(md string, approve bool) (string, error) {
	if md == "" {
		return "", errors.New("md is required")
	}

	status := StatusRejected
	if approve {
		status = StatusAuthenticated
	}

	now := s.now()
	claims := paresClaims{
		MD:     md,
		Status: status,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.PAResTTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("signing pares: %w", err)
	}
	return signed, nil
}

func (s *Simulator) Verify(ctx context.Context, md, pares string) (*threeds.Verification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := &paresClaims{}
	_, err := jwt.ParseWithClaims(pares, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(defaultIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &threeds.Verification{Reason: ReasonExpired}, nil
	case err != nil:
		s.logger.Debug("pares rejected", "err", err)
		return &threeds.Verification{Reason: ReasonInvalidSignature}, nil
	}

	if claims.MD != md {
		return &threeds.Verification{Reason: ReasonMismatch}, nil
	}
	if claims.Status != StatusAuthenticated {
		return &threeds.Verification{Reason: ReasonRejected}, nil
	}
	return &threeds.Verification{Success: true}, nil
}

func EncodePAReq(p PAReq) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding pareq: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodePAReq(s string) (*PAReq, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding pareq: %w", err)
	}
	p := &PAReq{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decoding pareq: %w", err)
	}
	return p, nil
}

var _ threeds.ACS = (*Simulator)(nil)
