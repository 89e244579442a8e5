package acs_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alovak/paytrust/acs"
	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func newSimulator(t *testing.T, now *time.Time) *acs.Simulator {
	t.Helper()

	opts := []acs.Option{}
	if now != nil {
		opts = append(opts, acs.WithClock(func() time.Time { return *now }))
	}
	sim, err := acs.NewSimulator(acs.DefaultConfig(), slog.Default(), opts...)
	require.NoError(t, err)
	return sim
}

func challengeRequest(pan string) threeds.ChallengeRequest {
	return threeds.ChallengeRequest{
		Card:     vault.CardData{PAN: pan, ExpiryMonth: 12, ExpiryYear: 2030},
		Amount:   decimal.RequireFromString("150.50"),
		Currency: "EUR",
		OrderID:  "order-1",
	}
}

func TestChallengeMaterialHasNoPAN(t *testing.T) {
	sim := newSimulator(t, nil)

	ch, err := sim.Challenge(context.Background(), challengeRequest("4111111111111111"))
	require.NoError(t, err)
	require.NotEmpty(t, ch.MD)
	require.Equal(t, acs.DefaultConfig().URL, ch.ACSURL)

	pareq, err := acs.DecodePAReq(ch.PAReq)
	require.NoError(t, err)
	require.Equal(t, ch.MD, pareq.MD)
	require.Equal(t, "1111", pareq.LastFour)
	require.Equal(t, "Visa", pareq.Brand)
	require.Equal(t, "3012", pareq.Expiry)
	require.Equal(t, "150.5", pareq.Amount)
	require.Equal(t, "EUR", pareq.Currency)

	raw, err := json.Marshal(pareq)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "4111111111111111")
	require.NotContains(t, ch.PAReq, "4111111111111111")
}

func TestChallengeNotEnrolled(t *testing.T) {
	sim := newSimulator(t, nil)

	_, err := sim.Challenge(context.Background(), challengeRequest("4000000000000002"))
	var ce *threeds.ChallengeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, acs.ReasonNotEnrolled, ce.Reason)
}

func TestVerify(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	sim := newSimulator(t, &now)
	ctx := context.Background()

	approved, err := sim.Authenticate("md-1", true)
	require.NoError(t, err)
	rejected, err := sim.Authenticate("md-1", false)
	require.NoError(t, err)

	other, err := acs.NewSimulator(acs.Config{SigningKey: []byte("another-key")}, slog.Default())
	require.NoError(t, err)
	forged, err := other.Authenticate("md-1", true)
	require.NoError(t, err)

	parts := strings.Split(approved, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"md":"md-2","status":"Y","iss":"paytrust-acs-simulator","exp":9999999999}`))
	tampered := strings.Join(parts, ".")

	tests := []struct {
		name   string
		md     string
		pares  string
		ok     bool
		reason string
	}{
		{"approved", "md-1", approved, true, ""},
		{"rejected by cardholder", "md-1", rejected, false, acs.ReasonRejected},
		{"other session", "md-2", approved, false, acs.ReasonMismatch},
		{"wrong key", "md-1", forged, false, acs.ReasonInvalidSignature},
		{"garbage", "md-1", "not-a-jwt", false, acs.ReasonInvalidSignature},
		{"tampered", "md-2", tampered, false, acs.ReasonInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := sim.Verify(ctx, tt.md, tt.pares)
			require.NoError(t, err)
			require.Equal(t, tt.ok, v.Success)
			require.Equal(t, tt.reason, v.Reason)
		})
	}

	t.Run("expired", func(t *testing.T) {
		now = now.Add(6 * time.Minute)
		v, err := sim.Verify(ctx, "md-1", approved)
		require.NoError(t, err)
		require.False(t, v.Success)
		require.Equal(t, acs.ReasonExpired, v.Reason)
	})
}

func TestVerifyHonoursContext(t *testing.T) {
	sim := newSimulator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Verify(ctx, "md", "pares")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSimulatorRequiresKey(t *testing.T) {
	_, err := acs.NewSimulator(acs.Config{}, slog.Default())
	require.Error(t, err)
}

// The simulator plugged into the orchestrator: the full step-up flow with a
// real signed PARes.
func TestSimulatorWithOrchestrator(t *testing.T) {
	sim := newSimulator(t, nil)
	v := vault.New(kvstore.NewMemory(), vault.DefaultConfig(), slog.Default())
	orch := threeds.NewOrchestrator(kvstore.NewMemory(), v, sim, threeds.DefaultConfig(), slog.Default())
	ctx := context.Background()

	tok, err := v.Tokenize(ctx, vault.Card{PAN: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 2030, CVV: "123"})
	require.NoError(t, err)

	res, err := orch.Initiate(ctx, threeds.InitiateRequest{CardToken: tok.Token, Amount: decimal.RequireFromString("150.50"), Currency: "EUR"})
	require.NoError(t, err)

	pares, err := sim.Authenticate(res.MD, true)
	require.NoError(t, err)

	done, err := orch.Complete(ctx, res.SessionID, pares)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(done.TransactionID, threeds.TransactionPrefix))
	require.Equal(t, "EUR", done.Currency)

	_, err = orch.Complete(ctx, res.SessionID, pares)
	require.ErrorIs(t, err, threeds.ErrInvalidOrExpiredSession)
}

func TestAPI(t *testing.T) {
	sim := newSimulator(t, nil)
	router := chi.NewRouter()
	acs.NewAPI(sim).AppendRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/acs/authenticate", bytes.NewBufferString(`{"md":"md-9","approve":true}`))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PARes string `json:"pares"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	v, err := sim.Verify(context.Background(), "md-9", resp.PARes)
	require.NoError(t, err)
	require.True(t, v.Success)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/acs/authenticate", bytes.NewBufferString(`{}`))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
