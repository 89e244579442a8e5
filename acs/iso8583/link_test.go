package iso8583_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alovak/paytrust/acs"
	acs8583 "github.com/alovak/paytrust/acs/iso8583"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func startLink(t *testing.T, backend threeds.ACS) *acs8583.Client {
	t.Helper()

	srv := acs8583.NewServer(slog.Default(), "127.0.0.1:0", backend)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Close() })

	client := acs8583.NewClient(slog.Default(), srv.Addr)
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })

	return client
}

func TestChallengeAndVerifyOverISO8583(t *testing.T) {
	sim, err := acs.NewSimulator(acs.DefaultConfig(), slog.Default())
	require.NoError(t, err)
	client := startLink(t, sim)
	ctx := context.Background()

	ch, err := client.Challenge(ctx, threeds.ChallengeRequest{
		Card:        vault.CardData{PAN: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 2030},
		Amount:      decimal.RequireFromString("150.50"),
		Currency:    "EUR",
		OrderID:     "order-7",
		Description: "LHR-IST economy",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ch.MD)
	require.Equal(t, acs.DefaultConfig().URL, ch.ACSURL)

	pareq, err := acs.DecodePAReq(ch.PAReq)
	require.NoError(t, err)
	require.Equal(t, "150.5", pareq.Amount)
	require.Equal(t, "EUR", pareq.Currency)
	require.Equal(t, "3012", pareq.Expiry)
	require.Equal(t, "order-7", pareq.OrderID)
	require.Equal(t, "1111", pareq.LastFour)

	pares, err := sim.Authenticate(ch.MD, true)
	require.NoError(t, err)

	v, err := client.Verify(ctx, ch.MD, pares)
	require.NoError(t, err)
	require.True(t, v.Success)

	rejected, err := sim.Authenticate(ch.MD, false)
	require.NoError(t, err)
	v, err = client.Verify(ctx, ch.MD, rejected)
	require.NoError(t, err)
	require.False(t, v.Success)
	require.Equal(t, acs.ReasonRejected, v.Reason)
}

func TestChallengeDeclinedOverISO8583(t *testing.T) {
	sim, err := acs.NewSimulator(acs.DefaultConfig(), slog.Default())
	require.NoError(t, err)
	client := startLink(t, sim)

	_, err = client.Challenge(context.Background(), threeds.ChallengeRequest{
		Card:     vault.CardData{PAN: "4000000000000002", ExpiryMonth: 1, ExpiryYear: 2031},
		Amount:   decimal.NewFromInt(1000),
		Currency: "JPY",
	})
	var ce *threeds.ChallengeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, acs.ReasonNotEnrolled, ce.Reason)
}

type brokenACS struct{}

func (brokenACS) Challenge(context.Context, threeds.ChallengeRequest) (*threeds.Challenge, error) {
	return nil, errors.New("hsm unavailable")
}

func (brokenACS) Verify(context.Context, string, string) (*threeds.Verification, error) {
	return nil, errors.New("hsm unavailable")
}

func TestUpstreamErrorsAreNotOutcomes(t *testing.T) {
	client := startLink(t, brokenACS{})
	ctx := context.Background()

	_, err := client.Challenge(ctx, threeds.ChallengeRequest{
		Card:     vault.CardData{PAN: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 2030},
		Amount:   decimal.NewFromInt(5),
		Currency: "USD",
	})
	require.Error(t, err)
	var ce *threeds.ChallengeError
	require.False(t, errors.As(err, &ce))

	_, err = client.Verify(ctx, "md", "pares")
	require.Error(t, err)
}

type slowACS struct{ brokenACS }

func (slowACS) Verify(ctx context.Context, _, _ string) (*threeds.Verification, error) {
	time.Sleep(200 * time.Millisecond)
	return &threeds.Verification{Success: true}, nil
}

func TestClientHonoursContextDeadline(t *testing.T) {
	client := startLink(t, slowACS{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Verify(ctx, "md", "pares")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAmountPrecision(t *testing.T) {
	client := startLink(t, brokenACS{})

	_, err := client.Challenge(context.Background(), threeds.ChallengeRequest{
		Card:     vault.CardData{PAN: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 2030},
		Amount:   decimal.RequireFromString("1.005"),
		Currency: "EUR",
	})
	require.ErrorContains(t, err, "more decimals")
}
