package gateway_test

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alovak/paytrust/gateway"
	"github.com/alovak/paytrust/internal/devclient"
	"github.com/alovak/paytrust/vault"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startApp(t *testing.T, cfg *gateway.Config) (*gateway.App, *devclient.Client, *syncBuffer) {
	t.Helper()

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs))

	cfg.HTTPAddr = "127.0.0.1:0"
	app := gateway.NewApp(logger, cfg)
	require.NoError(t, app.Start())
	t.Cleanup(app.Shutdown)

	return app, devclient.New("http://"+app.Addr, nil), logs
}

func checkout(t *testing.T, client *devclient.Client) {
	t.Helper()
	ctx := context.Background()

	token, err := client.Tokenize(ctx, vault.Card{
		PAN:         "4111 1111 1111 1111",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 2,
		CVV:         "123",
		HolderName:  "Ada Lovelace",
	})
	require.NoError(t, err)
	require.Regexp(t, `^tok_[0-9a-f]{32}$`, token.Token)

	info, err := client.SecureInfo(ctx, token.Token)
	require.NoError(t, err)
	require.Equal(t, "1111", info.LastFour)

	price := 150.50
	bin, err := client.Classify(ctx, devclient.ClassifyReq{
		CardNumber:      "4111111111111111",
		WithInstallment: true,
		Price:           &price,
		Currency:        "EUR",
		ProductType:     "flight",
	})
	require.NoError(t, err)
	require.Equal(t, "411111", bin.BIN)
	require.NotEmpty(t, bin.Installments)

	challenge, err := client.Initiate(ctx, devclient.InitiateReq{
		CardToken: token.Token,
		Amount:    decimal.RequireFromString("150.50"),
		Currency:  "EUR",
		OrderID:   "order-1",
	})
	require.NoError(t, err)
	require.Regexp(t, `^3ds_`, challenge.SessionID)

	pares, err := client.Authenticate(ctx, challenge.MD, true)
	require.NoError(t, err)

	done, err := client.Complete(ctx, challenge.SessionID, pares)
	require.NoError(t, err)
	require.Regexp(t, `^txn_`, done.TransactionID)
	require.True(t, decimal.RequireFromString("150.50").Equal(done.Amount))
	require.Equal(t, "EUR", done.Currency)

	_, err = client.Complete(ctx, challenge.SessionID, pares)
	var apiErr *devclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "invalid or expired session", apiErr.Message)
}

func TestCheckoutWithSimulator(t *testing.T) {
	_, client, logs := startApp(t, gateway.DefaultConfig())

	checkout(t, client)

	require.Contains(t, logs.String(), "3ds session completed")
	require.NotContains(t, logs.String(), "4111111111111111")
	require.NotContains(t, logs.String(), "4111 1111 1111 1111")
}

func TestCheckoutOverISO8583(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.ACSMode = gateway.ACSModeISO8583
	cfg.ACSEmbed = true
	cfg.ACSAddr = "127.0.0.1:0"

	app, client, _ := startApp(t, cfg)
	require.NotEqual(t, "127.0.0.1:0", app.ACSAddr)

	checkout(t, client)
}

func TestHealthEndpoints(t *testing.T) {
	app, _, _ := startApp(t, gateway.DefaultConfig())

	for _, path := range []string{"/-/live", "/-/ready"} {
		resp, err := http.Get("http://" + app.Addr + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get("http://" + app.Addr + "/payment/tokens")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestStartRejectsBadConfig(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.Backend = "pg"

	app := gateway.NewApp(slog.Default(), cfg)
	require.ErrorContains(t, app.Start(), "DB_DSN is required")
}

func TestFailedStartReleasesStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := gateway.DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Backend = gateway.BackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.BINTablePath = "testdata/missing.yaml"

	app := gateway.NewApp(slog.Default(), cfg)
	require.Error(t, app.Start())

	require.Eventually(t, func() bool {
		return mr.CurrentConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestFailedStartStopsEmbeddedACS(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.HTTPAddr = "not-an-address"
	cfg.ACSMode = gateway.ACSModeISO8583
	cfg.ACSEmbed = true
	cfg.ACSAddr = "127.0.0.1:0"

	app := gateway.NewApp(slog.Default(), cfg)
	require.ErrorContains(t, app.Start(), "listening tcp port")
	require.NotEmpty(t, app.ACSAddr)

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", app.ACSAddr)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}, time.Second, 10*time.Millisecond)
}
