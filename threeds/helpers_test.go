package threeds_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

const validPARes = "valid-pares"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeACS approves validPARes and rejects anything else.
type fakeACS struct {
	challengeErr error
	verifyErr    error
	verifyDelay  time.Duration
	block        bool

	mu            sync.Mutex
	lastChallenge threeds.ChallengeRequest
	verifyCalls   int32
}

func (f *fakeACS) Challenge(ctx context.Context, req threeds.ChallengeRequest) (*threeds.Challenge, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	f.mu.Lock()
	f.lastChallenge = req
	f.mu.Unlock()

	return &threeds.Challenge{
		ACSURL: "https://acs.example.test/challenge",
		PAReq:  "pareq-for-" + req.Currency,
		MD:     "md-1",
	}, nil
}

func (f *fakeACS) Verify(ctx context.Context, md, pares string) (*threeds.Verification, error) {
	atomic.AddInt32(&f.verifyCalls, 1)
	if f.verifyDelay > 0 {
		time.Sleep(f.verifyDelay)
	}
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if md != "md-1" {
		return nil, errors.New("unexpected md")
	}
	if pares != validPARes {
		return &threeds.Verification{Success: false, Reason: "PARes signature invalid"}, nil
	}
	return &threeds.Verification{Success: true}, nil
}

type fixture struct {
	clock    *clock
	vault    *vault.Vault
	sessions *kvstore.Memory
	acs      *fakeACS
	orch     *threeds.Orchestrator
	logs     *bytes.Buffer
	token    string
}

func newFixture(t *testing.T, acs *fakeACS) *fixture {
	t.Helper()

	f := &fixture{
		clock:    &clock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)},
		sessions: kvstore.NewMemory(),
		acs:      acs,
		logs:     &bytes.Buffer{},
	}
	if f.acs == nil {
		f.acs = &fakeACS{}
	}

	logger := slog.New(slog.HandlerOptions{Level: slog.LevelDebug}.NewTextHandler(&syncWriter{buf: f.logs}))
	f.vault = vault.New(kvstore.NewMemory(), vault.DefaultConfig(), logger, vault.WithClock(f.clock.Now))
	f.orch = threeds.NewOrchestrator(f.sessions, f.vault, f.acs, threeds.Config{
		SessionTTL: 10 * time.Minute,
		ACSTimeout: 50 * time.Millisecond,
	}, logger, threeds.WithClock(f.clock.Now))

	tok, err := f.vault.Tokenize(context.Background(), vault.Card{
		PAN:         "4111111111111111",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
		HolderName:  "Jane Doe",
	})
	require.NoError(t, err)
	f.token = tok.Token

	return f
}

type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
