package iso8583

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/threeds"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"golang.org/x/exp/slog"
)

// Client is a threeds.ACS that talks to an ACS over ISO 8583.
type Client struct {
	addr   string
	conn   *connection.Connection
	logger *slog.Logger
	stan   uint32
}

func NewClient(logger *slog.Logger, addr string) *Client {
	return &Client{
		addr:   addr,
		logger: logger.With(slog.String("component", "acs-client")),
	}
}

func (c *Client) Connect() error {
	conn, err := connection.New(c.addr, spec, readMessageLength, writeMessageLength,
		connection.SendTimeout(30*time.Second),
		connection.ErrorHandler(func(err error) {
			c.logger.Error("iso8583 connection error", "err", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("creating iso8583 connection: %w", err)
	}

	if err := conn.Connect(); err != nil {
		return fmt.Errorf("connecting to acs %s: %w", c.addr, err)
	}

	c.conn = conn
	c.logger.Info("connected to acs", slog.String("addr", c.addr))
	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) nextSTAN() string {
	n := atomic.AddUint32(&c.stan, 1) % 1_000_000
	return fmt.Sprintf("%06d", n)
}

func (c *Client) Challenge(ctx context.Context, req threeds.ChallengeRequest) (*threeds.Challenge, error) {
	amount, err := minorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	message := iso8583.NewMessage(spec)
	message.MTI(mtiChallengeRequest)
	err = setFields(message, map[int]string{
		fieldPAN:         req.Card.PAN,
		fieldAmount:      amount,
		fieldSTAN:        c.nextSTAN(),
		fieldExpiry:      expiry.YYMM(req.Card.ExpiryMonth, req.Card.ExpiryYear),
		fieldCurrency:    req.Currency,
		fieldOrderID:     truncate(req.OrderID, 99),
		fieldDescription: truncate(req.Description, 99),
	})
	if err != nil {
		return nil, err
	}

	response, err := c.send(ctx, message, mtiChallengeResponse)
	if err != nil {
		return nil, err
	}

	switch code := getField(response, fieldResponse); code {
	case codeApproved:
		return &threeds.Challenge{
			ACSURL: getField(response, fieldACSURL),
			PAReq:  getField(response, fieldPayload),
			MD:     getField(response, fieldMD),
		}, nil
	case codeDeclined:
		return nil, &threeds.ChallengeError{Reason: getField(response, fieldReason)}
	default:
		return nil, fmt.Errorf("acs responded with code %q to challenge", code)
	}
}

func (c *Client) Verify(ctx context.Context, md, pares string) (*threeds.Verification, error) {
	message := iso8583.NewMessage(spec)
	message.MTI(mtiVerifyRequest)
	err := setFields(message, map[int]string{
		fieldSTAN:    c.nextSTAN(),
		fieldMD:      md,
		fieldPayload: pares,
	})
	if err != nil {
		return nil, err
	}

	response, err := c.send(ctx, message, mtiVerifyResponse)
	if err != nil {
		return nil, err
	}

	switch code := getField(response, fieldResponse); code {
	case codeApproved:
		return &threeds.Verification{Success: true}, nil
	case codeDeclined:
		return &threeds.Verification{Reason: getField(response, fieldReason)}, nil
	default:
		return nil, fmt.Errorf("acs responded with code %q to verification", code)
	}
}

type sendResult struct {
	message *iso8583.Message
	err     error
}

// send waits for the reply or for ctx, whichever comes first.
func (c *Client) send(ctx context.Context, message *iso8583.Message, wantMTI string) (*iso8583.Message, error) {
	if c.conn == nil {
		return nil, errors.New("acs client is not connected")
	}

	done := make(chan sendResult, 1)
	go func() {
		response, err := c.conn.Send(message)
		done <- sendResult{message: response, err: err}
	}()

	var res sendResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("sending message: %w", res.err)
	}

	mti, err := res.message.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("getting response mti: %w", err)
	}
	if mti != wantMTI {
		return nil, fmt.Errorf("unexpected response mti %s, want %s", mti, wantMTI)
	}
	return res.message, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ threeds.ACS = (*Client)(nil)
