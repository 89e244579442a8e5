// Package devclient is a small HTTP client for the gateway API used by
// paytrustctl and the gateway tests.
package devclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/paytrust/bininfo"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/shopspring/decimal"
)

type Client struct {
	Base string
	HTTP *http.Client
}

// New returns a client for the gateway at base, e.g. http://127.0.0.1:8080.
// Paths are resolved under /payment.
func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

// APIError is a non-2xx answer of the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status=%d error=%s", e.Status, e.Message)
}

type ClassifyReq struct {
	CardNumber      string   `json:"card_number"`
	WithInstallment bool     `json:"with_installment,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ProductType     string   `json:"product_type,omitempty"`
}

type InitiateReq struct {
	CardToken   string          `json:"card_token"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"order_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) Tokenize(ctx context.Context, card vault.Card) (*vault.Token, error) {
	token := &vault.Token{}
	if err := c.do(ctx, http.MethodPost, "/tokens", card, token); err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	return token, nil
}

func (c *Client) SecureInfo(ctx context.Context, token string) (*vault.SecureCardInfo, error) {
	info := &vault.SecureCardInfo{}
	if err := c.do(ctx, http.MethodGet, "/tokens/"+token+"/secure-info", nil, info); err != nil {
		return nil, fmt.Errorf("secure info: %w", err)
	}
	return info, nil
}

func (c *Client) Classify(ctx context.Context, req ClassifyReq) (*bininfo.BinInfo, error) {
	info := &bininfo.BinInfo{}
	if err := c.do(ctx, http.MethodPost, "/bin/classify", req, info); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	return info, nil
}

func (c *Client) Initiate(ctx context.Context, req InitiateReq) (*threeds.InitiateResult, error) {
	res := &threeds.InitiateResult{}
	if err := c.do(ctx, http.MethodPost, "/3ds/initiate", req, res); err != nil {
		return nil, fmt.Errorf("initiate 3ds: %w", err)
	}
	return res, nil
}

// Authenticate plays the cardholder step against the simulator ACS and
// returns the PARes.
func (c *Client) Authenticate(ctx context.Context, md string, approve bool) (string, error) {
	req := struct {
		MD      string `json:"md"`
		Approve bool   `json:"approve"`
	}{md, approve}
	res := struct {
		PARes string `json:"pares"`
	}{}
	if err := c.do(ctx, http.MethodPost, "/acs/authenticate", req, &res); err != nil {
		return "", fmt.Errorf("acs authenticate: %w", err)
	}
	return res.PARes, nil
}

func (c *Client) Complete(ctx context.Context, sessionID, pares string) (*threeds.Completion, error) {
	req := struct {
		SessionID string `json:"session_id"`
		PARes     string `json:"pares"`
	}{sessionID, pares}
	res := &threeds.Completion{}
	if err := c.do(ctx, http.MethodPost, "/3ds/complete", req, res); err != nil {
		return nil, fmt.Errorf("complete 3ds: %w", err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+"/payment"+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		payload := struct {
			Error string `json:"error"`
		}{}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(b, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(b))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
