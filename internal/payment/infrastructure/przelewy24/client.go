// Package przelewy24 is a client for the Przelewy24 REST API (v1).
package przelewy24

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/storefront/internal/payment/application"
)

type Config struct {
	BaseURL    string
	MerchantID int
	PosID      int
	APIKey     string
	CRC        string
	ReturnURL  string
	StatusURL  string
}

type Client struct {
	log  *slog.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *slog.Logger, cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PosID == 0 {
		cfg.PosID = cfg.MerchantID
	}
	return &Client{
		log: log,
		cfg: cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type (
	RegisterRequest = application.RegisterRequest
	Notification    = application.Notification
	VerifyRequest   = application.VerifyRequest
)

type APIError struct {
	Status int
	Code   int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("przelewy24: http %d code %d: %s", e.Status, e.Code, e.Body)
}

type registerBody struct {
	MerchantID  int    `json:"merchantId"`
	PosID       int    `json:"posId"`
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Country     string `json:"country"`
	Language    string `json:"language"`
	URLReturn   string `json:"urlReturn"`
	URLStatus   string `json:"urlStatus"`
	Sign        string `json:"sign"`
}

// Field order of the sign structs is part of the signature.
type registerSign struct {
	SessionID  string `json:"sessionId"`
	MerchantID int    `json:"merchantId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CRC        string `json:"crc"`
}

type notificationSign struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	CRC          string `json:"crc"`
}

type verifySign struct {
	SessionID string `json:"sessionId"`
	OrderID   int64  `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CRC       string `json:"crc"`
}

type verifyBody struct {
	MerchantID int    `json:"merchantId"`
	PosID      int    `json:"posId"`
	SessionID  string `json:"sessionId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OrderID    int64  `json:"orderId"`
	Sign       string `json:"sign"`
}

// Register creates a transaction and returns its token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if req.Country == "" {
		req.Country = "PL"
	}
	if req.Language == "" {
		req.Language = "pl"
	}
	sign, err := Sign(registerSign{
		SessionID:  req.SessionID,
		MerchantID: c.cfg.MerchantID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		CRC:        c.cfg.CRC,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
		ResponseCode int `json:"responseCode"`
	}
	err = c.do(ctx, http.MethodPost, "/api/v1/transaction/register", registerBody{
		MerchantID:  c.cfg.MerchantID,
		PosID:       c.cfg.PosID,
		SessionID:   req.SessionID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Email:       req.Email,
		Country:     req.Country,
		Language:    req.Language,
		URLReturn:   c.cfg.ReturnURL,
		URLStatus:   c.cfg.StatusURL,
		Sign:        sign,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Data.Token == "" {
		return "", &APIError{Status: http.StatusOK, Code: out.ResponseCode, Body: "empty token"}
	}
	return out.Data.Token, nil
}

func (c *Client) RedirectURL(token string) string {
	return c.cfg.BaseURL + "/trnRequest/" + token
}

// VerifyNotification checks the notification sign and that it targets this
// merchant.
func (c *Client) VerifyNotification(n Notification) error {
	if n.MerchantID != c.cfg.MerchantID || n.PosID != c.cfg.PosID {
		return fmt.Errorf("notification for merchant %d pos %d", n.MerchantID, n.PosID)
	}
	want, err := Sign(notificationSign{
		MerchantID:   n.MerchantID,
		PosID:        n.PosID,
		SessionID:    n.SessionID,
		Amount:       n.Amount,
		OriginAmount: n.OriginAmount,
		Currency:     n.Currency,
		OrderID:      n.OrderID,
		MethodID:     n.MethodID,
		Statement:    n.Statement,
		CRC:          c.cfg.CRC,
	})
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.Sign))) != 1 {
		return fmt.Errorf("sign mismatch for session %s", n.SessionID)
	}
	return nil
}

// Verify confirms a notified transaction; funds are only booked after it.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) error {
	sign, err := Sign(verifySign{
		SessionID: req.SessionID,
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		CRC:       c.cfg.CRC,
	})
	if err != nil {
		return err
	}

	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
		ResponseCode int `json:"responseCode"`
	}
	err = c.do(ctx, http.MethodPut, "/api/v1/transaction/verify", verifyBody{
		MerchantID: c.cfg.MerchantID,
		PosID:      c.cfg.PosID,
		SessionID:  req.SessionID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		OrderID:    req.OrderID,
		Sign:       sign,
	}, &out)
	if err != nil {
		return err
	}
	if out.Data.Status != "success" {
		return &APIError{Status: http.StatusOK, Code: out.ResponseCode, Body: "verify status " + out.Data.Status}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(fmt.Sprint(c.cfg.PosID), c.cfg.APIKey)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("przelewy24 %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	c.log.Debug("przelewy24 call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error any `json:"error"`
			Code  int `json:"code"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return &APIError{Status: resp.StatusCode, Code: apiErr.Code, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode przelewy24 response: %w", err)
	}
	return nil
}

// Sign is the hex SHA-384 of v encoded as JSON without HTML or slash escaping.
func Sign(v any) (string, error) {
	b, err := marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha512.Sum384(b)
	return hex.EncodeToString(sum[:]), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
