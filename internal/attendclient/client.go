package attendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"visitorkiosk/internal/attendance"
)

// CheckResult is the duplicate-check response.
type CheckResult struct {
	Message string `json:"message"`
}

// InUse reports whether the service flagged the card number as taken.
// The service signals this only through the exact message text.
func (r CheckResult) InUse() bool {
	return r.Message == attendance.MsgNumberCardInUse
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("attendance service error %d: %s", e.Code, e.Body)
}

// Client calls the attendance service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client. A zero timeout leaves requests unbounded.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CreateAttendance submits a full record. A JSON response body is returned
// as is; anything else is dropped.
func (c *Client) CreateAttendance(ctx context.Context, rec attendance.Record) (json.RawMessage, error) {
	body, err := c.post(ctx, "/api/attendance", rec)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// CheckNumberCard asks whether a card number is already in use.
func (c *Client) CheckNumberCard(ctx context.Context, numberCard int) (*CheckResult, error) {
	payload := struct {
		NumberCard int `json:"numberCard"`
	}{numberCard}

	body, err := c.post(ctx, "/api/attendance/check-number-card", payload)
	if err != nil {
		return nil, err
	}

	var out CheckResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// maxResponseBytes bounds the attendance service response body.
const maxResponseBytes = 1 << 20

// ErrResponseTooLarge is returned when a response body exceeds maxResponseBytes.
var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
