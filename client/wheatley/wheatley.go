// Package wheatley is the client for the remote Wheatley order/drone API.
//
// Every operation is one authenticated POST to a single endpoint with a
// JSON body of the form {"type": <operation>, ...fields}. The gateway's
// fixed credential pair goes in the basic-auth header; per-user apikeys
// are payload fields the backend authorizes itself.
package wheatley

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Operation names understood by the backend.
const (
	OpLogin             = "Login"
	OpCreateOrder       = "CreateOrder"
	OpCreateDrone       = "CreateDrone"
	OpUpdateOrder       = "UpdateOrder"
	OpGetAllOrders      = "GetAllOrders"
	OpGetOutForDelivery = "GetOutForDelivery"
	OpGetAllDrones      = "GetAllDrones"
	OpUpdateDrone       = "UpdateDrone"
	OpGetUser           = "GetUser"
)

// Order states the gateway inspects.
const (
	StateOutForDelivery = "Out for delivery"
	StateDelivered      = "Delivered"
	StateStorage        = "Storage"
)

// ErrNoUser is returned by Login when the backend reports no credential.
var ErrNoUser = errors.New("no user found")

// Client issues requests against the Wheatley API. It is stateless and
// safe for concurrent use. There are no retries and no caching: at most
// one backend request per call.
type Client struct {
	base     string
	username string
	password string
	hc       *http.Client

	// Observe, when set, is called after every operation. Used for metrics.
	Observe func(op string, err error)
}

// New returns a client for the given base URL and credential pair.
func New(base, username, password string) *Client {
	return &Client{
		base:     base,
		username: username,
		password: password,
		hc:       &http.Client{},
	}
}

// Response is one decoded backend reply. Body is the full payload and
// Data the unwrapped "data" field, which may be nil when absent.
type Response struct {
	Body json.RawMessage
	Data json.RawMessage
}

// APIError is a backend failure carrying whatever the backend said, so
// callers can relay it verbatim.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wheatley: %s (status %d)", e.Message, e.StatusCode)
}

// Credential is the user record Login returns in data[0].
type Credential struct {
	APIKey string      `json:"apikey"`
	ID     json.Number `json:"id"`
	Type   string      `json:"type"`
}

// Call posts one operation. fields are merged into the request body next
// to the operation type and sent as-is.
func (c *Client) Call(ctx context.Context, op string, fields map[string]any) (*Response, error) {
	rsp, err := c.call(ctx, op, fields)
	if c.Observe != nil {
		c.Observe(op, err)
	}
	return rsp, err
}

func (c *Client) call(ctx context.Context, op string, fields map[string]any) (*Response, error) {
	body := map[string]any{"type": op}
	for k, v := range fields {
		body[k] = v
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wheatley: %s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("wheatley: %s: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wheatley: %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("wheatley: %s: read response: %w", op, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		if json.Valid(raw) {
			apiErr.Body = raw
			var m struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &m) == nil && m.Message != "" {
				apiErr.Message = m.Message
			}
		}
		return nil, apiErr
	}

	rsp := &Response{Body: raw}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		rsp.Data = envelope.Data
	}
	return rsp, nil
}

// Login authenticates a user by email and password. A backend reply with
// no apikey in data[0] means the user does not exist: ErrNoUser.
func (c *Client) Login(ctx context.Context, email, password, studentnum string) (*Credential, error) {
	rsp, err := c.Call(ctx, OpLogin, map[string]any{
		"email":      email,
		"password":   password,
		"studentnum": studentnum,
	})
	if err != nil {
		return nil, err
	}

	var creds []Credential
	if err := json.Unmarshal(rsp.Data, &creds); err != nil {
		return nil, fmt.Errorf("wheatley: %s: decode credential: %w", OpLogin, err)
	}
	if len(creds) == 0 || creds[0].APIKey == "" {
		return nil, ErrNoUser
	}
	return &creds[0], nil
}

// OrderUpdate are the UpdateOrder fields. OrderID is passed through
// untyped; the backend owns the order schema.
type OrderUpdate struct {
	APIKey     string
	StudentNum string
	OrderID    any
	DestLat    float64
	DestLng    float64
	State      string
}

// UpdateOrder moves an order to a new state at the given destination.
func (c *Client) UpdateOrder(ctx context.Context, u OrderUpdate) (*Response, error) {
	return c.Call(ctx, OpUpdateOrder, map[string]any{
		"apikey":     u.APIKey,
		"studentnum": u.StudentNum,
		"order_id":   u.OrderID,
		"dest_lat":   u.DestLat,
		"dest_lng":   u.DestLng,
		"state":      u.State,
	})
}

// DroneUpdate are the UpdateDrone fields. A nil OperatorID releases the
// drone from its operator.
type DroneUpdate struct {
	APIKey     string
	StudentNum string
	DroneID    any
	OperatorID any
	Available  bool
	Lat        float64
	Lng        float64
	Altitude   float64
	Battery    float64
}

// UpdateDrone writes a drone's operator, availability and telemetry.
func (c *Client) UpdateDrone(ctx context.Context, u DroneUpdate) (*Response, error) {
	return c.Call(ctx, OpUpdateDrone, map[string]any{
		"apikey":              u.APIKey,
		"studentnum":          u.StudentNum,
		"id":                  u.DroneID,
		"current_operator_id": u.OperatorID,
		"is_available":        u.Available,
		"latest_lat":          u.Lat,
		"latest_lng":          u.Lng,
		"altitude":            u.Altitude,
		"battery_level":       u.Battery,
	})
}

// GetUser fetches one user record by id.
func (c *Client) GetUser(ctx context.Context, apikey, studentnum string, userID any) (*Response, error) {
	return c.Call(ctx, OpGetUser, map[string]any{
		"apikey":     apikey,
		"studentnum": studentnum,
		"user_id":    userID,
	})
}
