// Package client talks to complaint-service over HTTP. It satisfies the same complaint API
// as the in-memory store, so a state.Container can sit on either.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/logger"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/query"
	"civicfix/pkg/store"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	// BaseURL of complaint-service, e.g. "http://localhost:8082".
	BaseURL string
	// Token is sent as a bearer token on every request when set.
	Token string
	// InternalToken authenticates service-to-service calls such as Assign.
	InternalToken string
	// HTTPClient defaults to a client with a ten second timeout.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Client struct {
	baseURL       string
	token         string
	internalToken string
	httpClient    *http.Client
	log           *logger.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		internalToken: cfg.InternalToken,
		httpClient:    httpClient,
		log:           log,
	}, nil
}

// WithToken returns a copy of c that authenticates as the holder of token.
func (c *Client) WithToken(token string) *Client {
	out := *c
	out.token = token
	return &out
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// errorFor turns a non-2xx envelope back into the apperror kind the server mapped it from.
func errorFor(code int, env envelope) error {
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch code {
	case http.StatusNotFound:
		return apperror.NotFound(msg)
	case http.StatusBadRequest:
		return apperror.Validation(msg)
	case http.StatusUnauthorized:
		return apperror.Unauthorized(msg)
	case http.StatusForbidden:
		return apperror.Forbidden(msg)
	case http.StatusConflict:
		return apperror.Conflict(msg)
	default:
		return apperror.Internal(msg, fmt.Errorf("complaint-service returned %d", code))
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.internalToken != "" {
		req.Header.Set(middleware.InternalTokenHeader, c.internalToken)
	}
	middleware.PropagateTraceID(req, middleware.TraceIDFromContext(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.Internal("Complaint service unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Internal("Failed to read response", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return apperror.Internal("Malformed response", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithTraceID(middleware.TraceIDFromContext(ctx)).
			WithField("status", resp.StatusCode).
			Debugf("%s %s failed: %s", method, path, env.Message)
		return errorFor(resp.StatusCode, env)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperror.Internal("Malformed response", err)
		}
	}
	return nil
}

func complaintPath(id int64) string {
	return "/api/complaints/" + strconv.FormatInt(id, 10)
}

func (c *Client) List(ctx context.Context, filter store.ListFilter) ([]models.Complaint, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Location != "" {
		q.Set("location", filter.Location)
	}
	path := "/api/complaints"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	items := []models.Complaint{}
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) GetByID(ctx context.Context, id int64) (models.Complaint, error) {
	var out models.Complaint
	err := c.do(ctx, http.MethodGet, complaintPath(id), nil, &out)
	return out, err
}

// Create files in as the token holder. in.ReportedBy is ignored by the server.
func (c *Client) Create(ctx context.Context, in models.NewComplaint) (models.Complaint, error) {
	var out models.Complaint
	err := c.do(ctx, http.MethodPost, "/api/complaints", in, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id int64, patch models.ComplaintPatch) (models.Complaint, error) {
	var out models.Complaint
	err := c.do(ctx, http.MethodPut, complaintPath(id), patch, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, complaintPath(id), nil, nil)
}

func (c *Client) ListByReporter(ctx context.Context, userID int64) ([]models.Complaint, error) {
	items := []models.Complaint{}
	path := "/api/users/" + strconv.FormatInt(userID, 10) + "/complaints"
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddComment posts text as the token holder. The server takes the author name from the
// token, so author is ignored.
func (c *Client) AddComment(ctx context.Context, id int64, text, _ string) (models.Complaint, error) {
	var out models.Complaint
	body := map[string]string{"text": text}
	err := c.do(ctx, http.MethodPost, complaintPath(id)+"/comments", body, &out)
	return out, err
}

// Assign routes a complaint to a team through the internal endpoint.
func (c *Client) Assign(ctx context.Context, complaintID int64, assignee models.Assignee) (models.Complaint, error) {
	var out models.Complaint
	body := map[string]interface{}{"complaintId": complaintID, "assignee": assignee}
	err := c.do(ctx, http.MethodPost, "/internal/assign", body, &out)
	return out, err
}

func (c *Client) Dashboard(ctx context.Context) (query.Dashboard, error) {
	var out query.Dashboard
	err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &out)
	return out, err
}
