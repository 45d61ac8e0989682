package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nodeloom/nodeloom/pkg/models"
	"github.com/nodeloom/nodeloom/pkg/resilience"
	"github.com/nodeloom/nodeloom/pkg/stream"
)

// Per-call deadlines. Executions and uploads legitimately run long.
const (
	defaultTimeout = 30 * time.Second
	executeTimeout = 60 * time.Second
	uploadTimeout  = 120 * time.Second
)

// Config wires a Client. BaseURL is required; everything else has defaults.
type Config struct {
	BaseURL string

	// CSRFToken supplies the token attached to every mutating request.
	// Nil means no CSRF header.
	CSRFToken func() string

	HTTPClient *http.Client
	Limiter    *resilience.RateLimiter
	Breaker    *resilience.CircuitBreaker
	Retry      resilience.RetryConfig
	Logger     *slog.Logger
}

// Client talks to the workflow backend.
type Client struct {
	baseURL string
	http    *http.Client
	csrf    func() string

	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	streams *stream.Client
	logger  *slog.Logger
}

// New builds a client with a cookie jar, so backend session cookies survive
// across calls.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("client: base URL is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "client")

	httpClient := config.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}

		httpClient = &http.Client{Jar: jar}
	}

	limiter := config.Limiter
	if limiter == nil {
		limiter = resilience.NewRateLimiter(nil, logger)
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{}, logger)
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    httpClient,
		csrf:    config.CSRFToken,
		limiter: limiter,
		breaker: breaker,
		retry:   config.Retry,
		streams: stream.NewClient(httpClient, logger),
		logger:  logger,
	}, nil
}

// ListOptions filters and pages the workflow index.
type ListOptions struct {
	Page   int
	Limit  int
	Tags   []string
	Search string
}

func (o ListOptions) query() string {
	values := url.Values{}

	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}

	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}

	if len(o.Tags) > 0 {
		values.Set("tags", strings.Join(o.Tags, ","))
	}

	if o.Search != "" {
		values.Set("search", o.Search)
	}

	if len(values) == 0 {
		return ""
	}

	return "?" + values.Encode()
}

// List returns the workflow index page.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]models.WorkflowMetadata, error) {
	var out []models.WorkflowMetadata

	err := c.call(ctx, http.MethodGet, "/api/workflows"+opts.query(), resilience.BudgetGeneral, defaultTimeout, nil, &out)

	return out, err
}

// Get fetches one workflow by id.
func (c *Client) Get(ctx context.Context, id string) (*models.WorkflowDTO, error) {
	var out models.WorkflowDTO

	if err := c.call(ctx, http.MethodGet, "/api/workflows/"+id, resilience.BudgetGeneral, defaultTimeout, nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Create persists a new workflow and returns the stored copy.
func (c *Client) Create(ctx context.Context, dto models.WorkflowDTO) (*models.WorkflowDTO, error) {
	var out models.WorkflowDTO

	if err := c.call(ctx, http.MethodPost, "/api/workflows", resilience.BudgetGeneral, defaultTimeout, dto, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Update patches an existing workflow with the given fields.
func (c *Client) Update(ctx context.Context, id string, patch map[string]any) (*models.WorkflowDTO, error) {
	var out models.WorkflowDTO

	if err := c.call(ctx, http.MethodPatch, "/api/workflows/"+id, resilience.BudgetGeneral, defaultTimeout, patch, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Delete removes a workflow.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/workflows/"+id, resilience.BudgetGeneral, defaultTimeout, nil, nil)
}

// Execute runs a workflow synchronously and returns the final result.
func (c *Client) Execute(ctx context.Context, id string, inputs map[string]any) (*models.ExecutionResult, error) {
	var out models.ExecutionResult

	body := map[string]any{"inputs": inputs}

	if err := c.call(ctx, http.MethodPost, "/api/workflows/"+id+"/execute", resilience.BudgetChat, executeTimeout, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ExecuteStream opens the streaming execution endpoint. The stream itself is
// not retried; the caller owns the returned handle.
func (c *Client) ExecuteStream(ctx context.Context, id string, inputs map[string]any, callbacks stream.Callbacks) (*stream.Handle, error) {
	if err := c.limiter.Wait(ctx, resilience.BudgetChat); err != nil {
		return nil, err
	}

	payload := map[string]any{"inputs": inputs}

	header := http.Header{}
	if c.csrf != nil {
		header.Set("X-CSRF-Token", c.csrf())
	}

	return c.streams.Stream(ctx, c.baseURL+"/api/workflows/"+id+"/execute/stream", payload, header, callbacks)
}

// Runs returns the execution history for a workflow.
func (c *Client) Runs(ctx context.Context, id string) ([]models.ExecutionResult, error) {
	var out []models.ExecutionResult

	err := c.call(ctx, http.MethodGet, "/api/workflows/"+id+"/runs", resilience.BudgetGeneral, defaultTimeout, nil, &out)

	return out, err
}

// ShareResponse is the backend's reply to a share toggle.
type ShareResponse struct {
	ShareURL string `json:"share_url,omitempty"`
	IsPublic bool   `json:"is_public"`
}

// Share toggles public visibility and returns the share link.
func (c *Client) Share(ctx context.Context, id string, public bool) (*ShareResponse, error) {
	var out ShareResponse

	body := map[string]any{"is_public": public}

	if err := c.call(ctx, http.MethodPost, "/api/workflows/"+id+"/share", resilience.BudgetGeneral, defaultTimeout, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// FileUploadResponse is the backend's reply to a file upload. FileID is the
// handle the backend uses to reference the stored file.
type FileUploadResponse struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

// UploadFile sends a file as multipart form data under the tight upload
// budget and returns the stored reference.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (*FileUploadResponse, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	var out FileUploadResponse

	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/files/upload",
		budget:      resilience.BudgetUpload,
		timeout:     uploadTimeout,
		body:        buf.Bytes(),
		contentType: writer.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}

	return &out, nil
}

type request struct {
	method      string
	path        string
	budget      string
	timeout     time.Duration
	body        []byte
	contentType string
}

func (c *Client) call(ctx context.Context, method, path, budget string, timeout time.Duration, body, out any) error {
	req := request{
		method:  method,
		path:    path,
		budget:  budget,
		timeout: timeout,
	}

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}

		req.body = encoded
		req.contentType = "application/json"
	}

	return c.do(ctx, req, out)
}

// do pushes one logical request through the resilience stack. The breaker
// wraps each attempt so repeated failures trip it even inside one retry loop.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx, req.budget); err != nil {
		return err
	}

	return resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Call(ctx, func(ctx context.Context) error {
			return c.attempt(ctx, req, out)
		})
	})
}

func (c *Client) attempt(ctx context.Context, req request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, bytes.NewReader(req.body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("%s %s: %w", req.method, req.path, err))
	}

	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	httpReq.Header.Set("Accept", "application/json")

	if c.csrf != nil && req.method != http.MethodGet {
		httpReq.Header.Set("X-CSRF-Token", c.csrf())
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", req.method, req.path, ErrRequestTimeout)
		}

		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		c.logger.Warn("backend call failed", "method", req.method, "path", req.path, "status", resp.StatusCode)

		if !retryable(resp.StatusCode) {
			return resilience.Permanent(apiErr)
		}

		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("%s %s: decode response: %w", req.method, req.path, err))
	}

	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code

		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Detail != "":
			apiErr.Message = body.Detail
		}
	}

	return apiErr
}
