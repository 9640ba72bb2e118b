package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/valter-silva-au/thread-review/pkg/models"
)

// APIError is a non-success response from the review backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// APIClient is a resty-backed client for the review backend's REST API.
// It carries no review logic; every method maps to one endpoint.
type APIClient struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewAPIClient creates a client rooted at baseURL (e.g.
// http://localhost:5000/api). A zero timeout leaves requests unbounded.
func NewAPIClient(baseURL string, timeout time.Duration, log zerolog.Logger) *APIClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &APIClient{
		http: c,
		log:  log.With().Str("component", "api-client").Logger(),
	}
}

// do sends one request and turns transport errors and non-2xx responses
// into errors.
func (c *APIClient) do(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	return c.send(c.http.R().SetContext(ctx), method, path, body, result)
}

func (c *APIClient) send(req *resty.Request, method, path string, body, result any) (*resty.Response, error) {
	req.SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Msg("request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.IsError() {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode()}
		if eb, ok := resp.Error().(*errorBody); ok && eb.Error != "" {
			apiErr.Message = eb.Error
		} else {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		return nil, apiErr
	}
	return resp, nil
}

// Health calls GET /health.
func (c *APIClient) Health(ctx context.Context) (*models.HealthStatus, error) {
	var out models.HealthStatus
	if _, err := c.do(ctx, resty.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analytics calls GET /analytics.
func (c *APIClient) Analytics(ctx context.Context) (*models.Analytics, error) {
	var out models.Analytics
	if _, err := c.do(ctx, resty.MethodGet, "/analytics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListThreads calls GET /threads.
func (c *APIClient) ListThreads(ctx context.Context) ([]models.Thread, error) {
	var out []models.Thread
	if _, err := c.do(ctx, resty.MethodGet, "/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetThread calls GET /threads/{id}.
func (c *APIClient) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	var out models.Thread
	if _, err := c.do(ctx, resty.MethodGet, "/threads/"+url.PathEscape(threadID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportThreads calls POST /threads/import with the validated payload.
func (c *APIClient) ImportThreads(ctx context.Context, payload *models.ImportPayload) (*models.ImportResult, error) {
	var out models.ImportResult
	if _, err := c.do(ctx, resty.MethodPost, "/threads/import", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SummarizeThread calls POST /threads/{id}/summarize.
func (c *APIClient) SummarizeThread(ctx context.Context, threadID string) (*models.SummarizeResult, error) {
	var out models.SummarizeResult
	if _, err := c.do(ctx, resty.MethodPost, "/threads/"+url.PathEscape(threadID)+"/summarize", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteThread calls DELETE /threads/{id}.
func (c *APIClient) DeleteThread(ctx context.Context, threadID string) error {
	_, err := c.do(ctx, resty.MethodDelete, "/threads/"+url.PathEscape(threadID), nil, nil)
	return err
}

// ListSummaries calls GET /summaries?status=. An empty status lists all.
func (c *APIClient) ListSummaries(ctx context.Context, status models.SummaryStatus) ([]models.Summary, error) {
	req := c.http.R().SetContext(ctx)
	if status != "" {
		req.SetQueryParam("status", string(status))
	}
	var out []models.Summary
	if _, err := c.send(req, resty.MethodGet, "/summaries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func summaryPath(id int64) string {
	return "/summaries/" + strconv.FormatInt(id, 10)
}

// GetSummary calls GET /summaries/{id}.
func (c *APIClient) GetSummary(ctx context.Context, id int64) (*models.Summary, error) {
	var out models.Summary
	if _, err := c.do(ctx, resty.MethodGet, summaryPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditSummary calls PUT /summaries/{id}/edit.
func (c *APIClient) EditSummary(ctx context.Context, id int64, content models.SummaryContent, user string) error {
	body := map[string]any{"edited_summary": content, "user": user}
	_, err := c.do(ctx, resty.MethodPut, summaryPath(id)+"/edit", body, nil)
	return err
}

// ApproveSummary calls POST /summaries/{id}/approve.
func (c *APIClient) ApproveSummary(ctx context.Context, id int64, user string) error {
	_, err := c.do(ctx, resty.MethodPost, summaryPath(id)+"/approve", map[string]string{"user": user}, nil)
	return err
}

// RejectSummary calls POST /summaries/{id}/reject.
func (c *APIClient) RejectSummary(ctx context.Context, id int64, user, reason string) error {
	body := map[string]string{"user": user, "reason": reason}
	_, err := c.do(ctx, resty.MethodPost, summaryPath(id)+"/reject", body, nil)
	return err
}

// ExportSummary calls GET /export/{id} and returns the body untouched.
func (c *APIClient) ExportSummary(ctx context.Context, id int64) (json.RawMessage, error) {
	resp, err := c.do(ctx, resty.MethodGet, "/export/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return nil, err
	}
	body := resp.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("GET /export/%d: response is not JSON", id)
	}
	return json.RawMessage(append([]byte(nil), body...)), nil
}
