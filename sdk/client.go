// Package agent provides the Go client for the interview service.
//
// The client covers the full session lifecycle: starting an interview for
// a set of detected roles, fetching questions, submitting typed and
// recorded answers, and retrieving the final report.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/interview"
)

const defaultBaseURL = "http://localhost:8000"

// Client talks to the interview service. It implements interview.Service.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	logger       *slog.Logger
	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the service base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithAPIKey sets a bearer token for authenticated deployments.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRetries sets the maximum number of retries for failed requests.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates an interview service client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   newDefaultHTTPClient(),
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInterview opens a session for the detected roles.
func (c *Client) StartInterview(ctx context.Context, roles []interview.Role) (*interview.StartResult, error) {
	body := struct {
		Roles []interview.Role `json:"roles"`
	}{Roles: roles}
	if body.Roles == nil {
		body.Roles = []interview.Role{}
	}

	var out interview.StartResult
	if err := c.doJSON(ctx, http.MethodPost, "/interview/start", body, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("interview started",
		"session_id", out.SessionID,
		"total_questions", out.TotalQuestions)
	return &out, nil
}

// NextQuestion fetches the next question. It returns nil with no error
// when the session has no questions left.
func (c *Client) NextQuestion(ctx context.Context, sessionID string) (*interview.Question, error) {
	raw, status, err := c.doRaw(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/question", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || isEmptyJSON(raw) {
		return nil, nil
	}

	var q interview.Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	if q.ID == "" {
		return nil, nil
	}
	return &q, nil
}

// SubmitText posts a typed or placeholder answer.
func (c *Client) SubmitText(ctx context.Context, sessionID, questionID, answerText string) (*interview.AnswerResult, error) {
	body := struct {
		QuestionID string `json:"question_id"`
		AnswerText string `json:"answer_text"`
	}{QuestionID: questionID, AnswerText: answerText}

	var out interview.AnswerResult
	if err := c.doJSON(ctx, http.MethodPost, "/interview/"+url.PathEscape(sessionID)+"/answer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAudio uploads a recorded answer as a multipart file.
func (c *Client) SubmitAudio(ctx context.Context, sessionID, questionID string, clip capture.Clip) (*interview.AnswerResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "answer."+clipExtension(clip.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	endpoint := c.baseURL + "/interview/" + url.PathEscape(sessionID) +
		"/answer/audio?question_id=" + url.QueryEscape(questionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var out interview.AnswerResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("audio answer uploaded",
		"session_id", sessionID,
		"question_id", questionID,
		"bytes", len(clip.Data))
	return &out, nil
}

// Report fetches the final evaluation.
func (c *Client) Report(ctx context.Context, sessionID string) (*interview.Report, error) {
	var out interview.Report
	if err := c.doJSON(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/report", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export fetches the raw answers document.
func (c *Client) Export(ctx context.Context, sessionID string) ([]byte, error) {
	raw, _, err := c.doRaw(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/export", nil)
	return raw, err
}

// Delete tears the session down on the service side.
func (c *Client) Delete(ctx context.Context, sessionID string) error {
	_, _, err := c.doRaw(ctx, http.MethodDelete, "/interview/"+url.PathEscape(sessionID), nil)
	return err
}

func (c *Client) addAuthHeaders(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// doJSON runs one JSON request with retries and decodes the response.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, _, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doRaw runs one request with retries and returns the raw response body.
func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	endpoint := c.baseURL + path
	attempt := 0
	backoff := c.retryBackoff

	for {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, 0, fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, 0, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.addAuthHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if shouldRetry(ctx, attempt, c.maxRetries) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return nil, 0, &TransportError{Op: method, URL: endpoint, Err: err}
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			apiErr := parseAPIError(resp.StatusCode, respBody)
			if shouldRetryAPIError(ctx, attempt, c.maxRetries, apiErr) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return nil, resp.StatusCode, apiErr
		}

		return respBody, resp.StatusCode, nil
	}
}

func shouldRetryAPIError(ctx context.Context, attempt, maxRetries int, err error) bool {
	if !shouldRetry(ctx, attempt, maxRetries) {
		return false
	}
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.IsRetryable()
	}
	return false
}

func shouldRetry(ctx context.Context, attempt, maxRetries int) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < maxRetries
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next == 0 {
		return time.Second
	}
	return next
}

// clipExtension picks the upload filename extension from the clip's MIME
// type.
func clipExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	case strings.Contains(mimeType, "webm"):
		return "webm"
	case strings.Contains(mimeType, "wav"):
		return "wav"
	default:
		return "pcm"
	}
}

// isEmptyJSON reports whether a body carries no question.
func isEmptyJSON(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null" || trimmed == "{}"
}
