package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

const maxResponseBytes = 4 << 20

// ServiceError is a non-2xx response from one of the services.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Endpoint, e.StatusCode, strings.TrimSpace(e.Body))
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient talks to the speech/search service over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient builds a client. httpClient carries proxy and timeout
// settings; nil means http.DefaultClient.
func NewHTTPClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logging.WithComponent(logging.OrDiscard(logger), "cloud"),
	}
}

func (c *HTTPClient) Enabled() bool { return true }

// postMultipart uploads the file at audioPath as the "audio" part together
// with the given form fields, decoding the JSON response into out.
func (c *HTTPClient) postMultipart(ctx context.Context, endpoint, audioPath string, fields map[string]string, out any) error {
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return fmt.Errorf("create audio part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	return c.do(ctx, endpoint, mw.FormDataContentType(), &body, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, endpoint string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, "application/json", bytes.NewReader(b), out)
}

func (c *HTTPClient) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("calling service", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &agenterr.TransportError{Op: "POST " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &agenterr.TransportError{Op: "read " + endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > 4096 {
			respBody = respBody[:4096]
		}
		return &ServiceError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
