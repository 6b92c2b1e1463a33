package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"docsum/types"
)

const maxErrorBody = 64 << 10

// Analyzer turns raw PDF bytes into layout-analysis JSON.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, filename string) (json.RawMessage, error)
}

// ServiceError is a non-2xx answer from the analysis service.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis service returned %d: %s", e.Status, e.Detail)
}

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "analysis transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client calls the layout-analysis service once per document, without retries.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     url,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

func (c *Client) Analyze(ctx context.Context, data []byte, filename string) (json.RawMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	c.logger.Info("analysis.request", "filename", filename, "bytes", len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("analysis.timeout", "filename", filename, "after", time.Since(start))
			return nil, fmt.Errorf("%w: analysis exceeded %s", types.ErrUpstreamTimeout, c.timeout)
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServiceError{Status: resp.StatusCode, Detail: extractDetail(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: reading analysis response", types.ErrUpstreamTimeout)
		}
		return nil, &TransportError{Err: err}
	}
	if !json.Valid(body) {
		return nil, &ServiceError{Status: http.StatusBadGateway, Detail: "analysis response is not valid JSON"}
	}

	c.logger.Info("analysis.done", "filename", filename, "took", time.Since(start))
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// extractDetail pulls a "detail" or "error" field out of a JSON error body,
// falling back to the trimmed text.
func extractDetail(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			switch v := payload[key].(type) {
			case string:
				return v
			case nil:
			default:
				b, _ := json.Marshal(v)
				return string(b)
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "no detail"
	}
	return text
}
