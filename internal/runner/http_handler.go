package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/shaiso/distcompute/internal/telemetry"
	"github.com/shaiso/distcompute/internal/tracker"
)

const defaultHTTPTimeout = 5 * time.Minute

// HTTPHandler передаёт задачу во внешний сервис.
//
// Запрос: POST {url} с телом {"job_id": <id>, "data": <данные задачи>}.
//
// Ответ:
//   - 2xx: тело становится результатом (JSON-объект/массив или текст)
//   - 422: ErrInvalidInput, задача помечается через FlagInvalidData
//   - остальные: ErrHTTPRequest
type HTTPHandler struct {
	url    string
	client *http.Client
}

type forwardRequest struct {
	JobID int `json:"job_id"`
	Data  any `json:"data"`
}

// NewHTTPHandler создаёт HTTPHandler. timeout <= 0 означает 5m.
func NewHTTPHandler(url string, timeout time.Duration) *HTTPHandler {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPHandler{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Handle выполняет HTTP-запрос.
func (h *HTTPHandler) Handle(ctx context.Context, job *tracker.Job, _ Progress) (any, error) {
	if h.url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrHTTPRequest)
	}

	payload, err := json.Marshal(forwardRequest{JobID: job.ID, Data: job.Data})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger := telemetry.FromContext(ctx)
	logger.Debug("forwarding job", "forward_url", h.url, "bytes", len(payload))
	start := time.Now()

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	logger.Debug("forward response received", "status", resp.StatusCode, "duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, truncate(string(body), 200))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(body), 200))
	}

	return parseResult(body), nil
}

// parseResult: JSON-объект и массив возвращаются декодированными,
// JSON-строка раскрывается, всё остальное возвращается как текст.
func parseResult(body []byte) any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}

	switch v := parsed.(type) {
	case map[string]any, []any:
		return v
	case string:
		return v
	default:
		return string(bytes.TrimSpace(body))
	}
}

// truncate обрезает строку до maxLen байт, не разрывая UTF-8 символ.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
