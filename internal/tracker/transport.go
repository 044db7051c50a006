package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Значения по умолчанию для транспорта.
const (
	defaultRetryDelay     = 15 * time.Second
	defaultRetryMaxDelay  = 5 * time.Minute
	defaultRequestTimeout = 30 * time.Second

	userAgent = "distcompute-worker"
)

// Стратегии задержки между повторами.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// RetryPolicy управляет повтором запросов при транспортных ошибках
// (нет соединения, таймаут, DNS). Ответы с любым HTTP-кодом не повторяются.
//
// Нулевое значение означает фиксированную задержку 15s без ограничения числа попыток.
type RetryPolicy struct {
	Delay       time.Duration // задержка перед повтором (default: 15s)
	MaxAttempts int           // 0: повторять бесконечно
	Backoff     string        // fixed | exponential (default: fixed)
	MaxDelay    time.Duration // потолок для exponential (default: 5m)
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.Delay <= 0 {
		p.Delay = defaultRetryDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	if p.Backoff == "" {
		p.Backoff = BackoffFixed
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// backoff вычисляет задержку после attempt-й неудачной попытки.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.Backoff != BackoffExponential {
		return p.Delay
	}

	// delay = Delay * 2^(attempt-1)
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// Response: ответ трекера, полученный транспортом.
type Response struct {
	StatusCode int
	Body       string
}

// TransportConfig: конфигурация Transport.
type TransportConfig struct {
	// BaseURL: адрес трекера, завершающий "/" отбрасывается.
	BaseURL string

	// HTTPClient (опционально; если nil, создаётся клиент с Timeout).
	HTTPClient *http.Client

	// Timeout одного запроса (default: 30s). Игнорируется, если задан HTTPClient.
	Timeout time.Duration

	Retry RetryPolicy

	// RequestID отправляется в заголовке X-Request-ID.
	RequestID string

	Logger  *slog.Logger
	Metrics *Metrics
}

// Transport отправляет запросы в трекер и повторяет их при транспортных ошибках.
type Transport struct {
	baseURL   string
	client    *http.Client
	policy    RetryPolicy
	requestID string
	logger    *slog.Logger
	metrics   *Metrics

	// sleep подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// NormalizeBaseURL убирает завершающие "/" из адреса трекера.
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// NewTransport создаёт Transport. Возвращает ErrValidation для пустого
// или некорректного адреса.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	baseURL := NormalizeBaseURL(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("%w: tracker url is required", ErrValidation)
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid tracker url %q", ErrValidation, cfg.BaseURL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		baseURL:   baseURL,
		client:    client,
		policy:    cfg.Retry.normalize(),
		requestID: cfg.RequestID,
		logger:    logger,
		metrics:   cfg.Metrics,
		sleep:     sleepContext,
	}, nil
}

// BaseURL возвращает нормализованный адрес трекера.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Send выполняет запрос к endpoint.
//
// Любой полученный ответ (включая не-2xx) возвращается как есть.
// При транспортной ошибке запрос повторяется в цикле согласно RetryPolicy.
// Ошибка возвращается только при отмене ctx, ошибке сериализации body
// или исчерпании MaxAttempts (ErrRetryExhausted).
func (t *Transport) Send(ctx context.Context, method, endpoint string, query url.Values, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	target := t.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	for attempt := 1; ; attempt++ {
		req, err := t.newRequest(ctx, method, target, payload)
		if err != nil {
			return nil, err
		}

		resp, err := t.do(req)
		if err == nil {
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if t.policy.MaxAttempts > 0 && attempt >= t.policy.MaxAttempts {
			return nil, fmt.Errorf("%w: %s %s after %d attempts: %v", ErrRetryExhausted, method, endpoint, attempt, err)
		}

		delay := t.policy.backoff(attempt)
		t.metrics.observeRetry(endpoint)
		t.logger.Warn("retrying request after transport error",
			"endpoint", endpoint,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) newRequest(ctx context.Context, method, target string, payload []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	if t.requestID != "" {
		req.Header.Set("X-Request-ID", t.requestID)
	}

	return req, nil
}

// do выполняет одну попытку. Ошибка чтения тела считается транспортной.
func (t *Transport) do(req *http.Request) (*Response, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// Close освобождает простаивающие соединения пула.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
