// Package marketplace предоставляет клиент REST API маркетплейса электромобилей и батарей.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

// ErrNotConfigured возвращается, если адрес API маркетплейса не задан.
var ErrNotConfigured = errors.New("marketplace client not configured")

// Коды успешного ответа. Разные эндпоинты сервера используют разные значения, оба считаются успехом.
const (
	CodeOK      = 0
	CodeSuccess = 1000
)

// IsSuccessCode сообщает, что код конверта ответа означает успех.
func IsSuccessCode(code int) bool {
	return code == CodeOK || code == CodeSuccess
}

// APIError описывает отказ сервера маркетплейса.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace: status %d, code %d: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("marketplace: status %d, code %d", e.StatusCode, e.Code)
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Option настраивает клиент.
type Option func(*Client)

// WithRetryMax задаёт число повторов идемпотентных запросов.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.retryMax = n
	}
}

// WithTimeout задаёт таймаут одного HTTP-запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client инкапсулирует HTTP-взаимодействие с API маркетплейса.
// Чтения выполняются с повторами, изменяющие запросы никогда не повторяются автоматически.
type Client struct {
	baseURL  string
	reads    *http.Client
	writes   *http.Client
	logger   *zap.Logger
	retryMax int
	timeout  time.Duration
}

// NewClient создаёт клиент API маркетплейса по указанному адресу.
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL:  base,
		logger:   logger,
		retryMax: 3,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = c.timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger.Sugar()}
	c.reads = rc.StandardClient()

	c.writes = cleanhttp.DefaultPooledClient()
	c.writes.Timeout = c.timeout

	return c
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) do(ctx context.Context, sess model.Session, method, path string, query url.Values, body any) (response, error) {
	if c == nil || c.baseURL == "" {
		return response{}, ErrNotConfigured
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	httpClient := c.writes
	if method == http.MethodGet {
		httpClient = c.reads
	}

	started := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("marketplace call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	return response{status: resp.StatusCode, body: data}, nil
}

// decodeEnvelope разбирает ответ вида {code, message, result} и кладёт result в out.
func decodeEnvelope(r response, out any) error {
	if !r.ok() {
		return apiError(r)
	}

	var env envelope
	if err := json.Unmarshal(r.body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != nil && !IsSuccessCode(*env.Code) {
		return &APIError{StatusCode: r.status, Code: *env.Code, Message: env.Message}
	}

	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// expectAck принимает пустой ответ, 204 или конверт с успешным кодом.
func expectAck(r response) error {
	if !r.ok() {
		return apiError(r)
	}
	if len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(r.body, &env); err != nil {
		// Тело без конверта при успешном статусе считается подтверждением.
		return nil
	}
	if env.Code != nil && !IsSuccessCode(*env.Code) {
		return &APIError{StatusCode: r.status, Code: *env.Code, Message: env.Message}
	}
	return nil
}

// decodeRaw разбирает ответ без конверта. Если сервер всё же прислал конверт, берётся result.
func decodeRaw(r response, out any) error {
	if !r.ok() {
		return apiError(r)
	}

	var env envelope
	if err := json.Unmarshal(r.body, &env); err == nil && env.Code != nil {
		return decodeEnvelope(r, out)
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(r response) error {
	e := &APIError{StatusCode: r.status, Code: -1}
	var env envelope
	if err := json.Unmarshal(r.body, &env); err == nil {
		if env.Code != nil {
			e.Code = *env.Code
		}
		e.Message = env.Message
	}
	return e
}

// leveledLogger адаптирует zap к интерфейсу логгера retryablehttp.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
