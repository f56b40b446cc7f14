// Package oracle - клиент OpenAI-совместимого chat/completions API (Groq по умолчанию).
// Несколько ключей используются по кругу, ключ, получивший 429, уходит на паузу.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skalibog/bfta/internal/config"
	"github.com/skalibog/bfta/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	// ErrNoKeys не задан ни один ключ
	ErrNoKeys = errors.New("не заданы ключи API")
	// ErrRateLimited все ключи на паузе после 429
	ErrRateLimited = errors.New("все ключи API исчерпали лимит запросов")
	// ErrEmptyResponse ответ без текста
	ErrEmptyResponse = errors.New("пустой ответ модели")
)

const defaultCooldown = 60 * time.Second

type keyState struct {
	key        string
	pausedTill time.Time
}

// Client выполняет запросы к модели
type Client struct {
	endpoint    string
	model       string
	temperature float64
	maxRetries  int
	backoff     time.Duration
	http        *http.Client

	mu   sync.Mutex
	keys []keyState
	next int
	now  func() time.Time
}

// NewClient создает клиента по настройкам oracle
func NewClient(cfg config.OracleConfig) *Client {
	keys := make([]keyState, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, keyState{key: k})
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		endpoint:    chatEndpoint(cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		backoff:     800 * time.Millisecond,
		http:        &http.Client{Timeout: cfg.Timeout},
		keys:        keys,
		now:         time.Now,
	}
}

// chatEndpoint нормализует базовый адрес, чтобы путь не повторялся
func chatEndpoint(base string) string {
	url := strings.TrimRight(base, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Complete отправляет prompt как сообщение пользователя и возвращает текст ответа.
// Делается не больше maxRetries попыток. 429 переключает ключ, 5xx повторяется с задержкой.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("ошибка кодирования запроса: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		idx, key, err := c.pickKey()
		if err != nil {
			return "", err
		}

		text, retryAfter, err := c.do(ctx, key, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var status *statusError
		switch {
		case errors.As(err, &status) && status.code == http.StatusTooManyRequests:
			logger.Warn("Ключ oracle получил лимит, переключаемся", zap.Int("key", idx), zap.Duration("pause", retryAfter))
			c.pause(idx, retryAfter)
			continue
		case errors.As(err, &status) && status.code >= 500:
			wait := c.backoff << attempt
			if retryAfter > 0 {
				wait = retryAfter
			}
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
			continue
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", err
		}
	}

	return "", fmt.Errorf("запрос к модели не удался после %d попыток: %w", c.maxRetries, lastErr)
}

// pickKey выбирает следующий ключ, не находящийся на паузе
func (c *Client) pickKey() (int, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 {
		return 0, "", ErrNoKeys
	}

	now := c.now()
	for i := 0; i < len(c.keys); i++ {
		idx := (c.next + i) % len(c.keys)
		if now.Before(c.keys[idx].pausedTill) {
			continue
		}
		c.next = (idx + 1) % len(c.keys)
		return idx, c.keys[idx].key, nil
	}
	return 0, "", ErrRateLimited
}

func (c *Client) pause(idx int, d time.Duration) {
	if d <= 0 {
		d = defaultCooldown
	}
	c.mu.Lock()
	c.keys[idx].pausedTill = c.now().Add(d)
	c.mu.Unlock()
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status=%d: %s", e.code, e.msg)
}

func (c *Client) do(ctx context.Context, key string, body []byte) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка запроса к модели: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		return "", retryAfter(resp.Header.Get("Retry-After")), &statusError{code: resp.StatusCode, msg: msg}
	}

	text := strings.TrimSpace(gjson.GetBytes(raw, "choices.0.message.content").String())
	if text == "" {
		return "", 0, ErrEmptyResponse
	}
	return text, 0, nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
