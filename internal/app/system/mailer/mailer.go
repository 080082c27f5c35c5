// Package mailer sends transactional email through the external notification
// service. Dispatch is fire-and-forget from the lifecycle engine's point of
// view: errors are returned for logging and the outcome summary, never to
// undo a state change.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/apperr"
	"github.com/dalemusser/collabhub/internal/app/system/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher sends one email request.
type Dispatcher interface {
	Dispatch(ctx context.Context, key EndpointKey, p Payload) error
}

// Config configures an HTTPDispatcher.
type Config struct {
	BaseURL    string        // e.g. https://notify.example.com
	Timeout    time.Duration // per attempt
	RatePerSec float64       // 0 disables limiting
	Burst      int
	RetryDelay time.Duration
}

// HTTPDispatcher posts payloads to {BaseURL}/api/notifications/{key}.
type HTTPDispatcher struct {
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	log        *zap.Logger
}

func NewHTTPDispatcher(cfg Config, log *zap.Logger) *HTTPDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	return &HTTPDispatcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		retryDelay: delay,
		log:        log,
	}
}

// Dispatch sends p, retrying once on a transient failure.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, key EndpointKey, p Payload) error {
	if err := p.Validate(key); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	err = d.attempt(ctx, key, body)
	if err != nil && isTransient(err) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", apperr.ErrDownstreamUnavailable, ctx.Err())
		case <-time.After(d.retryDelay):
		}
		d.log.Debug("retrying email dispatch", zap.String("endpoint", string(key)), zap.Error(err))
		err = d.attempt(ctx, key, body)
	}
	metrics.RecordEmail(string(key), err == nil)
	return err
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

func (d *HTTPDispatcher) attempt(ctx context.Context, key EndpointKey, body []byte) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", apperr.ErrDownstreamUnavailable, err)
	}

	url := d.baseURL + "/api/notifications/" + string(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", apperr.ErrDownstreamUnavailable, err)
		}
		return transientError{fmt.Errorf("%w: %w", apperr.ErrDownstreamUnavailable, err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return transientError{fmt.Errorf("%w: %s returned %d", apperr.ErrDownstreamUnavailable, key, resp.StatusCode)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", apperr.ErrDownstreamUnavailable, key, err)
	}
	if resp.StatusCode >= 400 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %s", apperr.ErrDownstreamUnavailable, key, msg)
	}
	return nil
}

// LogDispatcher records dispatches in the log instead of sending them.
// Used in development and when no notification service is configured.
type LogDispatcher struct {
	Log *zap.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, key EndpointKey, p Payload) error {
	if err := p.Validate(key); err != nil {
		return err
	}
	d.Log.Info("email dispatch (log mode)",
		zap.String("endpoint", string(key)),
		zap.String("recipient", p.Recipient()))
	metrics.RecordEmail(string(key), true)
	return nil
}
