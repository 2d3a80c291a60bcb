// Package sentiment wraps the external sentiment-inference service with a
// persisted circuit breaker, per-attempt timeouts, and bounded
// exponential-backoff retry. Failures of the service never escape this
// package: every failure path resolves to "no signal" (a nil result).
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockpulse-backend/internal/config"
	"stockpulse-backend/internal/observability"
	"stockpulse-backend/internal/repository"

	"go.uber.org/zap"
)

// Result is a parsed, range-validated sentiment score.
type Result struct {
	Sentiment     float64       `json:"sentiment"`
	Confidence    float64       `json:"confidence"`
	Label         string        `json:"label"`
	Probabilities Probabilities `json:"probabilities"`
}

// Probabilities is the per-class probability breakdown.
type Probabilities struct {
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Positive float64 `json:"positive"`
}

// CircuitBreaker is the persisted breaker state the client consults and
// updates around each call.
type CircuitBreaker interface {
	GetState(ctx context.Context, serviceName string) (repository.CircuitState, error)
	RecordSuccess(ctx context.Context, serviceName string) error
	RecordFailure(ctx context.Context, serviceName string, currentFailures, threshold int, cooldown time.Duration) (repository.FailureRecord, error)
}

// attempt outcomes form a tagged type instead of exception-style branching
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

type attemptOutcome struct {
	kind   outcomeKind
	result *Result
	reason string
	err    error
}

// Client calls the sentiment service with retry, timeout, and breaker
// protection.
type Client struct {
	cfg        config.SentimentConfig
	breaker    CircuitBreaker
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Collector
	sleep      func(ctx context.Context, d time.Duration) bool
}

// NewClient creates a sentiment client. The metrics collector may be nil.
func NewClient(cfg config.SentimentConfig, breaker CircuitBreaker, logger *zap.Logger, metrics *observability.Collector) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		breaker: breaker,
		// per-attempt timeouts come from the request context, not the client
		httpClient: &http.Client{},
		logger:     logger.Named("sentiment_client"),
		metrics:    metrics,
		sleep:      sleepContext,
	}
}

// Analyze scores one piece of text. A nil result means "no signal available":
// the dependency is unconfigured, the circuit is open, the input is blank, or
// every attempt failed. It is a fallback condition for the caller, not an
// error.
func (c *Client) Analyze(ctx context.Context, text string) *Result {
	if c.cfg.Endpoint == "" {
		c.logger.Warn("sentiment endpoint not configured, skipping analysis")
		c.countCall("skipped")
		return nil
	}

	state, err := c.breaker.GetState(ctx, c.cfg.ServiceName)
	if err != nil {
		// reading breaker state failed; proceed as if closed rather than
		// letting a store outage block analysis
		c.logger.Error("failed to read circuit state, proceeding", zap.Error(err))
		state = repository.CircuitState{ServiceName: c.cfg.ServiceName}
	}
	if state.Open(time.Now()) {
		c.logger.Info("circuit open, skipping sentiment call",
			zap.Int64("open_until", state.CircuitOpenUntil))
		if c.metrics != nil {
			c.metrics.CircuitRejected.Inc()
		}
		c.countCall("skipped")
		return nil
	}

	if strings.TrimSpace(text) == "" {
		c.logger.Debug("blank input, skipping sentiment call")
		return nil
	}
	text = truncate(text, c.cfg.MaxTextLength)

	var last attemptOutcome
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.metrics != nil {
			c.metrics.SentimentAttempts.Inc()
		}

		last = c.do(ctx, text)

		switch last.kind {
		case outcomeOK:
			if err := c.breaker.RecordSuccess(ctx, c.cfg.ServiceName); err != nil {
				c.logger.Error("failed to record circuit success", zap.Error(err))
			}
			c.countCall("success")
			return last.result

		case outcomeFatal:
			c.logger.Warn("sentiment call failed permanently",
				zap.Int("attempt", attempt),
				zap.String("reason", last.reason),
				zap.Error(last.err))

		case outcomeRetryable:
			if last.reason == reasonProtocol {
				// malformed body is logged apart from transport noise
				c.logger.Error("sentiment response violated protocol",
					zap.Int("attempt", attempt),
					zap.Error(last.err))
			} else {
				c.logger.Warn("sentiment call failed, will retry",
					zap.Int("attempt", attempt),
					zap.String("reason", last.reason),
					zap.Error(last.err))
			}
			if attempt < c.cfg.MaxAttempts {
				delay := c.backoffDelay(attempt)
				if !c.sleep(ctx, delay) {
					c.logger.Debug("context cancelled during backoff")
					return nil
				}
				continue
			}
		}
		break
	}

	c.recordFailure(ctx, state.ConsecutiveFailures)
	c.countCall(outcomeLabel(last.kind))
	return nil
}

const (
	reasonTimeout     = "timeout"
	reasonNetwork     = "network"
	reasonServerError = "server_error"
	reasonClientError = "client_error"
	reasonProtocol    = "protocol"
)

// do issues one attempt and classifies the outcome.
func (c *Client) do(ctx context.Context, text string) attemptOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, reason: reasonProtocol, err: err}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.Endpoint+"/sentiment", bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{kind: outcomeFatal, reason: reasonClientError, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// timeouts and aborts surface as context errors on the request
		if attemptCtx.Err() != nil {
			return attemptOutcome{kind: outcomeRetryable, reason: reasonTimeout, err: err}
		}
		return attemptOutcome{kind: outcomeRetryable, reason: reasonNetwork, err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return attemptOutcome{
			kind:   outcomeRetryable,
			reason: reasonServerError,
			err:    fmt.Errorf("sentiment service returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return attemptOutcome{
			kind:   outcomeFatal,
			reason: reasonClientError,
			err:    fmt.Errorf("sentiment service returned %d", resp.StatusCode),
		}
	}

	result, err := parseResult(resp.Body)
	if err != nil {
		// a malformed body retries like a transient failure but is logged
		// distinctly by the caller
		return attemptOutcome{kind: outcomeRetryable, reason: reasonProtocol, err: err}
	}

	return attemptOutcome{kind: outcomeOK, result: result}
}

// wire shape with a pointer so a missing score is distinguishable from zero
type wireResult struct {
	Sentiment     *float64      `json:"sentiment"`
	Confidence    float64       `json:"confidence"`
	Label         string        `json:"label"`
	Probabilities Probabilities `json:"probabilities"`
}

func parseResult(r io.Reader) (*Result, error) {
	var wire wireResult
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("malformed sentiment response: %w", err)
	}
	if wire.Sentiment == nil {
		return nil, fmt.Errorf("sentiment response missing score")
	}
	if *wire.Sentiment < -1 || *wire.Sentiment > 1 {
		return nil, fmt.Errorf("sentiment score %v outside [-1,1]", *wire.Sentiment)
	}
	return &Result{
		Sentiment:     *wire.Sentiment,
		Confidence:    wire.Confidence,
		Label:         wire.Label,
		Probabilities: wire.Probabilities,
	}, nil
}

// backoffDelay doubles the initial delay per completed attempt: 1s, 2s, 4s
// with the defaults.
func (c *Client) backoffDelay(attempt int) time.Duration {
	return c.cfg.InitialBackoff << (attempt - 1)
}

func (c *Client) recordFailure(ctx context.Context, currentFailures int) {
	record, err := c.breaker.RecordFailure(ctx, c.cfg.ServiceName, currentFailures, c.cfg.FailureThreshold, c.cfg.Cooldown)
	if err != nil {
		c.logger.Error("failed to record circuit failure", zap.Error(err))
		return
	}
	if record.IsOpen {
		if c.metrics != nil {
			c.metrics.CircuitOpened.Inc()
		}
		c.logger.Warn("circuit breaker opened for sentiment service",
			zap.Int64("open_until", record.OpenUntil))
	}
}

func (c *Client) countCall(outcome string) {
	if c.metrics != nil {
		c.metrics.SentimentCalls.WithLabelValues(outcome).Inc()
	}
}

func outcomeLabel(kind outcomeKind) string {
	if kind == outcomeFatal {
		return "fatal"
	}
	return "retryable"
}

// truncate bounds the input to max characters before transmission.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// sleepContext waits for d unless the context ends first. Returns false if
// the wait was cut short.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
