package aisvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trezcool/tathmini/core"
)

var (
	ErrEmptyResponse = errors.New("empty chat completion response")

	requestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tathmini_ai_requests_total",
		Help: "Chat completion calls by provider and outcome.",
	}, []string{"provider", "outcome"})
	latencyHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tathmini_ai_request_duration_seconds",
		Help:    "Duration of chat completion calls.",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 90},
	}, []string{"provider"})
)

type permanentError struct {
	error
}

func (e permanentError) Cause() error  { return e.error }
func (e permanentError) Unwrap() error { return e.error }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

func IsPermanent(err error) bool {
	var pErr permanentError
	return errors.As(err, &pErr)
}

// ResilientService wraps a ChatCompleter with a rate limiter, a circuit breaker,
// a timeout per call and retries with exponential backoff.
type ResilientService struct {
	next       core.ChatCompleter
	provider   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     core.Logger
}

var _ core.ChatCompleter = (*ResilientService)(nil)

func NewResilientService(conf *core.Config, provider string, next core.ChatCompleter, logger core.Logger) *ResilientService {
	limit := rate.Inf
	if conf.AI.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.AI.RequestsPerSecond)
	}
	svc := &ResilientService{
		next:       next,
		provider:   provider,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    conf.AI.Timeout,
		maxRetries: conf.AI.MaxRetries,
		backoff:    time.Second,
		logger:     logger,
	}
	svc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ai-" + provider,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(fmt.Sprintf("circuit breaker %s: %s -> %s", name, from, to))
		},
	})
	return svc
}

func (svc *ResilientService) Complete(ctx context.Context, req core.ChatRequest) (string, error) {
	for attempt := 0; ; attempt++ {
		out, err := svc.call(ctx, req)
		if err == nil {
			requestsCounter.WithLabelValues(svc.provider, "ok").Inc()
			return out, nil
		}

		retryable := !IsPermanent(err) && err != gobreaker.ErrOpenState && err != gobreaker.ErrTooManyRequests && ctx.Err() == nil
		if !retryable || attempt >= svc.maxRetries {
			requestsCounter.WithLabelValues(svc.provider, "error").Inc()
			return "", err
		}
		requestsCounter.WithLabelValues(svc.provider, "retry").Inc()

		wait := svc.backoff << attempt
		svc.logger.Debug(fmt.Sprintf("%s chat completion attempt %d failed, retrying in %s: %v", svc.provider, attempt+1, wait, err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (svc *ResilientService) call(ctx context.Context, req core.ChatRequest) (string, error) {
	if err := svc.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var permErr error
	out, err := svc.breaker.Execute(func() (interface{}, error) {
		cctx := ctx
		if svc.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, svc.timeout)
			defer cancel()
		}

		start := time.Now()
		content, err := svc.next.Complete(cctx, req)
		latencyHistogram.WithLabelValues(svc.provider).Observe(time.Since(start).Seconds())
		if IsPermanent(err) {
			// the provider is up: do not count it against the breaker
			permErr = err
			return "", nil
		}
		return content, err
	})
	if permErr != nil {
		return "", permErr
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
