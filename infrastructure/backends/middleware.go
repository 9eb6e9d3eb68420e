package backends

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// Middleware wraps a ModelBackend with additional behavior such as rate
// limiting, retries, or tracing. Middleware composes in reverse order:
// the last middleware applied handles requests first.
type Middleware func(ports.ModelBackend) ports.ModelBackend

// Chain applies middleware to a backend in the order given, so the first
// middleware in the list is outermost.
func Chain(backend ports.ModelBackend, middleware ...Middleware) ports.ModelBackend {
	for i := len(middleware) - 1; i >= 0; i-- {
		backend = middleware[i](backend)
	}
	return backend
}

// rateLimitedBackend enforces request pacing with a token bucket.
// This prevents overwhelming provider rate limits when a batch fans out
// many concurrent rollouts over one backend.
type rateLimitedBackend struct {
	next    ports.ModelBackend
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using
// a token bucket. The limit parameter sets requests per second, while burst
// allows temporary spikes above the sustained rate.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.ModelBackend) ports.ModelBackend {
		return &rateLimitedBackend{next: next, limiter: limiter}
	}
}

// Generate waits for rate limit permission before forwarding the request.
// This blocks the calling goroutine until a token is available.
func (r *rateLimitedBackend) Generate(
	ctx context.Context,
	messages []domain.Message,
	tools []ports.Tool,
	sampling ports.SamplingParams,
) (domain.ModelResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return domain.ModelResponse{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Generate(ctx, messages, tools, sampling)
}

// Model returns the model name from the wrapped backend.
func (r *rateLimitedBackend) Model() string { return r.next.Model() }

// retryBackend implements automatic retry with exponential backoff for
// transient failures. The too-long sentinel is never retried: the backend
// reports it as a successful response, so it passes straight through.
type retryBackend struct {
	next       ports.ModelBackend
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that automatically retries failed
// requests with exponential backoff and jitter. Only transient failures
// (rate limits, service unavailability, timeouts) are retried.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next ports.ModelBackend) ports.ModelBackend {
		return &retryBackend{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Generate executes the request with automatic retry logic, respecting
// context cancellation between attempts.
func (r *retryBackend) Generate(
	ctx context.Context,
	messages []domain.Message,
	tools []ports.Tool,
	sampling ports.SamplingParams,
) (domain.ModelResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.next.Generate(ctx, messages, tools, sampling)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return domain.ModelResponse{}, ctx.Err()
		case <-time.After(r.calculateDelay(attempt)):
		}
	}

	return domain.ModelResponse{}, fmt.Errorf("generate failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retryBackend) calculateDelay(attempt int) time.Duration {
	// Exponential backoff with jitter.
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}

	return delay
}

// Model returns the model name from the wrapped backend.
func (r *retryBackend) Model() string { return r.next.Model() }

// isRetryable reports whether a generation failure is worth retrying.
func isRetryable(err error) bool {
	if errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrServiceUnavailable) ||
		errors.Is(err, ports.ErrTimeout) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// tracedBackend records one span per generation call.
type tracedBackend struct {
	next   ports.ModelBackend
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that wraps each generation in an
// OpenTelemetry span carrying the model, message count, and outcome.
func TracingMiddleware() Middleware {
	tracer := otel.Tracer("model-backend")

	return func(next ports.ModelBackend) ports.ModelBackend {
		return &tracedBackend{next: next, tracer: tracer}
	}
}

// Generate records the call as a span on the wrapped backend.
func (t *tracedBackend) Generate(
	ctx context.Context,
	messages []domain.Message,
	tools []ports.Tool,
	sampling ports.SamplingParams,
) (domain.ModelResponse, error) {
	ctx, span := t.tracer.Start(ctx, "backend.generate",
		trace.WithAttributes(
			attribute.String("model", t.next.Model()),
			attribute.Int("messages", len(messages)),
			attribute.Int("tools", len(tools)),
		))
	defer span.End()

	resp, err := t.next.Generate(ctx, messages, tools, sampling)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(attribute.Bool("prompt_too_long", resp.PromptTooLong()))
	return resp, nil
}

// Model returns the model name from the wrapped backend.
func (t *tracedBackend) Model() string { return t.next.Model() }
