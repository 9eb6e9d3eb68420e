package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

// Lifecycle defaults. Readiness polling backs off exponentially from
// PollInitial to PollMax and gives up after WaitTimeout overall.
const (
	DefaultPollInitial    = 1 * time.Second
	DefaultPollMax        = 30 * time.Second
	DefaultWaitTimeout    = 5 * time.Minute
	DefaultNotFoundBudget = 20
)

// LifecycleConfig tunes resource provisioning for one rollout population.
type LifecycleConfig struct {
	// Resource describes the sandbox to create per rollout.
	Resource ports.ResourceConfig

	// PollInitial is the first readiness-poll delay.
	PollInitial time.Duration

	// PollMax caps the delay between readiness polls.
	PollMax time.Duration

	// WaitTimeout bounds the whole readiness wait.
	WaitTimeout time.Duration

	// NotFoundBudget bounds consecutive "not found" polls before the wait
	// fails early. A resource invisible this long was likely never created,
	// and waiting out the full timeout would only mask that. Zero or less
	// keeps polling until WaitTimeout.
	NotFoundBudget int
}

// Lifecycle creates, readiness-polls, drives, and tears down one external
// sandboxed resource per rollout. The client is injected explicitly; there
// is no ambient default instance.
type Lifecycle struct {
	client ports.ResourceClient
	cfg    LifecycleConfig

	// sleep is swappable so tests can run the backoff schedule without
	// real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLifecycle builds a Lifecycle over the given client, filling config
// defaults for zero fields.
func NewLifecycle(client ports.ResourceClient, cfg LifecycleConfig) (*Lifecycle, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: lifecycle needs a resource client", domain.ErrInvalidConfiguration)
	}
	if cfg.PollInitial <= 0 {
		cfg.PollInitial = DefaultPollInitial
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = DefaultPollMax
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.NotFoundBudget == 0 {
		cfg.NotFoundBudget = DefaultNotFoundBudget
	}
	return &Lifecycle{client: client, cfg: cfg, sleep: sleepCtx}, nil
}

// Acquire provisions a resource, waits for it to become RUNNING, and binds
// its handle to the rollout state. On any failure the partially created
// resource is destroyed best-effort and the rollout is left without a
// handle.
func (l *Lifecycle) Acquire(ctx context.Context, state *domain.RolloutState) error {
	id, err := l.client.Create(ctx, l.cfg.Resource)
	if err != nil {
		return domain.NewResourceError("", "create", err)
	}

	if err := l.WaitReady(ctx, id); err != nil {
		l.destroy(ctx, id)
		return err
	}

	state.ResourceID = id
	return nil
}

// WaitReady polls the resource's status with exponential backoff until it
// reports RUNNING. ERROR and TERMINATED are fatal; "not found" is treated
// as transient (a fresh resource may not be visible yet) up to the
// configured budget of consecutive misses.
func (l *Lifecycle) WaitReady(ctx context.Context, id string) error {
	deadline := time.Now().Add(l.cfg.WaitTimeout)
	delay := l.cfg.PollInitial
	notFound := 0

	for {
		status, err := l.client.Status(ctx, id)
		switch {
		case errors.Is(err, ports.ErrResourceNotFound):
			notFound++
			if l.cfg.NotFoundBudget > 0 && notFound >= l.cfg.NotFoundBudget {
				return domain.NewResourceError(id, "wait", fmt.Errorf("not visible after %d polls: %w", notFound, err))
			}
		case err != nil:
			// Transient poll failures keep polling; the overall timeout
			// bounds them.
			log.Debug().Err(err).Str("resource_id", id).Msg("resource status poll failed")
			notFound = 0
		case status == ports.ResourceRunning:
			return nil
		case status == ports.ResourceError, status == ports.ResourceTerminated:
			return domain.NewResourceError(id, "wait", fmt.Errorf("resource entered state %s", status))
		default:
			notFound = 0
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.NewResourceError(id, "wait", ports.ErrTimeout)
		}
		if delay > remaining {
			delay = remaining
		}
		if err := l.sleep(ctx, delay); err != nil {
			return domain.NewResourceError(id, "wait", err)
		}
		if delay *= 2; delay > l.cfg.PollMax {
			delay = l.cfg.PollMax
		}
	}
}

// Exec runs a command inside the rollout's resource, injecting the handle
// from the state so it never appears in any model-visible schema.
func (l *Lifecycle) Exec(ctx context.Context, state *domain.RolloutState, command string) (ports.ExecResult, error) {
	if state.ResourceID == "" {
		return ports.ExecResult{}, domain.ErrNoResourceHandle
	}
	res, err := l.client.Execute(ctx, state.ResourceID, command)
	if err != nil {
		return ports.ExecResult{}, domain.NewResourceError(state.ResourceID, "execute", err)
	}
	return res, nil
}

// Release destroys the rollout's resource exactly once. The handle is
// checked-and-cleared on the state, so a second call is a no-op; destroy
// failures are logged and swallowed so they never block the rollout's
// terminal transition.
func (l *Lifecycle) Release(ctx context.Context, state *domain.RolloutState) {
	id, ok := state.TakeResourceID()
	if !ok {
		return
	}
	l.destroy(ctx, id)
}

func (l *Lifecycle) destroy(ctx context.Context, id string) {
	if err := l.client.Destroy(ctx, id); err != nil {
		log.Warn().Err(err).Str("resource_id", id).Msg("resource destroy failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
