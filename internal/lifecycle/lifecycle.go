// Package lifecycle owns polling for the active clustering session. A
// controller runs at most one poll loop at a time; selecting a new session
// cancels the previous loop before the first fetch, and reaching a
// terminal status stops polling until an adjustment's reconciliation
// restarts it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klasterhq/klaster/internal/api"
	"github.com/klasterhq/klaster/internal/models"
	"github.com/klasterhq/klaster/internal/registry"
	"github.com/klasterhq/klaster/internal/selection"
)

// DefaultPollInterval matches the reference dashboard's refresh cadence.
const DefaultPollInterval = 5 * time.Second

// Gateway is the subset of the API client the controller needs.
type Gateway interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// Controller polls session detail and keeps the registry reconciled.
type Controller struct {
	gw       Gateway
	reg      *registry.Registry
	sel      *selection.Set
	interval time.Duration
	logf     func(format string, args ...any)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogf sets the sink for poll diagnostics. Polling failures are never
// surfaced to the user, only logged here.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Controller) { c.logf = logf }
}

// New creates a controller over the given gateway, registry, and
// selection set.
func New(gw Gateway, reg *registry.Registry, sel *selection.Set, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		reg:      reg,
		sel:      sel,
		interval: DefaultPollInterval,
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select makes the session active: any running poll is cancelled first,
// the selection set is cleared, one immediate fetch runs, and polling
// starts only if the fetched status is non-terminal. Unlike poll ticks,
// this initial fetch surfaces its error to the caller.
func (c *Controller) Select(ctx context.Context, sessionID string) (*models.Session, error) {
	c.StopPolling()
	c.sel.Clear()
	c.reg.SetActive(sessionID)
	return c.Reconcile(ctx, sessionID)
}

// Reconcile fetches session detail once and ensures the poll loop is
// running exactly when the observed status is non-terminal. Adjustments
// call this after every mutation; it is the only path that restarts
// polling for a session that had already reached a terminal status.
func (c *Controller) Reconcile(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := c.FetchOnce(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s != nil && !s.Status.Terminal() {
		c.startPolling(sessionID)
	}
	return s, nil
}

// FetchOnce fetches session detail and replaces the registry's view
// wholesale. A not-found or unauthorized response evicts the session and
// stops polling. A response for a session that is no longer active is
// discarded. Reaching a terminal status stops polling.
func (c *Controller) FetchOnce(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := c.gw.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrUnauthorized) {
			c.evict(sessionID)
		}
		return nil, err
	}

	if _, perr := models.ParseStatus(string(s.Status)); perr != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, perr)
	}

	if prev := c.reg.Active(); prev != nil && prev.SessionID == s.SessionID {
		if !prev.Status.CanTransition(s.Status) {
			// Server is ground truth; log the unexpected edge but apply.
			c.logf("session %s: unexpected status transition %s -> %s", sessionID, prev.Status, s.Status)
		}
	}

	if !c.reg.ReplaceActive(s) {
		c.logf("session %s: discarding fetch result, no longer active", sessionID)
		return s, nil
	}

	if n := c.sel.Prune(s.Clusters); n > 0 {
		c.logf("session %s: dropped %d stale selection ids", sessionID, n)
	}

	if s.Status.Terminal() {
		c.StopPolling()
	}
	return s, nil
}

// StopPolling cancels the poll loop if one is running. Idempotent; safe to
// call from within the loop itself.
func (c *Controller) StopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Close tears down the controller. In-flight fetches complete but their
// results are discarded through the registry's active-id check.
func (c *Controller) Close() {
	c.StopPolling()
}

// Polling reports whether a poll loop is currently scheduled.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// startPolling replaces any existing loop with a fresh one for the given
// session. Holding the mutex across cancel-then-start keeps the "at most
// one timer" invariant.
func (c *Controller) startPolling(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.pollLoop(ctx, sessionID)
}

func (c *Controller) pollLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s, err := c.FetchOnce(ctx, sessionID)
			if err != nil {
				if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrUnauthorized) {
					// Session evicted; FetchOnce already stopped us.
					return
				}
				// Transient failure: retry on the next tick.
				c.logf("poll session %s: %v", sessionID, err)
				continue
			}
			if s != nil && s.Status.Terminal() {
				return
			}
		}
	}
}

// evict drops a gone session from the registry, clearing the active
// selection and stopping the poll loop when it was the active one.
func (c *Controller) evict(sessionID string) {
	if c.reg.Evict(sessionID) {
		c.sel.Clear()
		c.StopPolling()
	}
}
