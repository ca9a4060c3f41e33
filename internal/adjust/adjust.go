// Package adjust executes the four cluster mutations (rename, merge,
// split, delete-and-redistribute) against the active session. Every
// operation follows the same contract: validate locally before any network
// call, hold the single session-wide in-flight flag, pause polling for the
// duration, and reconcile by refetching the session wholesale afterwards —
// on failure too, since the server may have partially applied the change.
package adjust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klasterhq/klaster/internal/api"
	"github.com/klasterhq/klaster/internal/lifecycle"
	"github.com/klasterhq/klaster/internal/models"
	"github.com/klasterhq/klaster/internal/notify"
	"github.com/klasterhq/klaster/internal/registry"
	"github.com/klasterhq/klaster/internal/selection"
)

// ErrOperationInProgress rejects an adjustment while another one is in
// flight for the session. No request is issued.
var ErrOperationInProgress = errors.New("another adjustment is already in progress")

// ValidationError is a precondition failure caught before any network
// call. It never reflects server state.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func validationErr(op, format string, args ...any) error {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Gateway is the subset of the API client the coordinator needs.
type Gateway interface {
	Adjust(ctx context.Context, sessionID string, req api.AdjustRequest) (*api.AdjustResult, error)
	DeleteCluster(ctx context.Context, sessionID, clusterID string) (string, error)
}

// Coordinator serializes mutations on the active session.
type Coordinator struct {
	gw   Gateway
	reg  *registry.Registry
	sel  *selection.Set
	lc   *lifecycle.Controller
	sink notify.Sink

	mu       sync.Mutex
	inFlight bool
}

// New creates a coordinator. The sink may be notify.Discard.
func New(gw Gateway, reg *registry.Registry, sel *selection.Set, lc *lifecycle.Controller, sink notify.Sink) *Coordinator {
	if sink == nil {
		sink = notify.Discard
	}
	return &Coordinator{gw: gw, reg: reg, sel: sel, lc: lc, sink: sink}
}

// begin claims the in-flight flag and snapshots the active session. Every
// exit path must release through end, including precondition failures.
func (c *Coordinator) begin(op string) (*models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, ErrOperationInProgress
	}
	s := c.reg.Active()
	if s == nil {
		return nil, validationErr(op, "no active session")
	}
	if !s.Status.ResultBearing() {
		return nil, validationErr(op, "session status is %s, adjustments require SUCCESS or RECLUSTERED", s.Status)
	}
	c.inFlight = true
	return s, nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// InFlight reports whether a mutation is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// reconcile refetches the session after a mutation attempt so local state
// never diverges from the server. It also restarts polling when the server
// kicked off a recompute.
func (c *Coordinator) reconcile(ctx context.Context, sessionID string) error {
	_, err := c.lc.Reconcile(ctx, sessionID)
	return err
}

// finish runs the shared success/failure tail of every mutation: a
// reconciliation fetch in both cases, then notification.
func (c *Coordinator) finish(ctx context.Context, sessionID, okMsg string, reqErr error) error {
	recErr := c.reconcile(ctx, sessionID)
	if reqErr != nil {
		c.sink.Failuref("%v", reqErr)
		if recErr != nil {
			return errors.Join(reqErr, fmt.Errorf("reconcile after failure: %w", recErr))
		}
		return reqErr
	}
	if recErr != nil {
		// The mutation landed but the refetch did not; surface it so the
		// caller knows the local view may be stale.
		c.sink.Failuref("adjustment applied but refresh failed: %v", recErr)
		return fmt.Errorf("reconcile: %w", recErr)
	}
	c.sink.Successf("%s", okMsg)
	return nil
}

// Rename sets or clears a cluster's human label. A trimmed no-change is a
// local no-op success with no request sent; an empty name clears the
// label.
func (c *Coordinator) Rename(ctx context.Context, clusterID, newName string) error {
	s, err := c.begin("rename")
	if err != nil {
		return err
	}
	defer c.end()

	cluster := s.FindCluster(clusterID)
	if cluster == nil {
		return validationErr("rename", "cluster %s not found in session %s", clusterID, s.SessionID)
	}

	trimmed := strings.TrimSpace(newName)
	if trimmed == cluster.Name {
		c.sink.Successf("Cluster %s name unchanged", clusterID)
		return nil
	}

	c.lc.StopPolling()
	_, reqErr := c.gw.Adjust(ctx, s.SessionID, api.AdjustRequest{
		Action:    api.ActionRename,
		ClusterID: clusterID,
		NewName:   &trimmed,
	})

	okMsg := fmt.Sprintf("Cluster %s renamed to %q", clusterID, trimmed)
	if trimmed == "" {
		okMsg = fmt.Sprintf("Cluster %s label cleared", clusterID)
	}
	return c.finish(ctx, s.SessionID, okMsg, reqErr)
}

// Merge collapses two or more clusters into a new server-assigned one.
// The selection set is cleared on success.
func (c *Coordinator) Merge(ctx context.Context, clusterIDs []string) error {
	s, err := c.begin("merge")
	if err != nil {
		return err
	}
	defer c.end()

	if len(clusterIDs) < 2 {
		return validationErr("merge", "need at least 2 clusters, got %d", len(clusterIDs))
	}
	for _, id := range clusterIDs {
		if s.FindCluster(id) == nil {
			return validationErr("merge", "cluster %s not found in session %s", id, s.SessionID)
		}
	}

	c.lc.StopPolling()
	res, reqErr := c.gw.Adjust(ctx, s.SessionID, api.AdjustRequest{
		Action:          api.ActionMerge,
		ClusterIDsMerge: clusterIDs,
	})
	if reqErr == nil {
		c.sel.Clear()
	}

	okMsg := fmt.Sprintf("Merged %d clusters", len(clusterIDs))
	if reqErr == nil && res != nil && res.Message != "" {
		okMsg = res.Message
	}
	return c.finish(ctx, s.SessionID, okMsg, reqErr)
}

// Split divides a cluster into numSplits new clusters. A cluster with
// fewer than 2 points cannot produce 2 non-empty groups and is rejected
// locally.
func (c *Coordinator) Split(ctx context.Context, clusterID string, numSplits int) error {
	s, err := c.begin("split")
	if err != nil {
		return err
	}
	defer c.end()

	if numSplits < 2 {
		return validationErr("split", "num_splits must be >= 2, got %d", numSplits)
	}
	cluster := s.FindCluster(clusterID)
	if cluster == nil {
		return validationErr("split", "cluster %s not found in session %s", clusterID, s.SessionID)
	}
	if cluster.Size < 2 {
		return validationErr("split", "cluster %s has %d point(s), cannot split into %d groups", clusterID, cluster.Size, numSplits)
	}

	c.lc.StopPolling()
	res, reqErr := c.gw.Adjust(ctx, s.SessionID, api.AdjustRequest{
		Action:         api.ActionSplit,
		ClusterIDSplit: clusterID,
		NumSplits:      numSplits,
	})

	okMsg := fmt.Sprintf("Cluster %s split into %d parts", clusterID, numSplits)
	if reqErr == nil && res != nil && res.Message != "" {
		okMsg = res.Message
	}
	return c.finish(ctx, s.SessionID, okMsg, reqErr)
}

// DeleteCluster removes a cluster and lets the server redistribute its
// points among the remaining clusters. The id is dropped from the
// selection set on success.
func (c *Coordinator) DeleteCluster(ctx context.Context, clusterID string) error {
	s, err := c.begin("delete")
	if err != nil {
		return err
	}
	defer c.end()

	if s.FindCluster(clusterID) == nil {
		return validationErr("delete", "cluster %s not found in session %s", clusterID, s.SessionID)
	}

	c.lc.StopPolling()
	msg, reqErr := c.gw.DeleteCluster(ctx, s.SessionID, clusterID)
	if reqErr == nil {
		c.sel.Remove(clusterID)
	}

	okMsg := fmt.Sprintf("Cluster %s deleted, points redistributed", clusterID)
	if reqErr == nil && msg != "" {
		okMsg = msg
	}
	return c.finish(ctx, s.SessionID, okMsg, reqErr)
}
