package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/session"
)

// Authority owns the authoritative copy of the graph. Submissions for the
// same root tree are serialized through the session manager.
type Authority struct {
	g           *graph.Graph
	sessions    *session.Manager
	broadcaster ports.Broadcaster
	reporter    ports.ErrorReporter
	logger      *slog.Logger
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithSessions sets the session manager. Its store, if any, receives every
// tree touched by an accepted patch.
func WithSessions(m *session.Manager) AuthorityOption {
	return func(a *Authority) {
		a.sessions = m
	}
}

// WithBroadcaster publishes accepted patches after each submission.
func WithBroadcaster(b ports.Broadcaster) AuthorityOption {
	return func(a *Authority) {
		a.broadcaster = b
	}
}

// WithErrorReporter receives corruption found while applying patches.
func WithErrorReporter(r ports.ErrorReporter) AuthorityOption {
	return func(a *Authority) {
		a.reporter = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AuthorityOption {
	return func(a *Authority) {
		a.logger = l
	}
}

// NewAuthority creates an authority over g.
func NewAuthority(g *graph.Graph, opts ...AuthorityOption) *Authority {
	a := &Authority{
		g:      g,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sessions == nil {
		a.sessions = session.NewManager(nil, session.WithLogger(a.logger))
	}
	return a
}

// Graph returns the authoritative graph.
func (a *Authority) Graph() *graph.Graph { return a.g }

// Open loads rootID from the session store unless it is already present.
func (a *Authority) Open(ctx context.Context, rootID string) error {
	if _, ok := a.g.Tree(rootID); ok {
		return nil
	}
	store := a.sessions.Store()
	if store == nil {
		return fmt.Errorf("open %s: %w", rootID, domain.ErrTreeNotFound)
	}
	return a.sessions.WithLock(ctx, rootID, func(ctx context.Context) error {
		return a.g.Load(ctx, store, rootID)
	})
}

// Submit applies patches in order, one verdict per patch. A rejected patch
// leaves the graph untouched and does not stop the remaining ones.
func (a *Authority) Submit(ctx context.Context, treeID string, patches, inverses []domain.Patch, isRedo bool) ([]ports.Result, error) {
	if len(inverses) != len(patches) {
		return nil, fmt.Errorf("submit %s: %d patches but %d inverses", treeID, len(patches), len(inverses))
	}

	key := treeID
	if root, ok := a.g.RootOf(treeID); ok {
		key = root
	}

	var results []ports.Result
	err := a.sessions.WithLock(ctx, key, func(ctx context.Context) error {
		results = make([]ports.Result, len(patches))
		touched := make(map[string]bool)
		removed := make(map[string]bool)
		var accepted []domain.Patch

		for i, p := range patches {
			if err := ctx.Err(); err != nil {
				return err
			}
			root := a.rootOf(p)
			if err := a.g.Apply(p); err != nil {
				results[i] = ports.Result{Status: ports.RejectedValueChanged, Reason: err.Error()}
				a.reject(ctx, p, err)
				continue
			}
			results[i] = ports.Result{Status: ports.Accepted}
			accepted = append(accepted, p)
			if p.Tree == "" && p.Op == domain.OpRemove {
				removed[p.NodeID] = true
				delete(touched, p.NodeID)
				continue
			}
			if root == "" {
				root, _ = a.g.RootOf(p.NodeID)
			}
			if root != "" {
				touched[root] = true
				delete(removed, root)
			}
		}

		a.logger.Debug("Submission applied",
			"tree_id", treeID,
			"patches", len(patches),
			"accepted", len(accepted),
			"redo", isRedo,
		)
		if err := a.persist(ctx, touched, removed); err != nil {
			return err
		}
		if a.broadcaster != nil && len(accepted) > 0 {
			if err := a.broadcaster.Publish(ctx, treeID, accepted); err != nil {
				a.logger.Warn("Failed to broadcast patches", "tree_id", treeID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Authority) rootOf(p domain.Patch) string {
	if p.Tree == "" {
		return p.NodeID
	}
	root, _ := a.g.RootOf(p.Tree)
	return root
}

func (a *Authority) reject(ctx context.Context, p domain.Patch, err error) {
	if errors.Is(err, domain.ErrCorruption) && a.reporter != nil {
		a.reporter.Report(ctx, err)
	}
	if graph.IsConflict(err) {
		a.logger.Info("Patch rejected", "op", p.Op, "tree_id", p.Tree, "node_id", p.NodeID, "error", err)
		return
	}
	a.logger.Warn("Malformed patch rejected", "op", p.Op, "tree_id", p.Tree, "node_id", p.NodeID, "error", err)
}

func (a *Authority) persist(ctx context.Context, touched, removed map[string]bool) error {
	store := a.sessions.Store()
	if store == nil {
		return nil
	}
	for _, id := range sortedKeys(touched) {
		if err := graph.Persist(ctx, store, a.g, id); err != nil {
			return fmt.Errorf("persist %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(removed) {
		if err := graph.Forget(ctx, store, id); err != nil {
			return fmt.Errorf("forget %s: %w", id, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ ports.Authority = (*Authority)(nil)
