// Package focus works out which nested tree the canvas is focused on.
//
// The canvas shows a root tree; each subtree is drawn inside a fixed
// footprint, scaled down by its intrinsic scale. Zooming in far enough on a
// subtree makes its contents legible, and the navigator descends into it.
package focus

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
)

// DefaultThreshold is the effective zoom above which a subtree's contents
// are considered legible.
const DefaultThreshold = 1.0

// Viewport is the canvas pan, zoom and size. Screen = model * Zoom + (X, Y).
type Viewport struct {
	Zoom   float64 `json:"zoom"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type entry struct {
	viewport Viewport
	path     []string
}

// Navigator memoizes the focus path per root tree. The cache is exact: any
// change of viewport recomputes, and Invalidate must be called when a tree on
// a cached path changes.
type Navigator struct {
	mu         sync.Mutex
	threshold  float64
	complexity int
	cache      map[string]entry
	logger     *slog.Logger
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithThreshold sets the legibility threshold.
func WithThreshold(t float64) Option {
	return func(n *Navigator) {
		n.threshold = t
	}
}

// WithComplexity sets the authoring complexity level. Subtrees requiring a
// higher level are never descended into.
func WithComplexity(level int) Option {
	return func(n *Navigator) {
		n.complexity = level
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) {
		n.logger = l
	}
}

// NewNavigator creates a navigator without a complexity gate.
func NewNavigator(opts ...Option) *Navigator {
	n := &Navigator{
		threshold:  DefaultThreshold,
		complexity: math.MaxInt,
		cache:      make(map[string]entry),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetComplexity changes the authoring level and drops every cached path.
func (n *Navigator) SetComplexity(level int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.complexity = level
	n.cache = make(map[string]entry)
}

// Hierarchy returns the ids from root down to the focused tree.
func (n *Navigator) Hierarchy(root *domain.Tree, vp Viewport) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if e, ok := n.cache[root.ID()]; ok && e.viewport == vp {
		return slices.Clone(e.path)
	}

	path := n.compute(root, vp)
	n.cache[root.ID()] = entry{viewport: vp, path: path}
	n.logger.Debug("Focus recomputed", "tree_id", root.ID(), "depth", len(path))
	return slices.Clone(path)
}

func (n *Navigator) compute(root *domain.Tree, vp Viewport) []string {
	path := []string{root.ID()}
	s := vp.Zoom
	ox, oy := vp.X, vp.Y
	cx, cy := vp.Width/2, vp.Height/2

	cur := root
	for depth := 0; depth < domain.MaxSearchDepth; depth++ {
		var next *domain.Tree
		for _, st := range cur.Subtrees() {
			if st.Complexity > n.complexity {
				continue
			}
			k := st.Scale()
			if s*k <= n.threshold {
				continue
			}
			p := st.Position()
			minX, minY := p.X*s+ox, p.Y*s+oy
			maxX, maxY := (p.X+domain.TreeWidth)*s+ox, (p.Y+domain.TreeHeight)*s+oy
			if cx < minX || cx > maxX || cy < minY || cy > maxY {
				continue
			}
			origin := st.ContentOrigin()
			ox += (p.X - origin.X*k) * s
			oy += (p.Y - origin.Y*k) * s
			s *= k
			next = st
			break
		}
		if next == nil {
			break
		}
		path = append(path, next.ID())
		cur = next
	}
	return path
}

// Invalidate drops every cached path containing treeID.
func (n *Navigator) Invalidate(treeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for root, e := range n.cache {
		if slices.Contains(e.path, treeID) {
			delete(n.cache, root)
		}
	}
}

// Cached reports whether a path is memoized for rootID.
func (n *Navigator) Cached(rootID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.cache[rootID]
	return ok
}

// TreeResolver looks trees up by id.
type TreeResolver interface {
	Tree(id string) (*domain.Tree, bool)
}

// Resolve turns a hierarchy path back into trees. Stale ids fail with a
// not-found notice.
func Resolve(r TreeResolver, path []string) ([]*domain.Tree, error) {
	out := make([]*domain.Tree, 0, len(path))
	for i, id := range path {
		t, ok := r.Tree(id)
		if !ok {
			return nil, domain.NotFound(id)
		}
		if i > 0 && t.Parent != path[i-1] {
			return nil, fmt.Errorf("tree %s is not nested in %s: %w", id, path[i-1], domain.NotFound(id))
		}
		out = append(out, t)
	}
	return out, nil
}
