package undo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// State is the engine state.
type State int

const (
	Idle State = iota
	Grouping
	Submitting
)

func (s State) String() string {
	switch s {
	case Grouping:
		return "grouping"
	case Submitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Applier applies patches to the local copy of the graph.
type Applier interface {
	Apply(p domain.Patch) error
}

// GroupOptions tune the operation produced by a group.
type GroupOptions struct {
	GroupID      string
	AutoMerge    bool
	AfterApply   func()
	AfterReverse func()
}

type frame struct {
	tree     string
	label    Label
	opts     GroupOptions
	before   ViewState
	patches  []domain.Patch
	inverses []domain.Patch
}

// Engine records, commits, undoes and redoes operations for one editor.
type Engine struct {
	mu       sync.Mutex
	state    State
	frames   []*frame
	history  *History
	local    Applier
	auth     ports.Authority
	view     ports.ViewProvider
	reporter ports.ErrorReporter
	hooks    Hooks
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithView sets the provider whose state is captured around operations.
func WithView(v ports.ViewProvider) Option {
	return func(e *Engine) {
		e.view = v
	}
}

// WithHistoryLimit bounds the undo stack.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.history = NewHistory(n)
	}
}

// WithHooks installs observers.
func WithHooks(h Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithErrorReporter receives local rollback failures, which mean the local
// graph diverged from what the engine recorded.
func WithErrorReporter(r ports.ErrorReporter) Option {
	return func(e *Engine) {
		e.reporter = r
	}
}

// NewEngine creates an engine applying patches locally through local and
// submitting them to auth.
func NewEngine(local Applier, auth ports.Authority, opts ...Option) *Engine {
	e := &Engine{
		history: NewHistory(DefaultHistoryLimit),
		local:   local,
		auth:    auth,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History exposes the undo and redo stacks.
func (e *Engine) History() *History { return e.history }

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// BeginGroup opens a frame. Frames nest; inner frames fold into the
// outer one when they end.
func (e *Engine) BeginGroup(treeID string, label Label, opts GroupOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Submitting {
		return ErrBusy
	}
	if len(e.frames) > 0 && e.frames[0].tree != treeID {
		return fmt.Errorf("group on tree %s inside group on tree %s: %w", treeID, e.frames[0].tree, ErrForeignTree)
	}
	e.frames = append(e.frames, &frame{
		tree:   treeID,
		label:  label,
		opts:   opts,
		before: e.captureView(),
	})
	e.state = Grouping
	return nil
}

// OpenTree returns the tree of the outermost open group, if any.
func (e *Engine) OpenTree() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) == 0 {
		return "", false
	}
	return e.frames[0].tree, true
}

// Record registers a pair whose forward patch was already applied locally.
// Outside a group the pair is committed at once as its own operation.
func (e *Engine) Record(ctx context.Context, treeID string, patch, inverse domain.Patch) error {
	e.mu.Lock()
	if e.state == Submitting {
		e.mu.Unlock()
		return ErrBusy
	}
	if n := len(e.frames); n > 0 {
		f := e.frames[n-1]
		f.patches = append(f.patches, patch)
		f.inverses = append(f.inverses, inverse)
		e.mu.Unlock()
		return nil
	}
	view := e.captureView()
	e.mu.Unlock()

	op := &Operation{
		Label:    LabelNone,
		TreeID:   treeID,
		Patches:  []domain.Patch{patch},
		Inverses: []domain.Patch{inverse},
		Before:   view,
		After:    view,
	}
	return e.Execute(ctx, op, false)
}

// EndGroup closes the innermost frame. Closing the outermost frame commits
// its pairs as one operation. A group that recorded nothing is a no-op.
func (e *Engine) EndGroup(ctx context.Context) error {
	e.mu.Lock()
	n := len(e.frames)
	if n == 0 {
		e.mu.Unlock()
		return ErrNoGroup
	}
	f := e.frames[n-1]
	e.frames = e.frames[:n-1]

	if n > 1 {
		parent := e.frames[n-2]
		parent.patches = append(parent.patches, f.patches...)
		parent.inverses = append(parent.inverses, f.inverses...)
		e.mu.Unlock()
		return nil
	}
	e.state = Idle

	if len(f.patches) == 0 {
		e.mu.Unlock()
		e.logger.Debug("Empty group, nothing to commit", "tree_id", f.tree, "label", f.label)
		return nil
	}

	op := &Operation{
		Label:        f.label,
		GroupID:      f.opts.GroupID,
		TreeID:       f.tree,
		Patches:      f.patches,
		Inverses:     f.inverses,
		Before:       f.before,
		After:        e.captureView(),
		AfterApply:   f.opts.AfterApply,
		AfterReverse: f.opts.AfterReverse,
		AutoMerge:    f.opts.AutoMerge,
	}
	e.mu.Unlock()
	return e.Execute(ctx, op, false)
}

// Discard drops every open frame, reverting their pairs locally.
func (e *Engine) Discard() {
	e.mu.Lock()
	frames := e.frames
	e.frames = nil
	if e.state == Grouping {
		e.state = Idle
	}
	e.mu.Unlock()

	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		for j := len(f.inverses) - 1; j >= 0; j-- {
			e.applyLocal(f.inverses[j])
		}
	}
}

// Execute submits op. For a redo the patches are first applied locally.
//
// Rejected pairs are rolled back locally and removed from op. If every pair
// was rejected, op is discarded and a *ConflictError is returned. If only
// some were, a fresh op is still committed to history and a partial
// *ConflictError is returned.
func (e *Engine) Execute(ctx context.Context, op *Operation, isRedo bool) error {
	if err := e.enterSubmit(); err != nil {
		return err
	}
	defer e.leaveSubmit()

	if isRedo {
		for i, p := range op.Patches {
			if err := e.local.Apply(p); err != nil {
				for j := i - 1; j >= 0; j-- {
					e.applyLocal(op.Inverses[j])
				}
				return fmt.Errorf("redo %s: %w", p, &ConflictError{TreeID: op.TreeID, Rejected: op.Len(), Total: op.Len()})
			}
		}
	}

	results, err := e.submit(ctx, op.TreeID, op.Patches, op.Inverses, isRedo)
	if err != nil {
		return err
	}

	total := op.Len()
	rejected := make(map[int]bool)
	for i := total - 1; i >= 0; i-- {
		if !results[i].Accepted() {
			rejected[i] = true
			e.applyLocal(op.Inverses[i])
		}
	}
	op.drop(rejected)

	if len(rejected) > 0 {
		e.logger.Warn("Changes rejected", "tree_id", op.TreeID, "label", op.Label, "rejected", len(rejected), "total", total)
		if e.hooks.OnConflict != nil {
			e.hooks.OnConflict(op.TreeID, len(rejected), total)
		}
	}
	if op.Len() == 0 {
		return &ConflictError{TreeID: op.TreeID, Rejected: total, Total: total}
	}

	if !isRedo {
		e.mu.Lock()
		committed := op
		merged := e.history.Commit(op)
		if merged {
			committed = e.history.Peek()
		}
		e.mu.Unlock()
		if merged && e.hooks.OnMerge != nil {
			e.hooks.OnMerge(committed)
		}
		if e.hooks.OnCommit != nil {
			e.hooks.OnCommit(committed)
		}
	}
	if op.AfterApply != nil {
		op.AfterApply()
	}

	if len(rejected) > 0 {
		return &ConflictError{TreeID: op.TreeID, Rejected: len(rejected), Total: total, Partial: true}
	}
	return nil
}

// Reverse applies the inverses of op locally in reverse order, submits them
// and restores the view captured before op. Inverses the authority rejects
// are undone locally by re-applying their forward patch, and the pair is
// removed from op.
func (e *Engine) Reverse(ctx context.Context, op *Operation) error {
	if err := e.enterSubmit(); err != nil {
		return err
	}
	defer e.leaveSubmit()

	n := op.Len()
	patches := make([]domain.Patch, 0, n)
	inverses := make([]domain.Patch, 0, n)
	for i := n - 1; i >= 0; i-- {
		if err := e.local.Apply(op.Inverses[i]); err != nil {
			for j := i + 1; j < n; j++ {
				e.applyLocal(op.Patches[j])
			}
			return fmt.Errorf("undo %s: %w", op.Inverses[i], &ConflictError{TreeID: op.TreeID, Rejected: n, Total: n})
		}
		patches = append(patches, op.Inverses[i])
		inverses = append(inverses, op.Patches[i])
	}

	results, err := e.submit(ctx, op.TreeID, patches, inverses, false)
	if err != nil {
		return err
	}

	rejected := make(map[int]bool)
	for j := len(results) - 1; j >= 0; j-- {
		if !results[j].Accepted() {
			i := n - 1 - j
			rejected[i] = true
			e.applyLocal(op.Patches[i])
		}
	}
	op.drop(rejected)

	e.restoreView(op.Before)
	if op.AfterReverse != nil {
		op.AfterReverse()
	}

	if len(rejected) > 0 {
		if e.hooks.OnConflict != nil {
			e.hooks.OnConflict(op.TreeID, len(rejected), n)
		}
		return &ConflictError{TreeID: op.TreeID, Rejected: len(rejected), Total: n, Partial: op.Len() > 0}
	}
	return nil
}

// Undo reverses the top operation and moves it to the redo stack. An
// operation none of whose inverses took effect is discarded.
func (e *Engine) Undo(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return ErrBusy
	}
	op := e.history.popUndo()
	e.mu.Unlock()
	if op == nil {
		return nil
	}

	err := e.Reverse(ctx, op)
	switch {
	case op.Len() > 0 && !isUnknown(err) && !isFullConflict(err):
		e.mu.Lock()
		e.history.pushRedo(op)
		e.mu.Unlock()
	case isFullConflict(err):
		e.logger.Warn("Undo entry discarded", "tree_id", op.TreeID, "label", op.Label, "error", err)
	}
	if e.hooks.OnUndo != nil {
		e.hooks.OnUndo(op)
	}
	return err
}

// Redo re-executes the top redo operation and moves it back to the undo stack.
func (e *Engine) Redo(ctx context.Context) error {
	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return ErrBusy
	}
	op := e.history.popRedo()
	e.mu.Unlock()
	if op == nil {
		return nil
	}

	err := e.Execute(ctx, op, true)
	if op.Len() > 0 && !isUnknown(err) && !isFullConflict(err) {
		e.mu.Lock()
		e.history.pushUndo(op)
		e.mu.Unlock()
		e.restoreView(op.After)
	}
	if e.hooks.OnRedo != nil {
		e.hooks.OnRedo(op)
	}
	return err
}

func (e *Engine) submit(ctx context.Context, treeID string, patches, inverses []domain.Patch, isRedo bool) ([]ports.Result, error) {
	start := time.Now()
	results, err := e.auth.Submit(ctx, treeID, patches, inverses, isRedo)
	if err == nil && len(results) != len(patches) {
		err = fmt.Errorf("authority returned %d results for %d patches", len(results), len(patches))
	}
	if e.hooks.OnSubmit != nil {
		e.hooks.OnSubmit(treeID, time.Since(start), err)
	}
	if err != nil {
		e.logger.Error("Submission failed", "tree_id", treeID, "error", err)
		return nil, fmt.Errorf("submit tree %s: %w: %v", treeID, ErrUnknownState, err)
	}
	return results, nil
}

func (e *Engine) enterSubmit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Submitting {
		return ErrBusy
	}
	e.state = Submitting
	return nil
}

func (e *Engine) leaveSubmit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) > 0 {
		e.state = Grouping
	} else {
		e.state = Idle
	}
}

func (e *Engine) applyLocal(p domain.Patch) {
	if err := e.local.Apply(p); err != nil {
		e.logger.Error("Local rollback failed", "tree_id", p.Tree, "node_id", p.NodeID, "error", err)
		if e.reporter != nil {
			e.reporter.Report(context.Background(), &domain.CorruptionError{ID: p.NodeID, Reason: "local rollback failed: " + err.Error()})
		}
	}
}

func (e *Engine) captureView() ViewState {
	if e.view == nil {
		return ViewState{}
	}
	vs := ViewState{Transform: e.view.CurrentTransform()}
	if sp, ok := e.view.(ports.SelectionProvider); ok {
		vs.Selection = append([]string(nil), sp.Selection()...)
	}
	return vs
}

func (e *Engine) restoreView(vs ViewState) {
	if e.view == nil {
		return
	}
	e.view.SetTransform(vs.Transform)
	if sp, ok := e.view.(ports.SelectionProvider); ok {
		sp.SetSelection(vs.Selection)
	}
}
