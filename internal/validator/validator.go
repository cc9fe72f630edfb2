package validator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/ports"
)

// Severity ranks an issue. Errors make a graph unusable; warnings flag
// unfinished authoring.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the rule an issue breaks.
type Code string

const (
	DanglingTarget    Code = "dangling_target"
	ForeignTarget     Code = "foreign_target"
	DanglingReference Code = "dangling_reference"
	DuplicateID       Code = "duplicate_id"
	OrderMismatch     Code = "order_mismatch"
	Incomplete        Code = "incomplete"
	Structure         Code = "structure"
	Unreachable       Code = "unreachable"
)

// Issue is one finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	TreeID   string   `json:"tree_id"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Code, i.TreeID, i.Message)
	}
	return fmt.Sprintf("[%s] %s/%s: %s", i.Code, i.TreeID, i.NodeID, i.Message)
}

// Report collects the issues found in one root tree.
type Report struct {
	RootID string  `json:"root_id"`
	Trees  int     `json:"trees"`
	Nodes  int     `json:"nodes"`
	Issues []Issue `json:"issues"`
}

func (r *Report) add(sev Severity, code Code, treeID, nodeID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		Code:     code,
		TreeID:   treeID,
		NodeID:   nodeID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Errors returns the issues of error severity.
func (r *Report) Errors() []Issue { return r.filter(SeverityError) }

// Warnings returns the issues of warning severity.
func (r *Report) Warnings() []Issue { return r.filter(SeverityWarning) }

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// OK reports whether no error was found. Warnings do not count.
func (r *Report) OK() bool { return len(r.Errors()) == 0 }

// Err folds the errors into one, or returns nil. With strict set,
// warnings count as errors.
func (r *Report) Err(strict bool) error {
	issues := r.Errors()
	if strict {
		issues = r.Issues
	}
	if len(issues) == 0 {
		return nil
	}
	lines := make([]string, len(issues))
	for i, is := range issues {
		lines[i] = is.String()
	}
	return fmt.Errorf("found %d errors:\n- %s", len(issues), strings.Join(lines, "\n- "))
}

// ValidateGraph checks rootID and every nested subtree held by g.
func ValidateGraph(g *graph.Graph, rootID string) (*Report, error) {
	root, ok := g.Tree(rootID)
	if !ok {
		return nil, fmt.Errorf("validate %s: %w", rootID, domain.ErrTreeNotFound)
	}
	r := &Report{RootID: rootID}
	checkTree(g, root, r, 0)
	sortIssues(r)
	return r, nil
}

// ValidateSource checks the stored form of rootID before loading it, then
// validates the loaded graph. Duplicate identifiers across snapshots and
// order lists that disagree with the stored nodes are only visible here.
func ValidateSource(ctx context.Context, src ports.TreeSource, rootID string, opts ...graph.Option) (*Report, error) {
	r := &Report{RootID: rootID}
	seen := make(map[string]string)

	var walk func(snap *domain.TreeSnapshot, depth int) error
	walk = func(snap *domain.TreeSnapshot, depth int) error {
		if depth > domain.MaxSearchDepth {
			return &domain.CorruptionError{ID: snap.ID, Reason: "nesting too deep"}
		}
		claim(r, seen, snap.ID, snap.ParentID())
		children, err := src.Children(ctx, snap.ID)
		if err != nil {
			return fmt.Errorf("children of %s: %w", snap.ID, err)
		}
		checkOrder(r, snap, children)
		for _, rec := range snap.Nodes {
			claim(r, seen, rec.ID, snap.ID)
		}
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	root, err := src.Load(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", rootID, err)
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	if !r.OK() {
		sortIssues(r)
		return r, nil
	}

	g := graph.New(opts...)
	if err := g.Load(ctx, src, rootID); err != nil {
		r.add(SeverityError, Structure, rootID, "", "load failed: %v", err)
		return r, nil
	}
	loaded, err := ValidateGraph(g, rootID)
	if err != nil {
		return nil, err
	}
	loaded.Issues = append(r.Issues, loaded.Issues...)
	sortIssues(loaded)
	return loaded, nil
}

func claim(r *Report, seen map[string]string, id, owner string) {
	if prev, dup := seen[id]; dup {
		r.add(SeverityError, DuplicateID, owner, id, "identifier already used in %s", prev)
		return
	}
	seen[id] = owner
}

func checkOrder(r *Report, snap *domain.TreeSnapshot, children []*domain.TreeSnapshot) {
	want := make(map[string]bool, len(snap.Nodes)+len(children))
	for _, rec := range snap.Nodes {
		want[rec.ID] = true
	}
	for _, c := range children {
		want[c.ID] = true
	}
	listed := make(map[string]bool, len(snap.Order))
	for _, id := range snap.Order {
		if listed[id] {
			r.add(SeverityError, DuplicateID, snap.ID, id, "listed twice in order")
			continue
		}
		listed[id] = true
		if !want[id] {
			r.add(SeverityError, OrderMismatch, snap.ID, id, "ordered but not stored")
		}
	}
	for id := range want {
		if !listed[id] {
			r.add(SeverityWarning, OrderMismatch, snap.ID, id, "stored but missing from order")
		}
	}
}

func checkTree(g *graph.Graph, t *domain.Tree, r *Report, depth int) {
	if depth > domain.MaxSearchDepth {
		r.add(SeverityError, Structure, t.ID(), "", "nesting deeper than %d", domain.MaxSearchDepth)
		return
	}
	r.Trees++

	if err := t.CheckInvariants(); err != nil {
		var ce *domain.CorruptionError
		if errors.As(err, &ce) {
			r.add(SeverityError, Structure, t.ID(), "", "%s", ce.Reason)
		} else {
			r.add(SeverityError, Structure, t.ID(), "", "%v", err)
		}
	}

	for _, n := range t.DirectNodes() {
		r.Nodes++
		checkNode(g, t, n, r)
	}
	checkConnectivity(t, r)

	for _, st := range t.Subtrees() {
		r.Nodes++
		checkTree(g, st, r, depth+1)
	}
}

func checkNode(g *graph.Graph, t *domain.Tree, n domain.ActionNode, r *Report) {
	root, _ := g.RootOf(t.ID())
	for _, c := range domain.Connections(n) {
		if _, ok := g.Node(c.To); !ok {
			r.add(SeverityError, DanglingTarget, t.ID(), n.ID(), "exit %d targets missing node %s", c.Port, c.To)
			continue
		}
		if other, _ := g.RootOf(c.To); other != root {
			r.add(SeverityError, ForeignTarget, t.ID(), n.ID(), "exit %d targets %s under root %s", c.Port, c.To, other)
		}
	}
	if ref, ok := n.(domain.Referrer); ok {
		for field, id := range ref.References() {
			if _, exists := g.Node(id); !exists {
				r.add(SeverityError, DanglingReference, t.ID(), n.ID(), "field %s references missing node %s", field, id)
			}
		}
	}
	if !n.IsDataComplete() {
		r.add(SeverityWarning, Incomplete, t.ID(), n.ID(), "%s is missing required data", n.Kind())
	}
}

// checkConnectivity warns about entries that cannot reach any exit.
func checkConnectivity(t *domain.Tree, r *Report) {
	exits := t.ExitNodes()
	if len(exits) == 0 {
		return
	}
	for _, entry := range t.EntryNodes() {
		reached := false
		for _, exit := range exits {
			found, err := t.FindPathToNode(entry.NodeID, exit.NodeID)
			if err != nil {
				r.add(SeverityError, Structure, t.ID(), entry.NodeID, "%v", err)
				return
			}
			if found {
				reached = true
				break
			}
		}
		if !reached {
			r.add(SeverityWarning, Unreachable, t.ID(), entry.NodeID, "no exit is reachable from this entry")
		}
	}
}

func sortIssues(r *Report) {
	sort.SliceStable(r.Issues, func(i, j int) bool {
		a, b := r.Issues[i], r.Issues[j]
		if a.Severity != b.Severity {
			return a.Severity == SeverityError
		}
		if a.TreeID != b.TreeID {
			return a.TreeID < b.TreeID
		}
		return a.NodeID < b.NodeID
	})
}
