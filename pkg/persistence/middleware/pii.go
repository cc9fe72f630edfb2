package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// Mask replaces every redacted value.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.TreeStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks node data fields and meta values whose key
// matches any pattern. Use it for stores that receive shared copies of a
// tree, such as exports handed to writers outside the team; a masked tree
// cannot be restored.
func NewRedactionMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.TreeStore) ports.TreeStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactionMiddleware) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	// The caller keeps its snapshot; only the clone is masked.
	cloned := snap.Clone()
	for i := range cloned.Nodes {
		maskMap(cloned.Nodes[i].Data, m.patterns)
	}
	for k := range cloned.Meta {
		if m.matches(k) {
			cloned.Meta[k] = Mask
		}
	}
	return m.next.Save(ctx, cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	return m.next.Load(ctx, treeID)
}

func (m *redactionMiddleware) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	return m.next.Children(ctx, parentID)
}

func (m *redactionMiddleware) Delete(ctx context.Context, treeID string) error {
	return m.next.Delete(ctx, treeID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func maskMap(data map[string]any, patterns []*regexp.Regexp) {
	for k, v := range data {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				data[k] = Mask
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			maskMap(nested, patterns)
		case []any:
			for _, item := range nested {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
