package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Factory creates an empty node of one kind carrying its default ports.
type Factory func(id string) domain.ActionNode

// Registry maps node kinds to factories and converts nodes to and from
// records. It is the single codec used by patches, snapshots and adapters.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.Kind]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.Kind]Factory),
	}
}

// Default returns a registry with every built-in variant registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(domain.KindTrigger, func(id string) domain.ActionNode { return domain.NewTrigger(id, "") })
	r.Register(domain.KindMutation, func(id string) domain.ActionNode { return domain.NewMutation(id, "", "set", nil) })
	r.Register(domain.KindDialogue, func(id string) domain.ActionNode { return domain.NewDialogue(id, "", "") })
	r.Register(domain.KindCombat, func(id string) domain.ActionNode { return domain.NewCombat(id, "") })
	r.Register(domain.KindQuest, func(id string) domain.ActionNode { return domain.NewQuest(id, "") })
	r.Register(domain.KindTask, func(id string) domain.ActionNode { return domain.NewTask(id, "", "") })
	r.Register(domain.KindProgress, func(id string) domain.ActionNode { return domain.NewProgress(id, "", "", "completed") })
	r.Register(domain.KindTreeEntry, func(id string) domain.ActionNode { return domain.NewTreeEntry(id) })
	r.Register(domain.KindTreeExit, func(id string) domain.ActionNode { return domain.NewTreeExit(id, "exit") })
	r.Register(domain.KindTemplateParameter, func(id string) domain.ActionNode {
		return domain.NewTemplateParameter(id, "", domain.ParamString, nil)
	})
	r.Register(domain.KindTreeProperties, func(id string) domain.ActionNode { return domain.NewTreeProperties(id, "") })
	r.Register(domain.KindComment, func(id string) domain.ActionNode { return domain.NewComment(id, "") })
	r.Register(domain.KindTree, func(id string) domain.ActionNode { return domain.NewTree(id, "", domain.TreeSub) })
	return r
}

// Register adds a factory to the registry.
// If a factory for the same kind exists, it is overwritten.
func (r *Registry) Register(kind domain.Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// New creates an empty node of the given kind.
func (r *Registry) New(kind domain.Kind, id string) (domain.ActionNode, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown node kind: %s", kind)
	}
	return f(id), nil
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Encode converts a node into its record form.
func (r *Registry) Encode(n domain.ActionNode) (domain.NodeRecord, error) {
	data := make(map[string]any)
	if err := mapstructure.Decode(n, &data); err != nil {
		return domain.NodeRecord{}, fmt.Errorf("encode %s: %w", n.ID(), err)
	}
	delete(data, "id")
	return domain.NodeRecord{Kind: n.Kind(), ID: n.ID(), Data: data}, nil
}

// Decode rebuilds a typed node from a record. Records coming from JSON or
// YAML are accepted: numbers, lists and nested maps are converted weakly.
func (r *Registry) Decode(rec domain.NodeRecord) (domain.ActionNode, error) {
	n, err := r.New(rec.Kind, rec.ID)
	if err != nil {
		return nil, err
	}
	if len(rec.Data) == 0 {
		return n, nil
	}
	data := make(map[string]any, len(rec.Data))
	for k, v := range rec.Data {
		if k == "id" {
			continue
		}
		data[k] = v
	}
	if err := decodeInto(n, data); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", rec.Kind, rec.ID, err)
	}
	return n, nil
}

// Field reads one field of a node by its record name.
func (r *Registry) Field(n domain.ActionNode, name string) (any, error) {
	rec, err := r.Encode(n)
	if err != nil {
		return nil, err
	}
	v, ok := rec.Data[name]
	if !ok {
		return nil, fmt.Errorf("%s has no field %q", n.Kind(), name)
	}
	return v, nil
}

// SetField writes one field of a node in place. Tree exits are derived
// from exit nodes and cannot be written.
func (r *Registry) SetField(n domain.ActionNode, name string, value any) error {
	if name == "id" {
		return fmt.Errorf("field id is immutable")
	}
	if _, isTree := n.(*domain.Tree); isTree && name == "exits" {
		return fmt.Errorf("tree exits are derived from exit nodes")
	}
	if _, err := r.Field(n, name); err != nil {
		return err
	}
	if isNilCollection(value) {
		value = nil
	}
	return decodeInto(n, map[string]any{name: value})
}

// Clone returns an independent copy of n through a record round trip.
func (r *Registry) Clone(n domain.ActionNode) (domain.ActionNode, error) {
	rec, err := r.Encode(n)
	if err != nil {
		return nil, err
	}
	return r.Decode(rec)
}

// isNilCollection catches typed nil slices and maps, which the decoder
// would otherwise skip instead of clearing the field.
func isNilCollection(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}

func decodeInto(n domain.ActionNode, data map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           n,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		ErrorUnused:      true,
		Squash:           true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
