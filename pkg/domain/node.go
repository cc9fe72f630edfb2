package domain

// Kind tags an action node variant.
type Kind string

// Node kinds.
const (
	KindTrigger           Kind = "trigger"
	KindMutation          Kind = "mutation"
	KindDialogue          Kind = "dialogue"
	KindCombat            Kind = "combat"
	KindQuest             Kind = "quest"
	KindTask              Kind = "task"
	KindProgress          Kind = "progress"
	KindTreeEntry         Kind = "tree_entry"
	KindTreeExit          Kind = "tree_exit"
	KindTemplateParameter Kind = "template_parameter"
	KindTreeProperties    Kind = "tree_properties"
	KindComment           Kind = "comment"
	KindTree              Kind = "tree"
)

// Position is the location of a node on the authoring canvas.
type Position struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Port is an exit socket. Targets is the ordered list of outgoing edges.
type Port struct {
	Name    string   `json:"name" yaml:"name" mapstructure:"name"`
	Targets []string `json:"targets" yaml:"targets" mapstructure:"targets"`
}

// HasTarget reports whether id is one of the port targets.
func (p Port) HasTarget(id string) bool {
	for _, t := range p.Targets {
		if t == id {
			return true
		}
	}
	return false
}

// Connection is a derived edge: (source node, port index, target node).
type Connection struct {
	From string `json:"from"`
	Port int    `json:"port"`
	To   string `json:"to"`
}

// ActionNode is the uniform capability contract every variant implements.
// The set of implementations is closed; switch on the concrete type when a
// variant needs special handling.
type ActionNode interface {
	ID() string
	Kind() Kind
	Position() Position
	// Exits returns a copy of the node's exit ports.
	Exits() []Port
	IsDataComplete() bool
	Title() string
	Color() string
	Description() string
	// CloneAs returns a deep copy carrying a new identifier.
	CloneAs(id string) ActionNode

	actionNode()
}

// Referrer is implemented by variants holding identifiers of other nodes in
// fields other than their ports.
type Referrer interface {
	// References maps field name to the referenced identifier. Empty references are omitted.
	References() map[string]string
	// RemapReferences rewrites every reference present in table.
	RemapReferences(table map[string]string)
}

// Connections lists every edge leaving n.
func Connections(n ActionNode) []Connection {
	var out []Connection
	for i, p := range n.Exits() {
		for _, t := range p.Targets {
			out = append(out, Connection{From: n.ID(), Port: i, To: t})
		}
	}
	return out
}

// Base holds the fields shared by every variant.
type Base struct {
	NodeID string   `mapstructure:"id"`
	Pos    Position `mapstructure:"position"`
	Ports  []Port   `mapstructure:"exits"`
}

func (b *Base) ID() string         { return b.NodeID }
func (b *Base) Position() Position { return b.Pos }
func (b *Base) actionNode()        {}

func (b *Base) Exits() []Port {
	return copyPorts(b.Ports)
}

func (b *Base) cloneBase(id string) Base {
	return Base{NodeID: id, Pos: b.Pos, Ports: copyPorts(b.Ports)}
}

func copyPorts(ports []Port) []Port {
	if ports == nil {
		return nil
	}
	out := make([]Port, len(ports))
	for i, p := range ports {
		out[i] = Port{Name: p.Name}
		if p.Targets != nil {
			out[i].Targets = append([]string(nil), p.Targets...)
		}
	}
	return out
}

// RemapPorts rewrites every port target found in table and leaves the rest untouched.
func RemapPorts(ports []Port, table map[string]string) []Port {
	out := copyPorts(ports)
	for i := range out {
		for j, t := range out[i].Targets {
			if nt, ok := table[t]; ok {
				out[i].Targets[j] = nt
			}
		}
	}
	return out
}

func singlePort(name string) []Port {
	return []Port{{Name: name}}
}

type mutableBase interface {
	setPorts([]Port)
	setPosition(Position)
}

func (b *Base) setPorts(ports []Port)   { b.Ports = copyPorts(ports) }
func (b *Base) setPosition(p Position) { b.Pos = p }

// ReplaceExits overwrites the ports of a detached node. Trees derive their
// exits from their exit nodes and ignore the call.
func ReplaceExits(n ActionNode, ports []Port) {
	if m, ok := n.(mutableBase); ok {
		m.setPorts(ports)
	}
}

// Relocate moves a detached node.
func Relocate(n ActionNode, p Position) {
	if m, ok := n.(mutableBase); ok {
		m.setPosition(p)
	}
}
