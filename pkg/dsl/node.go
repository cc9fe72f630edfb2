package dsl

import "github.com/aretw0/thicket/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node domain.ActionNode
}

// At places the node on the canvas.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	domain.Relocate(n.node, domain.Position{X: x, Y: y})
	return n
}

// Go connects the first port to targets.
func (n *NodeBuilder) Go(targets ...string) *NodeBuilder {
	ports := n.node.Exits()
	if len(ports) == 0 {
		ports = []domain.Port{{Name: "next"}}
	}
	ports[0].Targets = append(ports[0].Targets, targets...)
	domain.ReplaceExits(n.node, ports)
	return n
}

// Port connects the named port to targets, creating the port if needed.
func (n *NodeBuilder) Port(name string, targets ...string) *NodeBuilder {
	ports := n.node.Exits()
	for i := range ports {
		if ports[i].Name == name {
			ports[i].Targets = append(ports[i].Targets, targets...)
			domain.ReplaceExits(n.node, ports)
			return n
		}
	}
	ports = append(ports, domain.Port{Name: name, Targets: targets})
	domain.ReplaceExits(n.node, ports)
	return n
}

// Terminal removes every edge leaving the node, keeping its ports.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	ports := n.node.Exits()
	for i := range ports {
		ports[i].Targets = nil
	}
	domain.ReplaceExits(n.node, ports)
	return n
}

// Build returns the underlying node.
func (n *NodeBuilder) Build() domain.ActionNode {
	return n.node
}
