/*
Package domain contains the core models of the thicket authoring graph.

It defines the action node variants, the nestable Tree container, the patch
vocabulary used to describe every mutation, and the persisted snapshot format.
This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - ActionNode: a typed unit of authored behaviour (trigger, mutation, dialogue...).
  - Tree: a node that contains other nodes; children are resolved through a Lookup.
  - Port: an exit socket holding ordered target identifiers. Edges are derived from ports.
  - Patch: a forward mutation description; Invert returns its exact counterpart.
  - TreeSnapshot: the independent persisted form of one tree.
*/
package domain
