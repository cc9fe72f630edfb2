package undo

// Label classifies an operation for display and merge eligibility.
type Label string

const (
	LabelNone       Label = "none"
	LabelGrouped    Label = "grouped"
	LabelCreateNode Label = "create_node"
	LabelDeleteNode Label = "delete_node"
	LabelMoveNode   Label = "move_node"
	LabelCreateEdge Label = "create_edge"
	LabelDeleteEdge Label = "delete_edge"
)

// AutoMergeable reports whether consecutive operations with this label may
// collapse into one undo step.
func (l Label) AutoMergeable() bool {
	return l == LabelMoveNode || l == LabelCreateNode
}

// Labels returns the full taxonomy.
func Labels() []Label {
	return []Label{LabelNone, LabelGrouped, LabelCreateNode, LabelDeleteNode, LabelMoveNode, LabelCreateEdge, LabelDeleteEdge}
}
