package loam

import "github.com/aretw0/thicket/pkg/domain"

// TreeMetadata is the frontmatter of a tree document. The document body is
// kept as the tree description.
type TreeMetadata struct {
	ID         string              `json:"id" mapstructure:"id"`
	Name       string              `json:"name" mapstructure:"name"`
	Type       string              `json:"type" mapstructure:"type"`
	Parent     string              `json:"parent,omitempty" mapstructure:"parent"`
	Position   domain.Position     `json:"position" mapstructure:"position"`
	Complexity int                 `json:"complexity,omitempty" mapstructure:"complexity"`
	Order      []string            `json:"order" mapstructure:"order"`
	Nodes      []domain.NodeRecord `json:"nodes" mapstructure:"nodes"`
	Meta       map[string]string   `json:"meta,omitempty" mapstructure:"meta"`
}
