package types

import "strings"

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	Data     Data     `json:"data"`
}

// Clone copies the node and its data map.
func (n *Node) Clone() *Node {
	c := *n
	c.Data = n.Data.Clone()
	return &c
}

type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	// SourceHandle tags the output port of a condition node ("true"/"false").
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeChange is delivered to listeners after each data patch.
type NodeChange struct {
	NodeID string
	Patch  Data
	Data   Data
}

type NodeListener func(change NodeChange)

const (
	// ImageRefMaxLength bounds the length of a string accepted as an image
	// reference when it carries no image path marker.
	ImageRefMaxLength = 2000
)

var imageRefSchemes = []string{"http://", "https://", "data:image/"}

// IsImageReference is a heuristic, not a content-type check: a string is an
// image reference when it starts with a known scheme and either mentions an
// images path or is reasonably short.
func IsImageReference(v string) bool {
	hasScheme := false
	for _, scheme := range imageRefSchemes {
		if strings.HasPrefix(v, scheme) {
			hasScheme = true
			break
		}
	}
	if !hasScheme {
		return false
	}
	return strings.Contains(v, "images") || len(v) < ImageRefMaxLength
}
