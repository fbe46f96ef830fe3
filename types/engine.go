package types

import "context"

// Engine is the surface exposed to the canvas UI.
type Engine interface {
	/**
	 * AddNode rejects unknown kinds and duplicate ids.
	 * An empty id is generated.
	 */
	AddNode(node *Node) (*Node, error)
	// UpdateNodeData shallow-merges patch into the node data, no-op for unknown ids.
	UpdateNodeData(nodeID string, patch Data)
	// DeleteNode also removes incident edges and clears a selection pointing at it.
	DeleteNode(nodeID string)
	/**
	 * Connect rejects edges that reference missing nodes or close a cycle.
	 * Connecting an identical edge twice returns the existing one.
	 */
	Connect(edge *Edge) (*Edge, error)
	DeleteEdge(edgeID string)
	SelectNode(nodeID string)
	Selected() string

	Node(nodeID string) (*Node, bool)
	Nodes() []*Node
	Edges() []*Edge
	AddListener(listener NodeListener)

	// TriggerStart marks a start node with seed text as succeeded, for
	// exercising downstream nodes one by one.
	TriggerStart(nodeID string) error
	RunNode(ctx context.Context, nodeID string) error
	RunFlow(ctx context.Context) error
	StopFlow()
	IsRunning() bool
	// Wait blocks until the latest dispatched run is over.
	Wait(ctx context.Context) error

	SetCredential(provider, apiKey string)

	Save(ctx context.Context) error
	Load(ctx context.Context) error
	/**
	 * RenderDOT returns the canvas as a DOT digraph, nodes colored by status.
	 */
	RenderDOT() (string, error)

	/**
	 * Close stops any run and releases the worker and the store.
	 */
	Close(ctx context.Context) error
}
