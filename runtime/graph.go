package runtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
	"github.com/warriorguo/flowcanvas/utils"
)

/**
 * graphStore owns the canvas nodes and edges.
 * Stored *types.Node values are never modified in place: a patch replaces
 * the node with a merged copy, so a snapshot handed out earlier stays valid.
 */
type graphStore struct {
	mu sync.RWMutex

	order    []string
	nodes    map[string]*types.Node
	edges    []*types.Edge
	selected string

	listenerMu sync.Mutex
	listeners  []types.NodeListener
}

func newGraphStore() *graphStore {
	return &graphStore{nodes: make(map[string]*types.Node)}
}

func (g *graphStore) addListener(l types.NodeListener) {
	g.listenerMu.Lock()
	defer g.listenerMu.Unlock()
	g.listeners = append(g.listeners, l)
}

func (g *graphStore) emit(changes ...types.NodeChange) {
	g.listenerMu.Lock()
	listeners := utils.CloneSlice(g.listeners)
	g.listenerMu.Unlock()

	for _, change := range changes {
		for _, l := range listeners {
			l(change)
		}
	}
}

func (g *graphStore) addNode(node *types.Node) (*types.Node, error) {
	if node == nil {
		return nil, errors.BadRequestf("node is nil")
	}
	if !node.Kind.Valid() {
		return nil, errors.NotValidf("node kind %q", node.Kind)
	}
	n := node.Clone()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID]; exists {
		return nil, errors.AlreadyExistsf("node id: %s", n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return n, nil
}

func (g *graphStore) updateNodeData(nodeID string, patch types.Data) bool {
	g.mu.Lock()
	n, exists := g.nodes[nodeID]
	if !exists {
		g.mu.Unlock()
		return false
	}
	updated := *n
	updated.Data = n.Data.Merge(patch)
	g.nodes[nodeID] = &updated
	g.mu.Unlock()

	g.emit(types.NodeChange{NodeID: nodeID, Patch: patch.Clone(), Data: updated.Data})
	return true
}

// patchAll applies the same patch to every node, in canvas order.
func (g *graphStore) patchAll(patch types.Data) {
	g.mu.Lock()
	changes := make([]types.NodeChange, 0, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		updated := *n
		updated.Data = n.Data.Merge(patch)
		g.nodes[id] = &updated
		changes = append(changes, types.NodeChange{NodeID: id, Patch: patch.Clone(), Data: updated.Data})
	}
	g.mu.Unlock()

	g.emit(changes...)
}

func (g *graphStore) deleteNode(nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[nodeID]; !exists {
		return false
	}
	delete(g.nodes, nodeID)
	for i, id := range g.order {
		if id == nodeID {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}

	edges := make([]*types.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if e.Source == nodeID || e.Target == nodeID {
			continue
		}
		edges = append(edges, e)
	}
	g.edges = edges

	if g.selected == nodeID {
		g.selected = ""
	}
	return true
}

func (g *graphStore) connect(edge *types.Edge) (*types.Edge, error) {
	if edge == nil {
		return nil, errors.BadRequestf("edge is nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	source, exists := g.nodes[edge.Source]
	if !exists {
		return nil, errors.NotFoundf("source: %s", edge.Source)
	}
	if _, exists := g.nodes[edge.Target]; !exists {
		return nil, errors.NotFoundf("target: %s", edge.Target)
	}
	if source.Kind == types.KindEnd {
		return nil, errors.BadRequestf("end node %s has no output", edge.Source)
	}
	if source.Kind == types.KindCondition &&
		edge.SourceHandle != types.HandleTrue && edge.SourceHandle != types.HandleFalse {
		return nil, errors.BadRequestf("condition %s needs a true/false handle, got %q", edge.Source, edge.SourceHandle)
	}

	for _, e := range g.edges {
		if e.Source == edge.Source && e.Target == edge.Target && e.SourceHandle == edge.SourceHandle {
			return e, nil
		}
	}
	if edge.Source == edge.Target || g.reachable(edge.Target, edge.Source) {
		return nil, errors.Forbiddenf("%s -> %s closes a cycle", edge.Source, edge.Target)
	}

	e := *edge
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	g.edges = append(g.edges, &e)
	return &e, nil
}

// reachable reports whether to can be reached from from. Caller holds the lock.
func (g *graphStore) reachable(from, to string) bool {
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, e := range g.edges {
			if e.Source == cur && !visited[e.Target] {
				visited[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

func (g *graphStore) deleteEdge(edgeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.edges {
		if e.ID == edgeID {
			g.edges = append(g.edges[:i:i], g.edges[i+1:]...)
			return true
		}
	}
	return false
}

func (g *graphStore) selectNode(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[nodeID]; !exists {
		nodeID = ""
	}
	g.selected = nodeID
}

func (g *graphStore) selectedNode() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selected
}

func (g *graphStore) node(nodeID string) *types.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[nodeID]
}

func (g *graphStore) snapshot() ([]*types.Node, []*types.Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*types.Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes, utils.CloneSlice(g.edges)
}

func (g *graphStore) outgoing(nodeID string) []*types.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*types.Edge, 0)
	for _, e := range g.edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

func (g *graphStore) startNodes() []*types.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	starts := make([]*types.Node, 0, 1)
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind == types.KindStart {
			starts = append(starts, n)
		}
	}
	return starts
}

/**
 * replace swaps the whole canvas, used when loading from the store.
 * Nodes with unknown kinds and edges referencing missing nodes are dropped.
 */
func (g *graphStore) replace(nodes []*types.Node, edges []*types.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*types.Node, len(nodes))
	g.order = make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" || !n.Kind.Valid() {
			log.Warnf("drop invalid node on load: %+v", n)
			continue
		}
		if _, exists := g.nodes[n.ID]; exists {
			log.Warnf("drop duplicate node on load: %s", n.ID)
			continue
		}
		g.nodes[n.ID] = n.Clone()
		g.order = append(g.order, n.ID)
	}

	g.edges = make([]*types.Edge, 0, len(edges))
	for _, e := range edges {
		if e == nil {
			continue
		}
		_, srcExists := g.nodes[e.Source]
		_, dstExists := g.nodes[e.Target]
		if !srcExists || !dstExists {
			log.Warnf("drop dangling edge on load: %s", e.ID)
			continue
		}
		c := *e
		g.edges = append(g.edges, &c)
	}
	g.selected = ""
}
