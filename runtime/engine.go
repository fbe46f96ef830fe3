package runtime

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/store"
	"github.com/warriorguo/flowcanvas/types"
)

var (
	_ types.Engine = &engine{}
)

func NewEngine(store store.Store, opts *types.EngineOptions) types.Engine {
	return newEngine(store, opts)
}

type engine struct {
	opts     *types.EngineOptions
	store    store.Store
	relay    types.Relay
	notifier types.Notifier

	graph *graphStore

	credMu      sync.Mutex
	credentials map[string]string

	runMu   sync.Mutex
	running bool
	active  *runToken
	last    *runToken

	pool   *workerpool.WorkerPool
	closed bool
}

func newEngine(store store.Store, opts *types.EngineOptions) *engine {
	if opts == nil {
		opts = types.NewEngineOptions()
	}
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	e := &engine{
		opts:        opts,
		store:       store,
		relay:       opts.Relay,
		notifier:    opts.Notifier,
		graph:       newGraphStore(),
		credentials: make(map[string]string),
		pool:        workerpool.New(1),
	}
	if e.notifier == nil {
		e.notifier = types.LogNotifier{}
	}
	return e
}

func (e *engine) AddNode(node *types.Node) (*types.Node, error) {
	n, err := e.graph.addNode(node)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return n.Clone(), nil
}

func (e *engine) UpdateNodeData(nodeID string, patch types.Data) {
	e.graph.updateNodeData(nodeID, patch)
}

func (e *engine) DeleteNode(nodeID string) {
	e.graph.deleteNode(nodeID)
}

func (e *engine) Connect(edge *types.Edge) (*types.Edge, error) {
	c, err := e.graph.connect(edge)
	if err != nil {
		return nil, errors.Trace(err)
	}
	copied := *c
	return &copied, nil
}

func (e *engine) DeleteEdge(edgeID string) {
	e.graph.deleteEdge(edgeID)
}

func (e *engine) SelectNode(nodeID string) {
	e.graph.selectNode(nodeID)
}

func (e *engine) Selected() string {
	return e.graph.selectedNode()
}

func (e *engine) Node(nodeID string) (*types.Node, bool) {
	n := e.graph.node(nodeID)
	if n == nil {
		return nil, false
	}
	return n.Clone(), true
}

func (e *engine) Nodes() []*types.Node {
	nodes, _ := e.graph.snapshot()
	cloned := make([]*types.Node, 0, len(nodes))
	for _, n := range nodes {
		cloned = append(cloned, n.Clone())
	}
	return cloned
}

func (e *engine) Edges() []*types.Edge {
	_, edges := e.graph.snapshot()
	cloned := make([]*types.Edge, 0, len(edges))
	for _, edge := range edges {
		c := *edge
		cloned = append(cloned, &c)
	}
	return cloned
}

func (e *engine) AddListener(listener types.NodeListener) {
	e.graph.addListener(listener)
}

func (e *engine) TriggerStart(nodeID string) error {
	n := e.graph.node(nodeID)
	if n == nil {
		return errors.NotFoundf("node id: %s", nodeID)
	}
	if n.Kind != types.KindStart {
		return errors.BadRequestf("node %s is a %s node", nodeID, n.Kind)
	}
	if n.Data.Output() == "" {
		e.notifier.Notify(types.NoticeWarning, nodeID, "start node has no input text")
		return types.NewValidationErrorf("start node %s has no input text", nodeID)
	}
	e.graph.updateNodeData(nodeID, types.Data{types.KeyStatus: types.Success, types.KeyMessage: ""})
	return nil
}

func (e *engine) RunNode(ctx context.Context, nodeID string) error {
	if e.isClosed() {
		return errors.MethodNotAllowedf("engine closed")
	}
	if e.graph.node(nodeID) == nil {
		return errors.NotFoundf("node id: %s", nodeID)
	}

	e.cancelActive()
	tok := e.issueToken(false)
	log.Debugf("run %s: node %s", tok.id, nodeID)

	return e.dispatch(ctx, tok, func(tok *runToken) {
		e.execute(tok, nodeID)
	})
}

func (e *engine) RunFlow(ctx context.Context) error {
	if e.isClosed() {
		return errors.MethodNotAllowedf("engine closed")
	}

	starts := e.graph.startNodes()
	switch len(starts) {
	case 0:
		e.notifier.Notify(types.NoticeWarning, "", "no start node in the flow")
		return types.NewValidationErrorf("no start node in the flow")
	case 1:
	default:
		e.notifier.Notify(types.NoticeWarning, "", "the flow has more than one start node")
		return types.NewValidationErrorf("%d start nodes in the flow", len(starts))
	}

	e.cancelActive()
	e.graph.patchAll(types.Data{types.KeyStatus: types.Idle})

	tok := e.issueToken(true)
	startID := starts[0].ID
	log.Debugf("run %s: flow from %s", tok.id, startID)

	return e.dispatch(ctx, tok, func(tok *runToken) {
		e.traverse(tok, startID)
	})
}

func (e *engine) StopFlow() {
	e.cancelActive()
}

func (e *engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *engine) Wait(ctx context.Context) error {
	e.runMu.Lock()
	tok := e.last
	e.runMu.Unlock()

	if tok == nil {
		return nil
	}
	select {
	case <-tok.done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func (e *engine) SetCredential(provider, apiKey string) {
	e.credMu.Lock()
	defer e.credMu.Unlock()

	if apiKey == "" {
		delete(e.credentials, provider)
		return
	}
	e.credentials[provider] = apiKey
}

func (e *engine) credential(provider string) string {
	e.credMu.Lock()
	defer e.credMu.Unlock()
	return e.credentials[provider]
}

func (e *engine) RenderDOT() (string, error) {
	nodes, edges := e.graph.snapshot()
	return newCanvasRenderer().generateDOT(nodes, edges, e.graph.selectedNode())
}

func (e *engine) isClosed() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.closed
}

func (e *engine) Close(ctx context.Context) error {
	e.runMu.Lock()
	if e.closed {
		e.runMu.Unlock()
		return nil
	}
	e.closed = true
	e.runMu.Unlock()

	e.cancelActive()
	e.pool.StopWait()

	if closer, ok := e.store.(interface{ Close() error }); ok {
		return errors.Annotatef(closer.Close(), "close store")
	}
	return nil
}
