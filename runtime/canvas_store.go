package runtime

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
	"github.com/warriorguo/flowcanvas/utils"
)

const (
	CanvasPath = "/canvas/"
	CanvasKey  = "state"
)

// canvasState is what Save writes. Execution-only data never reaches it.
type canvasState struct {
	Nodes       []*types.Node     `json:"nodes"`
	Edges       []*types.Edge     `json:"edges"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

func (e *engine) exportState() *canvasState {
	nodes, edges := e.graph.snapshot()
	state := &canvasState{
		Nodes: make([]*types.Node, 0, len(nodes)),
		Edges: edges,
	}
	for _, n := range nodes {
		c := n.Clone()
		c.Data = c.Data.Without(types.TransientKeys...)
		state.Nodes = append(state.Nodes, c)
	}

	e.credMu.Lock()
	if len(e.credentials) > 0 {
		state.Credentials = make(map[string]string, len(e.credentials))
		for k, v := range e.credentials {
			state.Credentials[k] = v
		}
	}
	e.credMu.Unlock()
	return state
}

func (e *engine) Save(ctx context.Context) error {
	if e.store == nil {
		return errors.NotSupportedf("no store configured")
	}
	b, err := utils.Serialize(e.exportState())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(e.store.Set(ctx, CanvasPath, CanvasKey, b), "save canvas")
}

/**
 * Load replaces the canvas with the stored one. Any run is stopped first and
 * every node comes back idle.
 */
func (e *engine) Load(ctx context.Context) error {
	if e.store == nil {
		return errors.NotSupportedf("no store configured")
	}
	b, err := e.store.Get(ctx, CanvasPath, CanvasKey)
	if err != nil {
		return errors.Annotatef(err, "load canvas")
	}
	if b == nil {
		return errors.NotFoundf("canvas")
	}

	state := &canvasState{}
	if err := utils.Unserialize(b, state); err != nil {
		log.Errorf("unserialize canvas %s failed: %v", string(b), err)
		return errors.Trace(err)
	}

	e.StopFlow()
	for _, n := range state.Nodes {
		if n == nil {
			continue
		}
		n.Data = n.Data.Without(types.TransientKeys...)
		n.Data[types.KeyStatus] = types.Idle
	}
	e.graph.replace(state.Nodes, state.Edges)

	e.credMu.Lock()
	e.credentials = make(map[string]string, len(state.Credentials))
	for k, v := range state.Credentials {
		e.credentials[k] = v
	}
	e.credMu.Unlock()
	return nil
}
