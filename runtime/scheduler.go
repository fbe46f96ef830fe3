package runtime

import (
	"context"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
)

// runToken identifies one run. A run is active only while it is the engine's
// current token and its context is not done.
type runToken struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	flow   bool
}

func (e *engine) issueToken(flow bool) *runToken {
	ctx, cancel := context.WithCancel(e.opts.Ctx)
	tok := &runToken{
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		flow:   flow,
	}

	e.runMu.Lock()
	e.active = tok
	e.last = tok
	e.running = true
	e.runMu.Unlock()
	return tok
}

// cancelActive cancels the in-flight run, if any, and clears the run state
// unconditionally.
func (e *engine) cancelActive() {
	e.runMu.Lock()
	tok := e.active
	e.active = nil
	e.running = false
	e.runMu.Unlock()

	if tok != nil {
		log.Debugf("cancel run %s", tok.id)
		tok.cancel()
	}
}

func (e *engine) isActive(tok *runToken) bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running && e.active == tok && tok.ctx.Err() == nil
}

// finishRun clears the run state when tok is still the active run.
func (e *engine) finishRun(tok *runToken) {
	e.runMu.Lock()
	if e.active == tok {
		e.active = nil
		e.running = false
	}
	e.runMu.Unlock()
	tok.cancel()
}

// haltRun ends a flow from inside, remaining frontier entries no-op.
func (e *engine) haltRun(tok *runToken) {
	log.Debugf("halt run %s", tok.id)
	e.finishRun(tok)
}

/**
 * dispatch submits a run onto the single worker. With RunAsync disabled the
 * caller blocks until the run is over or its own ctx ends, in which case the
 * run is stopped first.
 */
func (e *engine) dispatch(ctx context.Context, tok *runToken, task func(tok *runToken)) error {
	e.pool.Submit(func() {
		defer close(tok.done)
		defer e.finishRun(tok)
		task(tok)
	})

	if e.opts.RunAsync {
		return nil
	}
	select {
	case <-tok.done:
		return nil
	case <-ctx.Done():
		e.StopFlow()
		<-tok.done
		return errors.Trace(ctx.Err())
	}
}

// execute runs a single node against the current graph under tok.
func (e *engine) execute(tok *runToken, nodeID string) {
	node := e.graph.node(nodeID)
	if node == nil {
		log.Debugf("run %s skips deleted node %s", tok.id, nodeID)
		return
	}
	ex, exists := executorFor(node.Kind)
	if !exists {
		e.notifier.Notify(types.NoticeError, nodeID, "no executor for kind "+string(node.Kind))
		return
	}

	nodes, edges := e.graph.snapshot()
	ec := &ExecutionContext{
		Context:  tok.ctx,
		RunID:    tok.id,
		NodeID:   nodeID,
		Node:     node,
		Nodes:    nodes,
		Edges:    edges,
		Upstream: e.graph.resolve(nodeID),
		Mutate: func(patch types.Data) {
			e.graph.updateNodeData(nodeID, patch)
		},
		HaltFlow: func() {
			if tok.flow {
				e.haltRun(tok)
			}
		},
		Notifier:   e.notifier,
		Relay:      e.relay,
		Options:    e.opts,
		credential: e.credential,
	}
	runExecutor(ex, ec)
}

func (e *engine) stagger(tok *runToken) bool {
	if e.opts.StaggerDelay <= 0 {
		return tok.ctx.Err() == nil
	}
	timer := time.NewTimer(e.opts.StaggerDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-tok.ctx.Done():
		return false
	}
}

/**
 * traverse walks the flow breadth first from startID. Every node but the
 * first waits the stagger delay, and nothing runs once the run is no longer
 * the active one.
 */
func (e *engine) traverse(tok *runToken, startID string) {
	var frontier deque.Deque[string]
	frontier.PushBack(startID)

	steps := 0
	first := true
	for frontier.Len() > 0 {
		nodeID := frontier.PopFront()

		if !first && !e.stagger(tok) {
			return
		}
		first = false

		if !e.isActive(tok) {
			return
		}
		if steps++; steps > e.opts.MaxFlowSteps {
			e.notifier.Notify(types.NoticeError, nodeID, "flow exceeded the maximum number of steps")
			return
		}

		log.Debugf("run %s step %d: %s", tok.id, steps, nodeID)
		e.execute(tok, nodeID)

		if !e.isActive(tok) {
			return
		}
		for _, target := range e.nextTargets(nodeID) {
			frontier.PushBack(target)
		}
	}
}

// nextTargets lists the downstream nodes to enqueue after nodeID ran.
// A condition only follows the edges of its selected path, and only when
// it succeeded.
func (e *engine) nextTargets(nodeID string) []string {
	node := e.graph.node(nodeID)
	if node == nil {
		return nil
	}

	targets := make([]string, 0)
	for _, edge := range e.graph.outgoing(nodeID) {
		if node.Kind == types.KindCondition {
			if node.Data.Status() != types.Success || edge.SourceHandle != node.Data.SelectedPath() {
				continue
			}
		}
		targets = append(targets, edge.Target)
	}
	return targets
}
