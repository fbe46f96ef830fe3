package runtime

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
)

/**
 * ExecutionContext is everything an executor may see or touch while running
 * one node. The embedded context is the cancellation token of the run.
 */
type ExecutionContext struct {
	context.Context

	RunID    string
	NodeID   string
	Node     *types.Node
	Nodes    []*types.Node
	Edges    []*types.Edge
	Upstream *types.Node

	// Mutate shallow-merges patch into this node's data.
	Mutate   func(patch types.Data)
	HaltFlow func()

	Notifier types.Notifier
	Relay    types.Relay
	Options  *types.EngineOptions

	credential func(provider string) string
}

func (ec *ExecutionContext) notice(level types.NoticeLevel, format string, args ...interface{}) {
	ec.Notifier.Notify(level, ec.NodeID, fmt.Sprintf(format, args...))
}

// routingHeaders identify the provider and credential for model.
func (ec *ExecutionContext) routingHeaders(model string) map[string]string {
	provider := types.ProviderForModel(model)
	headers := map[string]string{types.HeaderProvider: provider}
	if ec.credential != nil {
		if key := ec.credential(provider); key != "" {
			headers[types.HeaderAPIKey] = key
		}
	}
	return headers
}

/**
 * finish turns the outcome of a network call into node state.
 * Errors never leave the executor; a stop is an outcome of its own.
 */
func (ec *ExecutionContext) finish(err error, patch types.Data) {
	switch {
	case err == nil:
		ec.Mutate(types.Data{types.KeyStatus: types.Success, types.KeyMessage: ""}.Merge(patch))

	case types.IsStopped(err):
		log.Debugf("run %s node %s stopped", ec.RunID, ec.NodeID)
		ec.Mutate(types.Data{types.KeyStatus: types.Idle, types.KeyMessage: types.StoppedMessage})

	default:
		log.Warnf("run %s node %s failed: %v", ec.RunID, ec.NodeID, err)
		ec.Mutate(types.Data{types.KeyStatus: types.Failed, types.KeyMessage: err.Error()})
		ec.Notifier.RequestCredentials(types.ProviderForModel(ec.Node.Data.Model()), err.Error())
	}
}

type Executor interface {
	Execute(ec *ExecutionContext)
}

type ExecutorFunc func(ec *ExecutionContext)

func (f ExecutorFunc) Execute(ec *ExecutionContext) {
	f(ec)
}

var executors = map[types.NodeKind]Executor{
	types.KindStart:     ExecutorFunc(executeStart),
	types.KindLLM:       ExecutorFunc(executeLLM),
	types.KindCondition: ExecutorFunc(executeCondition),
	types.KindEnd:       ExecutorFunc(executeEnd),
}

func executorFor(kind types.NodeKind) (Executor, bool) {
	ex, exists := executors[kind]
	return ex, exists
}

// runExecutor converts a panic inside a handler into an error state on the node.
func runExecutor(ex Executor, ec *ExecutionContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic on node %s: %v", ec.NodeID, r)
			ec.Mutate(types.Data{types.KeyStatus: types.Failed, types.KeyMessage: fmt.Sprintf("panic: %v", r)})
		}
	}()
	ex.Execute(ec)
}
