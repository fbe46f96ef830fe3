package runtime

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/flowcanvas/types"
)

func TestGraphAddNode(t *testing.T) {
	g := newGraphStore()

	n, err := g.addNode(&types.Node{ID: "s", Kind: types.KindStart})
	assert.Nil(t, err)
	assert.Equal(t, "s", n.ID)
	assert.NotNil(t, n.Data)

	_, err = g.addNode(&types.Node{ID: "s", Kind: types.KindLLM})
	assert.True(t, errors.Is(err, errors.AlreadyExists))

	_, err = g.addNode(&types.Node{ID: "x", Kind: "database"})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = g.addNode(nil)
	assert.NotNil(t, err)

	generated, err := g.addNode(&types.Node{Kind: types.KindEnd})
	assert.Nil(t, err)
	assert.NotEmpty(t, generated.ID)

	nodes, _ := g.snapshot()
	assert.Len(t, nodes, 2)
	assert.Equal(t, "s", nodes[0].ID)
}

func TestGraphUpdateNodeDataMerges(t *testing.T) {
	g := newGraphStore()
	g.addNode(&types.Node{ID: "l", Kind: types.KindLLM, Data: types.Data{types.KeyPrompt: "p", types.KeyModel: "m"}})

	before := g.node("l")
	changes := make([]types.NodeChange, 0)
	g.addListener(func(c types.NodeChange) { changes = append(changes, c) })

	assert.True(t, g.updateNodeData("l", types.Data{types.KeyOutput: "o"}))
	assert.False(t, g.updateNodeData("missing", types.Data{types.KeyOutput: "o"}))

	after := g.node("l")
	assert.Equal(t, "p", after.Data.Prompt())
	assert.Equal(t, "m", after.Data.Model())
	assert.Equal(t, "o", after.Data.Output())

	// snapshots taken earlier are not touched by later patches
	assert.Equal(t, "", before.Data.Output())

	assert.Len(t, changes, 1)
	assert.Equal(t, "l", changes[0].NodeID)
	assert.Equal(t, "o", changes[0].Data.Output())
	assert.Equal(t, "p", changes[0].Data.Prompt())
}

func TestGraphDeleteNode(t *testing.T) {
	g := newGraphStore()
	g.addNode(&types.Node{ID: "a", Kind: types.KindStart})
	g.addNode(&types.Node{ID: "b", Kind: types.KindLLM})
	g.addNode(&types.Node{ID: "c", Kind: types.KindEnd})
	_, err := g.connect(&types.Edge{Source: "a", Target: "b"})
	assert.Nil(t, err)
	_, err = g.connect(&types.Edge{Source: "b", Target: "c"})
	assert.Nil(t, err)
	g.selectNode("b")

	assert.True(t, g.deleteNode("b"))
	assert.False(t, g.deleteNode("b"))

	nodes, edges := g.snapshot()
	assert.Len(t, nodes, 2)
	assert.Empty(t, edges)
	assert.Equal(t, "", g.selectedNode())
}

func TestGraphConnect(t *testing.T) {
	g := newGraphStore()
	g.addNode(&types.Node{ID: "s", Kind: types.KindStart})
	g.addNode(&types.Node{ID: "l1", Kind: types.KindLLM})
	g.addNode(&types.Node{ID: "l2", Kind: types.KindLLM})
	g.addNode(&types.Node{ID: "c", Kind: types.KindCondition})
	g.addNode(&types.Node{ID: "e", Kind: types.KindEnd})

	e1, err := g.connect(&types.Edge{Source: "s", Target: "l1"})
	assert.Nil(t, err)
	assert.NotEmpty(t, e1.ID)

	again, err := g.connect(&types.Edge{Source: "s", Target: "l1"})
	assert.Nil(t, err)
	assert.Equal(t, e1.ID, again.ID)

	_, err = g.connect(&types.Edge{Source: "s", Target: "ghost"})
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = g.connect(&types.Edge{Source: "ghost", Target: "s"})
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = g.connect(&types.Edge{Source: "l1", Target: "l2"})
	assert.Nil(t, err)
	_, err = g.connect(&types.Edge{Source: "l2", Target: "l1"})
	assert.True(t, errors.Is(err, errors.Forbidden))
	_, err = g.connect(&types.Edge{Source: "l2", Target: "l2"})
	assert.True(t, errors.Is(err, errors.Forbidden))

	_, err = g.connect(&types.Edge{Source: "e", Target: "l1"})
	assert.True(t, errors.Is(err, errors.BadRequest))

	_, err = g.connect(&types.Edge{Source: "l2", Target: "c"})
	assert.Nil(t, err)
	_, err = g.connect(&types.Edge{Source: "c", Target: "e"})
	assert.True(t, errors.Is(err, errors.BadRequest))
	_, err = g.connect(&types.Edge{Source: "c", Target: "e", SourceHandle: types.HandleTrue})
	assert.Nil(t, err)

	_, edges := g.snapshot()
	assert.Len(t, edges, 4)
}

func TestGraphDeleteEdgeAndSelect(t *testing.T) {
	g := newGraphStore()
	g.addNode(&types.Node{ID: "s", Kind: types.KindStart})
	g.addNode(&types.Node{ID: "e", Kind: types.KindEnd})
	edge, _ := g.connect(&types.Edge{ID: "e1", Source: "s", Target: "e"})
	assert.Equal(t, "e1", edge.ID)

	assert.True(t, g.deleteEdge("e1"))
	assert.False(t, g.deleteEdge("e1"))

	g.selectNode("s")
	assert.Equal(t, "s", g.selectedNode())
	g.selectNode("nope")
	assert.Equal(t, "", g.selectedNode())
}

func TestGraphReplaceDropsInvalid(t *testing.T) {
	g := newGraphStore()
	g.addNode(&types.Node{ID: "old", Kind: types.KindStart})

	g.replace([]*types.Node{
		{ID: "s", Kind: types.KindStart, Data: types.Data{types.KeyOutput: "hi"}},
		{ID: "bad", Kind: "widget"},
		{ID: "s", Kind: types.KindEnd},
		{ID: "e", Kind: types.KindEnd},
	}, []*types.Edge{
		{ID: "ok", Source: "s", Target: "e"},
		{ID: "dangling", Source: "s", Target: "bad"},
	})

	nodes, edges := g.snapshot()
	assert.Len(t, nodes, 2)
	assert.Equal(t, types.KindStart, nodes[0].Kind)
	assert.Len(t, edges, 1)
	assert.Equal(t, "ok", edges[0].ID)
	assert.Nil(t, g.node("old"))
}

func TestGraphStartNodes(t *testing.T) {
	g := newGraphStore()
	assert.Empty(t, g.startNodes())

	g.addNode(&types.Node{ID: "l", Kind: types.KindLLM})
	g.addNode(&types.Node{ID: "s", Kind: types.KindStart})
	starts := g.startNodes()
	assert.Len(t, starts, 1)
	assert.Equal(t, "s", starts[0].ID)
}
