package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warriorguo/flowcanvas/types"
)

func newCanvasRenderer() *canvasRenderer {
	return &canvasRenderer{&strings.Builder{}}
}

type canvasRenderer struct {
	sb *strings.Builder
}

func (d *canvasRenderer) generateDOT(nodes []*types.Node, edges []*types.Edge, selected string) (string, error) {
	kinds := make(map[string]types.NodeKind, len(nodes))

	d.write("digraph D {")
	for _, n := range nodes {
		kinds[n.ID] = n.Kind
		d.drawNode(n, n.ID == selected)
	}
	for _, e := range edges {
		d.drawEdge(e, kinds[e.Source])
	}
	d.write("}")
	return d.sb.String(), nil
}

func shapeOf(kind types.NodeKind) string {
	switch kind {
	case types.KindStart:
		return "ellipse"
	case types.KindCondition:
		return "diamond"
	case types.KindEnd:
		return "doublecircle"
	default:
		return "record"
	}
}

func colorOf(status types.StatusType) string {
	switch status {
	case types.Running:
		return "yellow"
	case types.Failed:
		return "red"
	case types.Success:
		return "green"
	default:
		return "white"
	}
}

func packToComment(data types.Data) string {
	s, _ := json.Marshal(data)
	return formatNL(addSlashes(string(s)))
}

func labelOf(n *types.Node) string {
	switch n.Kind {
	case types.KindLLM:
		if model := n.Data.Model(); model != "" {
			return fmt.Sprintf("%s (%s)", n.ID, model)
		}
	case types.KindCondition:
		return fmt.Sprintf("%s: %s %q", n.ID, n.Data.Operator(), n.Data.TargetValue())
	}
	return n.ID
}

func (d *canvasRenderer) drawNode(n *types.Node, selected bool) {
	attr := fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", colorOf(n.Data.Status()), packToComment(n.Data))
	if selected {
		attr += " penwidth=\"3\""
	}
	d.write("%s [label=%s shape=\"%s\"%s]", idString(n.ID), quoteString(labelOf(n)), shapeOf(n.Kind), attr)
}

func (d *canvasRenderer) drawEdge(e *types.Edge, sourceKind types.NodeKind) {
	if sourceKind == types.KindCondition {
		label := "False"
		if e.SourceHandle == types.HandleTrue {
			label = "True"
		}
		d.write("%s -> %s [label=\"%s\"]", idString(e.Source), idString(e.Target), label)
		return
	}
	d.write("%s -> %s", idString(e.Source), idString(e.Target))
}

func (d *canvasRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-", ":"}

// idString turns a node id into a bare DOT identifier. Generated ids may
// start with a digit, hence the prefix.
func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return "n_" + s
}
