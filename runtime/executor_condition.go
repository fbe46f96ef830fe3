package runtime

import (
	"strings"

	"github.com/warriorguo/flowcanvas/types"
)

func evaluateCondition(op types.Operator, value, target string) bool {
	switch op {
	case types.OpContains:
		return strings.Contains(value, target)
	case types.OpNotContains:
		return !strings.Contains(value, target)
	}
	return false
}

func executeCondition(ec *ExecutionContext) {
	if ec.Upstream == nil {
		ec.notice(types.NoticeWarning, "condition node is not connected")
		return
	}

	input := ec.Upstream.Data.Output()
	result := evaluateCondition(ec.Node.Data.Operator(), input, ec.Node.Data.TargetValue())
	path := types.HandleFalse
	if result {
		path = types.HandleTrue
	}

	ec.Mutate(types.Data{
		types.KeyResult:       result,
		types.KeySelectedPath: path,
		types.KeyOutput:       input,
		types.KeyStatus:       types.Success,
		types.KeyMessage:      "",
	})
}
