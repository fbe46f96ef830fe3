package runtime

import (
	"github.com/warriorguo/flowcanvas/types"
)

const emptyUpstreamOutput = "upstream node has no output yet"

// Start nodes carry user input set outside of any run.
func executeStart(ec *ExecutionContext) {}

func executeEnd(ec *ExecutionContext) {
	if ec.Upstream == nil {
		ec.notice(types.NoticeWarning, "end node is not connected")
		return
	}

	output := ec.Upstream.Data.Output()
	if output == "" {
		output = emptyUpstreamOutput
	}
	patch := types.Data{
		types.KeyOutput:  output,
		types.KeyIsImage: types.IsImageReference(output),
		types.KeyStatus:  types.Success,
		types.KeyMessage: "",
	}
	if fn, exists := ec.Upstream.Data.GetString(types.KeyFunction); exists {
		patch[types.KeyFunction] = fn
	}
	ec.Mutate(patch)
	ec.HaltFlow()
}
