package runtime

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
)

const promptTemplate = "Upstream input:\n%s\n\nInstruction:\n%s"

// composePrompt prefixes the node prompt with the upstream output when there is one.
func composePrompt(upstream *types.Node, prompt string) string {
	if upstream == nil || upstream.Data.Output() == "" {
		return prompt
	}
	return fmt.Sprintf(promptTemplate, upstream.Data.Output(), prompt)
}

// selectFunction picks vision whenever the upstream output is an image
// reference, whatever function the node was configured with.
func selectFunction(node, upstream *types.Node) types.Function {
	if upstream != nil && types.IsImageReference(upstream.Data.Output()) {
		return types.FuncVision
	}
	if node.Data.Function() == types.FuncImage {
		return types.FuncImage
	}
	return types.FuncChat
}

func executeLLM(ec *ExecutionContext) {
	data := ec.Node.Data
	fn := selectFunction(ec.Node, ec.Upstream)

	prompt := composePrompt(ec.Upstream, data.Prompt())
	if strings.TrimSpace(prompt) == "" {
		ec.notice(types.NoticeWarning, "node has no prompt and no upstream output, nothing to run")
		return
	}
	if ec.Err() != nil {
		return
	}

	log.Debugf("run %s node %s calls %s", ec.RunID, ec.NodeID, fn)
	ec.Mutate(types.Data{types.KeyStatus: types.Running, types.KeyOutput: "", types.KeyMessage: ""})

	switch fn {
	case types.FuncImage:
		url, err := ec.Relay.GenerateImage(ec, ec.Options.ImageEndpoint, &types.ImageRequest{
			Model:  data.Model(),
			Prompt: prompt,
		}, ec.routingHeaders(data.Model()))
		ec.finish(errors.Trace(err), types.Data{types.KeyOutput: url})

	case types.FuncVision:
		req := &types.ChatRequest{
			Model:    data.Model(),
			Prompt:   data.Prompt(),
			ImageURL: ec.Upstream.Data.Output(),
			Messages: []types.ChatMessage{{Role: "user", Content: data.Prompt()}},
		}
		ec.finish(streamInto(ec, ec.Options.VisionEndpoint, req), nil)

	default:
		req := &types.ChatRequest{
			Model:    data.Model(),
			Prompt:   prompt,
			Messages: []types.ChatMessage{{Role: "user", Content: prompt}},
		}
		ec.finish(streamInto(ec, ec.Options.ChatEndpoint, req), nil)
	}
}

// streamInto accumulates fragments into the node output, one patch per fragment.
func streamInto(ec *ExecutionContext, endpoint string, req *types.ChatRequest) error {
	var sb strings.Builder
	err := ec.Relay.Stream(ec, endpoint, req, ec.routingHeaders(req.Model), func(fragment string) {
		sb.WriteString(fragment)
		ec.Mutate(types.Data{types.KeyOutput: sb.String()})
	})
	return errors.Trace(err)
}
