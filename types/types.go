package types

// NodeKind is the closed set of node types a canvas may hold.
type NodeKind string

const (
	KindStart     NodeKind = "start"
	KindLLM       NodeKind = "llm"
	KindCondition NodeKind = "condition"
	KindEnd       NodeKind = "end"
)

func (k NodeKind) String() string {
	return string(k)
}

func (k NodeKind) Valid() bool {
	switch k {
	case KindStart, KindLLM, KindCondition, KindEnd:
		return true
	}
	return false
}

type StatusType string

const (
	Idle    StatusType = "idle"
	Running StatusType = "running"
	Success StatusType = "success"
	Failed  StatusType = "error"
)

// String makes statuses stored in Data readable through cast.
func (s StatusType) String() string {
	return string(s)
}

// Function selects which relay endpoint an LLM node talks to.
// FuncVision is never stored by users, it is picked when the upstream
// output is an image reference.
type Function string

const (
	FuncChat   Function = "chat"
	FuncImage  Function = "image"
	FuncVision Function = "vision"
)

func (f Function) String() string {
	return string(f)
}

type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

func (o Operator) String() string {
	return string(o)
}

// Condition output ports, matched against Edge.SourceHandle.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

const (
	StoppedMessage = "stopped by user"
)
