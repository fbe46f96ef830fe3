package types

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/flowcanvas/utils"
)

// Keys of the node data record.
const (
	KeyStatus       = "status"
	KeyOutput       = "output"
	KeyMessage      = "message"
	KeyModel        = "model"
	KeyFunction     = "function"
	KeyPrompt       = "prompt"
	KeyOperator     = "operator"
	KeyTargetValue  = "targetValue"
	KeyResult       = "result"
	KeySelectedPath = "selectedPath"
	KeyIsImage      = "isImage"
)

// TransientKeys are execution-only fields that never reach the store.
var TransientKeys = []string{KeyStatus, KeyMessage}

type Data map[string]any

func (d *Data) Get(key string) (any, bool) {
	v, exists := (*d)[key]
	return v, exists
}

func (d *Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d *Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d *Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d *Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

func (d *Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.New("marshal failed"))
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

// Clone returns a shallow copy. A nil Data clones to an empty one.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return utils.CloneMap(d)
}

// Merge returns a new Data holding d overlaid with patch. Neither input is modified.
func (d Data) Merge(patch Data) Data {
	merged := d.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// Without returns a copy of d with the given keys removed.
func (d Data) Without(keys ...string) Data {
	c := d.Clone()
	for _, k := range keys {
		delete(c, k)
	}
	return c
}

func (d Data) Status() StatusType {
	s, _ := d.GetString(KeyStatus)
	if s == "" {
		return Idle
	}
	return StatusType(s)
}

func (d Data) Output() string {
	s, _ := d.GetString(KeyOutput)
	return s
}

func (d Data) Message() string {
	s, _ := d.GetString(KeyMessage)
	return s
}

func (d Data) Prompt() string {
	s, _ := d.GetString(KeyPrompt)
	return s
}

func (d Data) Model() string {
	s, _ := d.GetString(KeyModel)
	return s
}

func (d Data) Function() Function {
	s, _ := d.GetString(KeyFunction)
	if s == "" {
		return FuncChat
	}
	return Function(s)
}

func (d Data) Operator() Operator {
	s, _ := d.GetString(KeyOperator)
	if s == "" {
		return OpContains
	}
	return Operator(s)
}

func (d Data) TargetValue() string {
	s, _ := d.GetString(KeyTargetValue)
	return s
}

func (d Data) SelectedPath() string {
	s, _ := d.GetString(KeySelectedPath)
	return s
}

func (d Data) Result() bool {
	b, _ := d.GetBool(KeyResult)
	return b
}
