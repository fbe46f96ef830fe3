package types_test

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warriorguo/flowcanvas/types"
)

type testStruct struct {
	Name   string
	Age    int
	IsMale bool
}

func TestData(t *testing.T) {
	data := &types.Data{}

	data.Set("teststruct1", testStruct{"hello", 4, false})

	hello := &testStruct{}
	assert.Nil(t, data.GetStruct("teststruct1", hello))
	assert.Equal(t, "hello", hello.Name)
	assert.Equal(t, 4, hello.Age)
	assert.NotNil(t, data.GetStruct("missing", hello))

	data.Set("s1", 1)
	data.Set("s2", "2")
	data.Set("s3", math.Pi)
	data.Set("s4", true)

	_, exists := data.Get("s0")
	assert.False(t, exists)

	s, exists := data.GetString("s1")
	assert.True(t, exists)
	assert.Equal(t, "1", s)
	s, _ = data.GetString("s3")
	assert.Equal(t, strconv.FormatFloat(math.Pi, 'f', -1, 64), s)
	b, _ := data.GetBool("s4")
	assert.True(t, b)
	i, _ := data.GetInt("s2")
	assert.Equal(t, 2, i)
}

func TestDataMergeLeavesInputsUntouched(t *testing.T) {
	base := types.Data{types.KeyPrompt: "echo", types.KeyStatus: "idle"}
	patch := types.Data{types.KeyStatus: "running", types.KeyOutput: ""}

	merged := base.Merge(patch)

	assert.Equal(t, "running", merged[types.KeyStatus])
	assert.Equal(t, "echo", merged[types.KeyPrompt])
	assert.Equal(t, "idle", base[types.KeyStatus])
	_, exists := base[types.KeyOutput]
	assert.False(t, exists)
}

func TestDataAccessorsDefaults(t *testing.T) {
	var d types.Data

	assert.Equal(t, types.Idle, d.Status())
	assert.Equal(t, types.FuncChat, d.Function())
	assert.Equal(t, types.OpContains, d.Operator())
	assert.Equal(t, "", d.Output())
	assert.False(t, d.Result())

	d = types.Data{types.KeyResult: "true", types.KeyStatus: "success"}
	assert.True(t, d.Result())
	assert.Equal(t, types.Success, d.Status())
}

func TestDataWithout(t *testing.T) {
	d := types.Data{types.KeyStatus: "success", types.KeyMessage: "ok", types.KeyOutput: "x"}

	stripped := d.Without(types.TransientKeys...)

	assert.Equal(t, types.Data{types.KeyOutput: "x"}, stripped)
	assert.Len(t, d, 3)
}
