package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_Steps(t *testing.T) {
	cmd := NewApplyCommand(testRootOptions("text"))
	out, err := execute(cmd, nil, "--text", "hello", "--steps",
		`[{"type":"insert","position":5,"content":" world"},{"type":"delete","position":0,"length":6}]`)
	require.NoError(t, err)
	assertGolden(t, "apply_steps", out)
}

func TestApply_JSON(t *testing.T) {
	cmd := NewApplyCommand(testRootOptions("json"))
	out, err := execute(cmd, nil, "--text", "hello", `{"type":"insert","position":5,"content":"!"}`)
	require.NoError(t, err)
	assertGolden(t, "apply_json", out)
}

func TestApply_MultipleArgumentsInOrder(t *testing.T) {
	cmd := NewApplyCommand(testRootOptions("text"))
	out, err := execute(cmd, nil,
		`{"type":"insert","position":0,"content":"héllo"}`,
		`{"type":"delete","position":1,"length":1}`,
		`{"type":"insert","position":1,"content":"e"}`,
		`{"type":"retain","length":5}`,
	)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestApply_InvalidOperation(t *testing.T) {
	cmd := NewApplyCommand(testRootOptions("text"))
	out, err := execute(cmd, nil, `{"type":"insert","position":0,"content":"a"}`, `not json`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "invalid operation in argument 2")
}

func TestApply_RequiresOperations(t *testing.T) {
	cmd := NewApplyCommand(testRootOptions("text"))
	_, err := execute(cmd, nil, "--text", "hello")
	require.Error(t, err)
}
