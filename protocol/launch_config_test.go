package protocol

import (
	"encoding/json"
	"testing"

	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/constants"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func TestParseLaunchConfigKeepsSourceMapOrder(t *testing.T) {
	raw := json.RawMessage(`{
		"program": "/tmp/a.out",
		"args": ["-v"],
		"env": {"A": "1"},
		"sourceMap": {"/z/*": "/local/z", "/internal/*": null, "/a/*": "/local/a"}
	}`)
	config, err := ParseLaunchConfig(raw)
	require.NoError(t, err)

	td.Cmp(t, config.SourceMap, []source_map.Rule{
		{Pattern: "/z/*", Replacement: strPtr("/local/z")},
		{Pattern: "/internal/*", Replacement: nil},
		{Pattern: "/a/*", Replacement: strPtr("/local/a")},
	})
	assert.Equal(t, []string{"-v"}, config.Args)
	assert.Equal(t, constants.ExpressionSimple, config.Expressions)
	assert.Equal(t, constants.ShowDisassemblyAuto, config.ShowDisassembly)
}

func TestParseLaunchConfigRequiresProgram(t *testing.T) {
	_, err := ParseLaunchConfig(json.RawMessage(`{"args": []}`))
	assert.Equal(t, e.KindUser, e.KindOf(err))

	_, err = ParseLaunchConfig(json.RawMessage(`{"program": "a", "showDisassembly": "sometimes"}`))
	assert.Equal(t, e.KindUser, e.KindOf(err))
}

func TestParseAttachConfigPID(t *testing.T) {
	config, err := ParseAttachConfig(json.RawMessage(`{"pid": 4242}`))
	require.NoError(t, err)
	assert.Equal(t, 4242, config.PID)

	config, err = ParseAttachConfig(json.RawMessage(`{"pid": "4243", "program": "/bin/x"}`))
	require.NoError(t, err)
	assert.Equal(t, 4243, config.PID)

	_, err = ParseAttachConfig(json.RawMessage(`{"pid": "abc"}`))
	assert.Equal(t, e.KindUser, e.KindOf(err))

	_, err = ParseAttachConfig(json.RawMessage(`{}`))
	assert.Error(t, err)
}
