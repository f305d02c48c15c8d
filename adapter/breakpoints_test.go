package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/fansqz/go-debug-adapter/adapter/disassembly"
	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/debugger"
	"github.com/fansqz/go-debug-adapter/debugger/mock_debugger"
	"github.com/google/go-dap"
	"github.com/maxatome/go-testdeep/td"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *testHelper) setBreakpoints(file string, lines ...int) []dap.Breakpoint {
	var requested []dap.SourceBreakpoint
	for _, line := range lines {
		requested = append(requested, dap.SourceBreakpoint{Line: line})
	}
	return h.setSourceBreakpoints(file, requested)
}

func (h *testHelper) setSourceBreakpoints(file string, requested []dap.SourceBreakpoint) []dap.Breakpoint {
	seq := h.send(&dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: requested,
		},
	})
	return h.expectResponse("setBreakpoints", seq).(*dap.SetBreakpointsResponse).Body.Breakpoints
}

func (h *testHelper) configure() {
	h.initialize()
	h.send(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: json.RawMessage(`{"program": "/src/a.out"}`)})
	h.waitForEvent("initialized")
}

func TestSetBreakpointsIdempotent(t *testing.T) {
	h := newTestHelper(t)
	h.engine.Target.SourceFiles = []string{"/src/main.c"}
	h.configure()

	first := h.setBreakpoints("/src/main.c", 3, 5)
	require.Len(t, first, 2)
	assert.Equal(t, 2, h.engine.Target.Created)

	second := h.setBreakpoints("/src/main.c", 3, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, h.engine.Target.Created)
	assert.Equal(t, 0, h.engine.Target.Deleted)
}

func TestSetBreakpointsDiff(t *testing.T) {
	h := newTestHelper(t)
	h.engine.Target.SourceFiles = []string{"/src/main.c"}
	h.configure()

	first := h.setBreakpoints("/src/main.c", 1, 2)
	second := h.setBreakpoints("/src/main.c", 2, 3)

	require.Len(t, second, 2)
	assert.Equal(t, 2, second[0].Line)
	assert.Equal(t, 3, second[1].Line)
	assert.Equal(t, first[1].Id, second[0].Id)
	assert.NotEqual(t, first[0].Id, second[1].Id)
	assert.Equal(t, 3, h.engine.Target.Created)
	assert.Equal(t, 1, h.engine.Target.Deleted)
	assert.Nil(t, h.engine.Target.FindBreakpoint(first[0].Id))
	assert.Equal(t, []int{2, 3}, h.session.breakpoints.SourceLines("/src/main.c"))
}

func TestSetBreakpointsValidatesFullPath(t *testing.T) {
	h := newTestHelper(t)
	h.engine.Target.SourceFiles = []string{"/other/main.c", "/src/main.c"}
	h.configure()

	result := h.setBreakpoints("/src/main.c", 4)
	td.Cmp(t, result, []dap.Breakpoint{{
		Id:       1,
		Verified: true,
		Line:     4,
		Source:   &dap.Source{Name: "main.c", Path: "/src/main.c"},
	}})

	bp := h.engine.Target.Breakpoint(result[0].Id)
	locations := bp.Locations()
	require.Len(t, locations, 2)
	// 其他目录的同名文件被禁用而不是删除
	assert.False(t, locations[0].IsEnabled())
	assert.True(t, locations[1].IsEnabled())
}

func TestSetBreakpointsWithoutLocations(t *testing.T) {
	h := newTestHelper(t)
	h.configure()

	result := h.setBreakpoints("/src/util.c", 10)
	require.Len(t, result, 1)
	assert.False(t, result[0].Verified)
	assert.NotZero(t, result[0].Id)
	assert.Equal(t, 10, result[0].Line)
}

func TestBreakpointOptions(t *testing.T) {
	h := newTestHelper(t)
	h.engine.Target.SourceFiles = []string{"/src/main.c"}
	h.configure()

	result := h.setSourceBreakpoints("/src/main.c", []dap.SourceBreakpoint{
		{Line: 8, Condition: "i > 3", HitCondition: ">= 5"},
		{Line: 9, HitCondition: "often"},
	})
	bp := h.engine.Target.Breakpoint(result[0].Id)
	assert.Equal(t, "i > 3", bp.Condition)
	assert.Equal(t, 4, bp.IgnoreCount)
	assert.Empty(t, result[0].Message)
	assert.Contains(t, result[1].Message, "Invalid hit condition")
}

func TestFunctionAndExceptionBreakpoints(t *testing.T) {
	h := newTestHelper(t)
	h.engine.Target.Symbols = []*debugger.Symbol{{Name: "compute", Start: 0x4000, End: 0x4040}}
	h.configure()

	seq := h.send(&dap.SetFunctionBreakpointsRequest{
		Request:   newRequest("setFunctionBreakpoints"),
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: []dap.FunctionBreakpoint{{Name: "compute"}, {Name: "missing"}}},
	})
	fns := h.expectResponse("setFunctionBreakpoints", seq).(*dap.SetFunctionBreakpointsResponse).Body.Breakpoints
	require.Len(t, fns, 2)
	assert.True(t, fns[0].Verified)
	assert.False(t, fns[1].Verified)

	seq = h.send(&dap.SetFunctionBreakpointsRequest{
		Request:   newRequest("setFunctionBreakpoints"),
		Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: []dap.FunctionBreakpoint{{Name: "compute"}}},
	})
	again := h.expectResponse("setFunctionBreakpoints", seq).(*dap.SetFunctionBreakpointsResponse).Body.Breakpoints
	assert.Equal(t, fns[0].Id, again[0].Id)
	assert.Equal(t, 1, h.engine.Target.Deleted)

	seq = h.send(&dap.SetExceptionBreakpointsRequest{
		Request:   newRequest("setExceptionBreakpoints"),
		Arguments: dap.SetExceptionBreakpointsArguments{Filters: []string{"cpp_throw"}},
	})
	exceptions := h.expectResponse("setExceptionBreakpoints", seq).(*dap.SetExceptionBreakpointsResponse).Body.Breakpoints
	require.Len(t, exceptions, 1)
	info, ok := h.session.breakpoints.Get(exceptions[0].Id)
	require.True(t, ok)
	assert.Equal(t, "cpp_throw", info.Filter)

	seq = h.send(&dap.SetExceptionBreakpointsRequest{
		Request:   newRequest("setExceptionBreakpoints"),
		Arguments: dap.SetExceptionBreakpointsArguments{Filters: []string{}},
	})
	h.expectResponse("setExceptionBreakpoints", seq)
	_, ok = h.session.breakpoints.Get(exceptions[0].Id)
	assert.False(t, ok)
}

func TestBreakpointChangedEvent(t *testing.T) {
	h := newTestHelper(t)
	h.configure()

	result := h.setBreakpoints("/src/lib.c", 12)
	assert.False(t, result[0].Verified)

	bp := h.engine.Target.Breakpoint(result[0].Id)
	bp.AddLocation("/src/lib.c", 12)
	h.session.HandleDebugEvent(debugger.NewBreakpointChangedEvent(bp.ID()))

	event := h.waitForEvent("breakpoint").(*dap.BreakpointEvent)
	assert.Equal(t, "changed", event.Body.Reason)
	assert.True(t, event.Body.Breakpoint.Verified)
	assert.Equal(t, result[0].Id, event.Body.Breakpoint.Id)
}

func TestSourceBreakpointsThroughSourceMap(t *testing.T) {
	table := NewBreakpointTable(logrus.WithField("test", t.Name()))
	target := mock_debugger.NewMockTarget()
	target.SourceFiles = []string{"/build/src/main.c"}
	local := "/home/user/project"
	sm, err := source_map.New([]source_map.Rule{{Pattern: "/build/*", Replacement: &local}})
	require.NoError(t, err)

	result := table.SetSourceBreakpoints(target, sm, filepath.Join(local, "src/main.c"), []dap.SourceBreakpoint{{Line: 7}})
	require.Len(t, result, 1)
	assert.True(t, result[0].Verified)
	assert.Equal(t, "/home/user/project/src/main.c", result[0].Source.Path)
}

func TestDeleteFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	table := NewBreakpointTable(logrus.NewEntry(logger))
	target := mock_debugger.NewMockTarget()
	target.SourceFiles = []string{"/src/main.c"}
	sm, err := source_map.New(nil)
	require.NoError(t, err)

	result := table.SetSourceBreakpoints(target, sm, "/src/main.c", []dap.SourceBreakpoint{{Line: 3}})
	require.Len(t, result, 1)
	target.DeleteErr = errors.New("no breakpoint")
	table.SetSourceBreakpoints(target, sm, "/src/main.c", nil)

	assert.Empty(t, table.SourceLines("/src/main.c"))
	_, ok := table.Get(result[0].Id)
	assert.False(t, ok)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "no breakpoint")
}

func TestAddressBreakpointsDoNotCollideWithFiles(t *testing.T) {
	table := NewBreakpointTable(logrus.WithField("test", t.Name()))
	target := mock_debugger.NewMockTarget()
	target.Symbols = []*debugger.Symbol{{Name: "main", Start: 0x1000, End: 0x1040}}
	sm, err := source_map.New(nil)
	require.NoError(t, err)
	r, err := disassembly.NewIndex(target).FromAddress(0x1010)
	require.NoError(t, err)

	result := table.SetAddressBreakpoints(target, r, []dap.SourceBreakpoint{{Line: 2}})
	require.Len(t, result, 1)
	require.True(t, result[0].Verified)

	// 与区间句柄同名的源文件
	table.SetSourceBreakpoints(target, sm, fmt.Sprintf("@%d", r.Handle), nil)
	assert.Zero(t, target.Deleted)
	assert.NotNil(t, target.Breakpoint(result[0].Id))

	again := table.SetAddressBreakpoints(target, r, []dap.SourceBreakpoint{{Line: 2}})
	assert.Equal(t, result[0].Id, again[0].Id)
	assert.Equal(t, 1, target.Created)
}
