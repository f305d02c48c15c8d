package gdb_debugger

import (
	"testing"

	. "github.com/fansqz/go-debug-adapter/debugger"
	gdb2 "github.com/fansqz/go-debug-adapter/debugger/gdb_debugger/gdb"
	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, line string) map[string]any {
	record, err := gdb2.ParseRecord(line)
	require.NoError(t, err)
	return record
}

func TestParseBreakpoint(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,bkpt={number="2",type="breakpoint",disp="keep",enabled="y",addr="0x0000000000001151",`+
		`func="main",file="main.c",fullname="/home/user/src/main.c",line="7",thread-groups=["i1"],times="0",`+
		`original-location="main.c:7"}`)
	payload, ok := util.GetPayloadFromMap(m)
	require.True(t, ok)
	output, ok := util.ParseBreakpoint(util.GetInterfaceFromMap(payload, "bkpt"))
	require.True(t, ok)
	assert.Equal(t, 2, output.number)
	require.Len(t, output.locations, 1)
	td.Cmp(t, output.locations[0], &locationOutput{
		id:      "2.1",
		address: 0x1151,
		line:    &LineEntry{Directory: "/home/user/src", File: "main.c", Line: 7},
		enabled: true,
	})
}

func TestParseBreakpointMultipleLocations(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `=breakpoint-modified,bkpt={number="3",type="breakpoint",disp="keep",enabled="y",addr="<MULTIPLE>",times="0",`+
		`locations=[{number="3.1",enabled="y",addr="0x1200",func="f",file="a.h",fullname="/src/a.h",line="3"},`+
		`{number="3.2",enabled="n",addr="0x7ffff7a00010",func="f",file="a.h",fullname="/src/a.h",line="3"}]}`)
	output, ok := util.ParseBreakpoint(util.GetInterfaceFromMap(m["payload"], "bkpt"))
	require.True(t, ok)
	require.Len(t, output.locations, 2)
	assert.Equal(t, "3.2", output.locations[1].id)
	assert.False(t, output.locations[1].enabled)
	assert.Equal(t, uint64(0x7ffff7a00010), output.locations[1].address)
}

func TestParsePendingBreakpoint(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,bkpt={number="4",type="breakpoint",disp="keep",enabled="y",addr="<PENDING>",pending="lib.c:10",times="0"}`)
	payload, _ := util.GetPayloadFromMap(m)
	output, ok := util.ParseBreakpoint(util.GetInterfaceFromMap(payload, "bkpt"))
	require.True(t, ok)
	assert.Empty(t, output.locations)

	_, ok = util.ParseBreakpoint(nil)
	assert.False(t, ok)
}

func TestParseStoppedEventOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	stopped := func(line string) *stoppedOutput {
		return util.ParseStoppedEventOutput(parse(t, line)["payload"])
	}

	out := stopped(`*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x1149",func="main",args=[],file="main.c",fullname="/src/main.c",line="5"},thread-id="1",stopped-threads="all",core="3"`)
	assert.Equal(t, StopReasonBreakpoint, out.reason)
	assert.Equal(t, 1, out.breakpointID)
	assert.Equal(t, 1, out.threadID)

	out = stopped(`*stopped,reason="end-stepping-range",frame={addr="0x1150"},thread-id="2",stopped-threads="all"`)
	assert.Equal(t, StopReasonTrace, out.reason)
	assert.Equal(t, 2, out.threadID)

	out = stopped(`*stopped,reason="function-finished",frame={addr="0x1150"},thread-id="1"`)
	assert.Equal(t, StopReasonPlanComplete, out.reason)

	out = stopped(`*stopped,reason="signal-received",signal-name="SIGSEGV",signal-meaning="Segmentation fault",thread-id="1"`)
	assert.Equal(t, StopReasonSignal, out.reason)
	assert.Equal(t, "SIGSEGV", out.description)

	out = stopped(`*stopped,reason="exited",exit-code="012"`)
	assert.True(t, out.exited)
	assert.Equal(t, 10, out.exitCode)

	out = stopped(`*stopped,reason="exited-normally"`)
	assert.True(t, out.exited)
	assert.Zero(t, out.exitCode)

	out = stopped(`*stopped,frame={addr="0x7ffff7e5a1b4"},thread-id="1",stopped-threads="all"`)
	assert.Equal(t, StopReasonSignal, out.reason)
	assert.Equal(t, "SIGINT", out.description)
}

func TestParseStackTraceOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,stack=[frame={level="0",addr="0x0000555555555149",func="add",file="main.c",fullname="/src/main.c",line="3",arch="i386:x86-64"},`+
		`frame={level="1",addr="0x00007ffff7dbbd90",func="__libc_start_call_main",from="/lib/x86_64-linux-gnu/libc.so.6",arch="i386:x86-64"}]`)
	frames := util.ParseStackTraceOutput(m)
	require.Len(t, frames, 2)
	td.Cmp(t, frames[0], &frameOutput{
		level:    0,
		function: "add",
		pc:       0x555555555149,
		line:     &LineEntry{Directory: "/src", File: "main.c", Line: 3},
	})
	assert.Nil(t, frames[1].line)
	assert.Equal(t, 1, frames[1].level)
}

func TestParseThreadsOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,threads=[{id="2",target-id="Thread 0x7ffff7d86640 (LWP 101)",name="worker",frame={level="0",addr="0x1"},state="stopped"},`+
		`{id="1",target-id="Thread 0x7ffff7d87740 (LWP 100)",frame={level="0",addr="0x2"},state="stopped"}],current-thread-id="1"`)
	threads, current := util.ParseThreadsOutput(m)
	assert.Equal(t, 1, current)
	require.Len(t, threads, 2)
	assert.Equal(t, "worker", threads[0].name)
	assert.Equal(t, "Thread 0x7ffff7d87740 (LWP 100)", threads[1].name)
}

func TestParseVariables(t *testing.T) {
	util := NewGDBOutputUtil()
	v, ok := util.ParseVarCreate(parse(t, `^done,name="var1",numchild="2",value="{...}",type="struct point",thread-id="1",has_more="0"`))
	require.True(t, ok)
	td.Cmp(t, v, &varOutput{name: "var1", value: "{...}", typeName: "struct point", numChildren: 2})

	children := util.ParseVariablesOutput(parse(t, `^done,numchild="2",children=[child={name="var1.x",exp="x",numchild="0",value="1",type="int",thread-id="1"},`+
		`child={name="var1.y",exp="y",numchild="0",value="2",type="int",thread-id="1"}],has_more="0"`))
	require.Len(t, children, 2)
	assert.Equal(t, "x", children[0].exp)
	assert.Equal(t, "2", children[1].value)

	args, locals := util.ParseFrameVariablesOutput(parse(t, `^done,variables=[{name="argc",arg="1"},{name="argv",arg="1"},{name="p"}]`))
	assert.Equal(t, []string{"argc", "argv"}, args)
	assert.Equal(t, []string{"p"}, locals)

	_, ok = util.ParseVarCreate(parse(t, `^error,msg="-var-create: unable to create variable object"`))
	assert.False(t, ok)
}

func TestParseGlobalVariableOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,symbols={debug=[{filename="main.c",fullname="/src/main.c",symbols=[{line="2",name="counter",type="int",description="static int counter;"}]},`+
		`{filename="util.c",fullname="/src/util.c",symbols=[{line="1",name="other",type="int",description="int other;"}]}]}`)
	assert.Equal(t, []string{"counter"}, util.ParseGlobalVariableOutput(m, "/src/main.c"))
	assert.Equal(t, []string{"counter", "other"}, util.ParseGlobalVariableOutput(m, ""))
}

func TestParseRegistersOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	names := util.ParseRegisterNamesOutput(parse(t, `^done,register-names=["rax","rbx","","rip"]`))
	assert.Equal(t, []string{"rax", "rbx", "", "rip"}, names)
	registers := util.ParseRegistersOutput(names, parse(t, `^done,register-values=[{number="0",value="0x1c"},{number="2",value="0x0"},{number="3",value="0x555555555149"}]`))
	require.Len(t, registers, 2)
	assert.Equal(t, "rax", registers[0].name)
	assert.Equal(t, "rip", registers[1].name)
	assert.Equal(t, "0x555555555149", registers[1].value)
}

func TestParseInstructions(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,asm_insns=[{address="0x0000000000001149",func-name="main",offset="0",opcodes="f3 0f 1e fa",inst="endbr64"},`+
		`{address="0x000000000000114d",func-name="main",offset="4",opcodes="55",inst="push   %rbp"},`+
		`{address="0x000000000000114e",func-name="main",offset="5",opcodes="48 8b 05 bb 2e 00 00",inst="mov    0x2ebb(%rip),%rax        # 0x4010 <counter>"}]`)
	instructions := util.ParseInstructionsOutput(m)
	require.Len(t, instructions, 3)
	td.Cmp(t, instructions[2], &Instruction{
		Address:  0x114e,
		Bytes:    []byte{0x48, 0x8b, 0x05, 0xbb, 0x2e, 0x00, 0x00},
		Mnemonic: "mov",
		Operands: "0x2ebb(%rip),%rax",
		Comment:  "0x4010 <counter>",
	})
	assert.Equal(t, &Symbol{Name: "main", Start: 0x1149, End: 0x1155}, util.ParseSymbolOutput(m))
}

func TestParseSourceLineOutput(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `^done,asm_insns=[src_and_asm_line={line="5",file="main.c",fullname="/src/main.c",`+
		`line_asm_insn=[{address="0x1149",func-name="main",offset="0",inst="endbr64"}]}]`)
	assert.Equal(t, &LineEntry{Directory: "/src", File: "main.c", Line: 5}, util.ParseSourceLineOutput(m))
	require.Len(t, util.ParseInstructionsOutput(m), 1)
}

func TestParseLibraryLoaded(t *testing.T) {
	util := NewGDBOutputUtil()
	m := parse(t, `=library-loaded,id="/lib/x86_64-linux-gnu/libc.so.6",target-name="/lib/x86_64-linux-gnu/libc.so.6",`+
		`host-name="/lib/x86_64-linux-gnu/libc.so.6",symbols-loaded="0",thread-group="i1"`)
	assert.Equal(t, &Module{
		ID:   "/lib/x86_64-linux-gnu/libc.so.6",
		Name: "libc.so.6",
		Path: "/lib/x86_64-linux-gnu/libc.so.6",
	}, util.ParseLibraryLoaded(m["payload"]))
}

func TestValueHelpers(t *testing.T) {
	util := NewGDBOutputUtil()
	value, summary := util.SplitValue(`0x555555556004 "hello"`)
	assert.Equal(t, "0x555555556004", value)
	assert.Equal(t, `"hello"`, summary)
	value, summary = util.SplitValue("42")
	assert.Equal(t, "42", value)
	assert.Empty(t, summary)

	assert.True(t, util.IsNullPoint("0x0"))
	assert.False(t, util.IsNullPoint("0x10"))
	assert.False(t, util.IsNullPoint("{...}"))

	assert.Equal(t, "id", util.ConvertVariableName("var1.localItem.id"))
	assert.Equal(t, "0", util.ConvertVariableName("var2.0"))
	assert.Equal(t, "plain", util.ConvertVariableName("plain"))

	assert.Equal(t, 8, util.ParseExitCode("010"))
	assert.Equal(t, 0, util.ParseExitCode(""))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "plain", shellQuote("plain"))
	assert.Equal(t, "'two words'", shellQuote("two words"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
	assert.Equal(t, "''", shellQuote(""))
}
