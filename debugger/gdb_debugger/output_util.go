package gdb_debugger

import (
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	. "github.com/fansqz/go-debug-adapter/debugger"
)

// GDBOutputUtil 处理gdb输出的工具，把MI记录转换为引擎对象
type GDBOutputUtil struct{}

func NewGDBOutputUtil() *GDBOutputUtil {
	return &GDBOutputUtil{}
}

// breakpointOutput 断点记录
type breakpointOutput struct {
	number    int
	locations []*locationOutput
}

type locationOutput struct {
	id      string
	address uint64
	line    *LineEntry
	enabled bool
}

// ParseBreakpoint 解析断点记录，bkpt为break-insert结果或breakpoint-modified通知中的bkpt
//
//	bkpt->{
//		  number -> 1
//		  type -> breakpoint
//		  enabled -> y
//		  addr -> 0x0000000000000806 或 <MULTIPLE> 或 <PENDING>
//		  func -> main
//		  fullname -> /var/code/main.c
//		  line -> 43
//		  locations -> [{number -> 1.1, enabled -> y, addr -> ..., fullname -> ..., line -> ...}]
//		}
func (g *GDBOutputUtil) ParseBreakpoint(bkpt any) (*breakpointOutput, bool) {
	number, err := strconv.Atoi(g.GetStringFromMap(bkpt, "number"))
	if err != nil {
		return nil, false
	}
	answer := &breakpointOutput{number: number}
	if locations := g.GetListFromMap(bkpt, "locations"); len(locations) > 0 {
		for _, l := range locations {
			answer.locations = append(answer.locations, g.parseLocation(l, g.GetStringFromMap(l, "number")))
		}
		return answer, true
	}
	// 单个位置时位置信息在断点本身上，pending断点没有地址
	if addr := g.GetStringFromMap(bkpt, "addr"); addr != "" && !strings.HasPrefix(addr, "<") {
		answer.locations = append(answer.locations, g.parseLocation(bkpt, fmt.Sprintf("%d.1", number)))
	}
	return answer, true
}

func (g *GDBOutputUtil) parseLocation(m any, id string) *locationOutput {
	location := &locationOutput{
		id:      id,
		address: g.ParseAddress(g.GetStringFromMap(m, "addr")),
		enabled: g.GetStringFromMap(m, "enabled") != "n",
	}
	location.line = g.parseLineEntry(m)
	return location
}

// parseLineEntry 没有行号时返回nil
func (g *GDBOutputUtil) parseLineEntry(m any) *LineEntry {
	line := g.GetIntFromMap(m, "line")
	if line == 0 {
		return nil
	}
	fullname := g.GetStringFromMap(m, "fullname")
	if fullname == "" {
		fullname = g.GetStringFromMap(m, "file")
	}
	if fullname == "" {
		return nil
	}
	dir, file := path.Split(fullname)
	return &LineEntry{Directory: strings.TrimSuffix(dir, "/"), File: file, Line: line}
}

// stoppedOutput *stopped记录
type stoppedOutput struct {
	reason       StopReason
	description  string
	threadID     int
	breakpointID int
	// exited 进程已经退出，exitCode为退出码
	exited   bool
	exitCode int
	// signaled 进程因信号退出
	signaled bool
}

// ParseStoppedEventOutput 解析*stopped的payload
//
//	payload -> {
//	  reason -> breakpoint-hit
//	  bkptno -> 1
//	  frame -> {...}
//	  thread-id -> 1
//	  signal-name -> SIGSEGV
//	}
func (g *GDBOutputUtil) ParseStoppedEventOutput(m any) *stoppedOutput {
	answer := &stoppedOutput{
		threadID:     g.GetIntFromMap(m, "thread-id"),
		breakpointID: g.GetIntFromMap(m, "bkptno"),
	}
	switch r := g.GetStringFromMap(m, "reason"); r {
	case "breakpoint-hit":
		answer.reason = StopReasonBreakpoint
	case "watchpoint-trigger", "read-watchpoint-trigger", "access-watchpoint-trigger", "watchpoint-scope":
		answer.reason = StopReasonWatchpoint
	case "end-stepping-range", "location-reached":
		answer.reason = StopReasonTrace
	case "function-finished":
		answer.reason = StopReasonPlanComplete
	case "signal-received":
		answer.reason = StopReasonSignal
		answer.description = g.GetStringFromMap(m, "signal-name")
	case "solib-event", "fork", "vfork", "syscall-entry", "syscall-return":
		answer.reason = StopReasonInstrumentation
		answer.description = r
	case "exec":
		answer.reason = StopReasonExec
	case "exited-normally":
		answer.exited = true
	case "exited":
		answer.exited = true
		answer.exitCode = g.ParseExitCode(g.GetStringFromMap(m, "exit-code"))
	case "exited-signalled":
		answer.exited = true
		answer.signaled = true
		answer.description = g.GetStringFromMap(m, "signal-name")
	case "":
		// 由-exec-interrupt产生的停止没有reason
		answer.reason = StopReasonSignal
		answer.description = "SIGINT"
	default:
		answer.reason = StopReasonNone
		answer.description = r
	}
	// catch throw/catch产生的停止也是breakpoint-hit，通过disp区分没有意义，统一按断点处理
	return answer
}

// ParseExitCode gdb输出的退出码是八进制
func (g *GDBOutputUtil) ParseExitCode(code string) int {
	if code == "" {
		return 0
	}
	n, err := strconv.ParseInt(code, 8, 32)
	if err != nil {
		return 0
	}
	return int(n)
}

// frameOutput 栈帧记录
type frameOutput struct {
	level    int
	function string
	pc       uint64
	line     *LineEntry
}

// ParseStackTraceOutput 解析栈帧输出
// class->done
//
//	payload-> {
//	 stack->[
//	  {
//	    frame->{
//	     level->0
//	     addr->0x000055555540081b
//	     func->main
//	     file->main.c
//	     fullname->/var/code/main.c
//	     line->44
//	    }
//	  }
//	 ]
//	}
func (g *GDBOutputUtil) ParseStackTraceOutput(m map[string]any) []*frameOutput {
	stackMap, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	stackList := g.GetListFromMap(stackMap, "stack")
	answer := make([]*frameOutput, 0, len(stackList))
	for _, s := range stackList {
		frame := g.GetInterfaceFromMap(s, "frame")
		answer = append(answer, &frameOutput{
			level:    g.GetIntFromMap(frame, "level"),
			function: g.GetStringFromMap(frame, "func"),
			pc:       g.ParseAddress(g.GetStringFromMap(frame, "addr")),
			line:     g.parseLineEntry(frame),
		})
	}
	return answer
}

// threadOutput 线程记录
type threadOutput struct {
	id   int
	name string
}

// ParseThreadsOutput 解析thread-info输出
//
//	payload -> {
//	  threads -> [{id -> 1, target-id -> Thread 0x7ffff7d8a740 (LWP 100), name -> main, state -> stopped}]
//	  current-thread-id -> 1
//	}
func (g *GDBOutputUtil) ParseThreadsOutput(m map[string]any) ([]*threadOutput, int) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil, 0
	}
	var answer []*threadOutput
	for _, t := range g.GetListFromMap(payload, "threads") {
		name := g.GetStringFromMap(t, "name")
		if name == "" {
			name = g.GetStringFromMap(t, "target-id")
		}
		answer = append(answer, &threadOutput{id: g.GetIntFromMap(t, "id"), name: name})
	}
	return answer, g.GetIntFromMap(payload, "current-thread-id")
}

// varOutput var-create和var-list-children中的变量
type varOutput struct {
	name        string
	exp         string
	value       string
	typeName    string
	numChildren int
	dynamic     bool
}

// ParseVarCreate 解析var-create响应
// class -> done
//
//	payload -> {
//	  name -> var1
//	  numchild -> 50
//	  value -> [50]
//	  type -> char [50]
//	  has_more -> 0
//	  dynamic -> 1
//	}
func (g *GDBOutputUtil) ParseVarCreate(m map[string]any) (*varOutput, bool) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil, false
	}
	return g.parseVar(payload), true
}

func (g *GDBOutputUtil) parseVar(m any) *varOutput {
	variable := &varOutput{
		name:        g.GetStringFromMap(m, "name"),
		exp:         g.GetStringFromMap(m, "exp"),
		value:       g.GetStringFromMap(m, "value"),
		typeName:    g.GetStringFromMap(m, "type"),
		numChildren: g.GetIntFromMap(m, "numchild"),
		dynamic:     g.GetStringFromMap(m, "dynamic") == "1",
	}
	if variable.numChildren == 0 {
		variable.numChildren = g.GetIntFromMap(m, "has_more")
	}
	return variable
}

// ParseVariablesOutput 解析var-list-children响应
//
//	payload -> {
//	  numchild -> 2
//	  children -> [{child -> {name -> var1.x, exp -> x, numchild -> 0, value -> 1, type -> int}}]
//	}
func (g *GDBOutputUtil) ParseVariablesOutput(m map[string]any) []*varOutput {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	children := g.GetListFromMap(payload, "children")
	answer := make([]*varOutput, 0, len(children))
	for _, c := range children {
		child := g.GetInterfaceFromMap(c, "child")
		if child == nil {
			continue
		}
		answer = append(answer, g.parseVar(child))
	}
	return answer
}

// ParseFrameVariablesOutput 解析stack-list-variables的变量名称
//
//	payload->{
//	 variables->[{name->root, arg->1}, {name->i}]
//	}
func (g *GDBOutputUtil) ParseFrameVariablesOutput(m map[string]any) (args []string, locals []string) {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil, nil
	}
	variables := g.GetListFromMap(payload, "variables")
	if variables == nil {
		variables = g.GetListFromMap(payload, "locals")
	}
	for _, v := range variables {
		name := g.GetStringFromMap(v, "name")
		if name == "" {
			if s, ok := v.(string); ok {
				name = s
			}
		}
		if g.GetStringFromMap(v, "arg") == "1" {
			args = append(args, name)
		} else {
			locals = append(locals, name)
		}
	}
	return args, locals
}

// ParseGlobalVariableOutput 解析全局变量获取的输出，只保留fullname文件中的变量
// class -> done
//
//	payload -> {
//	 symbols -> {
//	   debug -> [{
//	     filename -> main.c
//	     fullname -> /var/code/main.c
//	     symbols -> [{line -> 25, name -> globalChar, type -> char, description -> char globalChar;}]
//	   }]
//	 }
//	}
func (g *GDBOutputUtil) ParseGlobalVariableOutput(m map[string]any, fullname string) []string {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	symbols := g.GetInterfaceFromMap(payload, "symbols")
	var answer []string
	for _, t := range g.GetListFromMap(symbols, "debug") {
		if fullname != "" && g.GetStringFromMap(t, "fullname") != fullname {
			continue
		}
		for _, s := range g.GetListFromMap(t, "symbols") {
			answer = append(answer, g.GetStringFromMap(s, "name"))
		}
	}
	return answer
}

// ParseRegistersOutput 合并寄存器名称和值，名称为空的寄存器编号会被跳过
//
//	register-names -> [rax, rbx, ...]
//	register-values -> [{number -> 0, value -> 0x1c}]
func (g *GDBOutputUtil) ParseRegistersOutput(names []string, m map[string]any) []*varOutput {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	var answer []*varOutput
	for _, r := range g.GetListFromMap(payload, "register-values") {
		number := g.GetIntFromMap(r, "number")
		if number < 0 || number >= len(names) || names[number] == "" {
			continue
		}
		answer = append(answer, &varOutput{name: names[number], value: g.GetStringFromMap(r, "value")})
	}
	return answer
}

// ParseRegisterNamesOutput 解析data-list-register-names
func (g *GDBOutputUtil) ParseRegisterNamesOutput(m map[string]any) []string {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	var answer []string
	for _, n := range g.GetListFromMap(payload, "register-names") {
		s, _ := n.(string)
		answer = append(answer, s)
	}
	return answer
}

// ParseInstructionsOutput 解析data-disassemble（opcodes模式）输出
//
//	payload -> {
//	  asm_insns -> [{address -> 0x1149, func-name -> main, offset -> 0, opcodes -> f3 0f 1e fa, inst -> endbr64}]
//	}
func (g *GDBOutputUtil) ParseInstructionsOutput(m map[string]any) []*Instruction {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	list := g.GetListFromMap(payload, "asm_insns")
	answer := make([]*Instruction, 0, len(list))
	for _, item := range list {
		// 源码模式下指令嵌套在src_and_asm_line中
		if inner := g.GetInterfaceFromMap(item, "src_and_asm_line"); inner != nil {
			for _, insn := range g.GetListFromMap(inner, "line_asm_insn") {
				answer = append(answer, g.parseInstruction(insn))
			}
			continue
		}
		answer = append(answer, g.parseInstruction(item))
	}
	return answer
}

func (g *GDBOutputUtil) parseInstruction(m any) *Instruction {
	instruction := &Instruction{Address: g.ParseAddress(g.GetStringFromMap(m, "address"))}
	instruction.Bytes, _ = hex.DecodeString(strings.ReplaceAll(g.GetStringFromMap(m, "opcodes"), " ", ""))
	inst := g.GetStringFromMap(m, "inst")
	if i := strings.Index(inst, "#"); i >= 0 {
		instruction.Comment = strings.TrimSpace(inst[i+1:])
		inst = inst[:i]
	}
	fields := strings.Fields(inst)
	if len(fields) > 0 {
		instruction.Mnemonic = fields[0]
		instruction.Operands = strings.Join(fields[1:], " ")
	}
	return instruction
}

// ParseSymbolOutput 从函数的反汇编结果中得到符号范围
func (g *GDBOutputUtil) ParseSymbolOutput(m map[string]any) *Symbol {
	instructions := g.ParseInstructionsOutput(m)
	if len(instructions) == 0 {
		return nil
	}
	payload, _ := g.GetPayloadFromMap(m)
	first := g.GetListFromMap(payload, "asm_insns")[0]
	name := g.GetStringFromMap(first, "func-name")
	if name == "" {
		return nil
	}
	last := instructions[len(instructions)-1]
	return &Symbol{
		Name:  name,
		Start: instructions[0].Address,
		End:   last.Address + uint64(max(len(last.Bytes), 1)),
	}
}

// ParseSourceLineOutput 解析源码模式的data-disassemble，得到地址所在的行
func (g *GDBOutputUtil) ParseSourceLineOutput(m map[string]any) *LineEntry {
	payload, success := g.GetPayloadFromMap(m)
	if !success {
		return nil
	}
	for _, item := range g.GetListFromMap(payload, "asm_insns") {
		inner := g.GetInterfaceFromMap(item, "src_and_asm_line")
		if inner == nil {
			continue
		}
		if le := g.parseLineEntry(inner); le != nil {
			return le
		}
	}
	return nil
}

// ParseLibraryLoaded 解析=library-loaded通知
//
//	payload -> {id -> /lib/x86_64-linux-gnu/libc.so.6, target-name -> ..., host-name -> ..., symbols-loaded -> 0}
func (g *GDBOutputUtil) ParseLibraryLoaded(m any) *Module {
	hostName := g.GetStringFromMap(m, "host-name")
	if hostName == "" {
		hostName = g.GetStringFromMap(m, "target-name")
	}
	return &Module{
		ID:   g.GetStringFromMap(m, "id"),
		Name: path.Base(hostName),
		Path: hostName,
	}
}

// ConvertVariableName 解析变量名称
// 由于某些结构体或者指针返回的名称不太美观，所以在这里进行一个转换
// 比如获取一个结构体的属性，属性名：localItem.id  ->  id
// 解引用情况：dynamicInt.*(int *)0x555555602260 -> *dynamicInt
// 数组情况：array.0 -> 0
func (g *GDBOutputUtil) ConvertVariableName(variableName string) string {
	index := strings.LastIndex(variableName, ".")
	if index == -1 || index == len(variableName)-1 {
		return variableName
	}
	if variableName[index+1] == '*' {
		return fmt.Sprintf("*%s", variableName[:index])
	}
	return variableName[index+1:]
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+`)

// SplitValue 指针的值形如 `0x4008 "hi"` 或 `0x1149 <main>`，拆分为地址和summary
func (g *GDBOutputUtil) SplitValue(value string) (string, string) {
	address := addressPattern.FindString(value)
	if address == "" {
		return value, ""
	}
	return address, strings.TrimSpace(value[len(address):])
}

// IsNullPoint 判断是否是空指针
func (g *GDBOutputUtil) IsNullPoint(address string) bool {
	if address == "" {
		return false
	}
	num, err := strconv.ParseUint(address, 0, 64)
	return err == nil && num == 0
}

// ParseAddress 解析0x开头的地址，失败返回0
func (g *GDBOutputUtil) ParseAddress(address string) uint64 {
	if i := strings.IndexByte(address, ' '); i >= 0 {
		address = address[:i]
	}
	n, err := strconv.ParseUint(address, 0, 64)
	if err != nil {
		return 0
	}
	return n
}

func (g *GDBOutputUtil) GetInterfaceFromMap(m any, key string) any {
	s, ok := m.(map[string]any)
	if !ok {
		return nil
	}
	return s[key]
}

func (g *GDBOutputUtil) GetStringFromMap(m any, key string) string {
	strAnswer, _ := g.GetInterfaceFromMap(m, key).(string)
	return strAnswer
}

func (g *GDBOutputUtil) GetIntFromMap(m any, key string) int {
	numAnswer, _ := strconv.Atoi(g.GetStringFromMap(m, key))
	return numAnswer
}

func (g *GDBOutputUtil) GetListFromMap(m any, key string) []any {
	s, _ := g.GetInterfaceFromMap(m, key).([]any)
	return s
}

func (g *GDBOutputUtil) GetPayloadFromMap(m map[string]any) (any, bool) {
	if class := g.GetStringFromMap(m, "class"); class == "done" {
		payload, ok := m["payload"]
		return payload, ok
	}
	return nil, false
}
