package debugger

import (
	"fmt"
	"path"
)

// LaunchInfo 启动进程的参数
type LaunchInfo struct {
	Args        []string
	Env         map[string]string
	Cwd         string
	StopOnEntry bool
	// Terminal 被调试程序的终端，为空时使用引擎创建的pty
	Terminal string
}

// AttachInfo attach的参数
type AttachInfo struct {
	PID     int
	Program string
	WaitFor bool
}

// LineEntry 行信息
type LineEntry struct {
	Directory string
	File      string
	Line      int
	Column    int
}

func (l *LineEntry) Path() string {
	if l == nil || l.File == "" {
		return ""
	}
	if path.IsAbs(l.File) || l.Directory == "" {
		return l.File
	}
	return path.Join(l.Directory, l.File)
}

// Symbol 符号信息，End为开区间
type Symbol struct {
	Name  string
	Start uint64
	End   uint64
}

// Instruction 一条机器指令
type Instruction struct {
	Address  uint64
	Bytes    []byte
	Mnemonic string
	Operands string
	Comment  string
}

// Module 加载的模块（可执行文件/共享库）
type Module struct {
	ID   string
	Name string
	Path string
}

// VariableOptions 枚举栈帧变量的选项
type VariableOptions struct {
	Arguments bool
	Locals    bool
	Statics   bool
	// InScopeOnly 只返回当前作用域内可见的变量
	InScopeOnly bool
}

// ProcessState 进程状态
type ProcessState int

const (
	StateInvalid ProcessState = iota
	StateLaunching
	StateRunning
	StateStopped
	StateCrashed
	StateExited
	StateDetached
)

func (s ProcessState) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	case StateExited:
		return "exited"
	case StateDetached:
		return "detached"
	default:
		return "invalid"
	}
}

// StopReason 线程停止原因
type StopReason int

const (
	StopReasonInvalid StopReason = iota
	StopReasonNone
	StopReasonTrace
	StopReasonBreakpoint
	StopReasonWatchpoint
	StopReasonSignal
	StopReasonException
	StopReasonExec
	StopReasonPlanComplete
	StopReasonThreadExiting
	StopReasonInstrumentation
)

// Actionable 该停止原因是否需要报告给用户
func (r StopReason) Actionable() bool {
	switch r {
	case StopReasonTrace, StopReasonBreakpoint, StopReasonWatchpoint, StopReasonSignal,
		StopReasonException, StopReasonPlanComplete, StopReasonInstrumentation:
		return true
	default:
		return false
	}
}

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return "none"
	case StopReasonTrace:
		return "trace"
	case StopReasonBreakpoint:
		return "breakpoint"
	case StopReasonWatchpoint:
		return "watchpoint"
	case StopReasonSignal:
		return "signal"
	case StopReasonException:
		return "exception"
	case StopReasonExec:
		return "exec"
	case StopReasonPlanComplete:
		return "plan complete"
	case StopReasonThreadExiting:
		return "thread exiting"
	case StopReasonInstrumentation:
		return "instrumentation"
	default:
		return "invalid"
	}
}

// EventType 引擎事件类型
type EventType int

const (
	// ProcessStateChangedEvent 进程状态改变
	ProcessStateChangedEvent EventType = iota
	// ProcessOutputEvent 被调试程序的输出
	ProcessOutputEvent
	// ModulesLoadedEvent 模块加载
	ModulesLoadedEvent
	// BreakpointChangedEvent 断点的位置发生变化
	BreakpointChangedEvent
	// ConsoleOutputEvent 引擎自身的控制台输出
	ConsoleOutputEvent
)

// Event 引擎事件
type Event struct {
	Type EventType
	// State 进程状态，仅ProcessStateChangedEvent有效
	State ProcessState
	// Restarted 进程因内部原因停止并会自动继续
	Restarted bool
	// Output 输出内容
	Output string
	// BreakpointID 位置发生变化的断点
	BreakpointID int
	Modules      []*Module
}

func NewProcessStateEvent(state ProcessState, restarted bool) *Event {
	return &Event{Type: ProcessStateChangedEvent, State: state, Restarted: restarted}
}

func NewProcessOutputEvent(output string) *Event {
	return &Event{Type: ProcessOutputEvent, Output: output}
}

func NewConsoleOutputEvent(output string) *Event {
	return &Event{Type: ConsoleOutputEvent, Output: output}
}

func NewModulesLoadedEvent(modules ...*Module) *Event {
	return &Event{Type: ModulesLoadedEvent, Modules: modules}
}

func NewBreakpointChangedEvent(id int) *Event {
	return &Event{Type: BreakpointChangedEvent, BreakpointID: id}
}

func (e *Event) IsProcessEvent() bool {
	return e.Type == ProcessStateChangedEvent || e.Type == ProcessOutputEvent
}

func (e *Event) IsTargetEvent() bool {
	return e.Type == ModulesLoadedEvent
}

func (e *Event) IsBreakpointEvent() bool {
	return e.Type == BreakpointChangedEvent
}

func (e *Event) String() string {
	switch e.Type {
	case ProcessStateChangedEvent:
		return fmt.Sprintf("process state %s (restarted=%v)", e.State, e.Restarted)
	case ProcessOutputEvent:
		return "process output"
	case ModulesLoadedEvent:
		return fmt.Sprintf("%d modules loaded", len(e.Modules))
	case BreakpointChangedEvent:
		return fmt.Sprintf("breakpoint %d changed", e.BreakpointID)
	default:
		return "console output"
	}
}
