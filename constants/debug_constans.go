package constants

// StoppedReasonType stopped事件中的reason
type StoppedReasonType string

const (
	BreakpointStopped    StoppedReasonType = "breakpoint"
	StepStopped          StoppedReasonType = "step"
	ExceptionStopped     StoppedReasonType = "exception"
	PauseStopped         StoppedReasonType = "pause"
	EntryStopped         StoppedReasonType = "entry"
	SignalStopped        StoppedReasonType = "signal"
	DataBreakpointStoped StoppedReasonType = "data breakpoint"
	// UnknownStopped 没有任何线程给出可处理的停止原因
	UnknownStopped StoppedReasonType = "unknown"
)

// BreakpointReasonType 断点改变类型
type BreakpointReasonType string

const (
	ChangeType  BreakpointReasonType = "changed"
	NewType     BreakpointReasonType = "new"
	RemovedType BreakpointReasonType = "removed"
)

// ThreadReasonType thread事件的reason
type ThreadReasonType string

const (
	ThreadStarted ThreadReasonType = "started"
	ThreadExited  ThreadReasonType = "exited"
)

// OutputCategory output事件的类别
type OutputCategory string

const (
	OutputConsole OutputCategory = "console"
	OutputStdout  OutputCategory = "stdout"
	OutputStderr  OutputCategory = "stderr"
)

// BreakpointKind 断点在引擎中的解析方式
type BreakpointKind int

const (
	SourceBreakpoint BreakpointKind = iota
	FunctionBreakpoint
	AddressBreakpoint
	ExceptionBreakpoint
)

func (k BreakpointKind) String() string {
	switch k {
	case SourceBreakpoint:
		return "source"
	case FunctionBreakpoint:
		return "function"
	case AddressBreakpoint:
		return "address"
	case ExceptionBreakpoint:
		return "exception"
	default:
		return "unknown"
	}
}

// ScopeName 作用域名称
type ScopeName string

// Local: 当前栈帧中的参数和局部变量。
// Static: 静态存储区域中的变量，包括文件级别的全局变量。
// Registers: 寄存器级别的作用域，引用硬件寄存器的内容。
const (
	ScopeLocal    ScopeName = "Local"
	ScopeStatic   ScopeName = "Static"
	ScopeRegister ScopeName = "Registers"
)

// ShowDisassembly 什么时候使用反汇编代替源码
type ShowDisassembly string

const (
	ShowDisassemblyAuto   ShowDisassembly = "auto"
	ShowDisassemblyAlways ShowDisassembly = "always"
	ShowDisassemblyNever  ShowDisassembly = "never"
)

// Exception breakpoint filter ids advertised in the initialize response.
const (
	FilterCppThrow  = "cpp_throw"
	FilterCppCatch  = "cpp_catch"
	FilterRustPanic = "rust_panic"
)
