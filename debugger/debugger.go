package debugger

import (
	"context"
	"time"
)

// Debugger
// 原生调试引擎的能力接口，adapter只通过该接口操作引擎。
// 引擎对象（Target、Process、Thread、Frame、Value）只在特定进程状态下有效，
// 调用方需要保证同一时刻只有一个goroutine在使用这些对象。
type Debugger interface {
	// CreateTarget 根据可执行文件创建调试目标，program为空时创建空目标（attach使用）
	CreateTarget(ctx context.Context, program string) (Target, error)
	// HandleCommand 执行调试器控制台命令，返回命令输出
	HandleCommand(ctx context.Context, command string) (string, error)
	// Listener 引擎事件的监听器
	Listener() Listener
	// Close 关闭引擎
	Close() error
}

// Target 调试目标
type Target interface {
	// BreakpointCreateByLocation 根据文件名+行号创建断点，引擎按文件basename解析
	BreakpointCreateByLocation(file string, line int) (Breakpoint, error)
	// BreakpointCreateByName 函数断点
	BreakpointCreateByName(name string) (Breakpoint, error)
	// BreakpointCreateByAddress 指令地址断点
	BreakpointCreateByAddress(address uint64) (Breakpoint, error)
	// BreakpointCreateForException 异常断点，filter为initialize中声明的过滤器id
	BreakpointCreateForException(filter string) (Breakpoint, error)
	FindBreakpoint(id int) Breakpoint
	DeleteBreakpoint(id int) error
	// Breakpoints 列举所有断点
	Breakpoints() []Breakpoint

	Launch(ctx context.Context, info *LaunchInfo) (Process, error)
	Attach(ctx context.Context, info *AttachInfo) (Process, error)
	// Process 当前进程，没有进程时返回nil
	Process() Process

	// ResolveAddress 地址对应的行信息和符号，任何一个都可能为nil
	ResolveAddress(address uint64) (*LineEntry, *Symbol, error)
	// Disassemble 反汇编[start, end)之间的指令
	Disassemble(start, end uint64) ([]*Instruction, error)
	// ReadInstructions 从start开始读取count条指令
	ReadInstructions(start uint64, count int) ([]*Instruction, error)
}

// Breakpoint 引擎中的断点
type Breakpoint interface {
	ID() int
	Locations() []BreakpointLocation
	SetCondition(condition string) error
	SetIgnoreCount(count int) error
	SetEnabled(enabled bool) error
}

// BreakpointLocation 断点解析出的一个位置，一个断点可能有多个位置（内联、模板）
type BreakpointLocation interface {
	ID() string
	Address() uint64
	// LineEntry 位置的行信息，没有调试信息时为nil
	LineEntry() *LineEntry
	IsEnabled() bool
	SetEnabled(enabled bool) error
}

// Process 被调试进程
type Process interface {
	PID() int
	State() ProcessState
	ExitStatus() int
	Threads() []Thread
	ThreadByID(id int) Thread
	Resume() error
	Stop() error
	Kill() error
	Detach() error
}

// Thread 线程
type Thread interface {
	ID() int
	Name() string
	StopReason() StopReason
	// StopDescription 引擎给出的停止描述，例如信号名称
	StopDescription() string
	// StopBreakpointID 因断点停止时命中的断点id，否则为0
	StopBreakpointID() int
	Frames() ([]Frame, error)
	StepOver() error
	StepInto() error
	StepOut() error
	// StepInstruction over为true时不进入call指令
	StepInstruction(over bool) error
}

// Frame 栈帧
type Frame interface {
	Index() int
	FunctionName() string
	PC() uint64
	// LineEntry 没有调试信息时为nil
	LineEntry() *LineEntry
	Variables(opts VariableOptions) ([]Value, error)
	Registers() ([]Value, error)
	Evaluate(expression string) (Value, error)
	// Select 设为引擎当前选中的栈帧，之后的控制台命令在该栈帧中执行
	Select() error
}

// Value 变量的值
type Value interface {
	Name() string
	TypeName() string
	Value() string
	Summary() string
	NumChildren() int
	Children() ([]Value, error)
	// IsSynthetic 是否由pretty printer生成的合成视图
	IsSynthetic() bool
}

// Listener 阻塞等待引擎事件
type Listener interface {
	// WaitForEvent 等待下一个事件，超时返回false
	WaitForEvent(timeout time.Duration) (*Event, bool)
}
