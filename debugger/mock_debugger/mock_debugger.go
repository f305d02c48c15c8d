package mock_debugger

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/fansqz/go-debug-adapter/debugger"
)

// MockDebugger 内存中的调试引擎，测试通过导出字段编排进程、线程和栈帧
type MockDebugger struct {
	lock     sync.Mutex
	events   chan *debugger.Event
	Target   *MockTarget
	Commands []string
	Closed   bool
	// CommandOutput 控制台命令的输出
	CommandOutput func(command string) (string, error)
}

func NewMockDebugger() *MockDebugger {
	return &MockDebugger{
		events: make(chan *debugger.Event, 64),
		Target: NewMockTarget(),
	}
}

func (m *MockDebugger) CreateTarget(ctx context.Context, program string) (debugger.Target, error) {
	m.Target.Program = program
	return m.Target, nil
}

func (m *MockDebugger) HandleCommand(ctx context.Context, command string) (string, error) {
	m.lock.Lock()
	m.Commands = append(m.Commands, command)
	m.lock.Unlock()
	if m.CommandOutput != nil {
		return m.CommandOutput(command)
	}
	return "", nil
}

func (m *MockDebugger) Listener() debugger.Listener {
	return m
}

func (m *MockDebugger) WaitForEvent(timeout time.Duration) (*debugger.Event, bool) {
	select {
	case ev := <-m.events:
		return ev, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Emit 模拟引擎产生一个事件
func (m *MockDebugger) Emit(event *debugger.Event) {
	m.events <- event
}

func (m *MockDebugger) Close() error {
	m.Closed = true
	return nil
}

// MockTarget 调试目标
type MockTarget struct {
	Program string
	// SourceFiles 目标中带调试信息的源文件完整路径，断点按basename匹配它们
	SourceFiles []string
	Symbols     []*debugger.Symbol

	breakpoints map[int]*MockBreakpoint
	nextID      int
	Created     int
	Deleted     int

	process    *MockProcess
	LaunchInfo *debugger.LaunchInfo
	AttachInfo *debugger.AttachInfo
	// LaunchErr 不为空时Launch失败
	LaunchErr error
	// DeleteErr 不为空时DeleteBreakpoint失败
	DeleteErr error
}

func NewMockTarget() *MockTarget {
	return &MockTarget{
		breakpoints: make(map[int]*MockBreakpoint),
		process:     nil,
	}
}

func (t *MockTarget) newBreakpoint(kind string) *MockBreakpoint {
	t.nextID++
	t.Created++
	bp := &MockBreakpoint{id: t.nextID, Kind: kind, Enabled: true}
	t.breakpoints[bp.id] = bp
	return bp
}

func (t *MockTarget) BreakpointCreateByLocation(file string, line int) (debugger.Breakpoint, error) {
	bp := t.newBreakpoint("location")
	for _, f := range t.SourceFiles {
		if path.Base(f) != file {
			continue
		}
		bp.locations = append(bp.locations, &MockLocation{
			id:      fmt.Sprintf("%d.%d", bp.id, len(bp.locations)+1),
			address: uint64(0x1000 + line*4),
			line:    &debugger.LineEntry{Directory: path.Dir(f), File: path.Base(f), Line: line},
			enabled: true,
		})
	}
	return bp, nil
}

func (t *MockTarget) BreakpointCreateByName(name string) (debugger.Breakpoint, error) {
	bp := t.newBreakpoint("function")
	bp.Name = name
	for _, s := range t.Symbols {
		if s.Name == name {
			bp.locations = append(bp.locations, &MockLocation{id: fmt.Sprintf("%d.1", bp.id), address: s.Start, enabled: true})
		}
	}
	return bp, nil
}

func (t *MockTarget) BreakpointCreateByAddress(address uint64) (debugger.Breakpoint, error) {
	bp := t.newBreakpoint("address")
	bp.locations = append(bp.locations, &MockLocation{id: fmt.Sprintf("%d.1", bp.id), address: address, enabled: true})
	return bp, nil
}

func (t *MockTarget) BreakpointCreateForException(filter string) (debugger.Breakpoint, error) {
	bp := t.newBreakpoint("exception")
	bp.Name = filter
	return bp, nil
}

func (t *MockTarget) FindBreakpoint(id int) debugger.Breakpoint {
	bp, ok := t.breakpoints[id]
	if !ok {
		return nil
	}
	return bp
}

// Breakpoint 测试中直接访问断点
func (t *MockTarget) Breakpoint(id int) *MockBreakpoint {
	return t.breakpoints[id]
}

func (t *MockTarget) DeleteBreakpoint(id int) error {
	if t.DeleteErr != nil {
		return t.DeleteErr
	}
	if _, ok := t.breakpoints[id]; !ok {
		return fmt.Errorf("no breakpoint number %d", id)
	}
	t.Deleted++
	delete(t.breakpoints, id)
	return nil
}

func (t *MockTarget) Breakpoints() []debugger.Breakpoint {
	var list []debugger.Breakpoint
	for i := 1; i <= t.nextID; i++ {
		if bp, ok := t.breakpoints[i]; ok {
			list = append(list, bp)
		}
	}
	return list
}

func (t *MockTarget) Launch(ctx context.Context, info *debugger.LaunchInfo) (debugger.Process, error) {
	if t.LaunchErr != nil {
		return nil, t.LaunchErr
	}
	t.LaunchInfo = info
	t.process = NewMockProcess(1000)
	return t.process, nil
}

func (t *MockTarget) Attach(ctx context.Context, info *debugger.AttachInfo) (debugger.Process, error) {
	t.AttachInfo = info
	t.process = NewMockProcess(info.PID)
	t.process.state = debugger.StateStopped
	return t.process, nil
}

func (t *MockTarget) Process() debugger.Process {
	if t.process == nil {
		return nil
	}
	return t.process
}

// MockProcess 测试中访问进程
func (t *MockTarget) MockProcess() *MockProcess {
	return t.process
}

func (t *MockTarget) ResolveAddress(address uint64) (*debugger.LineEntry, *debugger.Symbol, error) {
	for _, s := range t.Symbols {
		if s.Start <= address && address < s.End {
			return nil, s, nil
		}
	}
	return nil, nil, nil
}

func (t *MockTarget) Disassemble(start, end uint64) ([]*debugger.Instruction, error) {
	return t.ReadInstructions(start, int(end-start)/4)
}

func (t *MockTarget) ReadInstructions(start uint64, count int) ([]*debugger.Instruction, error) {
	var list []*debugger.Instruction
	for i := 0; i < count; i++ {
		list = append(list, &debugger.Instruction{
			Address:  start + uint64(i*4),
			Bytes:    []byte{0x90, 0x90, 0x90, 0x90},
			Mnemonic: "nop",
		})
	}
	return list, nil
}

// MockBreakpoint 断点
type MockBreakpoint struct {
	id          int
	Kind        string
	Name        string
	Condition   string
	IgnoreCount int
	Enabled     bool
	locations   []*MockLocation
}

func (b *MockBreakpoint) ID() int { return b.id }

func (b *MockBreakpoint) Locations() []debugger.BreakpointLocation {
	list := make([]debugger.BreakpointLocation, 0, len(b.locations))
	for _, l := range b.locations {
		list = append(list, l)
	}
	return list
}

// AddLocation 模拟共享库加载后断点多出的位置
func (b *MockBreakpoint) AddLocation(fullPath string, line int) {
	b.locations = append(b.locations, &MockLocation{
		id:      fmt.Sprintf("%d.%d", b.id, len(b.locations)+1),
		address: uint64(0x2000 + line*4),
		line:    &debugger.LineEntry{Directory: path.Dir(fullPath), File: path.Base(fullPath), Line: line},
		enabled: true,
	})
}

func (b *MockBreakpoint) SetCondition(condition string) error {
	b.Condition = condition
	return nil
}

func (b *MockBreakpoint) SetIgnoreCount(count int) error {
	b.IgnoreCount = count
	return nil
}

func (b *MockBreakpoint) SetEnabled(enabled bool) error {
	b.Enabled = enabled
	return nil
}

// MockLocation 断点位置
type MockLocation struct {
	id      string
	address uint64
	line    *debugger.LineEntry
	enabled bool
}

func (l *MockLocation) ID() string                     { return l.id }
func (l *MockLocation) Address() uint64                { return l.address }
func (l *MockLocation) LineEntry() *debugger.LineEntry { return l.line }
func (l *MockLocation) IsEnabled() bool                { return l.enabled }

func (l *MockLocation) SetEnabled(enabled bool) error {
	l.enabled = enabled
	return nil
}
