package mock_debugger

import (
	"fmt"

	"github.com/fansqz/go-debug-adapter/debugger"
)

// MockProcess 进程
type MockProcess struct {
	pid        int
	state      debugger.ProcessState
	exitStatus int
	threads    []*MockThread

	Resumed  int
	Stopped  int
	Killed   bool
	Detached bool
}

func NewMockProcess(pid int) *MockProcess {
	return &MockProcess{pid: pid, state: debugger.StateRunning}
}

func (p *MockProcess) PID() int                     { return p.pid }
func (p *MockProcess) State() debugger.ProcessState { return p.state }
func (p *MockProcess) ExitStatus() int              { return p.exitStatus }

// SetState 测试中修改进程状态
func (p *MockProcess) SetState(state debugger.ProcessState, exitStatus int) {
	p.state = state
	p.exitStatus = exitStatus
}

// AddThread 添加线程
func (p *MockProcess) AddThread(thread *MockThread) *MockThread {
	thread.process = p
	p.threads = append(p.threads, thread)
	return thread
}

// RemoveThread 删除线程
func (p *MockProcess) RemoveThread(id int) {
	for i, t := range p.threads {
		if t.id == id {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			return
		}
	}
}

func (p *MockProcess) Threads() []debugger.Thread {
	list := make([]debugger.Thread, 0, len(p.threads))
	for _, t := range p.threads {
		list = append(list, t)
	}
	return list
}

func (p *MockProcess) ThreadByID(id int) debugger.Thread {
	for _, t := range p.threads {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (p *MockProcess) Resume() error {
	if p.state != debugger.StateStopped {
		return fmt.Errorf("process is not stopped")
	}
	p.Resumed++
	p.state = debugger.StateRunning
	return nil
}

func (p *MockProcess) Stop() error {
	p.Stopped++
	return nil
}

func (p *MockProcess) Kill() error {
	p.Killed = true
	p.state = debugger.StateExited
	return nil
}

func (p *MockProcess) Detach() error {
	p.Detached = true
	p.state = debugger.StateDetached
	return nil
}

// MockThread 线程
type MockThread struct {
	process      *MockProcess
	id           int
	name         string
	Reason       debugger.StopReason
	Description  string
	BreakpointID int
	frames       []*MockFrame
	Steps        []string
}

func NewMockThread(id int, name string) *MockThread {
	return &MockThread{id: id, name: name, Reason: debugger.StopReasonNone}
}

func (t *MockThread) ID() int                         { return t.id }
func (t *MockThread) Name() string                    { return t.name }
func (t *MockThread) StopReason() debugger.StopReason { return t.Reason }
func (t *MockThread) StopDescription() string         { return t.Description }
func (t *MockThread) StopBreakpointID() int           { return t.BreakpointID }

// SetFrames 设置调用栈，栈顶在前
func (t *MockThread) SetFrames(frames ...*MockFrame) {
	for i, f := range frames {
		f.index = i
	}
	t.frames = frames
}

func (t *MockThread) Frames() ([]debugger.Frame, error) {
	list := make([]debugger.Frame, 0, len(t.frames))
	for _, f := range t.frames {
		list = append(list, f)
	}
	return list, nil
}

func (t *MockThread) step(kind string) error {
	t.Steps = append(t.Steps, kind)
	if t.process != nil {
		return t.process.Resume()
	}
	return nil
}

func (t *MockThread) StepOver() error { return t.step("over") }
func (t *MockThread) StepInto() error { return t.step("into") }
func (t *MockThread) StepOut() error  { return t.step("out") }

func (t *MockThread) StepInstruction(over bool) error {
	if over {
		return t.step("instruction-over")
	}
	return t.step("instruction-into")
}
