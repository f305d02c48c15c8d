package gdb_debugger

import (
	"context"
	"strconv"
	"sync"
	"time"

	. "github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
)

// gdbProcess 被调试进程
// 状态由gdb的异步记录更新，线程列表在每次暂停后第一次使用时读取。
type gdbProcess struct {
	target *gdbTarget

	lock       sync.RWMutex
	pid        int
	state      ProcessState
	exitStatus int
	stop       *stoppedOutput
	threads    []*gdbThread

	// varObjs 本次暂停中创建的gdb变量对象，继续运行前删除
	varObjs       []string
	registerNames []string
}

func newGDBProcess(target *gdbTarget) *gdbProcess {
	return &gdbProcess{target: target, state: StateLaunching}
}

func (p *gdbProcess) debugger() *GDBDebugger {
	return p.target.debugger
}

// loadPID 通过thread group读取进程id
//
//	payload -> {groups -> [{id -> i1, type -> process, pid -> 1234, executable -> /tmp/a.out}]}
func (p *gdbProcess) loadPID() {
	m, err := p.debugger().sendWithTimeOut(OptionTimeout, "list-thread-groups")
	if err != nil {
		return
	}
	util := p.debugger().GdbOutputUtil
	payload, _ := util.GetPayloadFromMap(m)
	for _, group := range util.GetListFromMap(payload, "groups") {
		if pid := util.GetIntFromMap(group, "pid"); pid > 0 {
			p.lock.Lock()
			p.pid = pid
			p.lock.Unlock()
			return
		}
	}
}

func (p *gdbProcess) PID() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.pid
}

func (p *gdbProcess) State() ProcessState {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.state
}

func (p *gdbProcess) ExitStatus() int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.exitStatus
}

// setRunning 状态变为运行中时返回true
func (p *gdbProcess) setRunning() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == StateRunning {
		return false
	}
	p.state = StateRunning
	p.stop = nil
	p.threads = nil
	return true
}

func (p *gdbProcess) setStopped(stop *stoppedOutput) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.state = StateStopped
	p.stop = stop
	p.threads = nil
}

func (p *gdbProcess) setExited(exitStatus int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.state = StateExited
	p.exitStatus = exitStatus
	p.threads = nil
}

func (p *gdbProcess) Threads() []Thread {
	threads := p.loadThreads()
	list := make([]Thread, 0, len(threads))
	for _, t := range threads {
		list = append(list, t)
	}
	return list
}

func (p *gdbProcess) ThreadByID(id int) Thread {
	for _, t := range p.loadThreads() {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (p *gdbProcess) loadThreads() []*gdbThread {
	p.lock.RLock()
	threads, stop := p.threads, p.stop
	p.lock.RUnlock()
	if threads != nil {
		return threads
	}
	m, err := p.debugger().sendWithTimeOut(OptionTimeout, "thread-info")
	if err != nil {
		return nil
	}
	outputs, _ := p.debugger().GdbOutputUtil.ParseThreadsOutput(m)
	threads = make([]*gdbThread, 0, len(outputs))
	for _, o := range outputs {
		thread := &gdbThread{process: p, id: o.id, name: o.name, reason: StopReasonNone}
		if stop != nil && stop.threadID == o.id {
			thread.reason = stop.reason
			thread.description = stop.description
			thread.breakpointID = stop.breakpointID
		}
		threads = append(threads, thread)
	}
	p.lock.Lock()
	if p.stop == stop {
		p.threads = threads
	}
	p.lock.Unlock()
	return threads
}

// beforeResume 继续运行前删除本次暂停中创建的变量对象
func (p *gdbProcess) beforeResume() {
	p.lock.Lock()
	varObjs := p.varObjs
	p.varObjs = nil
	p.lock.Unlock()
	for _, name := range varObjs {
		_, _ = p.debugger().sendWithTimeOut(OptionTimeout, "var-delete", name)
	}
}

func (p *gdbProcess) addVarObj(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.varObjs = append(p.varObjs, name)
}

func (p *gdbProcess) resume(operation string, args ...string) error {
	if p.State() != StateStopped {
		return e.ErrProcessRunning
	}
	p.beforeResume()
	if _, err := p.debugger().sendWithTimeOut(OptionTimeout, operation, args...); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (p *gdbProcess) Resume() error {
	return p.resume("exec-continue")
}

func (p *gdbProcess) Stop() error {
	if err := p.debugger().GDB.Interrupt(); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (p *gdbProcess) Kill() error {
	switch p.State() {
	case StateExited, StateDetached:
		return nil
	case StateRunning:
		// 运行中的进程需要先暂停才能kill
		_ = p.debugger().GDB.Interrupt()
		p.waitForState(StateStopped, time.Second)
	}
	if _, err := p.debugger().HandleCommand(context.Background(), "kill"); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (p *gdbProcess) Detach() error {
	if p.State() == StateRunning {
		_ = p.debugger().GDB.Interrupt()
		p.waitForState(StateStopped, time.Second)
	}
	if _, err := p.debugger().sendWithTimeOut(OptionTimeout, "target-detach"); err != nil {
		return e.NewEngineError(err)
	}
	p.lock.Lock()
	p.state = StateDetached
	p.lock.Unlock()
	return nil
}

func (p *gdbProcess) waitForState(state ProcessState, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for p.State() != state && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// registers 寄存器名称在进程内不变，只读取一次
func (p *gdbProcess) registers() []string {
	p.lock.RLock()
	names := p.registerNames
	p.lock.RUnlock()
	if names != nil {
		return names
	}
	m, err := p.debugger().sendWithTimeOut(OptionTimeout, "data-list-register-names")
	if err != nil {
		return nil
	}
	names = p.debugger().GdbOutputUtil.ParseRegisterNamesOutput(m)
	p.lock.Lock()
	p.registerNames = names
	p.lock.Unlock()
	return names
}

// gdbThread 线程
type gdbThread struct {
	process      *gdbProcess
	id           int
	name         string
	reason       StopReason
	description  string
	breakpointID int
}

func (t *gdbThread) ID() int                 { return t.id }
func (t *gdbThread) Name() string            { return t.name }
func (t *gdbThread) StopReason() StopReason  { return t.reason }
func (t *gdbThread) StopDescription() string { return t.description }
func (t *gdbThread) StopBreakpointID() int   { return t.breakpointID }

func (t *gdbThread) threadArg() []string {
	return []string{"--thread", strconv.Itoa(t.id)}
}

func (t *gdbThread) Frames() ([]Frame, error) {
	m, err := t.process.debugger().sendWithTimeOut(OptionTimeout, "stack-list-frames", t.threadArg()...)
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	outputs := t.process.debugger().GdbOutputUtil.ParseStackTraceOutput(m)
	frames := make([]Frame, 0, len(outputs))
	for _, o := range outputs {
		frames = append(frames, &gdbFrame{thread: t, frameOutput: o})
	}
	return frames, nil
}

func (t *gdbThread) StepOver() error {
	return t.process.resume("exec-next", t.threadArg()...)
}

func (t *gdbThread) StepInto() error {
	return t.process.resume("exec-step", t.threadArg()...)
}

func (t *gdbThread) StepOut() error {
	return t.process.resume("exec-finish", t.threadArg()...)
}

func (t *gdbThread) StepInstruction(over bool) error {
	if over {
		return t.process.resume("exec-next-instruction", t.threadArg()...)
	}
	return t.process.resume("exec-step-instruction", t.threadArg()...)
}
