package gdb_debugger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/fansqz/go-debug-adapter/debugger"
	gdb2 "github.com/fansqz/go-debug-adapter/debugger/gdb_debugger/gdb"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/utils/gosync"
	"github.com/sirupsen/logrus"
)

const (
	OptionTimeout = time.Second * 10
	// maxPendingOutputs 未被读取的输出事件上限，超过时丢弃新的输出
	maxPendingOutputs = 1024
)

// GDBDebugger 基于GDB/MI的调试引擎
type GDBDebugger struct {
	GDB *gdb2.Gdb
	log *logrus.Entry

	// gdb输出工具，用于处理gdb输出
	GdbOutputUtil *GDBOutputUtil

	events *eventQueue

	lock   sync.Mutex
	target *gdbTarget
	closed bool
}

// NewGDBDebugger 启动gdb，gdbPath为空时使用PATH中的gdb
func NewGDBDebugger(ctx context.Context, log *logrus.Entry, gdbPath string) (*GDBDebugger, error) {
	if gdbPath == "" {
		gdbPath = "gdb"
	}
	d := &GDBDebugger{
		log:           log,
		GdbOutputUtil: NewGDBOutputUtil(),
		events:        newEventQueue(maxPendingOutputs),
	}
	gd, err := gdb2.NewCmd([]string{gdbPath}, d.gdbNotificationCallback)
	if err != nil {
		d.log.Errorf("[GDBDebugger] start gdb fail, err = %v", err)
		return nil, e.NewEngineError(err)
	}
	d.GDB = gd
	// 打印复杂类型时使用pretty printer
	if _, err = d.sendWithTimeOut(OptionTimeout, "enable-pretty-printing"); err != nil {
		d.log.Warnf("[GDBDebugger] enable-pretty-printing fail, err = %v", err)
	}
	// 启动协程读取用户输出
	gosync.Go(ctx, d.processUserOutput)
	return d, nil
}

func (g *GDBDebugger) CreateTarget(ctx context.Context, program string) (Target, error) {
	if g.isClosed() {
		return nil, e.ErrDebuggerIsClosed
	}
	// 通知回调会读取target，发送命令期间不能持有锁
	if program != "" {
		if _, err := g.sendWithTimeOut(OptionTimeout, "file-exec-and-symbols", gdb2.Quote(program)); err != nil {
			return nil, e.NewEngineError(fmt.Errorf("load %s: %w", program, err))
		}
	}
	target := newGDBTarget(g, program)
	g.lock.Lock()
	g.target = target
	g.lock.Unlock()
	return target, nil
}

// HandleCommand 通过console解释器执行gdb命令，返回命令的控制台输出
func (g *GDBDebugger) HandleCommand(ctx context.Context, command string) (string, error) {
	g.log.Infof("[GDBDebugger] command %s", command)
	m, err := g.GDB.CheckedSend("interpreter-exec", "console", gdb2.Quote(command))
	console, _ := m["console"].(string)
	return console, err
}

func (g *GDBDebugger) Listener() Listener {
	return g
}

func (g *GDBDebugger) WaitForEvent(timeout time.Duration) (*Event, bool) {
	return g.events.pop(timeout)
}

func (g *GDBDebugger) Close() error {
	g.lock.Lock()
	if g.closed {
		g.lock.Unlock()
		return nil
	}
	g.closed = true
	g.lock.Unlock()
	g.log.Infof("[GDBDebugger] close")
	return g.GDB.Exit()
}

func (g *GDBDebugger) isClosed() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.closed
}

// emit 投递事件，不会阻塞
func (g *GDBDebugger) emit(event *Event) {
	if !g.events.push(event) {
		g.log.Warnf("[GDBDebugger] too many pending outputs, drop %s", event)
	}
}

// processUserOutput 循环处理用户输出
func (g *GDBDebugger) processUserOutput(ctx context.Context) {
	b := make([]byte, 1024)
	for {
		n, err := g.GDB.Read(b)
		if err != nil {
			return
		}
		g.emit(NewProcessOutputEvent(string(b[0:n])))
	}
}

// gdbNotificationCallback 处理gdb异步记录的回调
func (g *GDBDebugger) gdbNotificationCallback(m map[string]any) {
	typ := g.GdbOutputUtil.GetStringFromMap(m, "type")
	class := g.GdbOutputUtil.GetStringFromMap(m, "class")
	payload := g.GdbOutputUtil.GetInterfaceFromMap(m, "payload")
	switch typ {
	case gdb2.TypeExec:
		switch class {
		case "stopped":
			g.processStoppedData(payload)
		case "running":
			g.processRunningData()
		}
	case gdb2.TypeNotify:
		g.processNotifyData(class, payload)
	case gdb2.TypeTarget:
		// 没有使用pty时被调试程序的输出
		output, _ := payload.(string)
		g.emit(NewProcessOutputEvent(output))
	case gdb2.TypeLog:
		output, _ := payload.(string)
		g.log.Debugf("[GDBDebugger] %s", strings.TrimSpace(output))
	}
}

// processStoppedData 处理gdb返回的stopped数据
func (g *GDBDebugger) processStoppedData(m any) {
	process := g.currentProcess()
	if process == nil {
		return
	}
	stoppedOutput := g.GdbOutputUtil.ParseStoppedEventOutput(m)
	if stoppedOutput.exited {
		process.setExited(stoppedOutput.exitCode)
		g.emit(NewProcessStateEvent(StateExited, false))
		return
	}
	process.setStopped(stoppedOutput)
	g.emit(NewProcessStateEvent(StateStopped, false))
}

// processRunningData 处理gdb返回的running事件
func (g *GDBDebugger) processRunningData() {
	process := g.currentProcess()
	if process == nil {
		return
	}
	if process.setRunning() {
		g.emit(NewProcessStateEvent(StateRunning, false))
	}
}

func (g *GDBDebugger) processNotifyData(class string, payload any) {
	switch class {
	case "library-loaded":
		g.emit(NewModulesLoadedEvent(g.GdbOutputUtil.ParseLibraryLoaded(payload)))
	case "breakpoint-modified":
		target := g.currentTarget()
		if target == nil {
			return
		}
		bkpt := g.GdbOutputUtil.GetInterfaceFromMap(payload, "bkpt")
		if id, changed := target.updateBreakpoint(bkpt); changed {
			g.emit(NewBreakpointChangedEvent(id))
		}
	case "thread-group-exited":
		process := g.currentProcess()
		if process == nil || process.State() == StateExited || process.State() == StateDetached {
			return
		}
		process.setExited(g.GdbOutputUtil.ParseExitCode(g.GdbOutputUtil.GetStringFromMap(payload, "exit-code")))
		g.emit(NewProcessStateEvent(StateExited, false))
	}
}

func (g *GDBDebugger) currentTarget() *gdbTarget {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.target
}

func (g *GDBDebugger) currentProcess() *gdbProcess {
	target := g.currentTarget()
	if target == nil {
		return nil
	}
	return target.currentProcess()
}

func (g *GDBDebugger) sendWithTimeOut(timeout time.Duration, operation string, args ...string) (map[string]any, error) {
	m, err := g.GDB.SendWithTimeout(timeout, operation, args...)
	if err != nil {
		g.log.Debugf("[GDBDebugger] %s fail, err = %v", operation, err)
	}
	return m, err
}
