package adapter

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/fansqz/go-debug-adapter/constants"
	"github.com/fansqz/go-debug-adapter/debugger"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils"
	"github.com/google/go-dap"
)

// HandleDebugEvent 处理EventBridge转发的引擎事件，与请求处理共用同一把锁。
// 事件没有响应通道，处理中的错误只记录日志。
func (s *Session) HandleDebugEvent(event *debugger.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status.Is(utils.Terminated) {
		return
	}
	s.log.Debugf("[Session] debug event: %s", event)
	switch event.Type {
	case debugger.ProcessStateChangedEvent:
		s.onProcessStateChanged(event)
	case debugger.ProcessOutputEvent:
		s.sendOutput(string(constants.OutputStdout), event.Output)
	case debugger.ConsoleOutputEvent:
		s.sendOutput(string(constants.OutputConsole), event.Output)
	case debugger.ModulesLoadedEvent:
		// 进程运行时通知IDE可能与引擎的表达式求值并发，推迟到下一次暂停
		s.pendingModules = append(s.pendingModules, event.Modules...)
	case debugger.BreakpointChangedEvent:
		s.onBreakpointChanged(event.BreakpointID)
	}
}

func (s *Session) onProcessStateChanged(event *debugger.Event) {
	if s.process == nil {
		return
	}
	switch event.State {
	case debugger.StateRunning:
		// 控制台命令等引擎自己恢复运行时没有经过beforeResume
		if !s.status.Is(utils.Running) {
			s.handles.Reset()
		}
		s.status.Set(utils.Running)
		continued := &dap.ContinuedEvent{Event: *protocol.NewEvent("continued")}
		continued.Body.ThreadId = s.selectedThread
		continued.Body.AllThreadsContinued = true
		s.sendEvent(continued)
	case debugger.StateStopped:
		if !event.Restarted {
			s.notifyProcessStopped()
		}
	case debugger.StateCrashed:
		s.notifyProcessStopped()
	case debugger.StateExited:
		exited := &dap.ExitedEvent{Event: *protocol.NewEvent("exited")}
		exited.Body.ExitCode = s.process.ExitStatus()
		s.sendEvent(exited)
		s.sendEvent(&dap.TerminatedEvent{Event: *protocol.NewEvent("terminated")})
	case debugger.StateDetached:
		s.sendEvent(&dap.TerminatedEvent{Event: *protocol.NewEvent("terminated")})
	}
}

// notifyProcessStopped 选出停止的线程并发送stopped事件
func (s *Session) notifyProcessStopped() {
	s.status.Set(utils.Stopped)
	s.flushModules()
	s.diffThreads()

	pauseRequested := s.pauseRequested
	s.pauseRequested = false

	thread := s.findStoppedThread()
	stopped := &dap.StoppedEvent{Event: *protocol.NewEvent("stopped")}
	stopped.Body.AllThreadsStopped = true
	if thread == nil {
		stopped.Body.Reason = string(constants.UnknownStopped)
		s.sendEvent(stopped)
		return
	}
	s.selectedThread = thread.ID()
	stopped.Body.ThreadId = thread.ID()

	switch thread.StopReason() {
	case debugger.StopReasonBreakpoint:
		stopped.Body.Reason = string(constants.BreakpointStopped)
		if id := thread.StopBreakpointID(); id > 0 {
			stopped.Body.HitBreakpointIds = []int{id}
		}
		if info, ok := s.breakpoints.Get(thread.StopBreakpointID()); ok {
			if info.LogMessage != "" {
				s.emitLogMessage(thread, info)
				s.beforeResume()
				if err := s.process.Resume(); err != nil {
					s.log.Errorf("[Session] resume after log point: %v", err)
				}
				return
			}
			if info.Kind == constants.ExceptionBreakpoint {
				stopped.Body.Reason = string(constants.ExceptionStopped)
				stopped.Body.Text = info.Filter
			}
		}
	case debugger.StopReasonTrace, debugger.StopReasonPlanComplete:
		stopped.Body.Reason = string(constants.StepStopped)
	case debugger.StopReasonWatchpoint:
		stopped.Body.Reason = string(constants.DataBreakpointStoped)
		stopped.Body.Text = thread.StopDescription()
	case debugger.StopReasonSignal:
		stopped.Body.Reason = string(constants.SignalStopped)
		if pauseRequested {
			stopped.Body.Reason = string(constants.PauseStopped)
		}
		stopped.Body.Text = thread.StopDescription()
	case debugger.StopReasonException, debugger.StopReasonInstrumentation:
		stopped.Body.Reason = string(constants.ExceptionStopped)
		stopped.Body.Text = thread.StopDescription()
	}
	stopped.Body.Description = stopped.Body.Text
	s.sendEvent(stopped)
}

// findStoppedThread 优先检查上一次选中的线程，否则找到第一个有停止原因的线程
func (s *Session) findStoppedThread() debugger.Thread {
	if thread := s.process.ThreadByID(s.selectedThread); thread != nil && thread.StopReason().Actionable() {
		return thread
	}
	for _, thread := range s.process.Threads() {
		if thread.StopReason().Actionable() {
			return thread
		}
	}
	return nil
}

// diffThreads 与上一次暂停时的线程集合对比，发送thread事件
func (s *Session) diffThreads() {
	var current []int
	for _, thread := range s.process.Threads() {
		current = append(current, thread.ID())
	}
	for _, id := range utils.Difference(s.knownThreads, current) {
		s.sendThreadEvent(constants.ThreadExited, id)
	}
	for _, id := range utils.Difference(current, s.knownThreads) {
		s.sendThreadEvent(constants.ThreadStarted, id)
	}
	sort.Ints(current)
	s.knownThreads = current
}

func (s *Session) sendThreadEvent(reason constants.ThreadReasonType, id int) {
	event := &dap.ThreadEvent{Event: *protocol.NewEvent("thread")}
	event.Body.Reason = string(reason)
	event.Body.ThreadId = id
	s.sendEvent(event)
}

func (s *Session) flushModules() {
	for _, module := range s.pendingModules {
		event := &dap.ModuleEvent{Event: *protocol.NewEvent("module")}
		event.Body.Reason = "new"
		event.Body.Module = dap.Module{Id: module.ID, Name: module.Name, Path: module.Path}
		s.sendEvent(event)
	}
	s.pendingModules = nil
}

var logMessageRegexp = regexp.MustCompile(`\{([^{}]*)\}`)

// emitLogMessage 计算日志点消息中{expr}的值并输出
func (s *Session) emitLogMessage(thread debugger.Thread, info *BreakpointInfo) {
	var frame debugger.Frame
	if frames, err := thread.Frames(); err == nil && len(frames) > 0 {
		frame = frames[0]
	}
	message := logMessageRegexp.ReplaceAllStringFunc(info.LogMessage, func(segment string) string {
		expression := segment[1 : len(segment)-1]
		if frame == nil {
			return "<no frame>"
		}
		value, err := frame.Evaluate(expression)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return formatValue(value)
	})
	s.sendOutput(string(constants.OutputConsole), message+"\n")
}
