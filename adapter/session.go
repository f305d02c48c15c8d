package adapter

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/fansqz/go-debug-adapter/adapter/disassembly"
	"github.com/fansqz/go-debug-adapter/adapter/handles"
	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// DebuggerFactory 在initialize时创建调试引擎
type DebuggerFactory func(ctx context.Context, log *logrus.Entry) (debugger.Debugger, error)

// Session
// 一个IDE连接对应的调试会话。
// 请求处理和引擎事件处理都经过lock串行化，handler执行期间不会被其他handler打断。
type Session struct {
	lock sync.Mutex
	ctx  context.Context
	log  *logrus.Entry
	// send 写出响应和事件，实现方需要保证顺序
	send        func(message dap.Message)
	newDebugger DebuggerFactory

	debugger debugger.Debugger
	target   debugger.Target
	process  debugger.Process
	status   *utils.StatusManager
	// pending 等待configurationDone的launch/attach请求，最多一个
	pending *deferredRequest
	config  *protocol.CommonConfig
	// launched 进程是否由adapter启动，决定结束时kill还是detach
	launched bool

	handles     *handles.HandleTree[container]
	disassembly *disassembly.Index
	sourceMap   *source_map.SourceMap
	breakpoints *BreakpointTable
	bridge      *EventBridge

	selectedThread int
	knownThreads   []int
	pendingModules []*debugger.Module
	pauseRequested bool
	fileExists     map[string]bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(ctx context.Context, newDebugger DebuggerFactory, send func(message dap.Message)) *Session {
	log := logrus.WithField("session", utils.GetUUID())
	sourceMap, _ := source_map.New(nil)
	return &Session{
		ctx:         ctx,
		log:         log,
		send:        send,
		newDebugger: newDebugger,
		status:      utils.NewStatusManager(),
		handles:     handles.NewHandleTree[container](),
		sourceMap:   sourceMap,
		breakpoints: NewBreakpointTable(log),
		fileExists:  make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Done 会话结束（disconnect/terminate）后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// HandleMessage 处理IDE发来的一条消息
func (s *Session) HandleMessage(message dap.Message) {
	s.lock.Lock()
	defer s.lock.Unlock()
	switch m := message.(type) {
	case *protocol.UnknownMessage:
		s.log.Warnf("[Session] unknown message: %v, %s", m.Err, string(m.Raw))
		if command := m.Command(); command != "" {
			s.send(protocol.NewErrorResponse(m.GetSeq(), command,
				&e.DebugError{Kind: e.KindInternal, Message: fmt.Sprintf("%s is not yet supported", command), Err: e.ErrNotImplemented}))
		}
	case dap.RequestMessage:
		s.handleRequest(m)
	default:
		s.log.Debugf("[Session] ignore message %#v", message)
	}
}

func (s *Session) handleRequest(request dap.RequestMessage) {
	req := request.GetRequest()
	s.log.Debugf("[Session] request %s seq=%d", req.Command, req.Seq)
	response, err := s.dispatchRequest(request)
	if err != nil {
		s.log.Warnf("[Session] %s failed: %v", req.Command, err)
		s.send(protocol.NewErrorResponse(req.Seq, req.Command, err))
		return
	}
	if response != nil {
		s.send(response)
	}
	if s.status.Is(utils.Terminated) {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// dispatchRequest 返回nil响应且没有错误表示响应被延迟
func (s *Session) dispatchRequest(request dap.Message) (response dap.ResponseMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("[Session] panic: %v\n%s", r, debug.Stack())
			response = nil
			err = e.NewInternalError("internal error: %v", r)
		}
	}()
	switch request := request.(type) {
	case *dap.InitializeRequest:
		return s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		return s.onLaunchRequest(request)
	case *dap.AttachRequest:
		return s.onAttachRequest(request)
	case *dap.SetBreakpointsRequest:
		return s.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		return s.onSetFunctionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		return s.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		return s.onConfigurationDoneRequest(request)
	case *dap.ThreadsRequest:
		return s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		return s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		return s.onScopesRequest(request)
	case *dap.VariablesRequest:
		return s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		return s.onEvaluateRequest(request)
	case *dap.PauseRequest:
		return s.onPauseRequest(request)
	case *dap.ContinueRequest:
		return s.onContinueRequest(request)
	case *dap.NextRequest:
		return s.onNextRequest(request)
	case *dap.StepInRequest:
		return s.onStepInRequest(request)
	case *dap.StepOutRequest:
		return s.onStepOutRequest(request)
	case *dap.SourceRequest:
		return s.onSourceRequest(request)
	case *protocol.DisconnectRequest:
		return s.onDisconnectRequest(&request.DisconnectRequest, request.TerminateDebuggee)
	case *dap.DisconnectRequest:
		var terminateDebuggee *bool
		if request.Arguments != nil && request.Arguments.TerminateDebuggee {
			terminateDebuggee = &request.Arguments.TerminateDebuggee
		}
		return s.onDisconnectRequest(request, terminateDebuggee)
	case *dap.TerminateRequest:
		return s.onTerminateRequest(request)
	default:
		command := ""
		if r, ok := request.(dap.RequestMessage); ok {
			command = r.GetRequest().Command
		}
		return nil, &e.DebugError{
			Kind:    e.KindInternal,
			Message: fmt.Sprintf("%s is not yet supported", command),
			Err:     e.ErrNotImplemented,
		}
	}
}

func (s *Session) getTarget() (debugger.Target, error) {
	if s.target == nil {
		return nil, e.ErrNotInitialized
	}
	return s.target, nil
}

func (s *Session) getProcess() (debugger.Process, error) {
	if s.process == nil {
		return nil, e.ErrNotInitialized
	}
	return s.process, nil
}

// stoppedProcess 需要进程处于暂停状态的请求使用
func (s *Session) stoppedProcess() (debugger.Process, error) {
	process, err := s.getProcess()
	if err != nil {
		return nil, err
	}
	if process.State() == debugger.StateRunning {
		return nil, e.ErrProcessRunning
	}
	return process, nil
}

func (s *Session) sendEvent(event dap.EventMessage) {
	s.send(event)
}

func (s *Session) sendOutput(category, output string) {
	s.send(protocol.NewOutputEvent(category, output))
}

// localFileExists 判断映射后的本地文件是否存在，结果缓存
func (s *Session) localFileExists(path string) bool {
	if exists, ok := s.fileExists[path]; ok {
		return exists
	}
	_, err := os.Stat(path)
	exists := err == nil
	s.fileExists[path] = exists
	return exists
}

// Close 连接断开时释放引擎资源
func (s *Session) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.shutdown(nil)
	s.doneOnce.Do(func() { close(s.done) })
}

// shutdown 停止事件监听，结束或分离进程，关闭引擎
func (s *Session) shutdown(terminateDebuggee *bool) {
	if s.status.Is(utils.Terminated) {
		return
	}
	if s.bridge != nil {
		s.bridge.Stop()
	}
	if s.process != nil {
		kill := s.launched
		if terminateDebuggee != nil {
			kill = *terminateDebuggee
		}
		state := s.process.State()
		if state != debugger.StateExited && state != debugger.StateDetached {
			var err error
			if kill {
				err = s.process.Kill()
			} else {
				err = s.process.Detach()
			}
			if err != nil {
				s.log.Warnf("[Session] shutdown process: %v", err)
			}
		}
	}
	if s.debugger != nil {
		if err := s.debugger.Close(); err != nil {
			s.log.Warnf("[Session] close debugger: %v", err)
		}
	}
	s.status.Set(utils.Terminated)
}
