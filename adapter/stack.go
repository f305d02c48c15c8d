package adapter

import (
	"fmt"
	"path"

	"github.com/fansqz/go-debug-adapter/adapter/handles"
	"github.com/fansqz/go-debug-adapter/constants"
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/google/go-dap"
)

// container 句柄指向的对象
type container interface {
	isContainer()
}

type frameContainer struct {
	thread debugger.Thread
	frame  debugger.Frame
}

type scopeContainer struct {
	frame debugger.Frame
	name  constants.ScopeName
}

type valueContainer struct {
	value debugger.Value
}

func (frameContainer) isContainer() {}
func (scopeContainer) isContainer() {}
func (valueContainer) isContainer() {}

// handleFor 同一代中重复请求同一个对象时复用句柄
func (s *Session) handleFor(parent handles.Handle, key string, value container) handles.Handle {
	if h, ok := s.handles.Lookup(parent, key); ok {
		s.handles.Replace(h, value)
		return h
	}
	return s.handles.Create(parent, key, value)
}

func (s *Session) onThreadsRequest(request *dap.ThreadsRequest) (dap.ResponseMessage, error) {
	response := &dap.ThreadsResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Threads = []dap.Thread{}
	if s.process == nil {
		return response, nil
	}
	for _, thread := range s.process.Threads() {
		name := thread.Name()
		if name == "" {
			name = fmt.Sprintf("Thread #%d", thread.ID())
		}
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: thread.ID(), Name: name})
	}
	return response, nil
}

func (s *Session) onStackTraceRequest(request *dap.StackTraceRequest) (dap.ResponseMessage, error) {
	process, err := s.stoppedProcess()
	if err != nil {
		return nil, err
	}
	args := request.Arguments
	thread := process.ThreadByID(args.ThreadId)
	if thread == nil {
		return nil, e.NewUserError("Invalid thread id: %d", args.ThreadId)
	}
	frames, err := thread.Frames()
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	total := len(frames)
	start := min(max(args.StartFrame, 0), total)
	end := total
	if args.Levels > 0 {
		end = min(start+args.Levels, total)
	}

	stackFrames := make([]dap.StackFrame, 0, end-start)
	for _, frame := range frames[start:end] {
		key := fmt.Sprintf("[%d,%d]", thread.ID(), frame.Index())
		handle := s.handleFor(0, key, &frameContainer{thread: thread, frame: frame})
		stackFrames = append(stackFrames, s.makeStackFrame(handle, frame))
	}
	response := &dap.StackTraceResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: stackFrames,
		TotalFrames: total,
	}
	return response, nil
}

// makeStackFrame 有本地源码时使用源码位置，否则使用反汇编区间
func (s *Session) makeStackFrame(handle handles.Handle, frame debugger.Frame) dap.StackFrame {
	stackFrame := dap.StackFrame{Id: int(handle), Name: frame.FunctionName()}
	if stackFrame.Name == "" {
		stackFrame.Name = fmt.Sprintf("0x%X", frame.PC())
	}
	le := frame.LineEntry()
	var local string
	var mapped bool
	if le != nil {
		local, mapped = s.sourceMap.Resolve(le.Directory, le.File)
	}
	useDisassembly := false
	switch s.showDisassembly() {
	case constants.ShowDisassemblyAlways:
		useDisassembly = true
	case constants.ShowDisassemblyNever:
		useDisassembly = false
	default:
		useDisassembly = le == nil || !mapped || !s.localFileExists(local)
	}

	if useDisassembly && s.disassembly != nil {
		r, err := s.disassembly.FromAddress(frame.PC())
		if err == nil {
			stackFrame.Source = &dap.Source{Name: r.Name(), SourceReference: int(r.Handle), PresentationHint: "deemphasize"}
			stackFrame.Line = r.LineOf(frame.PC())
			stackFrame.Column = 0
			return stackFrame
		}
		s.log.Warnf("[Session] disassemble 0x%X: %v", frame.PC(), err)
	}
	if le != nil && mapped {
		stackFrame.Source = &dap.Source{Name: path.Base(local), Path: local}
		stackFrame.Line = le.Line
		stackFrame.Column = le.Column
	} else {
		stackFrame.PresentationHint = "subtle"
	}
	return stackFrame
}

func (s *Session) showDisassembly() constants.ShowDisassembly {
	if s.config == nil || s.config.ShowDisassembly == "" {
		return constants.ShowDisassemblyAuto
	}
	return s.config.ShowDisassembly
}

func (s *Session) onScopesRequest(request *dap.ScopesRequest) (dap.ResponseMessage, error) {
	if _, err := s.stoppedProcess(); err != nil {
		return nil, err
	}
	frameHandle := handles.Handle(request.Arguments.FrameId)
	c, ok := s.handles.Get(frameHandle)
	fc, isFrame := c.(*frameContainer)
	if !ok || !isFrame {
		return nil, fmt.Errorf("frame %d: %w", request.Arguments.FrameId, e.ErrInvalidHandle)
	}
	response := &dap.ScopesResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	for _, name := range []constants.ScopeName{constants.ScopeLocal, constants.ScopeStatic, constants.ScopeRegister} {
		handle := s.handleFor(frameHandle, string(name), &scopeContainer{frame: fc.frame, name: name})
		response.Body.Scopes = append(response.Body.Scopes, dap.Scope{
			Name:               string(name),
			VariablesReference: int(handle),
			Expensive:          name != constants.ScopeLocal,
		})
	}
	return response, nil
}

func (s *Session) onSourceRequest(request *dap.SourceRequest) (dap.ResponseMessage, error) {
	ref := request.Arguments.SourceReference
	if ref == 0 && request.Arguments.Source != nil {
		ref = request.Arguments.Source.SourceReference
	}
	if s.disassembly == nil {
		return nil, e.ErrNotInitialized
	}
	r, ok := s.disassembly.FromHandle(handles.Handle(ref))
	if !ok {
		return nil, fmt.Errorf("source reference %d: %w", ref, e.ErrInvalidHandle)
	}
	response := &dap.SourceResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Content = r.Text()
	response.Body.MimeType = "text/x-asm"
	return response, nil
}
