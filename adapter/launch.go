package adapter

import (
	"fmt"
	"strings"

	"github.com/fansqz/go-debug-adapter/adapter/disassembly"
	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/constants"
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils"
	"github.com/google/go-dap"
)

type deferredKind int

const (
	deferredLaunch deferredKind = iota
	deferredAttach
)

// deferredRequest 等待configurationDone才能完成的launch/attach请求
type deferredRequest struct {
	kind    deferredKind
	seq     int
	command string
	launch  *protocol.LaunchConfig
	attach  *protocol.AttachConfig
}

func (s *Session) onInitializeRequest(request *dap.InitializeRequest) (dap.ResponseMessage, error) {
	if s.debugger == nil {
		d, err := s.newDebugger(s.ctx, s.log)
		if err != nil {
			return nil, e.NewEngineError(err)
		}
		s.debugger = d
		s.bridge = NewEventBridge(d.Listener(), s.HandleDebugEvent)
		s.bridge.Start(s.ctx)
	}
	s.status.Set(utils.Initialized)

	response := &dap.InitializeResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsLogPoints = true
	response.Body.SupportsDelayedStackTraceLoading = true
	response.Body.SupportsSteppingGranularity = true
	response.Body.SupportsTerminateRequest = true
	response.Body.SupportTerminateDebuggee = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{
		{Filter: constants.FilterCppThrow, Label: "C++: on throw", Default: true},
		{Filter: constants.FilterCppCatch, Label: "C++: on catch"},
		{Filter: constants.FilterRustPanic, Label: "Rust: on panic", Default: true},
	}
	return response, nil
}

func (s *Session) onLaunchRequest(request *dap.LaunchRequest) (dap.ResponseMessage, error) {
	config, err := protocol.ParseLaunchConfig(request.Arguments)
	if err != nil {
		return nil, err
	}
	if err := s.createTarget(&config.CommonConfig, config.Program); err != nil {
		return nil, err
	}
	s.pending = &deferredRequest{kind: deferredLaunch, seq: request.Seq, command: request.Command, launch: config}
	return nil, nil
}

func (s *Session) onAttachRequest(request *dap.AttachRequest) (dap.ResponseMessage, error) {
	config, err := protocol.ParseAttachConfig(request.Arguments)
	if err != nil {
		return nil, err
	}
	if err := s.createTarget(&config.CommonConfig, config.Program); err != nil {
		return nil, err
	}
	s.pending = &deferredRequest{kind: deferredAttach, seq: request.Seq, command: request.Command, attach: config}
	return nil, nil
}

// createTarget launch/attach的第一阶段：创建target并通知IDE开始发送配置
func (s *Session) createTarget(config *protocol.CommonConfig, program string) error {
	if s.debugger == nil {
		return e.ErrNotInitialized
	}
	if s.pending != nil {
		return e.NewUserError("%s is already in progress", s.pending.command)
	}
	sourceMap, err := source_map.New(config.SourceMap)
	if err != nil {
		return err
	}
	s.sourceMap = sourceMap
	s.config = config
	if err := s.runCommands(config.InitCommands); err != nil {
		return err
	}
	target, err := s.debugger.CreateTarget(s.ctx, program)
	if err != nil {
		return e.NewEngineError(err)
	}
	s.target = target
	s.disassembly = disassembly.NewIndex(target)
	s.status.Set(utils.ConfiguringTarget)
	s.log.Infof("[Session] target created: %s", program)
	s.sendEvent(&dap.InitializedEvent{Event: *protocol.NewEvent("initialized")})
	return nil
}

func (s *Session) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) (dap.ResponseMessage, error) {
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	pending := s.pending
	if pending == nil {
		return response, nil
	}
	s.pending = nil
	deferred, err := s.completeDeferred(pending)
	if err != nil {
		s.log.Warnf("[Session] %s failed: %v", pending.command, err)
		s.send(protocol.NewErrorResponse(pending.seq, pending.command, err))
	} else {
		s.send(deferred)
	}
	return response, nil
}

// completeDeferred launch/attach的第二阶段：真正启动进程
func (s *Session) completeDeferred(pending *deferredRequest) (dap.ResponseMessage, error) {
	target, err := s.getTarget()
	if err != nil {
		return nil, err
	}
	if err := s.runCommands(s.config.PreRunCommands); err != nil {
		return nil, err
	}
	var process debugger.Process
	switch pending.kind {
	case deferredLaunch:
		config := pending.launch
		process, err = target.Launch(s.ctx, &debugger.LaunchInfo{
			Args:        config.Args,
			Env:         config.Env,
			Cwd:         config.Cwd,
			StopOnEntry: config.StopOnEntry,
			Terminal:    config.Terminal,
		})
		s.launched = true
	case deferredAttach:
		config := pending.attach
		process, err = target.Attach(s.ctx, &debugger.AttachInfo{
			PID:     config.PID,
			Program: config.Program,
			WaitFor: config.WaitFor,
		})
		s.launched = false
	default:
		return nil, e.NewInternalError("unexpected deferred request %d", pending.kind)
	}
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	s.process = process
	s.status.Set(utils.Running)
	s.log.Infof("[Session] process %d started", process.PID())
	if err := s.runCommands(s.config.PostRunCommands); err != nil {
		s.log.Warnf("[Session] postRunCommands: %v", err)
	}

	if pending.kind == deferredLaunch {
		response := &dap.LaunchResponse{}
		response.Response = *protocol.NewResponse(pending.seq, pending.command)
		return response, nil
	}
	response := &dap.AttachResponse{}
	response.Response = *protocol.NewResponse(pending.seq, pending.command)
	return response, nil
}

// runCommands 执行配置中的调试器命令，输出作为console输出
func (s *Session) runCommands(commands []string) error {
	for _, command := range commands {
		s.sendOutput(string(constants.OutputConsole), fmt.Sprintf("> %s\n", command))
		output, err := s.debugger.HandleCommand(s.ctx, command)
		if output != "" {
			if !strings.HasSuffix(output, "\n") {
				output += "\n"
			}
			s.sendOutput(string(constants.OutputConsole), output)
		}
		if err != nil {
			return e.NewEngineError(err)
		}
	}
	return nil
}

// onDisconnectRequest terminateDebuggee为nil时launch的进程被结束，attach的进程被分离
func (s *Session) onDisconnectRequest(request *dap.DisconnectRequest, terminateDebuggee *bool) (dap.ResponseMessage, error) {
	s.disconnect(terminateDebuggee)
	response := &dap.DisconnectResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	return response, nil
}

func (s *Session) onTerminateRequest(request *dap.TerminateRequest) (dap.ResponseMessage, error) {
	terminate := true
	s.disconnect(&terminate)
	response := &dap.TerminateResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	return response, nil
}

func (s *Session) disconnect(terminateDebuggee *bool) {
	s.pending = nil
	if s.config != nil && s.debugger != nil {
		if err := s.runCommands(s.config.ExitCommands); err != nil {
			s.log.Warnf("[Session] exitCommands: %v", err)
		}
	}
	s.shutdown(terminateDebuggee)
}
