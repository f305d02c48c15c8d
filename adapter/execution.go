package adapter

import (
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils"
	"github.com/google/go-dap"
)

// beforeResume 必须在任何会让进程继续运行的引擎调用之前执行：
// 当前代的句柄作废，下一次暂停时同一路径的对象复用旧句柄
func (s *Session) beforeResume() {
	s.handles.Reset()
	s.status.Set(utils.Running)
}

func (s *Session) onPauseRequest(request *dap.PauseRequest) (dap.ResponseMessage, error) {
	process, err := s.getProcess()
	if err != nil {
		return nil, err
	}
	if process.State() == debugger.StateRunning {
		s.pauseRequested = true
		if err := process.Stop(); err != nil {
			s.pauseRequested = false
			return nil, e.NewEngineError(err)
		}
	}
	response := &dap.PauseResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	return response, nil
}

func (s *Session) onContinueRequest(request *dap.ContinueRequest) (dap.ResponseMessage, error) {
	process, err := s.stoppedProcess()
	if err != nil {
		return nil, err
	}
	response := &dap.ContinueResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	s.beforeResume()
	if err := process.Resume(); err != nil {
		return nil, e.NewEngineError(err)
	}
	return response, nil
}

func (s *Session) onNextRequest(request *dap.NextRequest) (dap.ResponseMessage, error) {
	thread, err := s.steppingThread(request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	response := &dap.NextResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	s.beforeResume()
	if request.Arguments.Granularity == "instruction" {
		err = thread.StepInstruction(true)
	} else {
		err = thread.StepOver()
	}
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	return response, nil
}

func (s *Session) onStepInRequest(request *dap.StepInRequest) (dap.ResponseMessage, error) {
	thread, err := s.steppingThread(request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	response := &dap.StepInResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	s.beforeResume()
	if request.Arguments.Granularity == "instruction" {
		err = thread.StepInstruction(false)
	} else {
		err = thread.StepInto()
	}
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	return response, nil
}

func (s *Session) onStepOutRequest(request *dap.StepOutRequest) (dap.ResponseMessage, error) {
	thread, err := s.steppingThread(request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	response := &dap.StepOutResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	s.beforeResume()
	if err := thread.StepOut(); err != nil {
		return nil, e.NewEngineError(err)
	}
	return response, nil
}

// steppingThread 单步的线程成为选中线程
func (s *Session) steppingThread(threadID int) (debugger.Thread, error) {
	process, err := s.stoppedProcess()
	if err != nil {
		return nil, err
	}
	thread := process.ThreadByID(threadID)
	if thread == nil {
		return nil, e.NewUserError("Invalid thread id: %d", threadID)
	}
	s.selectedThread = threadID
	return thread, nil
}
