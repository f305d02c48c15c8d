package protocol

import (
	"github.com/google/go-dap"

	e "github.com/fansqz/go-debug-adapter/error"
)

func NewEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func NewResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

// NewErrorResponse 失败响应，ErrorMessage.Id为错误分类
func NewErrorResponse(requestSeq int, command string, err error) *dap.ErrorResponse {
	kind := e.KindOf(err)
	er := &dap.ErrorResponse{}
	er.Response = *NewResponse(requestSeq, command)
	er.Success = false
	er.Message = err.Error()
	er.Body.Error = &dap.ErrorMessage{
		Id:       kind.Code(),
		Format:   err.Error(),
		ShowUser: kind == e.KindUser || kind == e.KindEngine,
	}
	return er
}

func NewOutputEvent(category, output string) *dap.OutputEvent {
	return &dap.OutputEvent{
		Event: *NewEvent("output"),
		Body: dap.OutputEventBody{
			Category: category,
			Output:   output,
		},
	}
}
