package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

// ErrMalformedFrame 帧内容不是合法的JSON，传输层已无法同步
var ErrMalformedFrame = errors.New("malformed protocol frame")

// UnknownMessage 能解析为JSON但不是已知DAP消息的帧，保留原始内容用于诊断
type UnknownMessage struct {
	Raw json.RawMessage
	Err error
}

func (u *UnknownMessage) GetSeq() int {
	return int(gjson.GetBytes(u.Raw, "seq").Int())
}

// Command 未知请求的command字段，不是请求时为空
func (u *UnknownMessage) Command() string {
	if gjson.GetBytes(u.Raw, "type").String() != "request" {
		return ""
	}
	return gjson.GetBytes(u.Raw, "command").String()
}

// DisconnectRequest 保留terminateDebuggee的原始值。
// dap.DisconnectArguments中该字段是omitempty的bool，无法区分false和未指定
type DisconnectRequest struct {
	dap.DisconnectRequest
	// TerminateDebuggee 未指定时为nil
	TerminateDebuggee *bool
}

func newDisconnectRequest(request *dap.DisconnectRequest, raw []byte) *DisconnectRequest {
	d := &DisconnectRequest{DisconnectRequest: *request}
	if value := gjson.GetBytes(raw, "arguments.terminateDebuggee"); value.Exists() {
		terminate := value.Bool()
		d.TerminateDebuggee = &terminate
	}
	return d
}

// ReadMessage 读取一个DAP消息。
// 帧头损坏或内容不是JSON时返回错误，调用方应当关闭会话；
// 其余无法识别的消息以UnknownMessage返回。
func ReadMessage(r *bufio.Reader) (dap.Message, error) {
	data, err := dap.ReadBaseMessage(r)
	if err != nil {
		return nil, err
	}
	msg, err := dap.DecodeProtocolMessage(data)
	if err == nil {
		if disconnect, ok := msg.(*dap.DisconnectRequest); ok {
			return newDisconnectRequest(disconnect, data), nil
		}
		return msg, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &UnknownMessage{Raw: data, Err: err}, nil
}

// Writer 串行写出消息并分配递增的seq
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	seq int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteMessage(message dap.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	switch m := message.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = w.seq
	case dap.EventMessage:
		m.GetEvent().Seq = w.seq
	case dap.RequestMessage:
		m.GetRequest().Seq = w.seq
	}
	if err := dap.WriteProtocolMessage(w.w, message); err != nil {
		return err
	}
	return w.w.Flush()
}
