package adapter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fansqz/go-debug-adapter/debugger"
	"github.com/fansqz/go-debug-adapter/debugger/mock_debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHelper 测试辅助结构体，通过mock引擎驱动会话
type testHelper struct {
	t        *testing.T
	session  *Session
	engine   *mock_debugger.MockDebugger
	messages chan dap.Message
	seq      int
}

func newTestHelper(t *testing.T) *testHelper {
	engine := mock_debugger.NewMockDebugger()
	messages := make(chan dap.Message, 256)
	session := NewSession(context.Background(),
		func(ctx context.Context, log *logrus.Entry) (debugger.Debugger, error) {
			return engine, nil
		},
		func(message dap.Message) {
			messages <- message
		})
	h := &testHelper{t: t, session: session, engine: engine, messages: messages}
	t.Cleanup(session.Close)
	return h
}

func newRequest(command string) dap.Request {
	return dap.Request{ProtocolMessage: dap.ProtocolMessage{Type: "request"}, Command: command}
}

// send 发送请求，返回请求的seq
func (h *testHelper) send(request dap.RequestMessage) int {
	h.seq++
	request.GetRequest().Seq = h.seq
	h.session.HandleMessage(request)
	return h.seq
}

func (h *testHelper) nextMessage() dap.Message {
	select {
	case m := <-h.messages:
		return m
	case <-time.After(2 * time.Second):
		h.t.Fatal("timeout waiting for message")
		return nil
	}
}

func (h *testHelper) expectResponse(command string, requestSeq int) dap.ResponseMessage {
	m := h.nextMessage()
	response, ok := m.(dap.ResponseMessage)
	require.True(h.t, ok, "expected response, got %#v", m)
	assert.Equal(h.t, command, response.GetResponse().Command)
	assert.Equal(h.t, requestSeq, response.GetResponse().RequestSeq)
	return response
}

// waitForEvent 跳过其他事件，直到收到指定的事件
func (h *testHelper) waitForEvent(expectedEvent string) dap.EventMessage {
	for {
		m := h.nextMessage()
		if event, ok := m.(dap.EventMessage); ok && event.GetEvent().Event == expectedEvent {
			return event
		}
		if _, ok := m.(dap.ResponseMessage); ok {
			h.t.Fatalf("unexpected response while waiting for %s: %#v", expectedEvent, m)
		}
	}
}

func (h *testHelper) assertNoMessage() {
	select {
	case m := <-h.messages:
		h.t.Fatalf("unexpected message %#v", m)
	default:
	}
}

func (h *testHelper) initialize() {
	seq := h.send(&dap.InitializeRequest{Request: newRequest("initialize")})
	h.expectResponse("initialize", seq)
}

// launch 完成initialize、launch和configurationDone
func (h *testHelper) launch(arguments string) *mock_debugger.MockProcess {
	h.initialize()
	launchSeq := h.send(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: json.RawMessage(arguments)})
	h.waitForEvent("initialized")
	doneSeq := h.send(&dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	h.expectResponse("launch", launchSeq)
	h.expectResponse("configurationDone", doneSeq)
	return h.engine.Target.MockProcess()
}

// stop 模拟进程暂停
func (h *testHelper) stop(process *mock_debugger.MockProcess) *dap.StoppedEvent {
	process.SetState(debugger.StateStopped, 0)
	h.session.HandleDebugEvent(debugger.NewProcessStateEvent(debugger.StateStopped, false))
	return h.waitForEvent("stopped").(*dap.StoppedEvent)
}

func writeSource(t *testing.T, name string) string {
	dir := t.TempDir()
	file := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte("int main() {}\n"), 0o644))
	return file
}

func TestTwoPhaseLaunch(t *testing.T) {
	h := newTestHelper(t)
	h.initialize()

	launchSeq := h.send(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: json.RawMessage(`{"program": "/tmp/a.out"}`)})
	h.waitForEvent("initialized")
	h.assertNoMessage()
	assert.Equal(t, "/tmp/a.out", h.engine.Target.Program)

	// 进程还没有启动
	stackSeq := h.send(&dap.StackTraceRequest{Request: newRequest("stackTrace"), Arguments: dap.StackTraceArguments{ThreadId: 1}})
	response := h.expectResponse("stackTrace", stackSeq).(*dap.ErrorResponse)
	assert.False(t, response.Success)
	assert.Equal(t, e.KindNotInitialized.Code(), response.Body.Error.Id)
	assert.Nil(t, h.engine.Target.LaunchInfo)

	doneSeq := h.send(&dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	launchResponse := h.expectResponse("launch", launchSeq)
	assert.True(t, launchResponse.GetResponse().Success)
	h.expectResponse("configurationDone", doneSeq)
	h.assertNoMessage()
	assert.NotNil(t, h.engine.Target.LaunchInfo)
	assert.NotNil(t, h.engine.Target.MockProcess())

	// 没有等待中的请求时configurationDone直接成功
	doneSeq = h.send(&dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	assert.True(t, h.expectResponse("configurationDone", doneSeq).GetResponse().Success)
	h.assertNoMessage()
}

func TestLaunchFailureReportedOnLaunchSeq(t *testing.T) {
	h := newTestHelper(t)
	h.initialize()
	h.engine.Target.LaunchErr = assert.AnError

	launchSeq := h.send(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: json.RawMessage(`{"program": "/tmp/a.out"}`)})
	h.waitForEvent("initialized")
	doneSeq := h.send(&dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})

	launchResponse := h.expectResponse("launch", launchSeq).(*dap.ErrorResponse)
	assert.Equal(t, e.KindEngine.Code(), launchResponse.Body.Error.Id)
	assert.True(t, h.expectResponse("configurationDone", doneSeq).GetResponse().Success)
}

func TestLaunchInvalidSourceMap(t *testing.T) {
	h := newTestHelper(t)
	h.initialize()
	seq := h.send(&dap.LaunchRequest{Request: newRequest("launch"),
		Arguments: json.RawMessage(`{"program": "/tmp/a.out", "sourceMap": {"/build/[*": "/src"}}`)})
	response := h.expectResponse("launch", seq).(*dap.ErrorResponse)
	assert.Equal(t, e.KindUser.Code(), response.Body.Error.Id)
	assert.True(t, response.Body.Error.ShowUser)
}

func TestAttachDetachesOnDisconnect(t *testing.T) {
	h := newTestHelper(t)
	h.initialize()
	attachSeq := h.send(&dap.AttachRequest{Request: newRequest("attach"), Arguments: json.RawMessage(`{"pid": "321"}`)})
	h.waitForEvent("initialized")
	doneSeq := h.send(&dap.ConfigurationDoneRequest{Request: newRequest("configurationDone")})
	h.expectResponse("attach", attachSeq)
	h.expectResponse("configurationDone", doneSeq)
	assert.Equal(t, 321, h.engine.Target.AttachInfo.PID)

	seq := h.send(&dap.DisconnectRequest{Request: newRequest("disconnect"), Arguments: &dap.DisconnectArguments{}})
	h.expectResponse("disconnect", seq)
	process := h.engine.Target.MockProcess()
	assert.True(t, process.Detached)
	assert.False(t, process.Killed)
	assert.True(t, h.engine.Closed)
	select {
	case <-h.session.Done():
	default:
		t.Fatal("session should be done after disconnect")
	}
}

func TestConsoleCommands(t *testing.T) {
	h := newTestHelper(t)
	h.engine.CommandOutput = func(command string) (string, error) {
		return "ok " + command, nil
	}
	h.launch(`{"program": "/tmp/a.out", "initCommands": ["set print pretty on"], "exitCommands": ["info sharedlibrary"]}`)
	assert.Equal(t, []string{"set print pretty on"}, h.engine.Commands)

	seq := h.send(&dap.EvaluateRequest{Request: newRequest("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: "`info threads", Context: "repl"}})
	response := h.expectResponse("evaluate", seq).(*dap.EvaluateResponse)
	assert.Equal(t, "ok info threads", response.Body.Result)

	seq = h.send(&dap.TerminateRequest{Request: newRequest("terminate")})
	h.waitForEvent("output")
	h.waitForEvent("output")
	h.expectResponse("terminate", seq)
	assert.Equal(t, "info sharedlibrary", h.engine.Commands[len(h.engine.Commands)-1])
	assert.True(t, h.engine.Target.MockProcess().Killed)
}

func TestUnsupportedRequests(t *testing.T) {
	h := newTestHelper(t)
	h.initialize()

	seq := h.send(&dap.RestartFrameRequest{Request: newRequest("restartFrame")})
	response := h.expectResponse("restartFrame", seq).(*dap.ErrorResponse)
	assert.False(t, response.Success)
	assert.Contains(t, response.Body.Error.Format, "not yet supported")

	h.session.HandleMessage(&protocol.UnknownMessage{
		Raw: json.RawMessage(`{"seq":99,"type":"request","command":"frobnicate"}`),
		Err: assert.AnError,
	})
	h.expectResponse("frobnicate", 99)

	// 会话继续处理后续请求
	seq = h.send(&dap.ThreadsRequest{Request: newRequest("threads")})
	assert.True(t, h.expectResponse("threads", seq).GetResponse().Success)
}

func TestDisconnectWithoutTerminateDetachesLaunchedProcess(t *testing.T) {
	h := newTestHelper(t)
	process := h.launch(`{"program": "/tmp/a.out"}`)

	terminate := false
	request := &protocol.DisconnectRequest{
		DisconnectRequest: dap.DisconnectRequest{Request: newRequest("disconnect"), Arguments: &dap.DisconnectArguments{}},
		TerminateDebuggee: &terminate,
	}
	seq := h.send(request)
	h.expectResponse("disconnect", seq)
	assert.True(t, process.Detached)
	assert.False(t, process.Killed)
}
