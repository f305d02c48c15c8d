package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils/gosync"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestSendQueueKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	q := newSendQueue(protocol.NewWriter(&buf))
	gosync.Go(context.Background(), q.run)
	for i := 0; i < 10; i++ {
		q.push(&dap.OutputEvent{Event: *protocol.NewEvent("output"), Body: dap.OutputEventBody{Output: fmt.Sprint(i)}})
	}
	q.close()
	// 关闭后的消息丢弃
	q.push(&dap.InitializedEvent{Event: *protocol.NewEvent("initialized")})

	r := bufio.NewReader(&buf)
	for i := 0; i < 10; i++ {
		msg, err := protocol.ReadMessage(r)
		require.NoError(t, err)
		event, ok := msg.(*dap.OutputEvent)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprint(i), event.Body.Output)
		assert.Equal(t, i+1, event.Seq)
	}
	_, err := protocol.ReadMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeAnswersUnknownCommand(t *testing.T) {
	input := strings.NewReader(frame(`{"seq":1,"type":"request","command":"frobnicate"}`))
	var output bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewServer("gdb").serve(context.Background(), input, &output)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after EOF")
	}

	msg, err := protocol.ReadMessage(bufio.NewReader(&output))
	require.NoError(t, err)
	response, ok := msg.(*dap.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, 1, response.RequestSeq)
	assert.Equal(t, "frobnicate", response.Command)
	assert.False(t, response.Success)
}

func TestServeStopsOnMalformedFrame(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewServer("gdb").serve(context.Background(), reader, io.Discard)
	}()
	_, err := writer.Write([]byte(frame(`{"seq":1,"type":`)))
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after malformed frame")
	}
}
