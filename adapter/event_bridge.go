package adapter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fansqz/go-debug-adapter/debugger"
	"github.com/fansqz/go-debug-adapter/utils/gosync"
)

// defaultPollInterval 等待引擎事件的超时，决定取消标志被观察到的延迟
const defaultPollInterval = 200 * time.Millisecond

// EventBridge
// 在独立的goroutine中阻塞等待引擎事件，并转发给会话。
// 会话的锁保证事件与请求串行处理。
type EventBridge struct {
	listener     debugger.Listener
	handler      func(event *debugger.Event)
	pollInterval time.Duration
	cancelled    atomic.Bool
	done         chan struct{}
}

func NewEventBridge(listener debugger.Listener, handler func(event *debugger.Event)) *EventBridge {
	return &EventBridge{
		listener:     listener,
		handler:      handler,
		pollInterval: defaultPollInterval,
		done:         make(chan struct{}),
	}
}

func (b *EventBridge) Start(ctx context.Context) {
	gosync.Go(ctx, b.run)
}

func (b *EventBridge) run(ctx context.Context) {
	defer close(b.done)
	for !b.cancelled.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		event, ok := b.listener.WaitForEvent(b.pollInterval)
		if !ok || b.cancelled.Load() {
			continue
		}
		b.handler(event)
	}
}

// Stop 设置取消标志，监听循环在下一次超时后退出。
// 调用方可能持有会话锁，因此这里不等待循环结束。
func (b *EventBridge) Stop() {
	b.cancelled.Store(true)
}

// Done 监听循环退出后关闭
func (b *EventBridge) Done() <-chan struct{} {
	return b.done
}
