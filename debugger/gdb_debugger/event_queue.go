package gdb_debugger

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	. "github.com/fansqz/go-debug-adapter/debugger"
)

// eventQueue 引擎事件队列，push不会阻塞gdb输出的读取。
// 只有被调试程序的输出有上限，超过maxOutputs时丢弃；状态、模块和断点事件总是保留，且保持顺序。
type eventQueue struct {
	lock       sync.Mutex
	queue      *linkedlistqueue.Queue
	outputs    int
	maxOutputs int
	notify     chan struct{}
}

func newEventQueue(maxOutputs int) *eventQueue {
	return &eventQueue{
		queue:      linkedlistqueue.New(),
		maxOutputs: maxOutputs,
		notify:     make(chan struct{}, 1),
	}
}

// push 投递事件，输出事件被丢弃时返回false
func (q *eventQueue) push(event *Event) bool {
	q.lock.Lock()
	if event.Type == ProcessOutputEvent {
		if q.outputs >= q.maxOutputs {
			q.lock.Unlock()
			return false
		}
		q.outputs++
	}
	q.queue.Enqueue(event)
	q.lock.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *eventQueue) tryPop() (*Event, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	value, ok := q.queue.Dequeue()
	if !ok {
		return nil, false
	}
	event := value.(*Event)
	if event.Type == ProcessOutputEvent {
		q.outputs--
	}
	return event, true
}

// pop 等待下一个事件，超时返回false
func (q *eventQueue) pop(timeout time.Duration) (*Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if event, ok := q.tryPop(); ok {
			return event, true
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return q.tryPop()
		}
	}
}
