package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/fansqz/go-debug-adapter/adapter"
	"github.com/fansqz/go-debug-adapter/debugger"
	"github.com/fansqz/go-debug-adapter/debugger/gdb_debugger"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils/gosync"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// connectTimeout 反向连接IDE的最长重试时间
const connectTimeout = 10 * time.Second

// Server 负责传输层：监听端口、stdio或反向连接，每个连接对应一个调试会话
type Server struct {
	gdbPath string
}

func NewServer(gdbPath string) *Server {
	return &Server{gdbPath: gdbPath}
}

// newDebugger 会话收到initialize后创建gdb引擎
func (s *Server) newDebugger(ctx context.Context, log *logrus.Entry) (debugger.Debugger, error) {
	return gdb_debugger.NewGDBDebugger(ctx, log, s.gdbPath)
}

// ServeStdio 通过stdin/stdout服务单个会话
func (s *Server) ServeStdio(ctx context.Context) error {
	logrus.Infof("[Server] serving on stdio")
	s.serve(ctx, os.Stdin, os.Stdout)
	return nil
}

// Listen 监听端口。multiSession为false时第一个连接结束后退出
func (s *Server) Listen(ctx context.Context, port int, multiSession bool) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	defer listener.Close()
	logrus.Infof("[Server] listening on %s", listener.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		logrus.Infof("[Server] accept connection from %s", conn.RemoteAddr())
		if !multiSession {
			s.serve(ctx, conn, conn)
			_ = conn.Close()
			return nil
		}
		wg.Add(1)
		gosync.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			defer conn.Close()
			s.serve(ctx, conn, conn)
		})
	}
}

// Connect 主动连接正在等待的IDE，连接失败时指数退避重试
func (s *Server) Connect(ctx context.Context, address string) error {
	var conn net.Conn
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(200*time.Millisecond),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.1),
		backoff.WithMaxElapsedTime(connectTimeout),
	)
	err := backoff.Retry(func() error {
		var err error
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", address)
		if err != nil {
			logrus.Debugf("[Server] connect %s fail, err = %v", address, err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close()
	logrus.Infof("[Server] connected to %s", address)
	s.serve(ctx, conn, conn)
	return nil
}

// serve 读取消息交给会话处理，直到连接断开或会话结束
func (s *Server) serve(ctx context.Context, r io.Reader, w io.Writer) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sender := newSendQueue(protocol.NewWriter(w))
	gosync.Go(ctx, sender.run)
	defer sender.close()

	session := adapter.NewSession(ctx, s.newDebugger, sender.push)
	defer session.Close()

	messages := make(chan dap.Message)
	readErr := make(chan error, 1)
	gosync.Go(ctx, func(ctx context.Context) {
		reader := bufio.NewReader(r)
		for {
			message, err := protocol.ReadMessage(reader)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- message:
			case <-ctx.Done():
				return
			}
		}
	})

	for {
		select {
		case message := <-messages:
			session.HandleMessage(message)
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				logrus.Infof("[Server] connection closed")
			} else {
				logrus.Errorf("[Server] read message fail, err = %v", err)
			}
			return
		case <-session.Done():
			logrus.Infof("[Server] session finished")
			return
		case <-ctx.Done():
			return
		}
	}
}

// sendQueue 无界发送队列，会话持锁调用push时不会被写连接阻塞
type sendQueue struct {
	writer *protocol.Writer
	lock   sync.Mutex
	cond   *sync.Cond
	queue  *linkedlistqueue.Queue
	closed bool
	done   chan struct{}
}

func newSendQueue(writer *protocol.Writer) *sendQueue {
	q := &sendQueue{writer: writer, queue: linkedlistqueue.New(), done: make(chan struct{})}
	q.cond = sync.NewCond(&q.lock)
	return q
}

func (q *sendQueue) push(message dap.Message) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		return
	}
	q.queue.Enqueue(message)
	q.cond.Signal()
}

// close 等待剩余消息写完
func (q *sendQueue) close() {
	q.lock.Lock()
	q.closed = true
	q.cond.Signal()
	q.lock.Unlock()
	<-q.done
}

func (q *sendQueue) run(_ context.Context) {
	defer close(q.done)
	for {
		q.lock.Lock()
		for q.queue.Empty() && !q.closed {
			q.cond.Wait()
		}
		value, ok := q.queue.Dequeue()
		q.lock.Unlock()
		if !ok {
			return
		}
		if err := q.writer.WriteMessage(value.(dap.Message)); err != nil {
			logrus.Errorf("[Server] write message fail, err = %v", err)
		}
	}
}
