package gdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/fansqz/go-debug-adapter/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	ErrExited  = errors.New("gdb has exited")
	ErrTimeout = errors.New("gdb command timed out")
)

// NotificationCallback 异步记录（exec/status/notify/target/log）的回调，
// 在读取gdb输出的协程中同步调用，不能阻塞
type NotificationCallback func(record map[string]any)

// AsyncCallback 命令结果的回调
type AsyncCallback func(record map[string]any)

// Gdb 一个gdb进程的MI会话
// 被调试程序的终端是一个pty，通过Read/Write读写。
type Gdb struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	// 被调试程序的终端
	ptm *os.File
	pts *os.File

	mutex   sync.Mutex
	sending sync.Mutex
	nextID  int64
	pending map[string]AsyncCallback
	// console 两个结果之间gdb输出的控制台文本，附加到下一个结果记录的"console"字段
	console strings.Builder

	onNotification NotificationCallback
	log            *logrus.Entry
	done           chan struct{}
}

// New 使用PATH中的gdb创建会话
func New(callback NotificationCallback) (*Gdb, error) {
	return NewCmd([]string{"gdb"}, callback)
}

// NewCmd 使用指定的gdb命令行启动会话，MI解释器和被调试程序终端的参数会追加到命令行后
func NewCmd(cmd []string, callback NotificationCallback) (*Gdb, error) {
	g := &Gdb{
		pending:        make(map[string]AsyncCallback),
		onNotification: callback,
		log:            logrus.WithField("component", "gdb"),
		done:           make(chan struct{}),
	}

	// 被调试程序使用的虚拟终端
	ptm, pts, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}
	if _, err = term.MakeRaw(int(ptm.Fd())); err != nil {
		_ = ptm.Close()
		_ = pts.Close()
		return nil, fmt.Errorf("make pty raw: %w", err)
	}
	g.ptm = ptm
	g.pts = pts

	args := append(append([]string{}, cmd[1:]...), "--nx", "--quiet", "--interpreter=mi2", "--tty", pts.Name())
	g.cmd = exec.Command(cmd[0], args...)
	// gdb自身不响应终端信号，中断通过-exec-interrupt完成
	g.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if g.stdin, err = g.cmd.StdinPipe(); err != nil {
		g.closeTerminal()
		return nil, err
	}
	if g.stdout, err = g.cmd.StdoutPipe(); err != nil {
		g.closeTerminal()
		return nil, err
	}
	if err = g.cmd.Start(); err != nil {
		g.closeTerminal()
		return nil, fmt.Errorf("start gdb: %w", err)
	}
	gosync.Go(context.Background(), g.readRecords)

	// 异步模式下执行命令后立即返回^running，可以通过-exec-interrupt暂停
	if _, err = g.SendWithTimeout(10*time.Second, "gdb-set", "mi-async", "on"); err != nil {
		_ = g.Exit()
		return nil, err
	}
	return g, nil
}

// Read 读取被调试程序的输出
func (g *Gdb) Read(p []byte) (int, error) {
	return g.ptm.Read(p)
}

// Write 向被调试程序输入
func (g *Gdb) Write(p []byte) (int, error) {
	return g.ptm.Write(p)
}

// SendAsync 发送命令，结果记录到达时调用callback
func (g *Gdb) SendAsync(callback AsyncCallback, operation string, arguments ...string) error {
	select {
	case <-g.done:
		return ErrExited
	default:
	}
	g.mutex.Lock()
	g.nextID++
	token := strconv.FormatInt(g.nextID, 10)
	g.pending[token] = callback
	g.mutex.Unlock()

	var sb strings.Builder
	sb.WriteString(token)
	sb.WriteByte('-')
	sb.WriteString(operation)
	for _, argument := range arguments {
		sb.WriteByte(' ')
		sb.WriteString(argument)
	}
	sb.WriteByte('\n')
	g.log.Debugf("[gdb] send %s", strings.TrimSpace(sb.String()))

	g.sending.Lock()
	_, err := io.WriteString(g.stdin, sb.String())
	g.sending.Unlock()
	if err != nil {
		g.mutex.Lock()
		delete(g.pending, token)
		g.mutex.Unlock()
		return err
	}
	return nil
}

// Send 同步发送命令，等待结果记录。^error也作为普通结果返回
func (g *Gdb) Send(operation string, arguments ...string) (map[string]any, error) {
	return g.send(0, operation, arguments...)
}

// CheckedSend 同Send，结果为^error时返回其中的msg
func (g *Gdb) CheckedSend(operation string, arguments ...string) (map[string]any, error) {
	record, err := g.send(0, operation, arguments...)
	if err != nil {
		return nil, err
	}
	return record, checkResult(record)
}

// SendWithTimeout 同CheckedSend，超时返回ErrTimeout
func (g *Gdb) SendWithTimeout(timeout time.Duration, operation string, arguments ...string) (map[string]any, error) {
	record, err := g.send(timeout, operation, arguments...)
	if err != nil {
		return nil, err
	}
	return record, checkResult(record)
}

func (g *Gdb) send(timeout time.Duration, operation string, arguments ...string) (map[string]any, error) {
	channel := make(chan map[string]any, 1)
	err := g.SendAsync(func(record map[string]any) {
		channel <- record
	}, operation, arguments...)
	if err != nil {
		return nil, err
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case record := <-channel:
		return record, nil
	case <-g.done:
		return nil, ErrExited
	case <-expired:
		return nil, fmt.Errorf("%s: %w", operation, ErrTimeout)
	}
}

// checkResult ^error记录转换为错误
func checkResult(record map[string]any) error {
	if class, _ := record["class"].(string); class != "error" {
		return nil
	}
	payload, _ := record["payload"].(map[string]any)
	msg, _ := payload["msg"].(string)
	if msg == "" {
		msg = "unknown gdb error"
	}
	return errors.New(msg)
}

// Interrupt 暂停被调试程序
func (g *Gdb) Interrupt() error {
	_, err := g.SendWithTimeout(5*time.Second, "exec-interrupt", "--all")
	return err
}

// Exit 退出gdb并等待进程结束
func (g *Gdb) Exit() error {
	select {
	case <-g.done:
		return nil
	default:
	}
	_ = g.SendAsync(func(map[string]any) {}, "gdb-exit")
	select {
	case <-g.done:
	case <-time.After(3 * time.Second):
		if g.cmd.Process != nil {
			_ = g.cmd.Process.Kill()
		}
		<-g.done
	}
	g.closeTerminal()
	return nil
}

func (g *Gdb) closeTerminal() {
	if g.pts != nil {
		_ = g.pts.Close()
	}
	if g.ptm != nil {
		_ = g.ptm.Close()
	}
}

// readRecords 循环读取gdb的输出，结果记录交给等待中的命令，其余记录交给通知回调
func (g *Gdb) readRecords(ctx context.Context) {
	defer func() {
		_ = g.cmd.Wait()
		g.mutex.Lock()
		g.pending = make(map[string]AsyncCallback)
		g.mutex.Unlock()
		close(g.done)
	}()
	scanner := bufio.NewScanner(g.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		record, err := ParseRecord(scanner.Text())
		if err != nil {
			g.log.Warnf("[gdb] %v", err)
			continue
		}
		if record == nil {
			continue
		}
		g.dispatch(record)
	}
	if err := scanner.Err(); err != nil {
		g.log.Errorf("[gdb] read output: %v", err)
	}
}

func (g *Gdb) dispatch(record map[string]any) {
	typ, _ := record["type"].(string)
	switch typ {
	case TypeResult:
		token, _ := record["token"].(string)
		g.mutex.Lock()
		callback, ok := g.pending[token]
		delete(g.pending, token)
		record["console"] = g.console.String()
		g.console.Reset()
		g.mutex.Unlock()
		if ok && callback != nil {
			callback(record)
		}
	case TypeConsole:
		text, _ := record["payload"].(string)
		g.mutex.Lock()
		g.console.WriteString(text)
		g.mutex.Unlock()
	default:
		if g.onNotification != nil {
			g.onNotification(record)
		}
	}
}
