package gdb_debugger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fansqz/go-debug-adapter/constants"
	. "github.com/fansqz/go-debug-adapter/debugger"
	gdb2 "github.com/fansqz/go-debug-adapter/debugger/gdb_debugger/gdb"
	e "github.com/fansqz/go-debug-adapter/error"
)

// maxInstructionSize x86指令的最大长度，用于估算读取指定数量指令需要的地址范围
const maxInstructionSize = 15

// gdbTarget 调试目标，断点记录在target中，由gdb的断点编号索引
type gdbTarget struct {
	debugger *GDBDebugger
	program  string

	lock        sync.Mutex
	breakpoints map[int]*gdbBreakpoint
	process     *gdbProcess
}

func newGDBTarget(debugger *GDBDebugger, program string) *gdbTarget {
	return &gdbTarget{
		debugger:    debugger,
		program:     program,
		breakpoints: make(map[int]*gdbBreakpoint),
	}
}

func (t *gdbTarget) util() *GDBOutputUtil {
	return t.debugger.GdbOutputUtil
}

func (t *gdbTarget) BreakpointCreateByLocation(file string, line int) (Breakpoint, error) {
	return t.insertBreakpoint("break-insert", "-f", gdb2.Quote(file+":"+strconv.Itoa(line)))
}

func (t *gdbTarget) BreakpointCreateByName(name string) (Breakpoint, error) {
	return t.insertBreakpoint("break-insert", "-f", gdb2.Quote(name))
}

func (t *gdbTarget) BreakpointCreateByAddress(address uint64) (Breakpoint, error) {
	return t.insertBreakpoint("break-insert", fmt.Sprintf("*0x%x", address))
}

func (t *gdbTarget) BreakpointCreateForException(filter string) (Breakpoint, error) {
	switch filter {
	case constants.FilterCppThrow:
		return t.insertBreakpoint("catch-throw")
	case constants.FilterCppCatch:
		return t.insertBreakpoint("catch-catch")
	case constants.FilterRustPanic:
		return t.insertBreakpoint("break-insert", "-f", "rust_panic")
	default:
		return nil, e.NewUserError("Unknown exception filter: %s", filter)
	}
}

// insertBreakpoint 创建断点并记录
// class->done
//
//	payload->{
//		bkpt->{number -> 1, ...}
//	}
func (t *gdbTarget) insertBreakpoint(operation string, args ...string) (Breakpoint, error) {
	m, err := t.debugger.sendWithTimeOut(OptionTimeout, operation, args...)
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	payload, _ := t.util().GetPayloadFromMap(m)
	output, ok := t.util().ParseBreakpoint(t.util().GetInterfaceFromMap(payload, "bkpt"))
	if !ok {
		return nil, e.NewInternalError("unexpected %s output: %v", operation, m)
	}
	bp := &gdbBreakpoint{target: t, id: output.number}
	bp.setLocations(output.locations)
	t.lock.Lock()
	t.breakpoints[bp.id] = bp
	t.lock.Unlock()
	return bp, nil
}

// updateBreakpoint 处理=breakpoint-modified通知，位置发生变化时返回true
func (t *gdbTarget) updateBreakpoint(bkpt any) (int, bool) {
	output, ok := t.util().ParseBreakpoint(bkpt)
	if !ok {
		return 0, false
	}
	t.lock.Lock()
	bp, ok := t.breakpoints[output.number]
	t.lock.Unlock()
	if !ok {
		return 0, false
	}
	return bp.id, bp.setLocations(output.locations)
}

func (t *gdbTarget) FindBreakpoint(id int) Breakpoint {
	t.lock.Lock()
	defer t.lock.Unlock()
	bp, ok := t.breakpoints[id]
	if !ok {
		return nil
	}
	return bp
}

func (t *gdbTarget) DeleteBreakpoint(id int) error {
	if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "break-delete", strconv.Itoa(id)); err != nil {
		return e.NewEngineError(err)
	}
	t.lock.Lock()
	delete(t.breakpoints, id)
	t.lock.Unlock()
	return nil
}

func (t *gdbTarget) Breakpoints() []Breakpoint {
	t.lock.Lock()
	defer t.lock.Unlock()
	list := make([]Breakpoint, 0, len(t.breakpoints))
	for _, bp := range t.breakpoints {
		list = append(list, bp)
	}
	return list
}

func (t *gdbTarget) Launch(ctx context.Context, info *LaunchInfo) (Process, error) {
	log := t.debugger.log
	if info.Cwd != "" {
		if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "environment-cd", gdb2.Quote(info.Cwd)); err != nil {
			return nil, e.NewEngineError(err)
		}
	}
	for key, value := range info.Env {
		if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "gdb-set", "environment", gdb2.Quote(key+"="+value)); err != nil {
			return nil, e.NewEngineError(err)
		}
	}
	if len(info.Args) > 0 {
		args := make([]string, 0, len(info.Args))
		for _, arg := range info.Args {
			args = append(args, gdb2.Quote(shellQuote(arg)))
		}
		if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "exec-arguments", args...); err != nil {
			return nil, e.NewEngineError(err)
		}
	}
	if info.Terminal != "" {
		if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "inferior-tty-set", info.Terminal); err != nil {
			return nil, e.NewEngineError(err)
		}
	}

	process := newGDBProcess(t)
	t.setProcess(process)
	args := []string{}
	if info.StopOnEntry {
		// 在main函数入口暂停
		args = append(args, "--start")
	}
	log.Infof("[GDBDebugger] exec-run %s", t.program)
	if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "exec-run", args...); err != nil {
		t.setProcess(nil)
		return nil, e.NewEngineError(err)
	}
	process.loadPID()
	return process, nil
}

func (t *gdbTarget) Attach(ctx context.Context, info *AttachInfo) (Process, error) {
	pid := info.PID
	if pid == 0 {
		if !info.WaitFor {
			return nil, e.NewUserError("Attach requires a pid or waitFor")
		}
		var err error
		if pid, err = waitForProcess(ctx, info.Program); err != nil {
			return nil, e.NewEngineError(err)
		}
	}
	process := newGDBProcess(t)
	process.pid = pid
	t.setProcess(process)
	t.debugger.log.Infof("[GDBDebugger] target-attach %d", pid)
	if _, err := t.debugger.sendWithTimeOut(OptionTimeout, "target-attach", strconv.Itoa(pid)); err != nil {
		t.setProcess(nil)
		return nil, e.NewEngineError(err)
	}
	return process, nil
}

// waitForProcess 等待名称为program的进程出现
func waitForProcess(ctx context.Context, program string) (int, error) {
	if program == "" {
		return 0, fmt.Errorf("waitFor requires a program")
	}
	name := filepath.Base(program)
	// /proc/<pid>/comm最长15个字符
	if len(name) > 15 {
		name = name[:15]
	}
	var pid int
	operation := func() error {
		entries, err := os.ReadDir("/proc")
		if err != nil {
			return backoff.Permanent(err)
		}
		for _, entry := range entries {
			n, err := strconv.Atoi(entry.Name())
			if err != nil || n == os.Getpid() {
				continue
			}
			comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
			if err == nil && strings.TrimSpace(string(comm)) == name {
				pid = n
				return nil
			}
		}
		return fmt.Errorf("process %s not found", name)
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(200*time.Millisecond), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return 0, err
	}
	return pid, nil
}

func (t *gdbTarget) Process() Process {
	process := t.currentProcess()
	if process == nil {
		return nil
	}
	return process
}

func (t *gdbTarget) currentProcess() *gdbProcess {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.process
}

func (t *gdbTarget) setProcess(process *gdbProcess) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.process = process
}

// ResolveAddress 通过反汇编地址所在的函数得到符号范围，通过源码模式的反汇编得到行信息
func (t *gdbTarget) ResolveAddress(address uint64) (*LineEntry, *Symbol, error) {
	var symbol *Symbol
	m, err := t.debugger.sendWithTimeOut(OptionTimeout, "data-disassemble", "-a", fmt.Sprintf("0x%x", address), "--", "2")
	if err == nil {
		symbol = t.util().ParseSymbolOutput(m)
	}
	m, err = t.debugger.sendWithTimeOut(OptionTimeout, "data-disassemble",
		"-s", fmt.Sprintf("0x%x", address), "-e", fmt.Sprintf("0x%x", address+1), "--", "1")
	if err != nil {
		return nil, symbol, nil
	}
	return t.util().ParseSourceLineOutput(m), symbol, nil
}

func (t *gdbTarget) Disassemble(start, end uint64) ([]*Instruction, error) {
	m, err := t.debugger.sendWithTimeOut(OptionTimeout, "data-disassemble",
		"-s", fmt.Sprintf("0x%x", start), "-e", fmt.Sprintf("0x%x", end), "--", "2")
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	return t.util().ParseInstructionsOutput(m), nil
}

func (t *gdbTarget) ReadInstructions(start uint64, count int) ([]*Instruction, error) {
	instructions, err := t.Disassemble(start, start+uint64(count*maxInstructionSize))
	if err != nil {
		return nil, err
	}
	if len(instructions) > count {
		instructions = instructions[:count]
	}
	return instructions, nil
}

// shellQuote gdb通过shell启动程序，参数需要按shell规则转义
func shellQuote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$`*?[]{}()<>|&;~#!") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// gdbBreakpoint gdb中的断点
type gdbBreakpoint struct {
	target    *gdbTarget
	id        int
	locations []*gdbLocation
}

func (b *gdbBreakpoint) ID() int {
	return b.id
}

func (b *gdbBreakpoint) Locations() []BreakpointLocation {
	b.target.lock.Lock()
	defer b.target.lock.Unlock()
	list := make([]BreakpointLocation, 0, len(b.locations))
	for _, l := range b.locations {
		list = append(list, l)
	}
	return list
}

// setLocations 替换断点的位置，位置集合发生变化时返回true
func (b *gdbBreakpoint) setLocations(outputs []*locationOutput) bool {
	b.target.lock.Lock()
	defer b.target.lock.Unlock()
	changed := len(outputs) != len(b.locations)
	locations := make([]*gdbLocation, 0, len(outputs))
	for i, o := range outputs {
		if !changed && (b.locations[i].id != o.id || b.locations[i].address != o.address) {
			changed = true
		}
		locations = append(locations, &gdbLocation{
			breakpoint: b,
			id:         o.id,
			address:    o.address,
			line:       o.line,
			enabled:    o.enabled,
		})
	}
	b.locations = locations
	return changed
}

func (b *gdbBreakpoint) SetCondition(condition string) error {
	args := []string{strconv.Itoa(b.id)}
	if condition != "" {
		args = append(args, condition)
	}
	if _, err := b.target.debugger.sendWithTimeOut(OptionTimeout, "break-condition", args...); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (b *gdbBreakpoint) SetIgnoreCount(count int) error {
	if _, err := b.target.debugger.sendWithTimeOut(OptionTimeout, "break-after", strconv.Itoa(b.id), strconv.Itoa(count)); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (b *gdbBreakpoint) SetEnabled(enabled bool) error {
	return b.target.setEnabled(strconv.Itoa(b.id), enabled)
}

func (t *gdbTarget) setEnabled(id string, enabled bool) error {
	operation := "break-disable"
	if enabled {
		operation = "break-enable"
	}
	if _, err := t.debugger.sendWithTimeOut(OptionTimeout, operation, id); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

// gdbLocation 断点位置，编号形如 1.2
type gdbLocation struct {
	breakpoint *gdbBreakpoint
	id         string
	address    uint64
	line       *LineEntry
	enabled    bool
}

func (l *gdbLocation) ID() string            { return l.id }
func (l *gdbLocation) Address() uint64       { return l.address }
func (l *gdbLocation) LineEntry() *LineEntry { return l.line }

func (l *gdbLocation) IsEnabled() bool {
	l.breakpoint.target.lock.Lock()
	defer l.breakpoint.target.lock.Unlock()
	return l.enabled
}

func (l *gdbLocation) SetEnabled(enabled bool) error {
	if err := l.breakpoint.target.setEnabled(l.id, enabled); err != nil {
		return err
	}
	l.breakpoint.target.lock.Lock()
	l.enabled = enabled
	l.breakpoint.target.lock.Unlock()
	return nil
}
