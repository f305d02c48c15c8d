package adapter

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fansqz/go-debug-adapter/adapter/disassembly"
	"github.com/fansqz/go-debug-adapter/adapter/handles"
	"github.com/fansqz/go-debug-adapter/adapter/source_map"
	"github.com/fansqz/go-debug-adapter/constants"
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/fansqz/go-debug-adapter/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// BreakpointInfo adapter侧记录的断点
type BreakpointInfo struct {
	ID   int
	Kind constants.BreakpointKind
	// File 源码断点请求中的完整路径
	File string
	// Range 反汇编断点所在区间的句柄
	Range    handles.Handle
	Line     int
	Function string
	Filter   string

	Condition    string
	HitCondition string
	LogMessage   string

	Breakpoint debugger.Breakpoint
}

// BreakpointTable
// 记录用户可见的key（行号、函数名、异常过滤器）到引擎断点的映射，
// 并负责setBreakpoints时新旧断点集合的对比。
type BreakpointTable struct {
	log         *logrus.Entry
	bySource    map[string]map[int]int
	byRange     map[handles.Handle]map[int]int
	byFunction  map[string]int
	byException map[string]int
	infos       map[int]*BreakpointInfo
}

func NewBreakpointTable(log *logrus.Entry) *BreakpointTable {
	return &BreakpointTable{
		log:         log,
		bySource:    make(map[string]map[int]int),
		byRange:     make(map[handles.Handle]map[int]int),
		byFunction:  make(map[string]int),
		byException: make(map[string]int),
		infos:       make(map[int]*BreakpointInfo),
	}
}

// Get 根据引擎断点id查找
func (t *BreakpointTable) Get(id int) (*BreakpointInfo, bool) {
	info, ok := t.infos[id]
	return info, ok
}

// SourceLines 文件中已设置断点的行号，升序
func (t *BreakpointTable) SourceLines(file string) []int {
	lines := make([]int, 0, len(t.bySource[file]))
	for line := range t.bySource[file] {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// delete 引擎删除失败时只记录日志，adapter侧的记录总是删除
func (t *BreakpointTable) delete(target debugger.Target, id int) {
	delete(t.infos, id)
	if err := target.DeleteBreakpoint(id); err != nil {
		t.log.Warnf("[BreakpointTable] delete breakpoint %d: %v", id, err)
	}
}

// SetSourceBreakpoints
// 对比该文件上一次的断点集合：两次都有的行保留原断点id，
// 不再请求的行从引擎删除，新的行按basename+行号创建。
// 返回值与请求一一对应。
func (t *BreakpointTable) SetSourceBreakpoints(target debugger.Target, sourceMap *source_map.SourceMap,
	file string, requested []dap.SourceBreakpoint) []dap.Breakpoint {
	existing, ok := t.bySource[file]
	if !ok {
		existing = make(map[int]int)
		t.bySource[file] = existing
	}
	lines := make([]int, 0, len(requested))
	for _, req := range requested {
		lines = append(lines, req.Line)
	}
	requestedSet := utils.List2set(lines)
	for line, id := range existing {
		if requestedSet.Contains(line) {
			continue
		}
		delete(existing, line)
		t.delete(target, id)
	}

	result := make([]dap.Breakpoint, 0, len(requested))
	for _, req := range requested {
		info, ok := t.infos[existing[req.Line]]
		if !ok {
			bp, err := target.BreakpointCreateByLocation(path.Base(file), req.Line)
			if err != nil {
				result = append(result, dap.Breakpoint{Verified: false, Line: req.Line, Message: err.Error()})
				continue
			}
			info = &BreakpointInfo{
				ID:         bp.ID(),
				Kind:       constants.SourceBreakpoint,
				File:       file,
				Line:       req.Line,
				Breakpoint: bp,
			}
			t.infos[info.ID] = info
			existing[req.Line] = info.ID
			validateLocations(info, sourceMap)
		}
		message := info.applyOptions(req.Condition, req.HitCondition, req.LogMessage)
		bp := makeBreakpoint(info, sourceMap)
		if message != "" {
			bp.Message = message
		}
		result = append(result, bp)
	}
	return result
}

// SetAddressBreakpoints 在反汇编区间中设置断点，行号对应指令序号
func (t *BreakpointTable) SetAddressBreakpoints(target debugger.Target, r *disassembly.Range,
	requested []dap.SourceBreakpoint) []dap.Breakpoint {
	existing, ok := t.byRange[r.Handle]
	if !ok {
		existing = make(map[int]int)
		t.byRange[r.Handle] = existing
	}
	lines := make([]int, 0, len(requested))
	for _, req := range requested {
		lines = append(lines, req.Line)
	}
	requestedSet := utils.List2set(lines)
	for line, id := range existing {
		if !requestedSet.Contains(line) {
			delete(existing, line)
			t.delete(target, id)
		}
	}
	result := make([]dap.Breakpoint, 0, len(requested))
	for _, req := range requested {
		info, ok := t.infos[existing[req.Line]]
		if !ok {
			address, valid := r.AddressOf(req.Line)
			if !valid {
				result = append(result, dap.Breakpoint{Verified: false, Line: req.Line, Message: "Invalid instruction line"})
				continue
			}
			bp, err := target.BreakpointCreateByAddress(address)
			if err != nil {
				result = append(result, dap.Breakpoint{Verified: false, Line: req.Line, Message: err.Error()})
				continue
			}
			info = &BreakpointInfo{ID: bp.ID(), Kind: constants.AddressBreakpoint, Range: r.Handle, Line: req.Line, Breakpoint: bp}
			t.infos[info.ID] = info
			existing[req.Line] = info.ID
		}
		message := info.applyOptions(req.Condition, req.HitCondition, req.LogMessage)
		result = append(result, dap.Breakpoint{
			Id:       info.ID,
			Verified: len(info.Breakpoint.Locations()) > 0,
			Line:     info.Line,
			Message:  message,
		})
	}
	return result
}

// SetFunctionBreakpoints 函数断点，按函数名对比
func (t *BreakpointTable) SetFunctionBreakpoints(target debugger.Target, sourceMap *source_map.SourceMap,
	requested []dap.FunctionBreakpoint) []dap.Breakpoint {
	names := make([]string, 0, len(requested))
	for _, req := range requested {
		names = append(names, req.Name)
	}
	requestedSet := utils.List2set(names)
	for name, id := range t.byFunction {
		if !requestedSet.Contains(name) {
			delete(t.byFunction, name)
			t.delete(target, id)
		}
	}
	result := make([]dap.Breakpoint, 0, len(requested))
	for _, req := range requested {
		info, ok := t.infos[t.byFunction[req.Name]]
		if !ok {
			bp, err := target.BreakpointCreateByName(req.Name)
			if err != nil {
				result = append(result, dap.Breakpoint{Verified: false, Message: err.Error()})
				continue
			}
			info = &BreakpointInfo{ID: bp.ID(), Kind: constants.FunctionBreakpoint, Function: req.Name, Breakpoint: bp}
			t.infos[info.ID] = info
			t.byFunction[req.Name] = info.ID
		}
		message := info.applyOptions(req.Condition, req.HitCondition, "")
		bp := makeBreakpoint(info, sourceMap)
		if message != "" {
			bp.Message = message
		}
		result = append(result, bp)
	}
	return result
}

// SetExceptionBreakpoints 异常断点，按过滤器id对比
func (t *BreakpointTable) SetExceptionBreakpoints(target debugger.Target, filters []string) []dap.Breakpoint {
	requestedSet := utils.List2set(filters)
	for filter, id := range t.byException {
		if !requestedSet.Contains(filter) {
			delete(t.byException, filter)
			t.delete(target, id)
		}
	}
	result := make([]dap.Breakpoint, 0, len(filters))
	for _, filter := range filters {
		info, ok := t.infos[t.byException[filter]]
		if !ok {
			bp, err := target.BreakpointCreateForException(filter)
			if err != nil {
				result = append(result, dap.Breakpoint{Verified: false, Message: err.Error()})
				continue
			}
			info = &BreakpointInfo{ID: bp.ID(), Kind: constants.ExceptionBreakpoint, Filter: filter, Breakpoint: bp}
			t.infos[info.ID] = info
			t.byException[filter] = info.ID
		}
		result = append(result, dap.Breakpoint{Id: info.ID, Verified: true})
	}
	return result
}

// applyOptions 只在条件变化时才修改引擎断点，返回给用户的提示信息
func (info *BreakpointInfo) applyOptions(condition, hitCondition, logMessage string) string {
	var message string
	if condition != info.Condition {
		if err := info.Breakpoint.SetCondition(condition); err != nil {
			message = err.Error()
		} else {
			info.Condition = condition
		}
	}
	if hitCondition != info.HitCondition {
		count, err := parseHitCondition(hitCondition)
		if err != nil {
			message = err.Error()
		} else if err = info.Breakpoint.SetIgnoreCount(count); err != nil {
			message = err.Error()
		} else {
			info.HitCondition = hitCondition
		}
	}
	info.LogMessage = logMessage
	return message
}

var hitConditionRegexp = regexp.MustCompile(`^\s*(>=|==)?\s*(\d+)\s*$`)

// parseHitCondition "N"、">= N"、"== N"都表示第N次命中时停止，即忽略前N-1次
func parseHitCondition(hitCondition string) (int, error) {
	if strings.TrimSpace(hitCondition) == "" {
		return 0, nil
	}
	match := hitConditionRegexp.FindStringSubmatch(hitCondition)
	if match == nil {
		return 0, e.NewUserError("Invalid hit condition: %s", hitCondition)
	}
	n, err := strconv.Atoi(match[2])
	if err != nil || n < 1 {
		return 0, e.NewUserError("Invalid hit condition: %s", hitCondition)
	}
	return n - 1, nil
}

// validateLocations 引擎按basename解析断点，可能匹配到其他目录下的同名文件，
// 位置的源文件与请求的完整路径不一致时禁用该位置
func validateLocations(info *BreakpointInfo, sourceMap *source_map.SourceMap) {
	if info.Kind != constants.SourceBreakpoint {
		return
	}
	want := source_map.NormalizePath(info.File)
	for _, loc := range info.Breakpoint.Locations() {
		le := loc.LineEntry()
		if le == nil {
			continue
		}
		local, ok := sourceMap.Resolve(le.Directory, le.File)
		valid := ok && local == want
		if !valid && loc.IsEnabled() {
			_ = loc.SetEnabled(false)
		}
	}
}

// makeBreakpoint 依次填充id、verified、解析后的行列号和源文件
func makeBreakpoint(info *BreakpointInfo, sourceMap *source_map.SourceMap) dap.Breakpoint {
	bp := dap.Breakpoint{Id: info.ID}
	for _, loc := range info.Breakpoint.Locations() {
		if !loc.IsEnabled() {
			continue
		}
		bp.Verified = true
		if le := loc.LineEntry(); le != nil && le.Line > 0 {
			bp.Line = le.Line
			bp.Column = le.Column
			if local, ok := sourceMap.Resolve(le.Directory, le.File); ok {
				bp.Source = &dap.Source{Name: path.Base(local), Path: local}
			}
		}
		break
	}
	if bp.Line == 0 && info.Kind == constants.SourceBreakpoint {
		bp.Line = info.Line
		bp.Source = &dap.Source{Name: path.Base(info.File), Path: info.File}
	}
	return bp
}

func (s *Session) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) (dap.ResponseMessage, error) {
	target, err := s.getTarget()
	if err != nil {
		return nil, err
	}
	args := request.Arguments
	requested := args.Breakpoints
	if requested == nil {
		for _, line := range args.Lines {
			requested = append(requested, dap.SourceBreakpoint{Line: line})
		}
	}
	var breakpoints []dap.Breakpoint
	switch {
	case args.Source.Path != "":
		breakpoints = s.breakpoints.SetSourceBreakpoints(target, s.sourceMap, args.Source.Path, requested)
	case args.Source.SourceReference > 0:
		r, ok := s.disassembly.FromHandle(handles.Handle(args.Source.SourceReference))
		if !ok {
			return nil, e.NewUserError("Invalid source reference: %d", args.Source.SourceReference)
		}
		breakpoints = s.breakpoints.SetAddressBreakpoints(target, r, requested)
	default:
		return nil, e.NewUserError("Breakpoint source must have a path or a source reference")
	}
	response := &dap.SetBreakpointsResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Breakpoints = breakpoints
	return response, nil
}

func (s *Session) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) (dap.ResponseMessage, error) {
	target, err := s.getTarget()
	if err != nil {
		return nil, err
	}
	response := &dap.SetFunctionBreakpointsResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Breakpoints = s.breakpoints.SetFunctionBreakpoints(target, s.sourceMap, request.Arguments.Breakpoints)
	return response, nil
}

func (s *Session) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) (dap.ResponseMessage, error) {
	target, err := s.getTarget()
	if err != nil {
		return nil, err
	}
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Breakpoints = s.breakpoints.SetExceptionBreakpoints(target, request.Arguments.Filters)
	return response, nil
}

// onBreakpointChanged 引擎报告断点位置变化（例如共享库加载），重新校验位置并通知IDE
func (s *Session) onBreakpointChanged(id int) {
	info, ok := s.breakpoints.Get(id)
	if !ok {
		return
	}
	validateLocations(info, s.sourceMap)
	event := &dap.BreakpointEvent{Event: *protocol.NewEvent("breakpoint")}
	event.Body.Reason = string(constants.ChangeType)
	event.Body.Breakpoint = makeBreakpoint(info, s.sourceMap)
	s.sendEvent(event)
}
