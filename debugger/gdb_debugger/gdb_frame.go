package gdb_debugger

import (
	"strconv"

	. "github.com/fansqz/go-debug-adapter/debugger"
	gdb2 "github.com/fansqz/go-debug-adapter/debugger/gdb_debugger/gdb"
	e "github.com/fansqz/go-debug-adapter/error"
)

// gdbFrame 栈帧，通过--thread和--frame选项定位，不改变gdb当前选中的栈帧
type gdbFrame struct {
	thread *gdbThread
	*frameOutput
}

func (f *gdbFrame) Index() int            { return f.level }
func (f *gdbFrame) FunctionName() string  { return f.function }
func (f *gdbFrame) PC() uint64            { return f.pc }
func (f *gdbFrame) LineEntry() *LineEntry { return f.line }

func (f *gdbFrame) debugger() *GDBDebugger {
	return f.thread.process.debugger()
}

func (f *gdbFrame) frameArgs() []string {
	return []string{"--thread", strconv.Itoa(f.thread.id), "--frame", strconv.Itoa(f.level)}
}

func (f *gdbFrame) Variables(opts VariableOptions) ([]Value, error) {
	var names []string
	if opts.Arguments || opts.Locals {
		args := append(f.frameArgs(), "--no-values")
		if opts.InScopeOnly {
			args = append(args, "--skip-unavailable")
		}
		m, err := f.debugger().sendWithTimeOut(OptionTimeout, "stack-list-variables", args...)
		if err != nil {
			return nil, e.NewEngineError(err)
		}
		arguments, locals := f.debugger().GdbOutputUtil.ParseFrameVariablesOutput(m)
		if opts.Arguments {
			names = append(names, arguments...)
		}
		if opts.Locals {
			names = append(names, locals...)
		}
	}
	if opts.Statics && f.line != nil {
		// 只展示当前文件中定义的全局变量
		m, err := f.debugger().sendWithTimeOut(OptionTimeout, "symbol-info-variables", "--max-results", "100")
		if err != nil {
			return nil, e.NewEngineError(err)
		}
		names = append(names, f.debugger().GdbOutputUtil.ParseGlobalVariableOutput(m, f.line.Path())...)
	}

	values := make([]Value, 0, len(names))
	for _, name := range names {
		value, err := f.createValue(name, name)
		if err != nil {
			// 优化掉的变量无法创建
			f.debugger().log.Debugf("[GDBDebugger] var-create %s fail, err = %v", name, err)
			continue
		}
		values = append(values, value)
	}
	return values, nil
}

func (f *gdbFrame) Registers() ([]Value, error) {
	names := f.thread.process.registers()
	args := append(f.frameArgs(), "x")
	m, err := f.debugger().sendWithTimeOut(OptionTimeout, "data-list-register-values", args...)
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	outputs := f.debugger().GdbOutputUtil.ParseRegistersOutput(names, m)
	values := make([]Value, 0, len(outputs))
	for _, o := range outputs {
		values = append(values, &gdbValue{frame: f, displayName: o.name, varOutput: o})
	}
	return values, nil
}

func (f *gdbFrame) Select() error {
	if _, err := f.debugger().sendWithTimeOut(OptionTimeout, "thread-select", strconv.Itoa(f.thread.id)); err != nil {
		return e.NewEngineError(err)
	}
	if _, err := f.debugger().sendWithTimeOut(OptionTimeout, "stack-select-frame", strconv.Itoa(f.level)); err != nil {
		return e.NewEngineError(err)
	}
	return nil
}

func (f *gdbFrame) Evaluate(expression string) (Value, error) {
	return f.createValue(expression, expression)
}

// createValue 创建变量对象，变量对象在继续运行前统一删除
func (f *gdbFrame) createValue(displayName, expression string) (*gdbValue, error) {
	args := append(f.frameArgs(), "-", "*", gdb2.Quote(expression))
	m, err := f.debugger().sendWithTimeOut(OptionTimeout, "var-create", args...)
	if err != nil {
		return nil, err
	}
	output, ok := f.debugger().GdbOutputUtil.ParseVarCreate(m)
	if !ok {
		return nil, e.NewInternalError("unexpected var-create output: %v", m)
	}
	f.thread.process.addVarObj(output.name)
	return &gdbValue{frame: f, displayName: displayName, varObj: output.name, varOutput: output}, nil
}

// gdbValue 变量，varObj为空时是没有子元素的静态值（例如寄存器）
type gdbValue struct {
	frame       *gdbFrame
	displayName string
	varObj      string
	*varOutput
}

func (v *gdbValue) Name() string     { return v.displayName }
func (v *gdbValue) TypeName() string { return v.typeName }

// Value 指针只保留地址，字符串等附加内容作为summary
func (v *gdbValue) Value() string {
	value, _ := v.frame.debugger().GdbOutputUtil.SplitValue(v.value)
	return value
}

func (v *gdbValue) Summary() string {
	_, summary := v.frame.debugger().GdbOutputUtil.SplitValue(v.value)
	return summary
}

// NumChildren 空指针不能展开
func (v *gdbValue) NumChildren() int {
	if v.varObj == "" || v.frame.debugger().GdbOutputUtil.IsNullPoint(v.Value()) {
		return 0
	}
	return v.numChildren
}

func (v *gdbValue) IsSynthetic() bool {
	return v.dynamic
}

// Children 读取变量的children元素列表
func (v *gdbValue) Children() ([]Value, error) {
	if v.NumChildren() == 0 {
		return nil, nil
	}
	util := v.frame.debugger().GdbOutputUtil
	m, err := v.frame.debugger().sendWithTimeOut(OptionTimeout, "var-list-children", "--all-values", v.varObj)
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	outputs := util.ParseVariablesOutput(m)
	children := make([]Value, 0, len(outputs))
	for _, o := range outputs {
		// C++类的public/private/protected是伪子元素，直接展开
		if o.typeName == "" && (o.exp == "public" || o.exp == "private" || o.exp == "protected") {
			inner := &gdbValue{frame: v.frame, displayName: o.exp, varObj: o.name, varOutput: o}
			grandChildren, err := inner.Children()
			if err != nil {
				return nil, err
			}
			children = append(children, grandChildren...)
			continue
		}
		name := o.exp
		if name == "" {
			name = util.ConvertVariableName(o.name)
		}
		children = append(children, &gdbValue{frame: v.frame, displayName: name, varObj: o.name, varOutput: o})
	}
	return children, nil
}
