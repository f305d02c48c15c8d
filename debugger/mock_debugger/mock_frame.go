package mock_debugger

import (
	"fmt"

	"github.com/fansqz/go-debug-adapter/debugger"
)

// MockFrame 栈帧
type MockFrame struct {
	index    int
	function string
	pc       uint64
	line     *debugger.LineEntry
	Locals   []*MockValue
	Statics  []*MockValue
	Regs     []*MockValue
	// Expressions 表达式求值结果
	Expressions map[string]*MockValue
	// Selected Select被调用的次数
	Selected int
}

func NewMockFrame(function string, pc uint64, line *debugger.LineEntry) *MockFrame {
	return &MockFrame{function: function, pc: pc, line: line, Expressions: make(map[string]*MockValue)}
}

func (f *MockFrame) Index() int                     { return f.index }
func (f *MockFrame) FunctionName() string           { return f.function }
func (f *MockFrame) PC() uint64                     { return f.pc }
func (f *MockFrame) LineEntry() *debugger.LineEntry { return f.line }

func (f *MockFrame) Variables(opts debugger.VariableOptions) ([]debugger.Value, error) {
	var list []debugger.Value
	if opts.Locals || opts.Arguments {
		for _, v := range f.Locals {
			list = append(list, v)
		}
	}
	if opts.Statics {
		for _, v := range f.Statics {
			list = append(list, v)
		}
	}
	return list, nil
}

func (f *MockFrame) Registers() ([]debugger.Value, error) {
	list := make([]debugger.Value, 0, len(f.Regs))
	for _, v := range f.Regs {
		list = append(list, v)
	}
	return list, nil
}

func (f *MockFrame) Select() error {
	f.Selected++
	return nil
}

func (f *MockFrame) Evaluate(expression string) (debugger.Value, error) {
	v, ok := f.Expressions[expression]
	if !ok {
		return nil, fmt.Errorf("No symbol \"%s\" in current context.", expression)
	}
	return v, nil
}

// MockValue 变量
type MockValue struct {
	name      string
	typeName  string
	value     string
	summary   string
	synthetic bool
	children  []*MockValue
}

func NewMockValue(name, typeName, value string, children ...*MockValue) *MockValue {
	return &MockValue{name: name, typeName: typeName, value: value, children: children}
}

// WithSummary 设置summary
func (v *MockValue) WithSummary(summary string) *MockValue {
	v.summary = summary
	return v
}

func (v *MockValue) Name() string      { return v.name }
func (v *MockValue) TypeName() string  { return v.typeName }
func (v *MockValue) Value() string     { return v.value }
func (v *MockValue) Summary() string   { return v.summary }
func (v *MockValue) NumChildren() int  { return len(v.children) }
func (v *MockValue) IsSynthetic() bool { return v.synthetic }

func (v *MockValue) Children() ([]debugger.Value, error) {
	list := make([]debugger.Value, 0, len(v.children))
	for _, c := range v.children {
		list = append(list, c)
	}
	return list, nil
}
