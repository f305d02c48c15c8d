package adapter

import (
	"fmt"
	"strings"

	"github.com/fansqz/go-debug-adapter/adapter/handles"
	"github.com/fansqz/go-debug-adapter/constants"
	"github.com/fansqz/go-debug-adapter/debugger"
	e "github.com/fansqz/go-debug-adapter/error"
	"github.com/fansqz/go-debug-adapter/protocol"
	"github.com/google/go-dap"
)

func (s *Session) onVariablesRequest(request *dap.VariablesRequest) (dap.ResponseMessage, error) {
	if _, err := s.stoppedProcess(); err != nil {
		return nil, err
	}
	parent := handles.Handle(request.Arguments.VariablesReference)
	c, ok := s.handles.Get(parent)
	if !ok {
		return nil, fmt.Errorf("variables reference %d: %w", parent, e.ErrInvalidHandle)
	}
	var values []debugger.Value
	var err error
	switch c := c.(type) {
	case *scopeContainer:
		switch c.name {
		case constants.ScopeLocal:
			values, err = c.frame.Variables(debugger.VariableOptions{Arguments: true, Locals: true, InScopeOnly: true})
		case constants.ScopeStatic:
			values, err = c.frame.Variables(debugger.VariableOptions{Statics: true, InScopeOnly: true})
		case constants.ScopeRegister:
			values, err = c.frame.Registers()
		}
	case *valueContainer:
		values, err = c.value.Children()
	default:
		return nil, fmt.Errorf("variables reference %d: %w", parent, e.ErrInvalidHandle)
	}
	if err != nil {
		return nil, e.NewEngineError(err)
	}

	response := &dap.VariablesResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)
	response.Body.Variables = s.convertVariables(parent, values)
	return response, nil
}

// convertVariables 同名变量（例如不同作用域块中的同名局部变量）使用不同的key
func (s *Session) convertVariables(parent handles.Handle, values []debugger.Value) []dap.Variable {
	variables := make([]dap.Variable, 0, len(values))
	seen := make(map[string]int)
	for _, value := range values {
		name := value.Name()
		key := name
		if n := seen[name]; n > 0 {
			key = fmt.Sprintf("%s#%d", name, n)
		}
		seen[name]++
		variables = append(variables, s.convertVariable(parent, key, value))
	}
	return variables
}

func (s *Session) convertVariable(parent handles.Handle, key string, value debugger.Value) dap.Variable {
	variable := dap.Variable{
		Name:  value.Name(),
		Type:  value.TypeName(),
		Value: formatValue(value),
	}
	if value.NumChildren() > 0 {
		variable.VariablesReference = int(s.handleFor(parent, key, &valueContainer{value: value}))
		if value.IsSynthetic() {
			variable.PresentationHint = &dap.VariablePresentationHint{Kind: "virtual"}
		}
	}
	return variable
}

// formatValue 值和summary都有时一起展示，都没有时用{...}表示聚合类型
func formatValue(value debugger.Value) string {
	v := value.Value()
	summary := value.Summary()
	switch {
	case v != "" && summary != "":
		return v + " " + summary
	case v != "":
		return v
	case summary != "":
		return summary
	case value.NumChildren() > 0:
		return "{...}"
	default:
		return "<not available>"
	}
}

func (s *Session) onEvaluateRequest(request *dap.EvaluateRequest) (dap.ResponseMessage, error) {
	args := request.Arguments
	response := &dap.EvaluateResponse{}
	response.Response = *protocol.NewResponse(request.Seq, request.Command)

	expression := args.Expression
	if args.Context == "repl" && strings.HasPrefix(expression, "`") {
		if s.debugger == nil {
			return nil, e.ErrNotInitialized
		}
		output, err := s.debugger.HandleCommand(s.ctx, strings.TrimPrefix(expression, "`"))
		if err != nil {
			return nil, e.NewEngineError(err)
		}
		response.Body.Result = strings.TrimSuffix(output, "\n")
		return response, nil
	}

	if _, err := s.stoppedProcess(); err != nil {
		return nil, err
	}
	frame, err := s.evaluationFrame(args.FrameId)
	if err != nil {
		return nil, err
	}
	if s.config != nil && s.config.Expressions == constants.ExpressionPython {
		// python命令在引擎当前选中的栈帧中执行
		if err := frame.Select(); err != nil {
			return nil, e.NewEngineError(err)
		}
		output, err := s.debugger.HandleCommand(s.ctx, fmt.Sprintf("python print(%s)", expression))
		if err != nil {
			return nil, e.NewEngineError(err)
		}
		response.Body.Result = strings.TrimSuffix(output, "\n")
		return response, nil
	}
	value, err := frame.Evaluate(expression)
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	response.Body.Result = formatValue(value)
	response.Body.Type = value.TypeName()
	if value.NumChildren() > 0 {
		response.Body.VariablesReference = int(s.handleFor(0, "[eval]"+expression, &valueContainer{value: value}))
	}
	return response, nil
}

// evaluationFrame frameId为0时使用当前选中线程的栈顶
func (s *Session) evaluationFrame(frameID int) (debugger.Frame, error) {
	if frameID != 0 {
		c, ok := s.handles.Get(handles.Handle(frameID))
		fc, isFrame := c.(*frameContainer)
		if !ok || !isFrame {
			return nil, fmt.Errorf("frame %d: %w", frameID, e.ErrInvalidHandle)
		}
		return fc.frame, nil
	}
	thread := s.process.ThreadByID(s.selectedThread)
	if thread == nil {
		threads := s.process.Threads()
		if len(threads) == 0 {
			return nil, e.NewUserError("No thread is selected")
		}
		thread = threads[0]
	}
	frames, err := thread.Frames()
	if err != nil {
		return nil, e.NewEngineError(err)
	}
	if len(frames) == 0 {
		return nil, e.NewUserError("Thread %d has no frames", thread.ID())
	}
	return frames[0], nil
}
