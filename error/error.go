package error

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized   = errors.New("not initialized")
	ErrNotImplemented   = errors.New("not implemented")
	ErrProcessRunning   = errors.New("the program is running")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrDebuggerIsClosed = errors.New("debug is closed")
	ErrNoPendingLaunch  = errors.New("no launch or attach in progress")
)

// Kind 错误分类
type Kind int

const (
	KindInternal Kind = iota
	KindNotInitialized
	KindEngine
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "NotInitialized"
	case KindEngine:
		return "Engine"
	case KindUser:
		return "User"
	default:
		return "Internal"
	}
}

// Code 失败响应中ErrorMessage.Id
func (k Kind) Code() int {
	return 1000 + int(k)
}

// DebugError 请求处理过程中产生的错误
type DebugError struct {
	Kind    Kind
	Message string
	Err     error
}

func (d *DebugError) Error() string {
	if d.Err == nil {
		return d.Message
	}
	if d.Message == "" {
		return d.Err.Error()
	}
	return fmt.Sprintf("%s: %v", d.Message, d.Err)
}

func (d *DebugError) Unwrap() error {
	return d.Err
}

// NewEngineError 引擎返回的错误，信息原样展示给用户
func NewEngineError(err error) error {
	if err == nil {
		return nil
	}
	return &DebugError{Kind: KindEngine, Err: err}
}

// NewUserError 用户输入错误
func NewUserError(format string, args ...interface{}) error {
	return &DebugError{Kind: KindUser, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError 内部错误
func NewInternalError(format string, args ...interface{}) error {
	return &DebugError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf 获取错误分类，未分类的错误统一视为内部错误
func KindOf(err error) Kind {
	var de *DebugError
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrNotInitialized) {
		return KindNotInitialized
	}
	return KindInternal
}
