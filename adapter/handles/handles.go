package handles

import (
	"fmt"
)

// startHandle 句柄从startHandle+1开始分配，0表示没有子节点
const startHandle = 1000

// Handle 暴露给IDE的不透明句柄
type Handle int

// vpathSep 结构路径中分隔父路径和key
const vpathSep = "\x1f"

type entry[T any] struct {
	value T
	vpath string
}

// HandleTree
// 将句柄映射到会话对象（栈帧、作用域、变量容器、反汇编区间）。
// 句柄由从根开始的结构路径决定，上一代中相同路径的对象会复用同一个句柄，
// 这样单步之后没有变化的变量在IDE中保持同一个引用。
// HandleTree不是并发安全的，由会话统一加锁。
type HandleTree[T any] struct {
	objByHandle      map[Handle]*entry[T]
	handleByVPath    map[string]Handle
	prevHandleByPath map[string]Handle
	nextHandle       Handle
}

func NewHandleTree[T any]() *HandleTree[T] {
	return &HandleTree[T]{
		objByHandle:      make(map[Handle]*entry[T]),
		handleByVPath:    make(map[string]Handle),
		prevHandleByPath: make(map[string]Handle),
		nextHandle:       startHandle,
	}
}

// Reset 进程继续运行时调用，清空存活的对象，当前代降为上一代，计数器不回退
func (h *HandleTree[T]) Reset() {
	h.objByHandle = make(map[Handle]*entry[T])
	h.prevHandleByPath = h.handleByVPath
	h.handleByVPath = make(map[string]Handle)
}

// Create 在parent下创建key对应的句柄，parent为0表示根。
// 同一代中重复创建相同的(parent, key)属于调用方错误，会panic。
func (h *HandleTree[T]) Create(parent Handle, key string, value T) Handle {
	vpath, err := h.vpath(parent, key)
	if err != nil {
		panic(err)
	}
	if existing, ok := h.handleByVPath[vpath]; ok {
		panic(fmt.Sprintf("duplicate handle path %q (handle %d)", key, existing))
	}
	handle, ok := h.prevHandleByPath[vpath]
	if !ok {
		h.nextHandle++
		handle = h.nextHandle
	}
	h.handleByVPath[vpath] = handle
	h.objByHandle[handle] = &entry[T]{value: value, vpath: vpath}
	return handle
}

// Lookup 查找当前代中(parent, key)对应的句柄
func (h *HandleTree[T]) Lookup(parent Handle, key string) (Handle, bool) {
	vpath, err := h.vpath(parent, key)
	if err != nil {
		return 0, false
	}
	handle, ok := h.handleByVPath[vpath]
	return handle, ok
}

// Replace 替换已存在句柄对应的对象，句柄不存在时返回false
func (h *HandleTree[T]) Replace(handle Handle, value T) bool {
	e, ok := h.objByHandle[handle]
	if !ok {
		return false
	}
	e.value = value
	return true
}

func (h *HandleTree[T]) Get(handle Handle) (T, bool) {
	e, ok := h.objByHandle[handle]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Len 当前代存活的句柄数量
func (h *HandleTree[T]) Len() int {
	return len(h.objByHandle)
}

func (h *HandleTree[T]) vpath(parent Handle, key string) (string, error) {
	if parent == 0 {
		return key, nil
	}
	p, ok := h.objByHandle[parent]
	if !ok {
		return "", fmt.Errorf("parent handle %d is not live", parent)
	}
	return p.vpath + vpathSep + key, nil
}
