package utils

import "sync"

const (
	// Uninitialized 会话刚建立
	Uninitialized = "uninitialized"
	// Initialized 收到initialize请求
	Initialized = "initialized"
	// ConfiguringTarget target已创建，等待configurationDone
	ConfiguringTarget = "configuring"
	// Stopped 用户程序暂停
	Stopped = "stopped"
	// Running 用户程序运行中
	Running = "running"
	// Terminated 调试结束状态
	Terminated = "terminated"
)

// StatusManager 记录调试会话的状态
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Uninitialized,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
