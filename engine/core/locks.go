package core

import "sync"

type LockGroup string

const (
	ContextManagement     LockGroup = "context_management"
	CommandListManagement LockGroup = "command_list_management"
	ResourceManagement    LockGroup = "resource_management"
	ConfigManagement      LockGroup = "config_management"
	QueueManagement       LockGroup = "queue_management"
	DescriptorManagement  LockGroup = "descriptor_management"
)

// Mutex pool
type LockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the locks map

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// Get or create the mutex of a group
func (lp *LockPool) lock(group LockGroup) *sync.Mutex {
	lp.mu.Lock()
	l, exists := lp.locks[group]
	if !exists {
		l = &sync.Mutex{}
		lp.locks[group] = l
	}
	lp.mu.Unlock()

	l.Lock()
	return l
}

// SafeCall runs fn holding the mutex of group.
func (lp *LockPool) SafeCall(group LockGroup, fn func() error) error {
	l := lp.lock(group)
	defer l.Unlock()

	return fn()
}

func (lp *LockPool) SetQueueFamily(index uint32) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if _, exists := lp.queueMutexes[index]; !exists {
		lp.queueMutexes[index] = &sync.Mutex{}
	}
}

// SafeQueueCall runs fn holding the mutex of a queue family registered with SetQueueFamily.
func (lp *LockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	lp.mu.Lock()
	l, exists := lp.queueMutexes[queueFamilyIndex]
	lp.mu.Unlock()
	if !exists {
		return ContractViolation("SafeQueueCall", "queue family %d was never registered", queueFamilyIndex)
	}

	l.Lock()
	defer l.Unlock()

	return fn()
}
