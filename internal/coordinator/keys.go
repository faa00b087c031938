package coordinator

import "sync"

// Role — роль ордера в жизненном цикле позиции.
type Role string

const (
	RoleEntry Role = "entry"
	RoleStop  Role = "stop"
	RoleTP    Role = "tp"
)

// OrderKey — ключ идемпотентности: одна (symbol, role) пара — один
// владелец в каждый момент времени.
type OrderKey struct {
	Symbol string
	Role   Role
}

// keyedLocks — пер-ключевые мьютексы. Ключей мало (символ × 3 роли),
// записи не выселяем.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[OrderKey]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[OrderKey]*sync.Mutex)}
}

// lock — захватить мьютекс ключа; возвращает unlock.
func (k *keyedLocks) lock(key OrderKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
