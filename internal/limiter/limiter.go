// Package limiter bounds how many CPU-heavy PDF jobs of each kind run at
// once in this process.
package limiter

import (
	"strings"
	"sync"
)

// Limiter hands out slots per job kind. The zero value is not usable; call
// New.
type Limiter struct {
	maxInflight int
	mu          sync.Mutex
	sem         map[string]chan struct{}
}

// New returns a limiter allowing maxInflight concurrent jobs per kind.
// Values below 1 become 1.
func New(maxInflight int) *Limiter {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	return &Limiter{maxInflight: maxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for kind without blocking.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (l *Limiter) Allow(kind string) (func(), bool) {
	key := strings.ToLower(kind)
	l.mu.Lock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.maxInflight)
		l.sem[key] = ch
	}
	l.mu.Unlock()
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		return func() {}, false
	}
}

// InFlight returns the number of slots held for kind.
func (l *Limiter) InFlight(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.sem[strings.ToLower(kind)]; ok {
		return len(ch)
	}
	return 0
}
