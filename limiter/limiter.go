package limiter

import (
	"context"
	"sync"
)

// Limiter hands out execution slots. The returned release func is safe to
// call more than once.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process counting semaphore
type Local struct {
	slots chan struct{}
}

// NewLocal creates a Local limiter with n slots; n below 1 is treated as 1
func NewLocal(n int) *Local {
	if n < 1 {
		n = 1
	}
	return &Local{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done
func (l *Local) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.slots <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-l.slots })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InUse reports the number of slots currently held
func (l *Local) InUse() int {
	return len(l.slots)
}
