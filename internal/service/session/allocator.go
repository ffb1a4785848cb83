package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/seu-repo/sigec-cms/internal/ports"
)

// IDAllocator hands out transaction ids. Ids are strictly increasing across
// the life of the process and never reused, even when the session they were
// allocated for is abandoned before it reaches the store.
type IDAllocator struct {
	next atomic.Int64
}

// NewIDAllocator returns an allocator whose first id is base. A base below 1
// is treated as 1.
func NewIDAllocator(base int64) *IDAllocator {
	if base < 1 {
		base = 1
	}
	a := &IDAllocator{}
	a.next.Store(base - 1)
	return a
}

// NewIDAllocatorForStore returns an allocator that continues above the
// store's highest persisted id, so a process restart never re-issues an id a
// previous run already handed out. The configured base still wins when it is
// higher, which lets migrations jump the sequence past another system's ids.
func NewIDAllocatorForStore(ctx context.Context, store ports.TransactionStore, base int64) (*IDAllocator, error) {
	maxID, err := store.MaxID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max transaction id: %w", err)
	}
	if maxID+1 > base {
		base = maxID + 1
	}
	return NewIDAllocator(base), nil
}

func (a *IDAllocator) Next() int64 {
	return a.next.Add(1)
}
