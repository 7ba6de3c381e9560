// Package cooldown rate-limits executions. The last-execution timestamp is
// the only state that survives across check invocations.
package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/KalyCoinProject/kusd-keeper/internal/state"
)

const lastExecutionKey = "last_execution_unix_ns"

type Tracker struct {
	store state.Store
	d     time.Duration
}

func New(store state.Store, d time.Duration) *Tracker {
	return &Tracker{store: store, d: d}
}

// RecordExecution is called only after a trade sequence fully completes.
func (t *Tracker) RecordExecution(ctx context.Context, ts time.Time) error {
	return t.store.Set(ctx, lastExecutionKey, strconv.FormatInt(ts.UnixNano(), 10))
}

// Remaining returns how long the current cooldown still has to run, or zero
// if it has elapsed or no execution was ever recorded.
func (t *Tracker) Remaining(ctx context.Context, now time.Time) (time.Duration, error) {
	v, ok, err := t.store.Get(ctx, lastExecutionKey)
	if err != nil {
		return 0, fmt.Errorf("read last execution: %w", err)
	}
	if !ok {
		return 0, nil
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse last execution %q: %w", v, err)
	}
	rem := t.d - now.Sub(time.Unix(0, ns))
	if rem < 0 {
		return 0, nil
	}
	return rem, nil
}
