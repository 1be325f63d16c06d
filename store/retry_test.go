package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/store/memory"
	"github.com/nathoo/lorecore/types"
)

var errFlaky = errors.New("database is locked")

// flakyStore fails the first n cascade appends.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyStore) AppendCascadeLog(ctx context.Context, l types.CascadeLog) error {
	f.calls++
	if f.calls <= f.failures {
		return errFlaky
	}
	return f.Store.AppendCascadeLog(ctx, l)
}

func newRetrying(inner store.Store, tries uint) *store.Retrying {
	r := store.NewRetrying(inner, tries)
	r.InitialInterval = time.Millisecond
	return r
}

func TestRetrying_RecoversFromTransientFailure(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: memory.New(), failures: 2}
	r := newRetrying(flaky, 5)

	if err := r.AppendCascadeLog(ctx, types.CascadeLog{ID: "l1", SessionID: "s1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
	logs, err := r.CascadeLogs(ctx, "s1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("logs = %d, want 1", len(logs))
	}
}

func TestRetrying_GivesUp(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), failures: 10}
	r := newRetrying(flaky, 3)

	err := r.AppendCascadeLog(context.Background(), types.CascadeLog{ID: "l1", SessionID: "s1"})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("err = %v, want errFlaky", err)
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetrying_ContextErrorIsPermanent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRetrying(memory.New(), 5)
	if err := r.AppendBluff(ctx, types.BluffAttempt{ID: "b1", SessionID: "s1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewRetrying_MinimumOneTry(t *testing.T) {
	if r := store.NewRetrying(memory.New(), 0); r.MaxTries != 1 {
		t.Errorf("MaxTries = %d, want 1", r.MaxTries)
	}
}
