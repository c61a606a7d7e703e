package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeMailbox struct {
	mu       sync.Mutex
	unseen   []Email
	fetchErr error
	seen     []uint32
	archived []uint32
	folders  []string
}

func (f *fakeMailbox) FetchUnseen(ctx context.Context) ([]Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]Email, len(f.unseen))
	copy(out, f.unseen)
	return out, nil
}

func (f *fakeMailbox) MarkSeen(uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, uids...)
	keep := f.unseen[:0]
	for _, e := range f.unseen {
		if !containsUID(uids, e.UID) {
			keep = append(keep, e)
		}
	}
	f.unseen = keep
	return nil
}

func (f *fakeMailbox) EnsureFolderExists(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, name)
	return nil
}

func (f *fakeMailbox) ArchiveEmails(uids []uint32, folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, uids...)
	return nil
}

func containsUID(uids []uint32, uid uint32) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}

func TestPollerRunOnceDispositions(t *testing.T) {
	mb := &fakeMailbox{unseen: []Email{{UID: 1}, {UID: 2}, {UID: 3}}}
	handler := func(ctx context.Context, e Email) Disposition {
		switch e.UID {
		case 1:
			return Done
		case 2:
			return Retry
		default:
			return Discard
		}
	}

	p := NewPoller(mb, handler, time.Minute, "Enkat", zap.NewNop())
	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []uint32{1, 3}, mb.seen)
	assert.Equal(t, []uint32{1, 3}, mb.archived)
	assert.Equal(t, []string{"Enkat"}, mb.folders)
	require.Len(t, mb.unseen, 1)
	assert.Equal(t, uint32(2), mb.unseen[0].UID)
}

func TestPollerWithoutArchiveFolder(t *testing.T) {
	mb := &fakeMailbox{unseen: []Email{{UID: 7}}}
	p := NewPoller(mb, func(context.Context, Email) Disposition { return Done }, time.Minute, "", zap.NewNop())

	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, mb.seen)
	assert.Empty(t, mb.archived)
	assert.Empty(t, mb.folders)
}

func TestPollerRunOnceFetchError(t *testing.T) {
	mb := &fakeMailbox{fetchErr: errors.New("connection reset")}
	p := NewPoller(mb, func(context.Context, Email) Disposition { return Done }, time.Minute, "", zap.NewNop())

	_, err := p.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := &fakeMailbox{unseen: []Email{{UID: 1}}}
	var mu sync.Mutex
	handled := 0
	handler := func(ctx context.Context, e Email) Disposition {
		mu.Lock()
		handled++
		mu.Unlock()
		return Done
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(mb, handler, 10*time.Millisecond, "", zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, handled)
}
