package eventstream

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mrzor/cycletrace/internal/event"
)

// fakeReader replays samples, then blocks until closed.
type fakeReader struct {
	mu      sync.Mutex
	samples [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeReader(samples ...[]byte) *fakeReader {
	return &fakeReader{samples: samples, closed: make(chan struct{})}
}

func (f *fakeReader) Read() (ringbuf.Record, error) {
	f.mu.Lock()
	if len(f.samples) > 0 {
		s := f.samples[0]
		f.samples = f.samples[1:]
		f.mu.Unlock()
		return ringbuf.Record{RawSample: s}, nil
	}
	f.mu.Unlock()
	<-f.closed
	return ringbuf.Record{}, ringbuf.ErrClosed
}

func (f *fakeReader) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestRecordSize(t *testing.T) {
	assert.Equal(t, 96, RecordSize)
}

func TestDecode_RoundTrip(t *testing.T) {
	raw := Encode(NewRecord("irq:irq_handler_entry", 3, 12345, 42, "swapper/3"))
	require.Len(t, raw, RecordSize)

	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "irq:irq_handler_entry", ev.Name)
	assert.Equal(t, event.Source(3), ev.Source)
	assert.Equal(t, uint64(12345), ev.Timestamp)
	assert.Equal(t, int32(42), ev.Pid)
	assert.Equal(t, "swapper/3", ev.Comm)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(make([]byte, RecordSize-1))
	assert.ErrorContains(t, err, "short record")

	_, err = Decode(Encode(NewRecord("", 0, 1, 0, "")))
	assert.ErrorIs(t, err, event.ErrEmptyName)
}

func TestNewRecord_Truncates(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	ev, err := Decode(Encode(NewRecord(string(long), 0, 1, 0, "a-very-long-command-name")))
	require.NoError(t, err)
	assert.Len(t, ev.Name, NameLen-1)
	assert.Len(t, ev.Comm, CommLen-1)
}

func TestStream_DeliversUntilCancelled(t *testing.T) {
	reader := newFakeReader(
		Encode(NewRecord("a", 0, 1, 1, "p")),
		[]byte{1, 2, 3},
		Encode(NewRecord("b", 1, 2, 1, "p")),
	)
	s := New(reader, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	err := s.Stream(ctx, func(ev event.Event) error {
		got = append(got, ev.Name)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestStream_StopEndsCleanly(t *testing.T) {
	reader := newFakeReader()
	s := New(reader, nil)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	err := s.Stream(context.Background(), func(event.Event) error { return nil })
	assert.NoError(t, err)
}

func TestStream_IngestError(t *testing.T) {
	boom := errors.New("boom")
	s := New(newFakeReader(Encode(NewRecord("a", 0, 1, 1, "p"))), nil)

	err := s.Stream(context.Background(), func(event.Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}
