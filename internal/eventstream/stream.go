// Package eventstream reads marker events from a pinned BPF ring buffer.
//
// Producers write fixed-size little-endian records:
//
//	offset size field
//	0      8    timestamp (ns, CLOCK_MONOTONIC)
//	8      4    cpu
//	12     4    pid
//	16     64   event name, NUL padded
//	80     16   comm, NUL padded
package eventstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"

	"github.com/mrzor/cycletrace/internal/event"
)

const (
	// NameLen is the size of the NUL-padded event name field.
	NameLen = 64
	// CommLen is the size of the task command field (TASK_COMM_LEN).
	CommLen = 16
)

// Record is the wire layout of one ring buffer sample.
type Record struct {
	Timestamp uint64
	CPU       uint32
	Pid       int32
	Name      [NameLen]byte
	Comm      [CommLen]byte
}

// RecordSize is the encoded size of a Record.
var RecordSize = binary.Size(Record{})

// recordReader is the subset of *ringbuf.Reader used by Stream.
type recordReader interface {
	Read() (ringbuf.Record, error)
	Close() error
}

// Stream reads events from a ring buffer and hands them to the engine.
type Stream struct {
	reader    recordReader
	pinned    *ebpf.Map
	logger    *zap.SugaredLogger
	closeOnce sync.Once
}

// Open attaches to the ring buffer map pinned at path (for example
// /sys/fs/bpf/cycletrace_events).
func Open(path string, logger *zap.SugaredLogger) (*Stream, error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("loading pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.RingBuf {
		m.Close()
		return nil, fmt.Errorf("pinned map %s is %s, not a ring buffer", path, m.Type())
	}

	reader, err := ringbuf.NewReader(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("opening ringbuf reader: %w", err)
	}

	s := New(reader, logger)
	s.pinned = m
	return s, nil
}

// New wraps an existing reader.
func New(reader recordReader, logger *zap.SugaredLogger) *Stream {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stream{reader: reader, logger: logger}
}

// Stream implements engine.Source. It blocks until ctx is cancelled or Stop
// is called; a ring buffer has no natural end of trace.
func (s *Stream) Stream(ctx context.Context, ingest func(event.Event) error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	for {
		record, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return ctx.Err()
			}
			s.logger.Warnw("reading from ring buffer", "error", err)
			continue
		}

		ev, err := Decode(record.RawSample)
		if err != nil {
			s.logger.Debugw("dropping malformed record", "error", err)
			continue
		}

		if err := ingest(ev); err != nil {
			return err
		}
	}
}

// Stop closes the reader, unblocking Stream.
func (s *Stream) Stop() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.reader.Close()
		if s.pinned != nil {
			err = errors.Join(err, s.pinned.Close())
		}
	})
	return err
}

// Decode parses one raw sample.
func Decode(raw []byte) (event.Event, error) {
	if len(raw) < RecordSize {
		return event.Event{}, fmt.Errorf("short record: %d bytes, want %d", len(raw), RecordSize)
	}

	var rec Record
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &rec); err != nil {
		return event.Event{}, fmt.Errorf("parsing record: %w", err)
	}
	return event.New(cString(rec.Name[:]), nil, event.Source(rec.CPU), rec.Timestamp, rec.Pid, cString(rec.Comm[:]))
}

// Encode is the inverse of Decode. Names longer than the fixed fields are
// truncated.
func Encode(rec Record) []byte {
	var buf bytes.Buffer
	buf.Grow(RecordSize)
	_ = binary.Write(&buf, binary.LittleEndian, rec)
	return buf.Bytes()
}

// NewRecord builds a Record from event fields.
func NewRecord(name string, cpu uint32, ts uint64, pid int32, comm string) Record {
	rec := Record{Timestamp: ts, CPU: cpu, Pid: pid}
	copy(rec.Name[:NameLen-1], name)
	copy(rec.Comm[:CommLen-1], comm)
	return rec
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
