package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mrzor/cycletrace/internal/event"
)

const maxLineSize = 1 << 20

// lineParser turns one non-blank input line into an event.
type lineParser func(line []byte) (event.Event, error)

// Reader streams events parsed line by line from an io.Reader.
type Reader struct {
	r       io.Reader
	parse   lineParser
	format  string
	logger  *zap.SugaredLogger
	lines   atomic.Uint64
	skipped atomic.Uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for skipped lines.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

func newReader(r io.Reader, format string, parse lineParser, opts ...Option) *Reader {
	rd := &Reader{r: r, parse: parse, format: format, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Stream implements engine.Source. It returns nil at end of input.
func (rd *Reader) Stream(ctx context.Context, ingest func(event.Event) error) error {
	sc := bufio.NewScanner(rd.r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := rd.lines.Add(1)
		line := sc.Bytes()
		if isBlankOrComment(line) {
			continue
		}

		ev, err := rd.parse(line)
		if err != nil {
			rd.skipped.Add(1)
			rd.logger.Debugw("skipping unparseable line", "format", rd.format, "line", n, "error", err)
			continue
		}
		if err := ingest(ev); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s input: %w", rd.format, err)
	}
	return nil
}

// Lines returns the number of input lines read so far.
func (rd *Reader) Lines() uint64 { return rd.lines.Load() }

// Skipped returns the number of lines that could not be parsed.
func (rd *Reader) Skipped() uint64 { return rd.skipped.Load() }

func isBlankOrComment(line []byte) bool {
	for _, c := range line {
		switch c {
		case ' ', '\t', '\r':
			continue
		case '#':
			return true
		default:
			return false
		}
	}
	return true
}
