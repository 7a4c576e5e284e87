// Package link adapts the device-link record stream into CSI samples: newline-delimited
// JSON records from a serial device, file or pipe, or JSON payloads delivered over MQTT.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// maxLineSize bounds a single record line; a 64-subcarrier record with full precision
// floats stays well below it.
const maxLineSize = 1 << 20

// ErrBrokenPipe is returned when the underlying stream fails while reading.
var ErrBrokenPipe = errors.New("broken pipe")

// Counters reports how the lines of a stream were classified.
type Counters struct {
	Accepted  uint64 // Valid records forwarded as samples
	Skipped   uint64 // Blank and non-JSON lines, such as device log output
	Malformed uint64 // JSON-looking lines that failed record validation
}

type counters struct {
	accepted, skipped, malformed atomic.Uint64
}

func (c *counters) snapshot() Counters {
	return Counters{
		Accepted:  c.accepted.Load(),
		Skipped:   c.skipped.Load(),
		Malformed: c.malformed.Load(),
	}
}

// WithReaderLogger sets the logger for the record reader.
func WithReaderLogger(logger *slog.Logger) func(r *RecordReader) {
	return func(r *RecordReader) {
		r.logger = logger.With(slog.String("source", r.name))
	}
}

// WithStamp applies fn to every accepted sample before it is forwarded, for example to
// attach the session label.
func WithStamp(fn func(s *csi.Sample)) func(r *RecordReader) {
	return func(r *RecordReader) {
		r.stamp = fn
	}
}

// RecordReader reads device-link records from a stream and forwards valid ones as
// samples. Non-JSON lines and malformed records are skipped and counted, never fatal.
type RecordReader struct {
	name string
	src  io.Reader

	isReading atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	stamp    func(s *csi.Sample)
	counters counters
	logger   *slog.Logger
}

// NewRecordReader creates a new RecordReader instance with a discard logger. If src
// implements io.Closer it is closed when reading is stopped, to unblock pending reads.
func NewRecordReader(name string, src io.Reader, options ...func(r *RecordReader)) *RecordReader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	r := RecordReader{
		name:   name,
		src:    src,
		logger: logger,
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Name returns the name of the source.
func (r *RecordReader) Name() string {
	return r.name
}

// Counters returns a snapshot of the line counters.
func (r *RecordReader) Counters() Counters {
	return r.counters.snapshot()
}

// Start begins reading in the background and sends samples to the samples channel. The
// returned channel yields at most one error and is closed when reading stops.
func (r *RecordReader) Start(ctx context.Context, samples chan<- csi.Sample) (<-chan error, error) {
	if !r.isReading.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("reader %s is already running", r.name)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	stopped := make(chan error, 1)

	if closer, ok := r.src.(io.Closer); ok {
		go func() {
			<-ctx.Done()
			_ = closer.Close()
		}()
	}

	r.wg.Add(1)
	go func() {
		defer func() {
			r.cancel()
			close(stopped)
			r.isReading.Store(false)
			r.wg.Done()
		}()

		r.logger.Info("starting records collection...")

		if err := r.Read(ctx, samples); err != nil && ctx.Err() == nil {
			r.logger.Error(err.Error())
			stopped <- err
		}

		r.logger.Info("records collection stopped", slog.Any("counters", r.Counters()))
	}()

	return stopped, nil
}

// Stop cancels a running reader and waits for it to finish.
func (r *RecordReader) Stop() {
	if !r.isReading.Load() {
		return // already stopped
	}

	r.cancel()
	r.wg.Wait()
}

// IsReading returns true if the reader is running.
func (r *RecordReader) IsReading() bool {
	return r.isReading.Load()
}

// Read consumes the stream synchronously until EOF or cancellation.
func (r *RecordReader) Read(ctx context.Context, samples chan<- csi.Sample) error {
	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		s, ok := r.parse(scanner.Text())
		if !ok {
			continue
		}

		select {
		case samples <- s:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: error reading %s: %w", ErrBrokenPipe, r.name, err)
	}

	return nil
}

// parse classifies one line and returns the sample it carries, if any.
func (r *RecordReader) parse(line string) (csi.Sample, bool) {
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, "{") {
		r.counters.skipped.Add(1)
		if line != "" {
			r.logger.Debug("device >> " + line)
		}
		return csi.Sample{}, false
	}

	s, err := csi.ParseRecord(line)
	if err != nil {
		r.counters.malformed.Add(1)
		r.logger.Warn(fmt.Sprintf("error parsing record: %s", err.Error()), slog.Int("length", len(line)))
		return csi.Sample{}, false
	}

	if r.stamp != nil {
		r.stamp(&s)
	}
	r.counters.accepted.Add(1)
	return s, true
}
