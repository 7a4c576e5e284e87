package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/wifi-csi/internal/csi"
	"github.com/roman-kulish/wifi-csi/internal/link"
	"github.com/roman-kulish/wifi-csi/internal/storage"
)

var timeNow = time.Now

// WithMaxBatchSize sets the maximum batch size of collected samples to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithReorderBuffer orders samples by device timestamp before they are stored.
func WithReorderBuffer(rb *link.ReorderBuffer) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.buffer = rb
	}
}

// WithMaxPackets stops collection once n samples have been accepted.
func WithMaxPackets(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxPackets = n
	}
}

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Result summarizes one collection run.
type Result struct {
	SessionID int64
	Samples   []csi.Sample // in storage order
	PerLabel  map[string]int
	Counters  link.Counters
	Elapsed   time.Duration
}

// Rate returns the number of samples collected per second.
func (r *Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(len(r.Samples)) / r.Elapsed.Seconds()
}

// Orchestrator reads samples from a device link, optionally reorders them by device
// timestamp, and stores them in a collection session.
type Orchestrator struct {
	store  storage.Store
	logger *slog.Logger
	buffer *link.ReorderBuffer

	maxBatchSize int
	maxPackets   int

	pending   []csi.Sample
	collected []csi.Sample
	perLabel  map[string]int
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(store storage.Store, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		store:        store,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBatchSize: defaultMaxBatchSize,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run creates a session and collects samples from src into it until ctx is cancelled,
// the source ends, or the packet limit is reached.
func (o *Orchestrator) Run(ctx context.Context, src Source, info storage.SessionInfo, config any) (*Result, error) {
	sessionID, err := o.store.CreateSession(ctx, info, config)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", src.Name(), err)
	}

	o.pending = o.pending[:0]
	o.collected = nil
	o.perLabel = make(map[string]int)

	// Storage outlives the collection context so that buffered samples are persisted
	// after an interrupt.
	storeCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan csi.Sample, defaultChannelSize)
	var (
		wg        sync.WaitGroup
		sourceErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(samples)

		if sourceErr = src.Collect(ctx, samples); sourceErr != nil {
			o.logger.Error(sourceErr.Error())
		}
	}()

	started := timeNow()
	accepted := 0

	for s := range samples {
		if o.maxPackets > 0 && accepted >= o.maxPackets {
			continue // drain what is in flight
		}
		accepted++

		if err = o.handleSample(storeCtx, sessionID, s); err != nil {
			cancel()
			wg.Wait()
			return nil, err
		}

		if o.maxPackets > 0 && accepted == o.maxPackets {
			o.logger.Info("packet limit reached", slog.Int("packets", accepted))
			cancel()
		}
	}
	wg.Wait()

	if o.buffer != nil {
		for _, s := range o.buffer.DrainAll() {
			o.pending = append(o.pending, *s)
		}
	}
	if err = o.flush(storeCtx, sessionID); err != nil {
		return nil, err
	}

	res := Result{
		SessionID: sessionID,
		Samples:   o.collected,
		PerLabel:  o.perLabel,
		Counters:  src.Counters(),
		Elapsed:   timeNow().Sub(started),
	}
	if sourceErr != nil {
		return &res, fmt.Errorf("collecting from %s: %w", src.Name(), sourceErr)
	}
	return &res, nil
}

func (o *Orchestrator) handleSample(ctx context.Context, sessionID int64, s csi.Sample) error {
	if o.buffer == nil {
		o.pending = append(o.pending, s)
	} else {
		if err := o.buffer.Insert(&s); err != nil {
			return fmt.Errorf("buffering sample: %w", err)
		}
		if o.buffer.IsFull() {
			for _, f := range o.buffer.Flush() {
				o.pending = append(o.pending, *f)
			}
		}
	}

	if len(o.pending) >= o.maxBatchSize {
		return o.flush(ctx, sessionID)
	}
	return nil
}

func (o *Orchestrator) flush(ctx context.Context, sessionID int64) error {
	if len(o.pending) == 0 {
		return nil
	}

	if err := o.store.StoreSamples(ctx, sessionID, o.pending); err != nil {
		return fmt.Errorf("storing samples: %w", err)
	}

	for _, s := range o.pending {
		o.perLabel[s.Label]++
	}
	o.collected = append(o.collected, o.pending...)
	o.pending = o.pending[:0]

	o.logger.Debug("samples stored", slog.Int("total", len(o.collected)))
	return nil
}
