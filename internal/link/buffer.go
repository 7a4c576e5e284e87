package link

import (
	"fmt"
	"sync"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// DefaultResetGap is the backwards jump of the device clock, in milliseconds, that is
// treated as a device restart rather than a late record.
const DefaultResetGap = 60_000

// node represents an internal linked list node for the reorder buffer.
type node struct {
	sample *csi.Sample
	epoch  int
	next   *node
}

// ReorderBuffer implements a thread-safe buffer that restores device clock order of
// samples delivered out of order, for example by an MQTT broker with QoS 1 redelivery.
// Samples with equal timestamps keep their arrival order. A timestamp that jumps back by
// more than the reset gap starts a new clock epoch and is ordered after everything
// already buffered; a sample that jumps forward by more than the gap in a later epoch is
// a late delivery from the previous one.
type ReorderBuffer struct {
	capacity   int   // Maximum number of samples to store
	flushCount int   // Number of samples to remove when buffer reaches capacity
	resetGap   int64 // Backwards clock jump treated as a device restart

	mu       sync.Mutex
	head     *node
	size     int
	epoch    int   // Current device clock epoch
	epochMax int64 // Latest timestamp seen in the current epoch
	started  bool
}

// NewReorderBuffer creates a new reorder buffer.
//
// Parameters:
//   - capacity: maximum number of samples to store
//   - flushCount: number of samples to remove when buffer is full
//   - resetGap: backwards device clock jump in milliseconds treated as a restart
//
// Returns an error if parameters are invalid.
func NewReorderBuffer(capacity, flushCount int, resetGap int64) (*ReorderBuffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	if resetGap <= 0 {
		return nil, fmt.Errorf("invalid reset gap: %d", resetGap)
	}
	return &ReorderBuffer{
		capacity:   capacity,
		flushCount: flushCount,
		resetGap:   resetGap,
	}, nil
}

// Insert adds a sample to the buffer in device clock order.
func (rb *ReorderBuffer) Insert(sample *csi.Sample) error {
	if sample == nil {
		return fmt.Errorf("cannot insert nil sample")
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	epoch := rb.epoch
	switch {
	case !rb.started:
		rb.epochMax = sample.Timestamp
		rb.started = true

	case rb.epochMax-sample.Timestamp > rb.resetGap:
		rb.epoch++
		rb.epochMax = sample.Timestamp
		epoch = rb.epoch

	case rb.epoch > 0 && sample.Timestamp-rb.epochMax > rb.resetGap:
		// Late delivery from before the restart
		epoch = rb.epoch - 1

	case sample.Timestamp > rb.epochMax:
		rb.epochMax = sample.Timestamp
	}

	n := &node{sample: sample, epoch: epoch}

	if rb.head == nil {
		rb.head = n
		rb.size++
		return nil
	}

	// Special case: sample belongs before head
	if rb.compareOrder(n, rb.head) == -1 {
		n.next = rb.head
		rb.head = n
		rb.size++
		return nil
	}

	// Find insertion point
	current := rb.head
	for current != nil {
		// If we're at the end or the next sample should come after the new one
		if current.next == nil || rb.compareOrder(current.next, n) == 1 {
			n.next = current.next
			current.next = n
			rb.size++
			return nil
		}
		current = current.next
	}

	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (rb *ReorderBuffer) IsFull() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.size >= rb.capacity
}

// Flush removes and returns the oldest samples from the buffer.
// Returns nil if the buffer is empty.
func (rb *ReorderBuffer) Flush() []*csi.Sample {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.head == nil || rb.size == 0 {
		return nil
	}

	count := rb.flushCount
	if rb.size > rb.capacity {
		count += rb.size - rb.capacity
	}
	count = min(count, rb.size)

	results := make([]*csi.Sample, 0, count)
	current := rb.head
	for i := 0; i < count && current != nil; i++ {
		results = append(results, current.sample)
		current = current.next
	}

	rb.head = current
	rb.size -= len(results)
	return results
}

// DrainAll removes and returns all samples from the buffer.
// Returns nil if the buffer is empty.
func (rb *ReorderBuffer) DrainAll() []*csi.Sample {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.head == nil || rb.size == 0 {
		return nil
	}

	results := make([]*csi.Sample, 0, rb.size)
	for current := rb.head; current != nil; current = current.next {
		results = append(results, current.sample)
	}

	rb.head = nil
	rb.size = 0
	return results
}

// Size returns the current number of samples in the buffer.
func (rb *ReorderBuffer) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Clear removes all samples from the buffer.
func (rb *ReorderBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = nil
	rb.size = 0
	rb.epoch, rb.epochMax = 0, 0
	rb.started = false
}

// compareOrder determines the relative ordering of two buffered samples.
// Returns:
//
//	1 if 'a' belongs after 'b' (later epoch or later timestamp)
//	-1 if 'a' belongs before 'b'
//	0 if both carry the same epoch and timestamp
func (rb *ReorderBuffer) compareOrder(a, b *node) int {
	switch {
	case a.epoch != b.epoch:
		if a.epoch > b.epoch {
			return 1
		}
		return -1

	case a.sample.Timestamp > b.sample.Timestamp:
		return 1

	case a.sample.Timestamp < b.sample.Timestamp:
		return -1

	default:
		return 0
	}
}
