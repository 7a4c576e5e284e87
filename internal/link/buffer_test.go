package link

import (
	"testing"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

func sampleAt(ts int64, rssi int) *csi.Sample {
	return &csi.Sample{Timestamp: ts, RSSI: rssi, Amplitude: []float64{1}, Phase: []float64{0}}
}

func TestReorderBuffer_Ordering(t *testing.T) {
	rb, err := NewReorderBuffer(10, 5, DefaultResetGap)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	samples := []*csi.Sample{
		sampleAt(1_000, 1),
		sampleAt(1_020, 2),
		sampleAt(1_010, 3), // late delivery
		sampleAt(1_020, 4), // same timestamp as #2, must stay after it
		sampleAt(990, 5),   // belongs before head
		sampleAt(1_030, 6),
	}

	for i, s := range samples {
		if err := rb.Insert(s); err != nil {
			t.Errorf("Failed to insert sample %d: %v", i, err)
		}
	}

	if size := rb.Size(); size != len(samples) {
		t.Errorf("Expected buffer size %d, got %d", len(samples), size)
	}

	results := rb.DrainAll()
	if len(results) != len(samples) {
		t.Fatalf("Expected %d results, got %d", len(samples), len(results))
	}

	// RSSI is used as the arrival marker
	expected := []int{5, 1, 3, 2, 4, 6}
	for i, want := range expected {
		if results[i].RSSI != want {
			t.Errorf("Result %d: expected sample %d, got %d (ts %d)", i, want, results[i].RSSI, results[i].Timestamp)
		}
	}
}

func TestReorderBuffer_DeviceRestart(t *testing.T) {
	rb, err := NewReorderBuffer(10, 5, 1_000)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	for _, s := range []*csi.Sample{
		sampleAt(500_000, 1),
		sampleAt(500_010, 2),
		sampleAt(20, 3), // device restarted
		sampleAt(500_005, 4),
		sampleAt(10, 5),
		sampleAt(30, 6),
	} {
		if err := rb.Insert(s); err != nil {
			t.Fatalf("Failed to insert sample: %v", err)
		}
	}

	results := rb.DrainAll()
	expected := []int{1, 4, 2, 5, 3, 6}
	if len(results) != len(expected) {
		t.Fatalf("Expected %d results, got %d", len(expected), len(results))
	}
	for i, want := range expected {
		if results[i].RSSI != want {
			t.Errorf("Result %d: expected sample %d, got %d (ts %d)", i, want, results[i].RSSI, results[i].Timestamp)
		}
	}
}

func TestReorderBuffer_FlushBehavior(t *testing.T) {
	rb, err := NewReorderBuffer(3, 2, DefaultResetGap)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	for i, s := range []*csi.Sample{sampleAt(30, 0), sampleAt(20, 0), sampleAt(40, 0)} {
		if err := rb.Insert(s); err != nil {
			t.Errorf("Failed to insert sample %d: %v", i, err)
		}
	}

	if !rb.IsFull() {
		t.Error("Buffer should be full")
	}

	flushed := rb.Flush()
	if len(flushed) != 2 {
		t.Fatalf("Expected 2 flushed items, got %d", len(flushed))
	}
	if size := rb.Size(); size != 1 {
		t.Errorf("Expected remaining size 1, got %d", size)
	}
	if flushed[0].Timestamp != 20 || flushed[1].Timestamp != 30 {
		t.Errorf("Unexpected flushed timestamps %d, %d", flushed[0].Timestamp, flushed[1].Timestamp)
	}
}

func TestReorderBuffer_EdgeCases(t *testing.T) {
	rb, err := NewReorderBuffer(5, 2, DefaultResetGap)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if err := rb.Insert(nil); err == nil {
		t.Error("Expected error when inserting nil sample")
	}
	if rb.Flush() != nil {
		t.Error("Flush on empty buffer should return nil")
	}
	if rb.DrainAll() != nil {
		t.Error("DrainAll on empty buffer should return nil")
	}
	if rb.IsFull() {
		t.Error("Empty buffer should not be full")
	}

	_ = rb.Insert(sampleAt(1, 0))
	rb.Clear()
	if rb.Size() != 0 {
		t.Error("Cleared buffer should have size 0")
	}

	testCases := []struct {
		name     string
		capacity int
		flush    int
		gap      int64
	}{
		{"invalid capacity", 0, 1, DefaultResetGap},
		{"invalid flush count", 5, 6, DefaultResetGap},
		{"invalid reset gap", 5, 2, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewReorderBuffer(tc.capacity, tc.flush, tc.gap); err == nil {
				t.Error("Expected error for invalid parameters")
			}
		})
	}
}
