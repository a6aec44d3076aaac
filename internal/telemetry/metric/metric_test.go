package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCheckpoint_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCheckpoint(reg)

	c.ObserveWrite(1024, 2*time.Millisecond)
	c.ObserveWrite(512, time.Millisecond)
	c.ObserveSkip()
	c.ObserveBank(1000)

	if got := testutil.ToFloat64(c.DatasetsWritten); got != 2 {
		t.Fatalf("DatasetsWritten = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.BytesWritten); got != 1536 {
		t.Fatalf("BytesWritten = %v, want 1536", got)
	}
	if got := testutil.ToFloat64(c.UnsupportedSkips); got != 1 {
		t.Fatalf("UnsupportedSkips = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.BankRecords); got != 1000 {
		t.Fatalf("BankRecords = %v, want 1000", got)
	}
}

func TestNilCheckpointIsSafe(t *testing.T) {
	var c *Checkpoint
	c.ObserveWrite(10, time.Millisecond)
	c.ObserveSkip()
	c.ObserveBank(5)
}
