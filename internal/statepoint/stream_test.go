package statepoint

import (
	"bytes"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/statemesh/statemesh-go/internal/comm"
)

// partitionAll splits the works slice into per-rank partitions.
func partitionAll(works []int64) []Partition {
	var total, maxWork int64
	for _, w := range works {
		total += w
		if w > maxWork {
			maxWork = w
		}
	}
	parts := make([]Partition, len(works))
	var first int64
	for rank, w := range works {
		parts[rank] = Partition{
			Rank:      rank,
			Workers:   len(works),
			BankFirst: first,
			Work:      w,
			Total:     total,
			MaxWork:   maxWork,
		}
		first += w
	}
	return parts
}

// bankRecords builds this rank's records: every byte of global record g
// is g+1, so any misplaced slot shows up as the wrong fill value.
func bankRecords(part Partition, recordSize int64) []byte {
	out := make([]byte, part.Work*recordSize)
	for i := int64(0); i < part.Work; i++ {
		g := part.BankFirst + i
		for j := int64(0); j < recordSize; j++ {
			out[i*recordSize+j] = byte(g + 1)
		}
	}
	return out
}

// runRanks drives one goroutine per communicator and reports the first
// error any rank returned.
func runRanks(t *testing.T, comms []comm.Communicator, fn func(rank int, c comm.Communicator) error) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make([]error, len(comms))
	for rank, c := range comms {
		wg.Add(1)
		go func(rank int, c comm.Communicator) {
			defer wg.Done()
			errs[rank] = fn(rank, c)
		}(rank, c)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
}

func TestCollectiveStreamBankRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	const recordSize = 16
	parts := partitionAll([]int64{3, 3, 2, 2}) // uneven load keeps slot slack in play
	comms := comm.Local(len(parts))

	runRanks(t, comms, func(rank int, c comm.Communicator) error {
		f, err := Create(path, ModeCollective, Config{Backend: CollectiveStream, Comm: c})
		if err != nil {
			return err
		}
		if err := f.WriteInt64(Request{Name: "seed"}, 7919); err != nil {
			return err
		}
		if err := f.WriteSourceBank(Request{Name: "source_bank"}, parts[rank], recordSize, bankRecords(parts[rank], recordSize)); err != nil {
			return err
		}
		// A replicated value after the bank proves every rank's mirrored
		// position jumped over the whole slotted region, slack included.
		if err := f.WriteFloat64(Request{Name: "k_eff"}, 1.125); err != nil {
			return err
		}
		return f.Close()
	})

	runRanks(t, comms, func(rank int, c comm.Communicator) error {
		f, err := Open(path, ModeCollective, AccessRead, Config{Backend: CollectiveStream, Comm: c})
		if err != nil {
			return err
		}
		defer f.Close()
		if v, err := f.ReadInt64(Request{Name: "seed"}); err != nil {
			return err
		} else if v != 7919 {
			t.Errorf("rank %d: seed = %d", rank, v)
		}
		got := make([]byte, parts[rank].Work*recordSize)
		if err := f.ReadSourceBank(Request{Name: "source_bank"}, parts[rank], recordSize, got); err != nil {
			return err
		}
		if !bytes.Equal(got, bankRecords(parts[rank], recordSize)) {
			t.Errorf("rank %d: bank records corrupted", rank)
		}
		if v, err := f.ReadFloat64(Request{Name: "k_eff"}); err != nil {
			return err
		} else if v != 1.125 {
			t.Errorf("rank %d: k_eff = %v", rank, v)
		}
		return nil
	})
}

func TestCollectiveStreamOffsetWidthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")
	parts := partitionAll([]int64{1, 1})
	comms := comm.Local(len(parts))
	widths := []int{64, 32}

	bankErrs := make([]error, len(comms))

	runRanks(t, comms, func(rank int, c comm.Communicator) error {
		f, err := Create(path, ModeCollective, Config{
			Backend:     CollectiveStream,
			Comm:        c,
			OffsetWidth: widths[rank],
		})
		if err != nil {
			return err
		}
		bankErrs[rank] = f.WriteSourceBank(Request{Name: "source_bank"}, parts[rank], 8, make([]byte, 8))
		return f.Close()
	})

	if bankErrs[0] != nil {
		t.Fatalf("owner rank: %v", bankErrs[0])
	}
	if !errors.Is(bankErrs[1], ErrOffsetWidthMismatch) {
		t.Fatalf("rank 1: err = %v, want ErrOffsetWidthMismatch", bankErrs[1])
	}
}

func TestHierarchicalCollectiveBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.smc")
	const recordSize = 24
	parts := partitionAll([]int64{5, 3})
	comms := comm.Local(len(parts))

	runRanks(t, comms, func(rank int, c comm.Communicator) error {
		f, err := Create(path, ModeCollective, Config{Backend: Hierarchical, Comm: c})
		if err != nil {
			return err
		}
		// Replicated metadata lands once even though every rank calls.
		if err := f.WriteInt64(Request{Name: "n_particles"}, parts[rank].Total); err != nil {
			return err
		}
		if err := f.WriteSourceBank(Request{Name: "source_bank"}, parts[rank], recordSize, bankRecords(parts[rank], recordSize)); err != nil {
			return err
		}
		return f.Close()
	})

	// The finalized container must verify (the checksum covers slabs
	// written through the raw data-plane handles) and hold the full bank.
	r, err := Open(path, ModeSingle, AccessRead, hierConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if v, err := r.ReadInt64(Request{Name: "n_particles"}); err != nil || v != 8 {
		t.Fatalf("n_particles = %d, %v", v, err)
	}
	whole := Partition{Rank: 0, Workers: 1, BankFirst: 0, Work: 8, Total: 8, MaxWork: 8}
	got := make([]byte, 8*recordSize)
	if err := r.ReadSourceBank(Request{Name: "source_bank"}, whole, recordSize, got); err != nil {
		t.Fatalf("ReadSourceBank: %v", err)
	}
	for g := int64(0); g < 8; g++ {
		for j := int64(0); j < recordSize; j++ {
			if got[g*recordSize+j] != byte(g+1) {
				t.Fatalf("record %d byte %d = %d, want %d", g, j, got[g*recordSize+j], g+1)
			}
		}
	}
}

func TestThrottledWriteCompletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	f, err := Create(path, ModeSingle, Config{Backend: Sequential, MaxWriteRate: 1 << 30})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	vals := make([]float64, 4096)
	if err := f.WriteFloat64Array(Request{Name: "bulk"}, vals, int64(len(vals))); err != nil {
		t.Fatalf("WriteFloat64Array: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
