package statepoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/statemesh/statemesh-go/internal/comm"
	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
	"github.com/statemesh/statemesh-go/internal/telemetry/metric"
)

func seqConfig() Config {
	return Config{Backend: Sequential}
}

func TestSequentialRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	w, err := Create(path, ModeSingle, seqConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteFloat64(Request{Name: "k_eff"}, 3.14159); err != nil {
		t.Fatalf("WriteFloat64: %v", err)
	}
	if err := w.WriteInt32(Request{Name: "n_batches"}, 250); err != nil {
		t.Fatalf("WriteInt32: %v", err)
	}
	if err := w.WriteInt64(Request{Name: "n_particles"}, 1_000_000); err != nil {
		t.Fatalf("WriteInt64: %v", err)
	}
	if err := w.WriteString(Request{Name: "version"}, "statemesh", 16); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	vals := []float64{0.25, -1.5, 1e300, math.SmallestNonzeroFloat64}
	if err := w.WriteFloat64Array(Request{Name: "entropy"}, vals, 4); err != nil {
		t.Fatalf("WriteFloat64Array: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, ModeSingle, AccessRead, seqConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	keff, err := r.ReadFloat64(Request{Name: "k_eff"})
	if err != nil {
		t.Fatalf("ReadFloat64: %v", err)
	}
	if math.Float64bits(keff) != math.Float64bits(3.14159) {
		t.Fatalf("k_eff = %v, want bit-identical 3.14159", keff)
	}
	if n, err := r.ReadInt32(Request{Name: "n_batches"}); err != nil || n != 250 {
		t.Fatalf("ReadInt32 = %d, %v", n, err)
	}
	if n, err := r.ReadInt64(Request{Name: "n_particles"}); err != nil || n != 1_000_000 {
		t.Fatalf("ReadInt64 = %d, %v", n, err)
	}
	if s, err := r.ReadString(Request{Name: "version"}, 16); err != nil || s != "statemesh" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	got := make([]float64, 4)
	if err := r.ReadFloat64Array(Request{Name: "entropy"}, got, 4); err != nil {
		t.Fatalf("ReadFloat64Array: %v", err)
	}
	for i := range vals {
		if math.Float64bits(got[i]) != math.Float64bits(vals[i]) {
			t.Fatalf("entropy[%d] = %v, want %v", i, got[i], vals[i])
		}
	}
}

func TestSequentialScalarBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	w, err := Create(path, ModeSingle, seqConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteFloat64(Request{Name: "k_eff"}, 3.14159); err != nil {
		t.Fatalf("WriteFloat64: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(raw) != streamMagicSize+8 {
		t.Fatalf("file size = %d, want %d", len(raw), streamMagicSize+8)
	}
	if got := binary.LittleEndian.Uint64(raw[streamMagicSize:]); got != math.Float64bits(3.14159) {
		t.Fatalf("on-disk bits = %#x, want %#x", got, math.Float64bits(3.14159))
	}
}

func TestSequentialTallyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	const n1, n2 = 2, 3
	results := make([]TallyResult, n1*n2)
	for i := range results {
		results[i] = TallyResult{Sum: 1.0, SumSq: 2.0}
	}

	w, err := Create(path, ModeSingle, seqConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteTallyResults(Request{Name: "flux"}, results, n1, n2); err != nil {
		t.Fatalf("WriteTallyResults: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The stream layout is sum then sum-of-squares per cell, row-major.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	body := raw[streamMagicSize:]
	if len(body) != 16*n1*n2 {
		t.Fatalf("tally block = %d bytes, want %d", len(body), 16*n1*n2)
	}
	for i := 0; i < n1*n2; i++ {
		sum := binary.LittleEndian.Uint64(body[i*16:])
		sq := binary.LittleEndian.Uint64(body[i*16+8:])
		if sum != math.Float64bits(1.0) || sq != math.Float64bits(2.0) {
			t.Fatalf("cell %d = (%#x, %#x)", i, sum, sq)
		}
	}

	r, err := Open(path, ModeSingle, AccessRead, seqConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got := make([]TallyResult, n1*n2)
	if err := r.ReadTallyResults(Request{Name: "flux"}, got, n1, n2); err != nil {
		t.Fatalf("ReadTallyResults: %v", err)
	}
	for i, cell := range got {
		if cell != results[i] {
			t.Fatalf("cell %d = %+v", i, cell)
		}
	}
}

func TestUnsupportedShapeSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	var buf bytes.Buffer
	log := logger.FromSlog(slog.New(slog.NewJSONHandler(&buf, nil)))
	metrics := metric.NewCheckpoint(prometheus.NewRegistry())

	cfg := Config{Backend: Sequential, Logger: log, Metrics: metrics}
	w, err := Create(path, ModeSingle, cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	matrix := make([]float64, 6)
	if err := w.WriteFloat64Matrix(Request{Name: "mesh"}, matrix, 2, 3); err != nil {
		t.Fatalf("matrix write should be skipped, not failed: %v", err)
	}
	cube := make([]int32, 8)
	if err := w.WriteInt32Cube(Request{Name: "grid"}, cube, 2, 2, 2); err != nil {
		t.Fatalf("cube write should be skipped, not failed: %v", err)
	}
	if err := w.WriteFloat64(Request{Name: "k_eff"}, 1.0); err != nil {
		t.Fatalf("WriteFloat64: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Skipped shapes write zero bytes: only the scalar landed.
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size() != streamMagicSize+8 {
		t.Fatalf("file size = %d, want %d", stat.Size(), streamMagicSize+8)
	}
	if got := testutil.ToFloat64(metrics.UnsupportedSkips); got != 2 {
		t.Fatalf("skips = %v, want 2", got)
	}
	if n := strings.Count(buf.String(), "skipping write"); n != 2 {
		t.Fatalf("diagnostics = %d, want exactly one per skipped call:\n%s", n, buf.String())
	}
}

func hierConfig() Config {
	return Config{Backend: Hierarchical}
}

func TestHierarchicalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.smc")

	w, err := Create(path, ModeSingle, hierConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteFloat64(Request{Name: "k_eff"}, 1.00042); err != nil {
		t.Fatalf("WriteFloat64: %v", err)
	}
	if err := w.WriteAttrString(Request{Name: "k_eff"}, "units", "dimensionless"); err != nil {
		t.Fatalf("WriteAttrString: %v", err)
	}
	matrix := []float64{1, 2, 3, 4, 5, 6}
	if err := w.WriteFloat64Matrix(Request{Name: "mesh", Group: "tallies"}, matrix, 2, 3); err != nil {
		t.Fatalf("WriteFloat64Matrix: %v", err)
	}
	cube := []int32{1, 2, 3, 4, 5, 6, 7, 8}
	if err := w.WriteInt32Cube(Request{Name: "grid", Group: "tallies"}, cube, 2, 2, 2); err != nil {
		t.Fatalf("WriteInt32Cube: %v", err)
	}
	if err := w.WriteInt32(Request{Name: "n", Group: "tallies"}, 7); err != nil {
		t.Fatalf("grouped WriteInt32: %v", err)
	}
	if err := w.WriteInt32(Request{Name: "n"}, 9); err != nil {
		t.Fatalf("root WriteInt32: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, ModeSingle, AccessRead, hierConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if v, err := r.ReadFloat64(Request{Name: "k_eff"}); err != nil || v != 1.00042 {
		t.Fatalf("ReadFloat64 = %v, %v", v, err)
	}
	gotM := make([]float64, 6)
	if err := r.ReadFloat64Matrix(Request{Name: "mesh", Group: "tallies"}, gotM, 2, 3); err != nil {
		t.Fatalf("ReadFloat64Matrix: %v", err)
	}
	for i := range matrix {
		if gotM[i] != matrix[i] {
			t.Fatalf("mesh[%d] = %v, want %v", i, gotM[i], matrix[i])
		}
	}
	gotC := make([]int32, 8)
	if err := r.ReadInt32Cube(Request{Name: "grid", Group: "tallies"}, gotC, 2, 2, 2); err != nil {
		t.Fatalf("ReadInt32Cube: %v", err)
	}
	for i := range cube {
		if gotC[i] != cube[i] {
			t.Fatalf("grid[%d] = %d, want %d", i, gotC[i], cube[i])
		}
	}
	if v, err := r.ReadInt32(Request{Name: "n", Group: "tallies"}); err != nil || v != 7 {
		t.Fatalf("grouped n = %d, %v", v, err)
	}
	if v, err := r.ReadInt32(Request{Name: "n"}); err != nil || v != 9 {
		t.Fatalf("root n = %d, %v", v, err)
	}
}

func TestHierarchicalTally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.smc")

	const n1, n2 = 2, 3
	results := make([]TallyResult, n1*n2)
	for i := range results {
		results[i] = TallyResult{Sum: float64(i), SumSq: float64(i * i)}
	}

	w, err := Create(path, ModeSingle, hierConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteTallyResults(Request{Name: "flux", Group: "tallies"}, results, n1, n2); err != nil {
		t.Fatalf("WriteTallyResults: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := Open(path, ModeSingle, AccessRead, hierConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got := make([]TallyResult, n1*n2)
	if err := r.ReadTallyResults(Request{Name: "flux", Group: "tallies"}, got, n1, n2); err != nil {
		t.Fatalf("ReadTallyResults: %v", err)
	}
	for i := range results {
		if got[i] != results[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, got[i], results[i])
		}
	}
}

func TestSingleOwnerInertHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.smc")
	comms := comm.Local(3)

	var wg sync.WaitGroup
	errs := make([]error, len(comms))
	for rank, c := range comms {
		wg.Add(1)
		go func(rank int, c comm.Communicator) {
			defer wg.Done()
			f, err := Create(path, ModeSingle, Config{Backend: Hierarchical, Comm: c})
			if err != nil {
				errs[rank] = err
				return
			}
			// Every rank makes the same calls; only the owner's touch
			// the file, the rest return immediately.
			if err := f.WriteFloat64(Request{Name: "k_eff"}, 0.5); err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = f.Close()
		}(rank, c)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}

	r, err := Open(path, ModeSingle, AccessRead, hierConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if v, err := r.ReadFloat64(Request{Name: "k_eff"}); err != nil || v != 0.5 {
		t.Fatalf("k_eff = %v, %v", v, err)
	}
}

func TestStreamBackendsAreBitCompatible(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "seq.bin")
	str := filepath.Join(dir, "str.bin")

	write := func(path string, backend BackendKind) {
		t.Helper()
		f, err := Create(path, ModeSingle, Config{Backend: backend})
		if err != nil {
			t.Fatalf("Create %s: %v", backend, err)
		}
		if err := f.WriteFloat64(Request{Name: "k_eff"}, 3.14159); err != nil {
			t.Fatalf("WriteFloat64 %s: %v", backend, err)
		}
		if err := f.WriteInt64(Request{Name: "seed"}, 42); err != nil {
			t.Fatalf("WriteInt64 %s: %v", backend, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close %s: %v", backend, err)
		}
	}
	write(seq, Sequential)
	write(str, CollectiveStream)

	a, err := os.ReadFile(seq)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	b, err := os.ReadFile(str)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("sequential and collective-stream files differ")
	}
}

func TestUseAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	f, err := Create(path, ModeSingle, seqConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.WriteFloat64(Request{Name: "late"}, 1.0); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close: err = %v, want ErrClosed", err)
	}
	if err := f.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("double close: err = %v, want ErrClosed", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []BackendKind{Hierarchical, CollectiveStream, Sequential} {
		_, err := Open(filepath.Join(dir, "nope.bin"), ModeSingle, AccessRead, Config{Backend: backend})
		if !errors.Is(err, ErrFileNotFound) {
			t.Fatalf("%s: err = %v, want ErrFileNotFound", backend, err)
		}
	}
}

func TestHierarchicalReopenForWriteRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.smc")

	f, err := Create(path, ModeSingle, hierConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := Open(path, ModeSingle, AccessWrite, hierConfig()); err == nil {
		t.Fatal("write reopen of a finalized container should fail")
	}
}
