package statepoint

import (
	"fmt"
	"time"

	"github.com/statemesh/statemesh-go/internal/container"
)

// TallyResult is one accumulator cell: the running sum of a scored
// quantity and the running sum of its squares, kept together so batch
// statistics can be rebuilt on restart.
type TallyResult struct {
	Sum   float64
	SumSq float64
}

func packTally(results []TallyResult) []byte {
	flat := make([]float64, 0, 2*len(results))
	for _, r := range results {
		flat = append(flat, r.Sum, r.SumSq)
	}
	return packFloat64s(flat)
}

func unpackTally(data []byte, results []TallyResult) {
	flat := make([]float64, 2*len(results))
	unpackFloat64s(data, flat)
	for i := range results {
		results[i] = TallyResult{Sum: flat[2*i], SumSq: flat[2*i+1]}
	}
}

// WriteTallyResults persists an n1-by-n2 block of accumulators under the
// request's name. results is row-major and must hold n1*n2 cells.
func (f *File) WriteTallyResults(req Request, results []TallyResult, n1, n2 int64) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if int64(len(results)) != n1*n2 {
		return fmt.Errorf("statepoint: tally block %s has %d cells, shape is %dx%d", req.Name, len(results), n1, n2)
	}
	start := time.Now()
	if err := f.b.writeTally(f.ds(req, container.Tally, n1, n2), n1, n2, results); err != nil {
		return err
	}
	f.metrics.ObserveWrite(16*int(n1*n2), time.Since(start))
	return nil
}

// ReadTallyResults restores an n1-by-n2 block of accumulators into
// results, which must hold n1*n2 cells.
func (f *File) ReadTallyResults(req Request, results []TallyResult, n1, n2 int64) error {
	if f.closed {
		return ErrClosed
	}
	if f.b == nil {
		return nil
	}
	if int64(len(results)) != n1*n2 {
		return fmt.Errorf("statepoint: tally block %s has %d cells, shape is %dx%d", req.Name, len(results), n1, n2)
	}
	return f.b.readTally(f.ds(req, container.Tally, n1, n2), n1, n2, results)
}
