package burststack

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// chunksPerWorker oversubscribes the pool a little so uneven rows still
// balance across workers.
const chunksPerWorker = 4

// Compute is the execution context every kernel runs in. It replaces any
// process-wide device or queue state: callers construct one and pass it
// explicitly to each stage.
type Compute struct {
	// Workers bounds concurrent kernel chunks and concurrent decodes.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Workers int
	// MaxBytes caps a single buffer allocation and the estimated working set
	// of a merge. Zero disables the check.
	MaxBytes int64
	Logger   zerolog.Logger
}

// NewCompute returns a context with the given limits.
func NewCompute(workers int, maxBytes int64, logger zerolog.Logger) *Compute {
	return &Compute{Workers: workers, MaxBytes: maxBytes, Logger: logger}
}

// DefaultCompute uses every available CPU, no memory cap and a silent logger.
func DefaultCompute() *Compute {
	return NewCompute(0, 0, zerolog.Nop())
}

func (c *Compute) workers() int {
	if c == nil || c.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

// Dispatch runs kernel over [0, n) split into contiguous chunks. A panic in
// any chunk is reported as ErrCompute once all chunks have finished.
func (c *Compute) Dispatch(n int, kernel func(lo, hi int)) error {
	if n <= 0 {
		return nil
	}
	workers := c.workers()
	chunk := (n + workers*chunksPerWorker - 1) / (workers * chunksPerWorker)
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrCompute, r)
				}
			}()
			kernel(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// CheckBudget reports ErrAllocation when bytes exceeds MaxBytes.
func (c *Compute) CheckBudget(bytes int64) error {
	if c == nil || c.MaxBytes <= 0 || bytes <= c.MaxBytes {
		return nil
	}
	return fmt.Errorf("%w: need %d bytes, budget is %d", ErrAllocation, bytes, c.MaxBytes)
}

// NewMat allocates a rows x cols float32 Mat, surfacing failures as
// ErrAllocation instead of handing back an unusable buffer.
func (c *Compute) NewMat(rows, cols int) (Mat, error) {
	if rows <= 0 || cols <= 0 {
		return Mat{}, fmt.Errorf("%w: invalid size %dx%d", ErrAllocation, cols, rows)
	}
	if err := c.CheckBudget(int64(rows) * int64(cols) * 4); err != nil {
		return Mat{}, err
	}
	m := NewMatWithSize(rows, cols)
	if m.Empty() || len(m.DataFloat32()) < rows*cols {
		m.Close()
		return Mat{}, fmt.Errorf("%w: %dx%d float32 buffer", ErrAllocation, cols, rows)
	}
	return m, nil
}

// checkMat validates the output of a backend operation.
func checkMat(m Mat, rows, cols int, op string) error {
	if m.Empty() || m.Rows() != rows || m.Cols() != cols {
		return fmt.Errorf("%w: %s produced %dx%d, want %dx%d", ErrCompute, op, m.Cols(), m.Rows(), cols, rows)
	}
	return nil
}
