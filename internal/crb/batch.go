package crb

import (
	"runtime"
	"sync"
)

// Result pairs a computed bound with the failure for its parameter set,
// so one bad element in a batch does not mask the rest.
type Result struct {
	Bound float64
	Err   error
}

// ComputeBounds evaluates a batch of independent parameter sets across a
// bounded worker pool and returns results in input order. workers <= 0
// means one worker per CPU. Each evaluation is a pure function, so no
// coordination beyond result collection is needed.
func ComputeBounds(params []Params, o Options, workers int) []Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(params) {
		workers = len(params)
	}

	results := make([]Result, len(params))
	if len(params) == 0 {
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				bound, err := ComputeBoundWith(params[i], o)
				results[i] = Result{Bound: bound, Err: err}
			}
		}()
	}
	for i := range params {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}
