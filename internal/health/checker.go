// Package health checks the engine's backing stores for the readiness probe.
package health

import (
	"context"
	"sort"
	"sync"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Result is the outcome of one named check.
type Result struct {
	Name string
	Err  error
}

// CheckAll runs every checker concurrently and returns the results sorted by name.
func CheckAll(ctx context.Context, checkers map[string]Checker) []Result {
	results := make([]Result, 0, len(checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checkers {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			err := c.HealthCheck(ctx)
			mu.Lock()
			results = append(results, Result{Name: name, Err: err})
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
