// Package methodrunner implements the Method Runner (C4): it expands one
// Test Method plus its parameter-row iterator into a list of Test
// Results, sequentially with cascade-skip or in parallel via a pool,
// applying retry policy and swallowing invocation-layer errors (a
// parameter-injection error becomes a failure result; an error returned
// by the invoker is dropped without a result; neither propagates). Pool
// reuse follows the
// teacher's internal/worker.Pool share-vs-fresh lifecycle pattern.
package methodrunner

import (
	"context"
	"time"

	"github.com/kestrel-run/kestrel/internal/pool"
	"github.com/kestrel-run/kestrel/pkg/model"
)

// Row is one parameter row from a data provider, paired with its
// originating index for result ordering and skip-marker detection.
type Row struct {
	Index  int
	Values []any // nil means "skip marker" per §4.4 parameter injection rule
}

// Options configures one Method Runner invocation.
type Options struct {
	Method       *model.TestMethod
	Suite        *model.SuiteDescription
	Invoker      model.TestInvoker
	Params       model.Parameters
	Attributes   *model.Attributes
	Rows         []Row
	SkipFailed   bool // suite-global or per-method skip-failed-invocations
	Parallel     bool
	PoolFactory  func(n int) (*pool.Pool, bool, error) // bool = caller owns (fresh) pool and must shut it down
}

// Run executes Options and returns the flattened Test Result list. The
// Method Runner never returns an error to its caller (§4.4: "The runner
// never throws") — invocation failures are captured as TestResults.
func Run(ctx context.Context, opts Options) []*model.TestResult {
	if opts.Parallel {
		return runParallel(ctx, opts)
	}
	return runSequential(ctx, opts)
}

// runSequential iterates rows in order, applying cascade-skip once a
// failure has been seen and skip-failed-invocations is in effect
// (§4.4, S3).
func runSequential(ctx context.Context, opts Options) []*model.TestResult {
	fc := &model.FailureContext{}
	var results []*model.TestResult
	skipping := false

	for _, row := range opts.Rows {
		if row.Values == nil {
			continue // skip marker, contributes no result
		}
		if skipping {
			r := opts.Invoker.RegisterSkippedTestResult(opts.Method, row.Index, nil)
			results = append(results, r)
			opts.Invoker.InvokeListenersForSkipped(r, opts.Method)
			continue
		}

		args, err := opts.Params.InjectParameters(row.Values, opts.Method, opts.Attributes)
		if err != nil {
			r := &model.TestResult{Status: model.StatusFailure, Start: time.Now(), End: time.Now(), Err: err, ParamRow: row.Index, Method: opts.Method}
			results = append(results, r)
			fc.FailureCount++
		} else {
			result, invokeErr := opts.Invoker.InvokeTestMethod(ctx, args, opts.Method, opts.Suite, fc)
			if invokeErr != nil {
				// invocation-layer error: swallowed at this layer
				// without logging; any result returned alongside
				// the error is dropped, so the row records nothing.
				continue
			}
			if result == nil {
				continue
			}
			results = append(results, result)

			if result.Status == model.StatusFailure {
				fc.FailureCount++
				retried, newFC := opts.Invoker.RetryFailed(ctx, args, results, fc.FailureCount, fc)
				results = append(results, retried...)
				if newFC != nil {
					fc = newFC
				}
			} else {
				fc.FailureCount = 0
			}
		}

		if fc.FailureCount > 0 && opts.SkipFailed {
			skipping = true
		}
	}
	return results
}

// runParallel submits one worker per non-skipped row to a pool (shared
// or fresh per §4.1's reuse policy) and flattens results in submission
// order once every row has completed. Cascade-skip does not apply here
// (§4.4, §9 open question resolved as "no" — rows run independently).
func runParallel(ctx context.Context, opts Options) []*model.TestResult {
	rowCount := 0
	for _, row := range opts.Rows {
		if row.Values != nil {
			rowCount++
		}
	}
	if rowCount == 0 {
		return nil
	}

	p, owned, err := opts.PoolFactory(rowCount)
	if err != nil {
		return nil
	}
	if owned {
		defer p.Shutdown()
	}
	p.Start()

	slots := make([][]*model.TestResult, len(opts.Rows))
	for i, row := range opts.Rows {
		if row.Values == nil {
			continue
		}
		i, row := i, row
		_ = p.Submit(func(ctx context.Context) {
			args, err := opts.Params.InjectParameters(row.Values, opts.Method, opts.Attributes)
			if err != nil {
				slots[i] = []*model.TestResult{{Status: model.StatusFailure, Start: time.Now(), End: time.Now(), Err: err, ParamRow: row.Index, Method: opts.Method}}
				return
			}
			fc := &model.FailureContext{}
			result, invokeErr := opts.Invoker.InvokeTestMethod(ctx, args, opts.Method, opts.Suite, fc)
			if invokeErr != nil || result == nil {
				return
			}
			rowResults := []*model.TestResult{result}
			if result.Status == model.StatusFailure {
				retried, _ := opts.Invoker.RetryFailed(ctx, args, rowResults, 1, fc)
				rowResults = append(rowResults, retried...)
			}
			slots[i] = rowResults
		})
	}

	_ = p.AwaitAll(ctx)

	var out []*model.TestResult
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}
