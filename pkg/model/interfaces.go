package model

import "context"

// ObjectFactory instantiates test classes. External collaborator — the
// core never constructs user test instances itself (§1 scope, §6).
type ObjectFactory interface {
	NewInstance(class string, args []any) (any, error)
}

// FallbackObjectFactory tries a suite-supplied factory first and falls back
// to a default factory on error. A concrete struct per DESIGN NOTES §9
// ("nested anonymous object factories... not polymorphism").
type FallbackObjectFactory struct {
	Primary ObjectFactory
	Default ObjectFactory
}

// Try instantiates via Primary, falling back to Default on error. Returns
// the first successful instance, or the Default's error if both fail.
func (f *FallbackObjectFactory) Try(class string, args []any) (any, error) {
	if f.Primary != nil {
		if inst, err := f.Primary.NewInstance(class, args); err == nil {
			return inst, nil
		}
	}
	if f.Default != nil {
		return f.Default.NewInstance(class, args)
	}
	return nil, errNoObjectFactory
}

// ConfigInvoker runs a batch of before/after configuration methods.
type ConfigInvoker interface {
	InvokeConfigurations(ctx context.Context, methods []*TestMethod, args map[string]string) error
}

// FailureContext tracks cascade-skip state for one Test Method's
// invocation stream (sequential Method Runner mode).
type FailureContext struct {
	FailureCount int
}

// TestInvoker calls user test code and reports results. All
// invocation-error handling happens inside implementations of this
// interface — the core layers above it never see a raw panic/error from
// user code (§7: "user-code errors become results").
type TestInvoker interface {
	InvokeTestMethod(ctx context.Context, args []any, method *TestMethod, suite *SuiteDescription, fc *FailureContext) (*TestResult, error)
	RetryFailed(ctx context.Context, args []any, prior []*TestResult, failureCount int, fc *FailureContext) ([]*TestResult, *FailureContext)
	RegisterSkippedTestResult(method *TestMethod, ts int, err error) *TestResult
	InvokeListenersForSkipped(result *TestResult, method *TestMethod)
}

// Parameters resolves one parameter row via positional and contextual
// argument injection. A nil row is a skip marker.
type Parameters interface {
	InjectParameters(row []any, method *TestMethod, ctx *Attributes) ([]any, error)
}

// ExecutorServiceFactory mirrors the consumed interface from §6 for
// callers that want to supply their own pool construction policy instead
// of the built-in one in internal/pool.
type ExecutorServiceFactory interface {
	Create(core, max int) (Executor, error)
}

// Executor is a minimal bounded-pool contract for externally supplied
// pools. internal/pool.Pool does not satisfy it (its Submit takes a
// context-aware pool.Task), and no code in the core calls it.
type Executor interface {
	Submit(task func()) error
	AwaitAll(ctx context.Context) error
	Shutdown()
	ShutdownNow()
}

var errNoObjectFactory = &ConfigError{Msg: "no object factory available"}

// ConfigError marks a configuration mistake caught at construction time,
// per §7's error-kind table: "configuration errors become caller-visible
// failures".
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return e.Msg }

// LifecycleError marks an illegal operation against a stopped/closed
// component (submit-after-shutdown, double Run).
type LifecycleError struct{ Msg string }

func (e *LifecycleError) Error() string { return e.Msg }
