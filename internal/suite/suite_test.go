package suite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-run/kestrel/internal/listener"
	"github.com/kestrel-run/kestrel/internal/methodrunner"
	"github.com/kestrel-run/kestrel/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oneRowProvider struct{}

func (oneRowProvider) Rows(m *model.TestMethod) []methodrunner.Row {
	return []methodrunner.Row{{Index: 0, Values: []any{0}}}
}

type identityParams struct{}

func (identityParams) InjectParameters(row []any, m *model.TestMethod, a *model.Attributes) ([]any, error) {
	return row, nil
}

type noopConfigInvoker struct{}

func (noopConfigInvoker) InvokeConfigurations(ctx context.Context, methods []*model.TestMethod, args map[string]string) error {
	return nil
}

type succeedingInvoker struct{}

func (succeedingInvoker) InvokeTestMethod(ctx context.Context, args []any, m *model.TestMethod, s *model.SuiteDescription, fc *model.FailureContext) (*model.TestResult, error) {
	return &model.TestResult{Status: model.StatusSuccess, Start: time.Now(), End: time.Now(), Method: m}, nil
}
func (succeedingInvoker) RetryFailed(ctx context.Context, args []any, prior []*model.TestResult, failureCount int, fc *model.FailureContext) ([]*model.TestResult, *model.FailureContext) {
	return nil, fc
}
func (succeedingInvoker) RegisterSkippedTestResult(m *model.TestMethod, ts int, err error) *model.TestResult {
	return &model.TestResult{Status: model.StatusSkipped, Method: m}
}
func (succeedingInvoker) InvokeListenersForSkipped(r *model.TestResult, m *model.TestMethod) {}

// The registry is idempotent by concrete type (one slot per Go type per
// Kind), so distinguishing two dispatch-order participants requires two
// distinct named types, not two instances of the same struct.
type trackingListener struct {
	tag              string
	started, finished *[]string
	mu                *sync.Mutex
}

func (l trackingListener) OnStart(*model.SuiteDescription) {
	l.mu.Lock()
	*l.started = append(*l.started, l.tag)
	l.mu.Unlock()
}
func (l trackingListener) OnFinish(*model.SuiteDescription, *model.SuiteResult) {
	l.mu.Lock()
	*l.finished = append(*l.finished, l.tag)
	l.mu.Unlock()
}

type trackingListener2 struct{ trackingListener }

func testMethod(name string) *model.TestMethod {
	return &model.TestMethod{Identity: model.MethodIdentity{Class: "T", Method: name}, Kind: model.KindTest}
}

func newDesc(names ...string) *model.SuiteDescription {
	var methods []*model.TestMethod
	for _, n := range names {
		methods = append(methods, testMethod(n))
	}
	return &model.SuiteDescription{
		Name:  "s",
		Tests: []*model.TestDescription{{Name: "t1", Methods: methods, ThreadCount: 1}},
	}
}

func baseDeps() Deps {
	return Deps{
		Invoker:       succeedingInvoker{},
		ConfigInvoker: noopConfigInvoker{},
		Params:        identityParams{},
		DataProvider:  oneRowProvider{},
	}
}

func TestRunAggregatesAllMethodResults(t *testing.T) {
	desc := newDesc("a", "b")
	r := New(desc, baseDeps())

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Size())
	tr := result.Get("t1")
	require.NotNil(t, tr)
	assert.Equal(t, 2, tr.PassedTests.Len())
}

func TestSecondRunReturnsLifecycleError(t *testing.T) {
	desc := newDesc("a")
	r := New(desc, baseDeps())

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	var lcErr *model.LifecycleError
	assert.ErrorAs(t, err, &lcErr)
}

func TestOnFinishFiresInReverseOfOnStartOrder(t *testing.T) {
	desc := newDesc("a")
	var started, finished []string
	var mu sync.Mutex

	reg := listener.NewRegistry()
	reg.Add(listener.KindSuite, trackingListener{tag: "first", started: &started, finished: &finished, mu: &mu})
	reg.Add(listener.KindSuite, trackingListener2{trackingListener{tag: "second", started: &started, finished: &finished, mu: &mu}})

	deps := baseDeps()
	deps.Listeners = reg

	r := New(desc, deps)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, started)
	assert.Equal(t, []string{"second", "first"}, finished)
}

func TestResultsReturnsNilBeforeRun(t *testing.T) {
	desc := newDesc("a")
	r := New(desc, baseDeps())
	assert.Nil(t, r.Results())
}

func TestAllMethodsCollectsAcrossTests(t *testing.T) {
	desc := newDesc("a", "b")
	r := New(desc, baseDeps())
	assert.Len(t, r.AllMethods(), 2)
}
