// Package model defines the core domain types shared by every layer of the
// orchestration core: suite/test/method declarations, work-graph vertices,
// and the result shapes that bubble back up to callers.
package model

import (
	"sync"
	"time"
)

// ParallelMode selects the axis along which a suite or test fans work out.
type ParallelMode string

const (
	ParallelNone      ParallelMode = "none"
	ParallelTests     ParallelMode = "tests"
	ParallelMethods   ParallelMode = "methods"
	ParallelClasses   ParallelMode = "classes"
	ParallelInstances ParallelMode = "instances"
)

// MethodKind tags what lifecycle role a Test Method plays.
type MethodKind string

const (
	KindBeforeSuite  MethodKind = "before-suite"
	KindAfterSuite   MethodKind = "after-suite"
	KindBeforeTest   MethodKind = "before-test"
	KindAfterTest    MethodKind = "after-test"
	KindBeforeClass  MethodKind = "before-class"
	KindAfterClass   MethodKind = "after-class"
	KindBeforeMethod MethodKind = "before-method"
	KindAfterMethod  MethodKind = "after-method"
	KindTest         MethodKind = "test"
)

// ResultStatus is the outcome of one invocation.
type ResultStatus string

const (
	StatusSuccess              ResultStatus = "success"
	StatusFailure              ResultStatus = "failure"
	StatusSkipped              ResultStatus = "skipped"
	StatusSuccessWithinPercent ResultStatus = "success-within-percentage"
)

// RuntimeBehavior threads global scheduling flags top-down as an immutable
// config struct, per DESIGN NOTES §9 — never process-global state.
type RuntimeBehavior struct {
	StrictParallelism     bool
	EnforceThreadAffinity bool
	ShareDataProviderPool bool
	UseGlobalThreadPool   bool
	SkipFailedInvocations bool
}

// MethodIdentity uniquely names a Test Method: declaring class, method
// name, and a signature string (external code decides how to spell it).
type MethodIdentity struct {
	Class     string
	Method    string
	Signature string
}

// TestMethod is one user-defined test function with its scheduling metadata.
type TestMethod struct {
	Identity         MethodIdentity
	Kind             MethodKind
	Groups           []string
	DependsOnMethods []MethodIdentity
	DependsOnGroups  []string
	InvocationCount  int
	ThreadPoolSize   int
	Priority         int
	RetryAnalyzer    RetryAnalyzer
}

// EffectiveInvocationCount returns InvocationCount, defaulting to 1.
func (m *TestMethod) EffectiveInvocationCount() int {
	if m.InvocationCount <= 0 {
		return 1
	}
	return m.InvocationCount
}

// TestDescription is one <test>-level declaration.
type TestDescription struct {
	Name                      string
	Index                     int
	Methods                   []*TestMethod
	Parameters                map[string]string
	SkipFailedInvocations     *bool // nil = inherit suite default
	TimeOut                   time.Duration
	Parallel                  ParallelMode
	ThreadCount               int
	DataProviderThreadCount   int
}

// SuiteDescription is the immutable-during-run input to the Suite Runner.
type SuiteDescription struct {
	Name                  string
	Tests                 []*TestDescription
	Parallel              ParallelMode
	ThreadCount            int
	TimeOut               time.Duration
	Parameters            map[string]string
	SkipFailedInvocations bool
	Behavior              RuntimeBehavior
}

// TestResult is the outcome of one invocation of one Test Method.
type TestResult struct {
	Status    ResultStatus
	Start     time.Time
	End       time.Time
	Err       error
	ParamRow  int
	Method    *TestMethod
}

// ResultBucket groups Test Results the way Suite Result reports them.
type ResultBucket struct {
	mu      sync.Mutex
	results []*TestResult
}

// Add appends a result. Safe for concurrent use.
func (b *ResultBucket) Add(r *TestResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, r)
}

// Snapshot returns a copy of the bucket's current contents.
func (b *ResultBucket) Snapshot() []*TestResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*TestResult, len(b.results))
	copy(out, b.results)
	return out
}

// Len reports the number of results currently in the bucket.
func (b *ResultBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// TestRunResult is the eight-category aggregation produced by one Test
// Runner: four test-level buckets plus their four configuration-method
// counterparts (§6 "eight category sets").
type TestRunResult struct {
	PassedTests                        ResultBucket
	FailedTests                        ResultBucket
	FailedWithinPercentTests           ResultBucket
	SkippedTests                       ResultBucket
	PassedConfigurations               ResultBucket
	FailedConfigurations               ResultBucket
	FailedWithinPercentConfigurations  ResultBucket
	SkippedConfigurations              ResultBucket
}

// SuiteResult is the suite-wide, append-only map from Test Description name
// to its aggregated results. Mutated only under its own lock (§5).
type SuiteResult struct {
	mu      sync.Mutex
	results map[string]*TestRunResult
	order   []string
}

// NewSuiteResult returns an empty, ready-to-use Suite Result.
func NewSuiteResult() *SuiteResult {
	return &SuiteResult{results: make(map[string]*TestRunResult)}
}

// Put records a Test Runner's result under its Test Description name.
// Safe for concurrent calls from multiple in-flight Test Runners.
func (s *SuiteResult) Put(name string, r *TestRunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[name]; !exists {
		s.order = append(s.order, name)
	}
	s.results[name] = r
}

// Get returns the Test Runner result for a given name, or nil.
func (s *SuiteResult) Get(name string) *TestRunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[name]
}

// Names returns test names in the order they were first recorded.
func (s *SuiteResult) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Size returns the number of recorded Test Runner results.
func (s *SuiteResult) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Attributes is the thread-safe, string-keyed opaque-value bag exposed to
// user code through Parameters.InjectParameters for cross-cutting scratch
// state (§5, §6). Suite listener callbacks do not receive it.
type Attributes struct {
	m sync.Map
}

func NewAttributes() *Attributes { return &Attributes{} }

func (a *Attributes) Set(key string, value any) { a.m.Store(key, value) }

func (a *Attributes) Get(key string) (any, bool) { return a.m.Load(key) }

func (a *Attributes) Delete(key string) { a.m.Delete(key) }

// RetryAnalyzer decides whether a failed invocation should be retried.
// Implemented externally, attached per Test Method.
type RetryAnalyzer interface {
	Retry(result *TestResult) bool
}
