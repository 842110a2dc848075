package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveInvocationCountDefaultsToOne(t *testing.T) {
	m := &TestMethod{}
	assert.Equal(t, 1, m.EffectiveInvocationCount())

	m.InvocationCount = 3
	assert.Equal(t, 3, m.EffectiveInvocationCount())
}

func TestResultBucketConcurrentAdd(t *testing.T) {
	var b ResultBucket
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Add(&TestResult{ParamRow: i})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, b.Len())
	assert.Len(t, b.Snapshot(), 100)
}

func TestSuiteResultPreservesInsertionOrder(t *testing.T) {
	s := NewSuiteResult()
	s.Put("b", &TestRunResult{})
	s.Put("a", &TestRunResult{})
	s.Put("b", &TestRunResult{}) // re-putting an existing name doesn't move it

	assert.Equal(t, []string{"b", "a"}, s.Names())
	assert.Equal(t, 2, s.Size())
}

func TestAttributesRoundTrip(t *testing.T) {
	a := NewAttributes()
	a.Set("key", 42)

	v, ok := a.Get("key")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	a.Delete("key")
	_, ok = a.Get("key")
	assert.False(t, ok)
}

func TestFallbackObjectFactoryFallsBackOnPrimaryError(t *testing.T) {
	f := &FallbackObjectFactory{
		Primary: factoryFunc(func(class string, args []any) (any, error) {
			return nil, assertErr
		}),
		Default: factoryFunc(func(class string, args []any) (any, error) {
			return "fallback", nil
		}),
	}

	inst, err := f.Try("Anything", nil)
	assert.NoError(t, err)
	assert.Equal(t, "fallback", inst)
}

type factoryFunc func(class string, args []any) (any, error)

func (f factoryFunc) NewInstance(class string, args []any) (any, error) { return f(class, args) }

var assertErr = &ConfigError{Msg: "boom"}
