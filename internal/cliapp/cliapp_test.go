package cliapp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-run/kestrel/pkg/model"
)

const sampleSuite = `
name: smoke
parallel: tests
thread_count: 2
time_out_ms: 5000
parameters:
  env: staging
tests:
  - name: checkout
    parallel: methods
    thread_count: 4
    methods:
      - class: CheckoutSuite
        method: addToCart
        kind: test
        priority: 1
      - class: CheckoutSuite
        method: pay
        kind: test
        depends_on_groups: [cart]
        groups: [checkout]
`

func writeTempSuite(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSuiteParsesYAML(t *testing.T) {
	path := writeTempSuite(t, sampleSuite)

	desc, err := loadSuite(path)
	require.NoError(t, err)

	assert.Equal(t, "smoke", desc.Name)
	assert.Equal(t, model.ParallelTests, desc.Parallel)
	assert.Equal(t, 2, desc.ThreadCount)
	assert.Equal(t, 5*time.Second, desc.TimeOut)
	assert.Equal(t, "staging", desc.Parameters["env"])

	require.Len(t, desc.Tests, 1)
	test := desc.Tests[0]
	assert.Equal(t, "checkout", test.Name)
	assert.Equal(t, model.ParallelMethods, test.Parallel)
	require.Len(t, test.Methods, 2)
	assert.Equal(t, "addToCart", test.Methods[0].Identity.Method)
	assert.Equal(t, 1, test.Methods[0].Priority)
	assert.Equal(t, []string{"cart"}, test.Methods[1].DependsOnGroups)
}

func TestLoadSuiteMissingFileErrors(t *testing.T) {
	_, err := loadSuite(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestToModelDefaultsTestParallelToSuiteParallel(t *testing.T) {
	y := &yamlSuite{
		Parallel: "tests",
		Tests:    []yamlTest{{Name: "inherits"}},
	}
	desc := toModel(y)
	assert.Equal(t, model.ParallelTests, desc.Tests[0].Parallel)
}

func TestToModelDefaultsMethodKindToTest(t *testing.T) {
	y := &yamlSuite{
		Tests: []yamlTest{{Name: "t", Methods: []yamlMethod{{Method: "m"}}}},
	}
	desc := toModel(y)
	assert.Equal(t, model.KindTest, desc.Tests[0].Methods[0].Kind)
}
