// Command kestrel is the CLI entry point: build the Cobra command tree,
// recover from panics, and report execution errors. Mirrors the
// teacher's cmd/queue/main.go structure (panic recovery wrapper,
// ldflags-injected version string, Execute()+os.Exit error handling).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrel-run/kestrel/internal/cliapp"
	"github.com/kestrel-run/kestrel/internal/methodrunner"
	"github.com/kestrel-run/kestrel/internal/testrunner"
	"github.com/kestrel-run/kestrel/pkg/model"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cliapp.Build(
		func() testrunner.DataProvider { return staticNoRowsProvider{} },
		noopTestInvoker{},
		noopConfigInvoker{},
		identityParams{},
	)
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// staticNoRowsProvider, noopTestInvoker, noopConfigInvoker and
// identityParams are placeholder collaborators for the CLI binary — real
// embedders of this module supply their own ObjectFactory-backed
// implementations (§1: annotation discovery and reflection-based method
// enumeration are out of scope; this binary demonstrates wiring only).
type staticNoRowsProvider struct{}

func (staticNoRowsProvider) Rows(*model.TestMethod) []methodrunner.Row { return nil }

type noopTestInvoker struct{}

func (noopTestInvoker) InvokeTestMethod(ctx context.Context, args []any, method *model.TestMethod, s *model.SuiteDescription, fc *model.FailureContext) (*model.TestResult, error) {
	return nil, nil
}
func (noopTestInvoker) RetryFailed(ctx context.Context, args []any, prior []*model.TestResult, failureCount int, fc *model.FailureContext) ([]*model.TestResult, *model.FailureContext) {
	return nil, fc
}
func (noopTestInvoker) RegisterSkippedTestResult(method *model.TestMethod, ts int, err error) *model.TestResult {
	return &model.TestResult{Status: model.StatusSkipped, Method: method}
}
func (noopTestInvoker) InvokeListenersForSkipped(result *model.TestResult, method *model.TestMethod) {
}

type noopConfigInvoker struct{}

func (noopConfigInvoker) InvokeConfigurations(ctx context.Context, methods []*model.TestMethod, args map[string]string) error {
	return nil
}

type identityParams struct{}

func (identityParams) InjectParameters(row []any, method *model.TestMethod, ctx *model.Attributes) ([]any, error) {
	return row, nil
}
