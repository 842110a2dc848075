// Package cliapp provides the Cobra command tree for the kestrel binary:
// load a YAML suite description and run it end-to-end. Adapted from the
// teacher's internal/cli/cli.go (command structure, YAML config loading,
// optional Prometheus metrics sub-server) with the gRPC worker-registry
// and WAL/snapshot wiring removed — this repo owns no distributed
// execution or persistence (§1 Non-goals).
package cliapp

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-run/kestrel/internal/listener"
	"github.com/kestrel-run/kestrel/internal/metrics"
	"github.com/kestrel-run/kestrel/internal/suite"
	"github.com/kestrel-run/kestrel/internal/testrunner"
	"github.com/kestrel-run/kestrel/pkg/model"
)

// yamlSuite mirrors model.SuiteDescription with YAML tags for the one
// file format the CLI owns (§6: "No persisted format is defined by the
// core"; this is the CLI's concern, not the core's).
type yamlSuite struct {
	Name                  string            `yaml:"name"`
	Parallel              string            `yaml:"parallel"`
	ThreadCount           int               `yaml:"thread_count"`
	TimeOutMS             int               `yaml:"time_out_ms"`
	SkipFailedInvocations bool              `yaml:"skip_failed_invocation_counts"`
	EnforceThreadAffinity bool              `yaml:"enforce_thread_affinity"`
	StrictParallelism     bool              `yaml:"strict_parallelism"`
	Parameters            map[string]string `yaml:"parameters"`
	Tests                 []yamlTest        `yaml:"tests"`
}

type yamlTest struct {
	Name        string            `yaml:"name"`
	Parallel    string            `yaml:"parallel"`
	ThreadCount int               `yaml:"thread_count"`
	TimeOutMS   int               `yaml:"time_out_ms"`
	Parameters  map[string]string `yaml:"parameters"`
	Methods     []yamlMethod      `yaml:"methods"`
}

type yamlMethod struct {
	Class           string   `yaml:"class"`
	Method          string   `yaml:"method"`
	Kind            string   `yaml:"kind"`
	Groups          []string `yaml:"groups"`
	DependsOnGroups []string `yaml:"depends_on_groups"`
	InvocationCount int      `yaml:"invocation_count"`
	Priority        int      `yaml:"priority"`
}

// loadSuite reads and decodes a YAML suite description file into a
// model.SuiteDescription (the CLI's one config-loading responsibility).
func loadSuite(path string) (*model.SuiteDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cliapp: read suite file: %w", err)
	}
	var y yamlSuite
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("cliapp: parse suite file: %w", err)
	}
	return toModel(&y), nil
}

func toModel(y *yamlSuite) *model.SuiteDescription {
	desc := &model.SuiteDescription{
		Name:                  y.Name,
		Parallel:              model.ParallelMode(orDefaultStr(y.Parallel, "none")),
		ThreadCount:           y.ThreadCount,
		TimeOut:               time.Duration(y.TimeOutMS) * time.Millisecond,
		SkipFailedInvocations: y.SkipFailedInvocations,
		Parameters:            y.Parameters,
		Behavior: model.RuntimeBehavior{
			StrictParallelism:     y.StrictParallelism,
			EnforceThreadAffinity: y.EnforceThreadAffinity,
			SkipFailedInvocations: y.SkipFailedInvocations,
		},
	}
	for i, yt := range y.Tests {
		td := &model.TestDescription{
			Name:        yt.Name,
			Index:       i,
			Parallel:    model.ParallelMode(orDefaultStr(yt.Parallel, string(desc.Parallel))),
			ThreadCount: yt.ThreadCount,
			TimeOut:     time.Duration(yt.TimeOutMS) * time.Millisecond,
			Parameters:  yt.Parameters,
		}
		for _, ym := range yt.Methods {
			td.Methods = append(td.Methods, &model.TestMethod{
				Identity:        model.MethodIdentity{Class: ym.Class, Method: ym.Method},
				Kind:            model.MethodKind(orDefaultStr(ym.Kind, "test")),
				Groups:          ym.Groups,
				DependsOnGroups: ym.DependsOnGroups,
				InvocationCount: ym.InvocationCount,
				Priority:        ym.Priority,
			})
		}
		desc.Tests = append(desc.Tests, td)
	}
	return desc
}

func orDefaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Build constructs the root Cobra command tree for the kestrel binary.
func Build(deps func() testrunner.DataProvider, invoker model.TestInvoker, configInvoker model.ConfigInvoker, params model.Parameters) *cobra.Command {
	var suitePath string
	var metricsAddr string

	root := &cobra.Command{
		Use:   "kestrel",
		Short: "kestrel runs a declared hierarchy of test workloads",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a suite description end-to-end",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := loadSuite(suitePath)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			recorder := metrics.New(reg)

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					_ = srv.ListenAndServe()
				}()
			}

			listeners := listener.NewRegistry()
			listeners.Add(listener.KindSuite, recorder)

			runner := suite.New(desc, suite.Deps{
				Invoker:        invoker,
				ConfigInvoker:  configInvoker,
				Params:         params,
				DataProvider:   deps(),
				Listeners:      listeners,
				Observer:       recorder,
				ResultObserver: recorder,
			})

			result, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range result.Names() {
				tr := result.Get(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: passed=%d failed=%d skipped=%d\n",
					name, tr.PassedTests.Len(), tr.FailedTests.Len(), tr.SkippedTests.Len())
			}
			return nil
		},
	}
	runCmd.Flags().StringVarP(&suitePath, "suite", "s", "", "path to a YAML suite description")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	_ = runCmd.MarkFlagRequired("suite")

	root.AddCommand(runCmd)
	return root
}
