/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/config"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/agent"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

// installCmd implements SPEC_FULL.md §2.3's `agentctl install`: load
// AgentConfig, build an agent.Agent, run BreakpointInstaller and
// NativeBindingInterceptor against a hostsim.Runtime, print the
// installed-set summary.
func installCmd() *cobra.Command {
	var (
		metricsAddr string
		once        bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve and install the breakpoint table against a synthetic host runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			agentlog.SetLevelFromString(cfg.LogLevel)
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}

			m := metrics.New()
			emitter := trace.NewJSONLinesWriter(cmd.OutOrStdout())

			ctx := context.Background()
			rt := buildDemoRuntime()
			a := agent.New(ctx, rt, cfg, emitter, m)
			a.AddLoadClassTarget("demo/UserClassLoader")

			if err := a.Install(ctx); err != nil {
				return fmt.Errorf("installing agent: %w", err)
			}

			if err := a.Bootstrap(ctx, nil); err != nil {
				return fmt.Errorf("bootstrapping classloader discovery: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "installed %d bytecode hooks, %d native hooks\n", a.Set.Len(), a.Native.Len())

			if cfg.MetricsAddr != "" && !once {
				fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s/metrics\n", cfg.MetricsAddr)
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				return http.ListenAndServe(cfg.MetricsAddr, mux)
			}

			return nil
		},
	}

	// Flag names match AgentConfig's mapstructure tags exactly so
	// viper.BindPFlags (config.Load) resolves them without a separate
	// name-mapping table.
	cmd.Flags().Bool("enable_classloader_discovery", false, "enable ClassLoaderDiscovery")
	cmd.Flags().String("trace_sink_path", "-", "trace sink path, - for stdout")
	cmd.Flags().String("log_level", "info", "fine|info|warning|severe")
	cmd.Flags().StringVar(&metricsAddr, "metrics_addr", "", "serve Prometheus metrics on this address and block")
	cmd.Flags().BoolVar(&once, "once", false, "install and print the summary, then exit even if --metrics_addr is set")

	return cmd
}
