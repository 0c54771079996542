/*
 * Breakpoint Interceptor
 * Adapted from the Jacobin JVM project. Licensed under Mozilla Public
 * License 2.0 (MPL 2.0).
 */

package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacobin-agent/breakpoint-interceptor/internal/agentlog"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/config"
	"github.com/jacobin-agent/breakpoint-interceptor/internal/metrics"
	"github.com/jacobin-agent/breakpoint-interceptor/src/agent"
	"github.com/jacobin-agent/breakpoint-interceptor/src/discovery"
	"github.com/jacobin-agent/breakpoint-interceptor/src/hostruntime"
	"github.com/jacobin-agent/breakpoint-interceptor/src/trace"
)

//go:embed testdata/replay_demo.json
var defaultReplayScript []byte

// replayEvent is one entry of a replay script: a single event the
// host runtime would otherwise have delivered (spec.md §2, "hook hit,
// native bind, class prepare").
type replayEvent struct {
	Kind       string `json:"kind"`
	Class      string `json:"class,omitempty"`
	Method     string `json:"method,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
	BCI        int    `json:"bci,omitempty"`
	Locals     []any  `json:"locals,omitempty"`

	// CallerClass/CallerBCI identify the frame above the intercepted
	// method; CallerMethod/CallerDescriptor additionally name the
	// caller's own method when BytecodeCallsiteFilter needs to scan its
	// bytecode (the explicit-loadClass scenario, spec.md §4.5).
	CallerClass      string `json:"callerClass,omitempty"`
	CallerMethod     string `json:"callerMethod,omitempty"`
	CallerDescriptor string `json:"callerDescriptor,omitempty"`
	CallerBCI        int    `json:"callerBci,omitempty"`

	// IsClassLoader/SuperClass/Implements describe a class_prepare
	// event's ClassDescriptor (spec.md §4.6).
	IsClassLoader bool     `json:"isClassLoader,omitempty"`
	SuperClass    string   `json:"superClass,omitempty"`
	Implements    []string `json:"implements,omitempty"`

	// OriginalEntry is the native_bind event's current entry pointer.
	OriginalEntry uintptr `json:"originalEntry,omitempty"`
}

// replayCmd implements SPEC_FULL.md §2.3's `agentctl replay`: feed a
// scripted event sequence through the installed agent and print the
// emitted trace records, for exercising spec.md §8's scenarios without
// a live JVM.
func replayCmd() *cobra.Command {
	var scriptPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scripted event sequence through the installed agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			agentlog.SetLevelFromString(cfg.LogLevel)

			raw := defaultReplayScript
			if scriptPath != "" {
				raw, err = os.ReadFile(scriptPath)
				if err != nil {
					return fmt.Errorf("reading script: %w", err)
				}
			}
			var events []replayEvent
			if err := json.Unmarshal(raw, &events); err != nil {
				return fmt.Errorf("parsing script: %w", err)
			}

			ctx := context.Background()
			rt := buildDemoRuntime()
			m := metrics.New()
			emitter := trace.NewJSONLinesWriter(cmd.OutOrStdout())

			a := agent.New(ctx, rt, cfg, emitter, m)
			a.AddLoadClassTarget("demo/UserClassLoader")
			if err := a.Install(ctx); err != nil {
				return fmt.Errorf("installing agent: %w", err)
			}

			for i, evt := range events {
				if err := runReplayEvent(ctx, a, rt, evt); err != nil {
					return fmt.Errorf("event %d (%s): %w", i, evt.Kind, err)
				}
			}
			return nil
		},
	}

	// Flag names match AgentConfig's mapstructure tags, as in
	// install.go, so config.Load's viper.BindPFlags resolves them.
	cmd.Flags().Bool("enable_classloader_discovery", false, "enable ClassLoaderDiscovery")
	cmd.Flags().String("trace_sink_path", "-", "trace sink path, - for stdout")
	cmd.Flags().String("log_level", "info", "fine|info|warning|severe")
	cmd.Flags().String("metrics_addr", "", "unused by replay; accepted for config-layer symmetry with install")
	cmd.Flags().StringVar(&scriptPath, "script", "", "path to a replay script JSON file (defaults to the bundled demo script)")

	return cmd
}

func runReplayEvent(ctx context.Context, a *agent.Agent, rt interface {
	MethodIDFor(class, method, descriptor string) (hostruntime.MethodID, bool)
	SetCurrentCall(locals []any, stack []hostruntime.Frame)
}, evt replayEvent) error {
	switch evt.Kind {
	case "hook":
		method, ok := rt.MethodIDFor(evt.Class, evt.Method, evt.Descriptor)
		if !ok {
			return fmt.Errorf("unknown method %s.%s%s", evt.Class, evt.Method, evt.Descriptor)
		}
		var stack []hostruntime.Frame
		if evt.CallerClass != "" {
			frame := hostruntime.Frame{Class: evt.CallerClass, BCI: evt.CallerBCI}
			if evt.CallerMethod != "" {
				if cm, ok := rt.MethodIDFor(evt.CallerClass, evt.CallerMethod, evt.CallerDescriptor); ok {
					frame.Method = cm
				}
			}
			stack = []hostruntime.Frame{frame}
		}
		rt.SetCurrentCall(evt.Locals, stack)
		_, err := a.OnHookEvent(ctx, method, evt.BCI)
		return err

	case "native_bind":
		method, ok := rt.MethodIDFor(evt.Class, evt.Method, evt.Descriptor)
		if !ok {
			return fmt.Errorf("unknown method %s.%s%s", evt.Class, evt.Method, evt.Descriptor)
		}
		a.OnNativeBind(ctx, hostruntime.NativeBindEvent{Method: method, CurrentEntry: evt.OriginalEntry})
		return nil

	case "class_prepare":
		return a.OnClassPrepared(ctx, discovery.ClassDescriptor{
			Name: evt.Class, SuperClass: evt.SuperClass, Implements: evt.Implements, IsClassLoader: evt.IsClassLoader,
		})

	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}
}
