// Package runtime implements the command-execution dispatcher: the single
// entry point ProcessCommand. It wires together the DSL parser, entity
// registry, ruleset evaluator, contract/idea stores, simulation engine,
// event timeline, SSE broker, and plugin host into a
// parse -> pre-hook -> execute -> append -> publish -> post-hook pipeline.
//
// The Runtime is constructor-injected rather than a process-wide
// singleton: New returns a *Runtime with no package-level default
// instance, so tests never share state.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/logline-motor/motor/internal/broker"
	"github.com/logline-motor/motor/internal/contracts"
	"github.com/logline-motor/motor/internal/domain"
	"github.com/logline-motor/motor/internal/dslparse"
	"github.com/logline-motor/motor/internal/ideas"
	"github.com/logline-motor/motor/internal/logging"
	"github.com/logline-motor/motor/internal/metrics"
	"github.com/logline-motor/motor/internal/observability"
	"github.com/logline-motor/motor/internal/pluginhost"
	"github.com/logline-motor/motor/internal/registry"
	"github.com/logline-motor/motor/internal/ruleset"
	"github.com/logline-motor/motor/internal/simulate"
	"github.com/logline-motor/motor/internal/timeline"
)

// Invoker is the abstraction the dispatcher depends on for plugin hooks:
// it lets tests substitute an in-process implementation without a
// WebAssembly engine.
type Invoker interface {
	InvokeHookChain(ctx context.Context, hook string, payload []byte) (results []pluginhost.HookResult, veto bool, reason string)
}

// Runtime bundles every collaborator process_command touches. Construct
// with New; the zero value is not usable.
type Runtime struct {
	Registry  *registry.Registry
	Contracts *contracts.Store
	Ideas     *ideas.Store
	Timeline  *timeline.Timeline
	Broker    *broker.Broker
	Plugins   Invoker

	maxOrchestrationConcurrency int
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithPlugins installs a plugin invoker. Tests that don't need the WASM
// engine can pass a stub satisfying Invoker; New installs a no-op invoker
// when this option is omitted.
func WithPlugins(inv Invoker) Option {
	return func(r *Runtime) { r.Plugins = inv }
}

// WithMaxOrchestrationConcurrency overrides the fan-out width ORCHESTRATE
// uses for mode "parallel" (default 8; see orchestrate).
func WithMaxOrchestrationConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxOrchestrationConcurrency = n
		}
	}
}

// New constructs a fresh Runtime with its own registry, contract/idea
// stores, timeline, and broker, so every test constructs its own Runtime
// rather than reaching for a process-wide default.
func New(brokerCfg broker.Config, opts ...Option) *Runtime {
	r := &Runtime{
		Registry:                    registry.New(),
		Contracts:                   contracts.New(),
		Ideas:                       ideas.New(),
		Timeline:                    timeline.New(),
		Broker:                      broker.New(brokerCfg),
		Plugins:                     noopInvoker{},
		maxOrchestrationConcurrency: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.publishAndAppend(domain.RuntimeLifecycleEvent("initialized"))
	return r
}

type noopInvoker struct{}

func (noopInvoker) InvokeHookChain(context.Context, string, []byte) ([]pluginhost.HookResult, bool, string) {
	return nil, false, ""
}

// Close stops the Runtime's background broker loop.
func (r *Runtime) Close() {
	r.publishAndAppend(domain.RuntimeLifecycleEvent("shutting_down"))
	r.Broker.Close()
}

// publishAndAppend appends event to the timeline and then publishes the
// stamped copy to the broker, so that timeline append completes before
// broker publish for any single observer.
func (r *Runtime) publishAndAppend(event domain.Event) domain.Event {
	stamped := r.Timeline.Append(event)
	if err := r.Broker.Publish(stamped); err != nil {
		logging.Op().Warn("broker publish failed", "event_kind", stamped.Kind, "error", err)
	}
	metrics.Global().RecordEventPublished(string(stamped.Kind))
	metrics.Global().SetTimelineLength(r.Timeline.Len())
	return stamped
}

// ValidationError is returned by ProcessCommand for duplicate-id and
// unknown-entity failures.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PluginVetoError is returned when a precommand hook vetoes execution.
type PluginVetoError struct {
	Reason string
}

func (e *PluginVetoError) Error() string { return "plugin veto: " + e.Reason }

// Result is the outcome of a successful ProcessCommand call.
type Result struct {
	Text   string
	Events []domain.Event
}

// ProcessCommand is the dispatcher's single entry point: parse, pre-hook,
// execute, append ImperativeExecuted, post-hook.
func (r *Runtime) ProcessCommand(ctx context.Context, text string) (Result, error) {
	cmd, err := dslparse.Parse(text)
	if err != nil {
		r.publishAndAppend(domain.ErrorOccurredEvent("parsing", err.Error()))
		return Result{}, err
	}

	ctx, span := observability.StartSpan(ctx, "runtime.process_command",
		observability.AttrCommandKind.String(string(cmd.Kind)))
	defer span.End()

	if err := r.runPreHooks(ctx, cmd); err != nil {
		var veto *PluginVetoError
		if errors.As(err, &veto) {
			r.publishAndAppend(domain.ErrorOccurredEvent("plugin_veto", veto.Reason))
			metrics.Global().RecordPluginVeto()
		}
		observability.SetSpanError(span, err)
		return Result{}, err
	}

	text2, err := r.execute(ctx, cmd)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			r.publishAndAppend(domain.ErrorOccurredEvent("validation", err.Error()))
		} else {
			r.publishAndAppend(domain.ErrorOccurredEvent("internal", err.Error()))
		}
		observability.SetSpanError(span, err)
		return Result{}, err
	}

	r.publishAndAppend(domain.ImperativeExecutedEvent(cmd.Kind))

	r.runPostHooks(ctx, cmd)

	return Result{Text: text2, Events: r.Timeline.ListEvents()}, nil
}

// hookPayload builds the JSON a hook receives: the command AST plus, when
// a trace is active, the W3C trace context so the plugin invocation can be
// correlated with the originating request.
func hookPayload(ctx context.Context, cmd *domain.Command) ([]byte, error) {
	body := map[string]any{"command": cmd}
	if tc := observability.HookTraceFromContext(ctx); tc.TraceParent != "" {
		body["trace"] = tc
	}
	return json.Marshal(body)
}

func (r *Runtime) runPreHooks(ctx context.Context, cmd *domain.Command) error {
	payload, err := hookPayload(ctx, cmd)
	if err != nil {
		return fmt.Errorf("marshal command for pre-hooks: %w", err)
	}
	results, veto, reason := r.Plugins.InvokeHookChain(ctx, "precommand", payload)
	for _, res := range results {
		if res.Err != nil {
			r.publishAndAppend(domain.ErrorOccurredEvent("plugin", res.PluginID+": "+res.Err.Error()))
		}
	}
	if veto {
		return &PluginVetoError{Reason: reason}
	}
	return nil
}

func (r *Runtime) runPostHooks(ctx context.Context, cmd *domain.Command) {
	payload, err := hookPayload(ctx, cmd)
	if err != nil {
		logging.Op().Warn("marshal command for post-hooks failed", "error", err)
		return
	}
	results, _, _ := r.Plugins.InvokeHookChain(ctx, "postcommand", payload)
	for _, res := range results {
		if res.Err != nil {
			r.publishAndAppend(domain.ErrorOccurredEvent("plugin", res.PluginID+": "+res.Err.Error()))
		}
	}
}

// execute runs the AST variant's effect and returns the human-readable
// result string.
func (r *Runtime) execute(ctx context.Context, cmd *domain.Command) (string, error) {
	switch cmd.Kind {
	case domain.KindDefineContract:
		return r.defineContract(cmd.DefineContract)
	case domain.KindDefineIdea:
		return r.defineIdea(cmd.DefineIdea)
	case domain.KindSimulateEntity:
		return r.simulateEntity(cmd.SimulateEntity)
	case domain.KindOrchestrate:
		return r.orchestrate(ctx, cmd.Orchestrate)
	case domain.KindInvokeRuleset:
		return r.invokeRuleset(cmd.InvokeRuleset)
	default:
		return "", fmt.Errorf("unhandled command kind: %s", cmd.Kind)
	}
}

func (r *Runtime) defineContract(c *domain.DefineContract) (string, error) {
	if _, err := r.Contracts.Create(c.ID, c.Clauses); err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("Contrato com ID '%s' já existe", c.ID)}
	}
	r.Registry.RegisterEntity(c.ID, "CONTRACT")
	r.publishAndAppend(domain.ContractRegisteredEvent(c.ID))
	return fmt.Sprintf("Contrato registrado: %s", c.ID), nil
}

func (r *Runtime) defineIdea(d *domain.DefineIdea) (string, error) {
	if _, err := r.Ideas.Create(d.ID, d.Text); err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("Ideia com ID '%s' já existe", d.ID)}
	}
	r.Registry.RegisterEntity(d.ID, "IDEA")
	r.publishAndAppend(domain.IdeaRegisteredEvent(d.ID))
	return fmt.Sprintf("Ideia registrada: %s", d.ID), nil
}

func (r *Runtime) simulateEntity(s *domain.SimulateEntity) (string, error) {
	entity, ok := r.Registry.FetchEntity(s.ID)
	if !ok {
		return "", &ValidationError{Message: fmt.Sprintf("Entidade '%s' não encontrada", s.ID)}
	}

	results, err := simulate.Run(s.ID, entity.Type, simulate.Config{Mode: simulate.Random, Rounds: s.Rounds})
	if err != nil {
		return "", fmt.Errorf("simulate: %w", err)
	}

	r.publishAndAppend(domain.SimulationCompletedEvent(s.ID, s.Rounds))
	score := simulate.Evaluate(results)
	return fmt.Sprintf("Simulação concluída: %s (%d rodadas, score %.2f)", s.ID, s.Rounds, score), nil
}

func (r *Runtime) orchestrate(ctx context.Context, o *domain.Orchestrate) (string, error) {
	concurrency := 1
	if o.Mode == "parallel" {
		concurrency = r.maxOrchestrationConcurrency
	}

	r.publishAndAppend(domain.OrchestrationStartedEvent(o.Mode, concurrency))

	start := time.Now()
	runWorkload(ctx, concurrency)
	duration := time.Since(start)

	r.publishAndAppend(domain.OrchestrationCompletedEvent(o.Mode, concurrency, duration.Milliseconds()))
	return fmt.Sprintf("Orquestração concluída: %s (concorrência %d, %dms)", o.Mode, concurrency, duration.Milliseconds()), nil
}

// runWorkload fans a no-op unit of work out across concurrency workers,
// standing in for the real workload and modeling the concurrency/ordering
// shape an actual orchestrated job would exercise.
func runWorkload(ctx context.Context, concurrency int) {
	done := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			select {
			case <-ctx.Done():
			default:
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < concurrency; i++ {
		<-done
	}
}

func (r *Runtime) invokeRuleset(inv *domain.InvokeRuleset) (string, error) {
	entity, ok := r.Registry.FetchEntity(inv.EntityID)
	if !ok {
		return "", &ValidationError{Message: fmt.Sprintf("Entidade '%s' não encontrada", inv.EntityID)}
	}

	content := r.entityContent(entity)
	verdict := ruleset.Evaluate(inv.RulesetID, content)

	domainVerdict := domain.Rejected
	if verdict == ruleset.Accepted {
		domainVerdict = domain.Accepted
	}
	r.publishAndAppend(domain.RuleVerdictEvent(inv.RulesetID, domainVerdict))
	return fmt.Sprintf("Veredicto: %s (%s sobre %s)", domainVerdict, inv.RulesetID, inv.EntityID), nil
}

// entityContent resolves the text content the ruleset evaluator checks,
// preferring the idea text or contract clause text registered under the
// same id, falling back to the bare entity type for entities registered
// without a collaborator record.
func (r *Runtime) entityContent(entity domain.Entity) string {
	if idea, err := r.Ideas.Get(entity.LogicalID); err == nil {
		return idea.Text
	}
	if contract, err := r.Contracts.Get(entity.LogicalID); err == nil {
		return contracts.Content(contract)
	}
	return entity.Type
}
