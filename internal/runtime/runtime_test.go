package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/logline-motor/motor/internal/broker"
	"github.com/logline-motor/motor/internal/domain"
	"github.com/logline-motor/motor/internal/pluginhost"
)

// vetoingInvoker simulates a precommand plugin hook that always vetoes,
// so ProcessCommand can be tested without a real WASM module.
type vetoingInvoker struct{ reason string }

func (v vetoingInvoker) InvokeHookChain(_ context.Context, hook string, _ []byte) ([]pluginhost.HookResult, bool, string) {
	if hook == "precommand" {
		return nil, true, v.reason
	}
	return nil, false, ""
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	r := New(broker.DefaultConfig())
	t.Cleanup(r.Close)
	return r
}

// S1: DEFINE IDEA succeeds with the expected result text and appends
// exactly one IdeaRegistered event for the id.
func TestProcessCommand_DefineIdea(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	res, err := r.ProcessCommand(ctx, `DEFINE IDEA id001 "Minha ideia de teste"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "Ideia registrada: id001" {
		t.Fatalf("unexpected result text: %q", res.Text)
	}

	found := r.Timeline.FindEventsByKind(domain.EventIdeaRegistered)
	if len(found) != 1 || found[0].Payload["id"] != "id001" {
		t.Fatalf("expected exactly one IdeaRegistered event for id001, got %+v", found)
	}
}

// S2: a malformed command is reported as a parse error and logged.
func TestProcessCommand_SyntaxError(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	_, err := r.ProcessCommand(ctx, "INVALID COMMAND")
	if err == nil {
		t.Fatal("expected a syntax error")
	}

	found := r.Timeline.FindEventsByKind(domain.EventErrorOccurred)
	if len(found) != 1 || found[0].Payload["context"] != "parsing" {
		t.Fatalf("expected one parsing ErrorOccurred event, got %+v", found)
	}
}

// S6: registering the same contract id twice fails the second time and
// leaves exactly one ContractRegistered event on the timeline.
func TestProcessCommand_DuplicateContract(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	if _, err := r.ProcessCommand(ctx, "DEFINE CONTRACT c1 clause1, clause2"); err != nil {
		t.Fatalf("first definition failed: %v", err)
	}
	if _, err := r.ProcessCommand(ctx, "DEFINE CONTRACT c1 clause1, clause2"); err == nil {
		t.Fatal("expected the second definition to fail")
	}

	found := r.Timeline.FindEventsByKind(domain.EventContractRegistered)
	if len(found) != 1 {
		t.Fatalf("expected exactly one ContractRegistered event, got %d", len(found))
	}
}

// S5: SIMULATE ENTITY against a registered entity runs the requested
// number of rounds.
func TestProcessCommand_SimulateEntity(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	if _, err := r.ProcessCommand(ctx, `DEFINE IDEA e1 "content"`); err != nil {
		t.Fatalf("define failed: %v", err)
	}
	if _, err := r.ProcessCommand(ctx, "SIMULATE ENTITY e1 5"); err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	found := r.Timeline.FindEventsByKind(domain.EventSimulationCompleted)
	if len(found) != 1 || found[0].Payload["rounds"] != 5 {
		t.Fatalf("expected one SimulationCompleted event with rounds=5, got %+v", found)
	}
}

func TestProcessCommand_InvokeRulesetUnknownEntity(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	if _, err := r.ProcessCommand(ctx, "INVOKE RULESET always-accept ON missing"); err == nil {
		t.Fatal("expected validation error for unknown entity")
	}
}

func TestProcessCommand_Orchestrate(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	if _, err := r.ProcessCommand(ctx, "ORCHESTRATE sequential"); err != nil {
		t.Fatalf("orchestrate failed: %v", err)
	}

	started := r.Timeline.FindEventsByKind(domain.EventOrchestrationStarted)
	completed := r.Timeline.FindEventsByKind(domain.EventOrchestrationCompleted)
	if len(started) != 1 || started[0].Payload["concurrency"] != 1 {
		t.Fatalf("expected sequential orchestration to use concurrency 1, got %+v", started)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one OrchestrationCompleted event, got %d", len(completed))
	}
}

func TestProcessCommand_TimelineBeforeBroker(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	sub := r.Broker.Subscribe([]string{domain.DefaultChannel}, 0)
	defer sub.Close()

	if _, err := r.ProcessCommand(ctx, `DEFINE IDEA ord1 "x"`); err != nil {
		t.Fatalf("define failed: %v", err)
	}

	select {
	case frame := <-sub.Frames():
		if frame.Heartbeat {
			t.Fatal("expected a real event frame, got heartbeat")
		}
		if _, ok := r.Timeline.FindEventsByKind(frame.Event.Kind)[0].Payload["id"]; !ok {
			t.Fatal("expected timeline to already contain the published event")
		}
	default:
		t.Fatal("expected at least one frame to be delivered")
	}
}

func TestProcessCommand_PluginVeto(t *testing.T) {
	r := New(broker.DefaultConfig(), WithPlugins(vetoingInvoker{reason: "policy violation"}))
	defer r.Close()
	ctx := context.Background()

	_, err := r.ProcessCommand(ctx, `DEFINE IDEA vetoed "x"`)
	if err == nil {
		t.Fatal("expected a plugin veto error")
	}
	var veto *PluginVetoError
	if !errors.As(err, &veto) {
		t.Fatalf("expected a *PluginVetoError, got %T: %v", err, err)
	}
	if veto.Reason != "policy violation" {
		t.Fatalf("unexpected veto reason: %q", veto.Reason)
	}

	if _, err := r.Ideas.Get("vetoed"); err == nil {
		t.Fatal("vetoed command must not have registered the idea")
	}
}
