// Package domain defines the shared value types passed between the DSL
// parser, the registry, the ruleset evaluator, the timeline, the broker,
// and the runtime dispatcher.
package domain

// CommandKind identifies which imperative form a Command holds.
type CommandKind string

const (
	KindDefineContract CommandKind = "DefineContract"
	KindDefineIdea     CommandKind = "DefineIdea"
	KindSimulateEntity CommandKind = "SimulateEntity"
	KindOrchestrate    CommandKind = "Orchestrate"
	KindInvokeRuleset  CommandKind = "InvokeRuleset"
)

// Command is the typed AST produced by the DSL parser. Exactly one of the
// per-kind fields is populated, selected by Kind.
type Command struct {
	Kind CommandKind `json:"kind"`

	DefineContract *DefineContract `json:"define_contract,omitempty"`
	DefineIdea     *DefineIdea     `json:"define_idea,omitempty"`
	SimulateEntity *SimulateEntity `json:"simulate_entity,omitempty"`
	Orchestrate    *Orchestrate    `json:"orchestrate,omitempty"`
	InvokeRuleset  *InvokeRuleset  `json:"invoke_ruleset,omitempty"`
}

// DefineContract is the AST for `DEFINE CONTRACT <id> <clauses>`.
type DefineContract struct {
	ID      string   `json:"id"`
	Clauses []string `json:"clauses"`
}

// DefineIdea is the AST for `DEFINE IDEA <id> "<text>"`.
type DefineIdea struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SimulateEntity is the AST for `SIMULATE ENTITY <id> <rounds>`.
type SimulateEntity struct {
	ID     string `json:"id"`
	Rounds int    `json:"rounds"`
}

// Orchestrate is the AST for `ORCHESTRATE <mode>`.
type Orchestrate struct {
	Mode string `json:"mode"`
}

// InvokeRuleset is the AST for `INVOKE RULESET <ruleset_id> ON <entity_id>`.
type InvokeRuleset struct {
	RulesetID string `json:"ruleset_id"`
	EntityID  string `json:"entity_id"`
}
