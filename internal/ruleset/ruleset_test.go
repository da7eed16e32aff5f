package ruleset

import "testing"

func TestAlwaysAccept(t *testing.T) {
	if Evaluate("always-accept", "anything") != Accepted {
		t.Fatal("expected always-accept to accept")
	}
}

func TestAlwaysReject(t *testing.T) {
	if Evaluate("always-reject", "anything") != Rejected {
		t.Fatal("expected always-reject to reject")
	}
}

func TestBasicCheck(t *testing.T) {
	if Evaluate("basic-check", "this is important news") != Accepted {
		t.Fatal("expected basic-check to accept when pattern present")
	}
	if Evaluate("basic-check", "nothing to see here") != Rejected {
		t.Fatal("expected basic-check to reject when pattern absent")
	}
}

func TestUnknownRulesetFallsBackToAlwaysAccept(t *testing.T) {
	if Evaluate("does-not-exist", "anything") != Accepted {
		t.Fatal("expected unknown ruleset name to fall back to always-accept")
	}
}
