package orchestrator

import (
	"testing"

	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

func TestAggregateSingleStepIsRaw(t *testing.T) {
	steps := []protocol.ChainStep{{AgentID: "default", Response: "hello there"}}
	if got := aggregate(steps); got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestAggregateMultiStepJoinsWithSeparator(t *testing.T) {
	steps := []protocol.ChainStep{
		{AgentID: "lead", Response: "@coder implement X"},
		{AgentID: "coder", Response: "done"},
	}
	want := "@lead: @coder implement X\n\n---\n\n@coder: done"
	if got := aggregate(steps); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestAggregateFanOutPreservesMentionOrder(t *testing.T) {
	steps := []protocol.ChainStep{
		{AgentID: "lead", Response: "kickoff"},
		{AgentID: "a", Response: "a done"},
		{AgentID: "b", Response: "b done"},
	}
	want := "@lead: kickoff\n\n---\n\n@a: a done\n\n---\n\n@b: b done"
	if got := aggregate(steps); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
