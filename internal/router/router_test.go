package router

import (
	"testing"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

func fixtureAgentsTeams() (map[string]config.AgentSpec, map[string]config.TeamSpec) {
	agents := map[string]config.AgentSpec{
		"default": {Name: "Default"},
		"lead":    {Name: "Lead"},
		"coder":   {Name: "Coder"},
		"a":       {Name: "A"},
		"b":       {Name: "B"},
	}
	teams := map[string]config.TeamSpec{
		"dev": {Name: "Dev", Agents: []string{"lead", "coder", "a", "b"}, LeaderAgent: "lead"},
	}
	return agents, teams
}

func TestParseRouteUnrouted(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	r := ParseRoute("hello", agents, teams)
	if r.AgentID != DefaultAgentID || r.Message != "hello" {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestParseRouteDirectAgent(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	r := ParseRoute("@coder fix the bug", agents, teams)
	if r.AgentID != "coder" || r.Message != "fix the bug" {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestParseRouteTeamAlias(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	r := ParseRoute("@dev plan this", agents, teams)
	if r.AgentID != "lead" || !r.IsTeam || r.Message != "plan this" {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestParseRouteUnknownToken(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	r := ParseRoute("@ghost hello", agents, teams)
	if r.AgentID != DefaultAgentID || r.Message != "@ghost hello" {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestParseRouteMultipleDistinctTargetsIsEasterEgg(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	r := ParseRoute("@lead @coder do something", agents, teams)
	if r.AgentID != ErrorAgentID || r.Message != EasterEggMessage {
		t.Fatalf("unexpected route: %+v", r)
	}
}

func TestFindTeamForAgent(t *testing.T) {
	_, teams := fixtureAgentsTeams()
	id, ok := FindTeamForAgent("coder", teams)
	if !ok || id != "dev" {
		t.Fatalf("expected dev team, got %q ok=%v", id, ok)
	}
	if _, ok := FindTeamForAgent("nobody", teams); ok {
		t.Fatalf("expected no team for unknown agent")
	}
}

func TestExtractTeammateMentionsSingle(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	mentions := ExtractTeammateMentions("@coder implement X", "lead", "dev", teams, agents)
	if len(mentions) != 1 || mentions[0].TeammateID != "coder" {
		t.Fatalf("unexpected mentions: %+v", mentions)
	}
	if mentions[0].Message == "" {
		t.Fatalf("expected non-empty mention message")
	}
}

func TestExtractTeammateMentionsNone(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	mentions := ExtractTeammateMentions("done, no handoff needed", "coder", "dev", teams, agents)
	if len(mentions) != 0 {
		t.Fatalf("expected no mentions, got %+v", mentions)
	}
}

func TestExtractTeammateMentionsFanOut(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	mentions := ExtractTeammateMentions("@a handle this @b handle that", "lead", "dev", teams, agents)
	if len(mentions) != 2 || mentions[0].TeammateID != "a" || mentions[1].TeammateID != "b" {
		t.Fatalf("unexpected mentions: %+v", mentions)
	}
}

func TestExtractTeammateMentionsIgnoresSelf(t *testing.T) {
	agents, teams := fixtureAgentsTeams()
	mentions := ExtractTeammateMentions("@lead reporting to myself", "lead", "dev", teams, agents)
	if len(mentions) != 0 {
		t.Fatalf("expected self-mention to be ignored, got %+v", mentions)
	}
}
