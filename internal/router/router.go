// Package router resolves a raw inbound message to a target agent,
// detects the multi-mention easter egg, and extracts teammate mentions
// from an agent's reply during a team chain.
package router

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

// ErrorAgentID is the sentinel agent id returned when a message opens
// with more than one distinct @target.
const ErrorAgentID = "error"

// DefaultAgentID is returned when the message has no recognized @prefix.
const DefaultAgentID = "default"

// EasterEggMessage is the fixed reply sent when a message names more
// than one distinct target in its leading @mention prefix.
const EasterEggMessage = "Pick one agent at a time — I can't be in two places at once."

// Route is the result of parsing a raw inbound message for routing.
type Route struct {
	AgentID string
	Message string
	IsTeam  bool
}

var leadingMentionToken = regexp.MustCompile(`^@(\S+)`)

// ParseRoute strips one leading @target from text and resolves it to an
// agent, a team leader, the error sentinel, or the default fallback.
func ParseRoute(text string, agents map[string]config.AgentSpec, teams map[string]config.TeamSpec) Route {
	tokens, remainders := leadingMentions(text)

	if len(tokens) == 0 {
		return Route{AgentID: DefaultAgentID, Message: text}
	}

	if len(tokens) >= 2 && hasDistinctTokens(tokens) {
		return Route{AgentID: ErrorAgentID, Message: EasterEggMessage}
	}

	token := tokens[0]
	remainder := strings.TrimSpace(remainders[0])

	// Agents are checked before teams: a token that collides with both
	// an agent id and a team id resolves to the agent (see data model
	// §4.4's collision precedence).
	if _, ok := agents[token]; ok {
		return Route{AgentID: token, Message: remainder}
	}
	if team, ok := teams[token]; ok {
		return Route{AgentID: team.LeaderAgent, Message: remainder, IsTeam: true}
	}

	return Route{AgentID: DefaultAgentID, Message: text}
}

// leadingMentions collects the run of consecutive "@token" mentions at
// the very start of text and, for each, the text remaining once that one
// mention (and the ones before it) are stripped.
func leadingMentions(text string) (tokens []string, remainders []string) {
	rest := text
	for {
		trimmed := strings.TrimLeft(rest, " \t")
		m := leadingMentionToken.FindStringSubmatch(trimmed)
		if m == nil {
			break
		}
		tokens = append(tokens, m[1])
		rest = strings.TrimPrefix(trimmed, "@"+m[1])
		remainders = append(remainders, rest)
	}
	return tokens, remainders
}

func hasDistinctTokens(tokens []string) bool {
	for i := 1; i < len(tokens); i++ {
		if tokens[i] != tokens[0] {
			return true
		}
	}
	return false
}

// FindTeamForAgent returns the id of the first team (by map iteration)
// containing agentID, and whether one was found. Team lookups never go
// through embedded pointers, only through the keyed collection, since
// agents and teams reference each other cyclically only by id.
func FindTeamForAgent(agentID string, teams map[string]config.TeamSpec) (string, bool) {
	for teamID, team := range teams {
		for _, member := range team.Agents {
			if member == agentID {
				return teamID, true
			}
		}
	}
	return "", false
}

// Mention is one teammate reference extracted from a response.
type Mention struct {
	TeammateID string
	Message    string
}

var mentionToken = regexp.MustCompile(`@(\S+)`)

// ExtractTeammateMentions scans response for @id tokens naming another
// member of teamID (other than selfID) and returns one Mention per
// distinct teammate found, in first-appearance order. The payload
// attached to each mention is the text from that @id token to the next
// @mention (or end of string) — an implementation-chosen heuristic; the
// spec only requires it to be non-empty.
func ExtractTeammateMentions(response, selfID, teamID string, teams map[string]config.TeamSpec, agents map[string]config.AgentSpec) []Mention {
	team, ok := teams[teamID]
	if !ok {
		return nil
	}
	members := make(map[string]bool, len(team.Agents))
	for _, id := range team.Agents {
		members[id] = true
	}

	locs := mentionToken.FindAllStringSubmatchIndex(response, -1)
	if locs == nil {
		return nil
	}

	seen := make(map[string]bool)
	var mentions []Mention
	for i, loc := range locs {
		id := response[loc[2]:loc[3]]
		if id == selfID || !members[id] {
			continue
		}
		if _, ok := agents[id]; !ok {
			continue
		}
		if seen[id] {
			continue
		}

		end := len(response)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(response[loc[1]:end])
		if text == "" {
			text = response[loc[0]:loc[1]]
		}

		seen[id] = true
		mentions = append(mentions, Mention{TeammateID: id, Message: text})
	}
	return mentions
}
