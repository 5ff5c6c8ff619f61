package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/router"
	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

// runResult is the aggregated outcome of a single-agent invocation or a
// team chain/fan-out: the step history, the union of path mappings seen
// across every invocation, and the final text before outbound tag
// resolution and the length cap are applied.
type runResult struct {
	Steps    []protocol.ChainStep
	Mappings []sandbox.PathMapping
	Final    string
}

// runChain drives one message through a single invocation, or a team
// sequential handoff followed by at most one fan-out round, unified:
// an agent with no team (findTeamForAgent returns ok=false) can never
// produce a teammate mention, so the loop always stops after one step.
func (o *Orchestrator) runChain(ctx context.Context, messageID string, route router.Route) (*runResult, error) {
	snap := o.cfg.Snapshot()

	teamID, inTeam := router.FindTeamForAgent(route.AgentID, snap.Teams)

	result := &runResult{}
	current := route.AgentID
	message := route.Message
	firstStep := true
	stepIndex := 0

	for {
		workDir := o.agentWorkingDir(snap, current)
		reset := shouldReset(o.workspaceRoot, workDir, !firstStep)

		resp, mappings, err := o.invokeChainStep(ctx, snap, teamID, messageID, current, message, reset, stepIndex)
		stepIndex++
		if err != nil {
			return nil, err
		}

		result.Steps = append(result.Steps, protocol.ChainStep{AgentID: current, Response: resp})
		result.Mappings = append(result.Mappings, mappings...)

		if !inTeam {
			break
		}

		mentions := router.ExtractTeammateMentions(resp, current, teamID, snap.Teams, snap.Agents)
		switch len(mentions) {
		case 0:
			firstStep = false
		case 1:
			o.events.Emit(protocol.EventChainHandoff, messageID, current, teamID, map[string]any{"to": mentions[0].TeammateID})
			message = fmt.Sprintf("[Message from teammate @%s]:\n%s", current, mentions[0].Message)
			current = mentions[0].TeammateID
			firstStep = false
			continue
		default:
			n, err := o.runFanOut(ctx, snap, teamID, messageID, current, mentions, result, stepIndex)
			stepIndex += n
			if err != nil {
				return nil, err
			}
		}
		break
	}

	result.Final = aggregate(result.Steps)
	return result, nil
}

// invokeChainStep wraps invokeAgent with the chain_step_start/done events
// and tracing span every step — single or fan-out sibling — goes through.
func (o *Orchestrator) invokeChainStep(ctx context.Context, snap config.Config, teamID, messageID, agentID, message string, reset bool, stepIndex int) (string, []sandbox.PathMapping, error) {
	ctx, span := o.tracer.StartChainStep(ctx, teamID, agentID, stepIndex)
	defer span.End()

	o.events.Emit(protocol.EventChainStepStart, messageID, agentID, teamID, map[string]any{"step": stepIndex})

	resp, mappings, err := o.invokeAgent(ctx, snap, agentID, message, reset)
	if err != nil {
		return "", nil, err
	}

	o.events.Emit(protocol.EventChainStepDone, messageID, agentID, teamID, map[string]any{"step": stepIndex})
	return resp, mappings, nil
}

// runFanOut invokes every mentioned teammate concurrently and appends
// their steps to result in mention order — sibling invocations have no
// mutual ordering guarantee, but chainSteps must reflect mention order.
// A failure in any sibling fails the whole message, same as a failure in
// a sequential chain step, so the caller can retry or dead-letter it. It
// returns the number of chain steps it ran, so the caller can keep
// stepIndex monotonic across the rest of the chain.
func (o *Orchestrator) runFanOut(ctx context.Context, snap config.Config, teamID, messageID, fromAgent string, mentions []router.Mention, result *runResult, baseStepIndex int) (int, error) {
	type outcome struct {
		step     protocol.ChainStep
		mappings []sandbox.PathMapping
		err      error
	}
	outcomes := make([]outcome, len(mentions))

	var wg sync.WaitGroup
	for i, m := range mentions {
		wg.Add(1)
		go func(i int, m router.Mention) {
			defer wg.Done()
			workDir := o.agentWorkingDir(snap, m.TeammateID)
			reset := shouldReset(o.workspaceRoot, workDir, true)
			msg := fmt.Sprintf("[Message from teammate @%s]:\n%s", fromAgent, m.Message)
			resp, mappings, err := o.invokeChainStep(ctx, snap, teamID, messageID, m.TeammateID, msg, reset, baseStepIndex+i)
			outcomes[i] = outcome{step: protocol.ChainStep{AgentID: m.TeammateID, Response: resp}, mappings: mappings, err: err}
		}(i, m)
	}
	wg.Wait()

	for _, oc := range outcomes {
		if oc.err != nil {
			return len(outcomes), oc.err
		}
	}
	for _, oc := range outcomes {
		result.Steps = append(result.Steps, oc.step)
		result.Mappings = append(result.Mappings, oc.mappings...)
	}
	return len(outcomes), nil
}

// aggregate implements the final-response rule: the lone step's raw
// response, or every step joined "@id: response" in step order.
func aggregate(steps []protocol.ChainStep) string {
	if len(steps) == 1 {
		return steps[0].Response
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = fmt.Sprintf("@%s: %s", s.AgentID, s.Response)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
