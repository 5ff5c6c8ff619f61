// Package orchestrator is the core scheduling loop: it polls the queue
// store, serializes work per agent over dedicated worker tasks, drives
// single invocations and team chains/fan-outs, resolves outbound file
// tags, and applies the retry/dead-letter failure policy.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
	"github.com/nextlevelbuilder/tinyclaw/internal/eventlog"
	"github.com/nextlevelbuilder/tinyclaw/internal/invoker"
	"github.com/nextlevelbuilder/tinyclaw/internal/queue"
	"github.com/nextlevelbuilder/tinyclaw/internal/router"
	"github.com/nextlevelbuilder/tinyclaw/internal/sandbox"
	"github.com/nextlevelbuilder/tinyclaw/internal/tracing"
	"github.com/nextlevelbuilder/tinyclaw/pkg/protocol"
)

// pollInterval is the fixed scan cadence for incoming/.
const pollInterval = 1 * time.Second

// Orchestrator owns the poll loop, the per-agent FIFO workers, and the
// shared resources every invocation needs: the queue store, config,
// event sink, tracer, and the process-wide concurrency permit.
type Orchestrator struct {
	store         *queue.Store
	cfg           *config.Config
	logger        *slog.Logger
	events        eventlog.Sink
	tracer        *tracing.Collector
	permit        *semaphore.Weighted
	workspaceRoot string
	chatsDir      string
	incomingDir   string
	heartbeats    *heartbeatDedup

	invokersMu sync.Mutex
	invokers   map[string]*invoker.Invoker // keyed by "agentId|resolved sandbox mode"

	mu      sync.Mutex
	queued  map[string]bool
	workers map[string]*workQueue
}

// New builds an Orchestrator rooted at workspaceRoot. cfg must already
// be loaded and validated.
func New(store *queue.Store, cfg *config.Config, logger *slog.Logger, events eventlog.Sink, tracer *tracing.Collector, workspaceRoot string) *Orchestrator {
	snap := cfg.Snapshot()
	return &Orchestrator{
		store:         store,
		cfg:           cfg,
		logger:        logger,
		events:        events,
		tracer:        tracer,
		permit:        invoker.NewSharedPermit(snap.Sandbox.MaxConcurrency),
		workspaceRoot: workspaceRoot,
		chatsDir:      filepath.Join(workspaceRoot, "chats"),
		incomingDir:   filepath.Join(workspaceRoot, "queue", "incoming"),
		heartbeats:    newHeartbeatDedup(heartbeatDedupWindow(snap)),
		invokers:      make(map[string]*invoker.Invoker),
		queued:        make(map[string]bool),
		workers:       make(map[string]*workQueue),
	}
}

func heartbeatDedupWindow(cfg config.Config) time.Duration {
	seconds := cfg.Sandbox.HeartbeatDedupWindowSeconds
	if seconds <= 0 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// Run starts the 1 Hz poll loop and blocks until ctx is canceled. The
// poller is the source of truth for correctness; a best-effort fsnotify
// watch on queue/incoming just wakes it early so freshly written files
// don't wait out a full tick.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.events.Emit(protocol.EventProcessorStart, "", "", "", nil)

	wake := o.watchIncoming(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.pollOnce(ctx)
		case <-wake:
			o.pollOnce(ctx)
		}
	}
}

// watchIncoming starts an fsnotify watch on queue/incoming and returns a
// channel that receives a value whenever a file is created or written
// there. Failure to start the watch is non-fatal — the poller still
// covers correctness on its own — so the returned channel is simply
// never signaled in that case.
func (o *Orchestrator) watchIncoming(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		o.logger.Warn("incoming watcher unavailable, relying on the poller alone", "error", err)
		return wake
	}
	if err := watcher.Add(o.incomingDir); err != nil {
		o.logger.Warn("watch incoming directory failed, relying on the poller alone", "error", err)
		watcher.Close()
		return wake
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake
}

// pollOnce lists incoming/, and for every file not already queued, peeks
// its target agent id and dispatches it onto that agent's worker.
func (o *Orchestrator) pollOnce(ctx context.Context) {
	claimed, err := o.store.ListIncoming()
	if err != nil {
		o.logger.Warn("list incoming failed", "error", err)
		return
	}

	for _, c := range claimed {
		o.mu.Lock()
		alreadyQueued := o.queued[c.Name]
		o.mu.Unlock()
		if alreadyQueued {
			continue
		}

		msg, err := o.store.PeekIncoming(c.Name)
		if err != nil {
			o.logger.Warn("peek incoming message failed", "file", c.Name, "error", err)
			continue
		}

		agentID := o.resolveTargetAgent(msg)

		o.mu.Lock()
		o.queued[c.Name] = true
		q, ok := o.workers[agentID]
		if !ok {
			q = newWorkQueue()
			o.workers[agentID] = q
			go o.runWorker(ctx, agentID, q)
		}
		o.mu.Unlock()

		q.push(c.Name)
	}
}

// resolveTargetAgent honors a pre-set agent on the message (the optional
// pre-route a channel client may write), otherwise routes the text.
func (o *Orchestrator) resolveTargetAgent(msg *protocol.Message) string {
	if msg.Agent != "" {
		return msg.Agent
	}
	snap := o.cfg.Snapshot()
	route := router.ParseRoute(msg.Message, snap.Agents, snap.Teams)
	return route.AgentID
}

// runWorker drains q forever, processing one filename at a time —
// strictly sequential per agent, as required by the FIFO guarantee.
func (o *Orchestrator) runWorker(ctx context.Context, agentID string, q *workQueue) {
	for {
		name, ok := q.pop()
		if !ok {
			return
		}
		o.process(ctx, name)
		o.mu.Lock()
		delete(o.queued, name)
		o.mu.Unlock()
	}
}

// process claims name and runs it through routing, invocation, outbound
// resolution, and the failure policy.
func (o *Orchestrator) process(ctx context.Context, name string) {
	msg, err := o.store.Claim(name)
	if err != nil {
		o.logger.Warn("claim failed, leaving for next tick", "file", name, "error", err)
		return
	}

	o.events.Emit(protocol.EventMessageReceived, msg.MessageID, msg.Agent, "", map[string]any{"channel": msg.Channel})

	snap := o.cfg.Snapshot()
	var route router.Route
	if msg.Agent != "" {
		route = router.Route{AgentID: msg.Agent, Message: msg.Message}
	} else {
		route = router.ParseRoute(msg.Message, snap.Agents, snap.Teams)
	}
	teamID, _ := router.FindTeamForAgent(route.AgentID, snap.Teams)

	o.events.Emit(protocol.EventAgentRouted, msg.MessageID, route.AgentID, teamID, map[string]any{"isTeam": route.IsTeam})

	if route.AgentID == router.ErrorAgentID {
		o.publishFinal(msg, name, route.AgentID, route.Message, nil)
		o.store.Complete(name)
		return
	}

	startedAt := time.Now()
	if teamID != "" {
		o.events.Emit(protocol.EventTeamChainStart, msg.MessageID, route.AgentID, teamID, nil)
	}

	result, err := o.runChain(ctx, msg.MessageID, route)
	if err != nil {
		o.handleFailure(msg, name, err)
		return
	}

	if teamID != "" {
		o.events.Emit(protocol.EventTeamChainEnd, msg.MessageID, route.AgentID, teamID, map[string]any{"steps": len(result.Steps)})
		if werr := writeTranscript(o.chatsDir, teamID, route, result, startedAt); werr != nil {
			o.logger.Warn("write chat transcript failed", "team", teamID, "error", werr)
		}
	}

	finalAgent := route.AgentID
	if len(result.Steps) > 0 {
		finalAgent = result.Steps[len(result.Steps)-1].AgentID
	}

	cleaned, files := resolveOutbound(result.Final, result.Mappings)
	cleaned = applyLengthCap(cleaned)

	o.publishFinal(msg, name, finalAgent, cleaned, files)
	o.store.Complete(name)

	o.events.Emit(protocol.EventResponseReady, msg.MessageID, finalAgent, teamID, map[string]any{"length": len(cleaned)})
}

// publishFinal writes the Response record to outgoing/.
func (o *Orchestrator) publishFinal(msg *protocol.Message, name, agentID, text string, files []string) {
	resp := &protocol.Response{
		Channel:         msg.Channel,
		Sender:          msg.Sender,
		MessageID:       msg.MessageID,
		Message:         text,
		OriginalMessage: msg.Message,
		Timestamp:       time.Now().UnixMilli(),
		Agent:           agentID,
		Files:           files,
	}
	if err := o.store.PublishResponse(resp); err != nil {
		o.logger.Error("publish response failed", "file", name, "error", err)
	}
}

// agentWorkingDir resolves an agent's configured working_directory,
// which may be absolute or relative to the workspace root.
func (o *Orchestrator) agentWorkingDir(cfg config.Config, agentID string) string {
	agent, ok := cfg.Agents[agentID]
	if !ok || agent.WorkingDirectory == "" {
		return filepath.Join(o.workspaceRoot, "agents", agentID)
	}
	if filepath.IsAbs(agent.WorkingDirectory) {
		return agent.WorkingDirectory
	}
	return filepath.Join(o.workspaceRoot, agent.WorkingDirectory)
}

// invokerFor returns (creating if needed) the Invoker for agentID, keyed
// by the agent id together with its resolved sandbox mode, so each agent
// gets its own Invoker and a changed mode override gets a fresh one.
func (o *Orchestrator) invokerFor(cfg config.Config, agentID string) *invoker.Invoker {
	sbCfg := cfg.ToSandboxConfig(agentID)
	key := fmt.Sprintf("%s|%s", agentID, sbCfg.Mode)

	o.invokersMu.Lock()
	defer o.invokersMu.Unlock()
	if inv, ok := o.invokers[key]; ok {
		return inv
	}
	inv := invoker.New(sbCfg, o.permit, o.logger)
	o.invokers[key] = inv
	return inv
}

// invokeAgent runs one turn for agentID: builds teammate metadata,
// resolves the invoker, emits sandbox_invocation_* events and spans, and
// returns the parsed response text plus this turn's path mappings.
func (o *Orchestrator) invokeAgent(ctx context.Context, cfg config.Config, agentID, message string, reset bool) (string, []sandbox.PathMapping, error) {
	agent, ok := cfg.Agents[agentID]
	if !ok {
		return "", nil, fmt.Errorf("agent %q is not configured", agentID)
	}

	var teammates []string
	if teamID, inTeam := router.FindTeamForAgent(agentID, cfg.Teams); inTeam {
		for _, id := range cfg.Teams[teamID].Agents {
			if id != agentID {
				teammates = append(teammates, id)
			}
		}
	}

	inv := o.invokerFor(cfg, agentID)

	ctx, span := o.tracer.StartSandboxInvocation(ctx, agentID, agent.Provider, 0)
	defer span.End()

	o.events.Emit(protocol.EventSandboxInvocationStart, "", agentID, "", map[string]any{"provider": agent.Provider})

	model := agent.Model
	if model == "" {
		model = cfg.Models.ResolvedModel(agent.Provider)
	}

	outcome, err := inv.Invoke(ctx, invoker.Request{
		AgentID:    agentID,
		Provider:   agent.Provider,
		Model:      model,
		Message:    message,
		WorkingDir: o.agentWorkingDir(cfg, agentID),
		Reset:      reset,
		Teammates:  teammates,
	})
	if err != nil {
		sanitized := sandbox.Redact(err.Error())
		o.events.Emit(protocol.EventSandboxInvocationError, "", agentID, "", map[string]any{"error": sanitized})
		return "", nil, err
	}

	o.events.Emit(protocol.EventSandboxInvocationEnd, "", agentID, "", map[string]any{"durationMs": outcome.DurationMs})
	return outcome.Text, outcome.PathMappings, nil
}
