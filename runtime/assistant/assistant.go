package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goa.design/converse/runtime/assistant/statepath"
	"goa.design/converse/runtime/assistant/telemetry"
)

type (
	// Assistant drives one conversation: it screens and routes user
	// messages, hosts the per-conversation agent instances, tracks the
	// activity lifecycle and dispatches every state mutation to the
	// persistence targets selected by the conversation's strategy.
	//
	// An Assistant is not safe for concurrent use; the connection handler
	// owning the conversation calls it sequentially.
	Assistant struct {
		key         ChatKey
		persistence PersistenceStrategy
		language    string
		keepCount   int
		maxTries    int

		state           *State
		agents          map[AgentCode]Agent
		registry        Registry
		currentAgent    Agent
		currentActivity *ActivityState

		callback Callback
		store    Store
		logger   telemetry.Logger
		metrics  telemetry.Metrics
	}

	// Options configures a conversation.
	Options struct {
		// Key identifies the conversation. A missing ThreadID is generated.
		Key ChatKey
		// Persistence selects the persistence targets. Defaults to
		// PersistNone.
		Persistence PersistenceStrategy
		// Registry wires the agent roster and LLM collaborators. Required.
		Registry Registry
		// Callback delivers messages and updates to the client. Required.
		Callback Callback
		// Store is the durable persistence target. Required when the
		// strategy includes the server.
		Store Store
		// State seeds the conversation with client-restored state. When
		// nil and the strategy includes the server, the store is consulted;
		// otherwise the conversation starts fresh.
		State *State
		// Language is the conversation language as a BCP 47 tag. Defaults
		// to "en".
		Language string
		// KeepCount bounds the verbatim memory window. Defaults to 10.
		KeepCount int
		// MaxRoutingTries bounds the routing loop. Defaults to 5.
		MaxRoutingTries int
		// Logger defaults to the clue-backed logger.
		Logger telemetry.Logger
		// Metrics defaults to the no-op recorder.
		Metrics telemetry.Metrics
	}
)

const (
	// DefaultKeepCount is the default bounded memory window size.
	DefaultKeepCount = 10
	// DefaultMaxRoutingTries is the default routing loop bound.
	DefaultMaxRoutingTries = 5

	genericErrorText = "Something went wrong. Please try again."
)

// New creates the Assistant for one conversation: it validates the wiring,
// restores persisted state when available, rehydrates agent state documents
// and greets the user on fresh conversations.
func New(ctx context.Context, opts Options) (*Assistant, error) {
	if opts.Callback == nil {
		return nil, fmt.Errorf("assistant: missing callback")
	}
	if err := opts.Registry.Validate(); err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	if opts.Persistence == "" {
		opts.Persistence = PersistNone
	}
	if !opts.Persistence.Valid() {
		return nil, fmt.Errorf("assistant: invalid persistence strategy %q", opts.Persistence)
	}
	if opts.Persistence.Server() && opts.Store == nil {
		return nil, fmt.Errorf("assistant: persistence %q requires a store", opts.Persistence)
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.KeepCount <= 0 {
		opts.KeepCount = DefaultKeepCount
	}
	if opts.MaxRoutingTries <= 0 {
		opts.MaxRoutingTries = DefaultMaxRoutingTries
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewClueLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}

	a := &Assistant{
		key:         opts.Key,
		persistence: opts.Persistence,
		language:    opts.Language,
		keepCount:   opts.KeepCount,
		maxTries:    opts.MaxRoutingTries,
		registry:    opts.Registry,
		callback:    opts.Callback,
		store:       opts.Store,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}

	a.agents = make(map[AgentCode]Agent, len(opts.Registry.Agents))
	for _, agent := range opts.Registry.Agents {
		a.agents[agent.Code()] = agent
	}
	a.currentAgent = a.agents[opts.Registry.DefaultAgent]

	restored := false
	a.state = opts.State
	if a.state != nil {
		restored = true
	} else if a.persistence.Server() && a.key.ThreadID != "" {
		chat, err := a.store.GetChat(ctx, a.key)
		switch {
		case err == nil:
			a.state = stateFromChat(chat)
			restored = true
		case errors.Is(err, ErrChatNotFound):
			// First message of a new persisted conversation.
		default:
			return nil, fmt.Errorf("assistant: load chat: %w", err)
		}
	}
	if a.state == nil {
		a.state = NewState()
	}
	if a.state.Agents == nil {
		a.state.Agents = make(map[AgentCode]map[string]any)
	}
	if a.state.Activities == nil {
		a.state.Activities = make(map[ActivityID]*ActivityState)
	}
	if a.key.ThreadID == "" {
		a.key.ThreadID = uuid.NewString()
	}

	if restored {
		a.rehydrateAgents(ctx)
	} else {
		if a.persistence.Server() {
			if err := a.store.SaveChat(ctx, a.chatDocument()); err != nil {
				a.reportPersistFailure(ctx, "store", "chat", err)
			}
		}
		if greeter, ok := a.currentAgent.(Greeter); ok {
			if err := greeter.Greet(ctx, a); err != nil {
				a.logger.Warn(ctx, "greeting failed", "agent", a.currentAgent.Code(), "err", err)
			}
		}
	}
	return a, nil
}

// rehydrateAgents replays persisted agent state documents into the roster.
// Documents failing their agent's schema are skipped so agents fall back to
// their compiled-in defaults instead of running on incompatible state.
func (a *Assistant) rehydrateAgents(ctx context.Context) {
	for code, doc := range a.state.Agents {
		agent, ok := a.agents[code]
		if !ok {
			a.logger.Warn(ctx, "dropping state of unknown agent", "agent", code)
			continue
		}
		if err := validateAgentState(agent, doc); err != nil {
			a.logger.Warn(ctx, "agent state rejected, using defaults", "agent", code, "err", err)
			continue
		}
		if err := agent.Restore(doc); err != nil {
			a.logger.Warn(ctx, "agent state restore failed, using defaults", "agent", code, "err", err)
		}
	}
}

// Key returns the conversation key.
func (a *Assistant) Key() ChatKey { return a.key }

// Language returns the conversation language.
func (a *Assistant) Language() string { return a.language }

// Persistence returns the conversation's persistence strategy.
func (a *Assistant) Persistence() PersistenceStrategy { return a.persistence }

// State exposes the live conversation state.
func (a *Assistant) State() *State { return a.state }

// CurrentActivity returns the activity currently engaged, or nil.
func (a *Assistant) CurrentActivity() *ActivityState { return a.currentActivity }

// ProcessUserMessage screens the message through the guard rails, routes it
// to an agent and lets that agent handle it. Collaborator failures are
// reported to the user as a generic system message; the returned error is
// for the connection handler's log, the conversation itself survives.
func (a *Assistant) ProcessUserMessage(ctx context.Context, msg ChatMessage) error {
	for _, guard := range a.registry.GuardRails {
		start := time.Now()
		decision, err := guard.CheckMessage(ctx, msg, a.language)
		a.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(start), "caller", "guard")
		if err != nil {
			a.sendInternalError(ctx)
			return fmt.Errorf("guard rail: %w", err)
		}
		if decision.Result != CheckAccept {
			return a.rejectMessage(ctx, msg, decision)
		}
	}

	// Sticky routing: a running activity claims the message for its owner
	// without consulting the classifier.
	var next AgentCode
	if a.currentActivity != nil && a.currentActivity.Status == StatusRunning {
		next = a.currentActivity.Agent
	}

	for try := 0; try < a.maxTries; try++ {
		if next == "" {
			start := time.Now()
			decision, err := a.registry.Router.ChooseAgent(ctx, a.routeRequest(msg))
			a.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(start), "caller", "router")
			if err != nil {
				a.sendInternalError(ctx)
				return fmt.Errorf("route message: %w", err)
			}
			if decision.Agent == "" && decision.Question != "" {
				// The router needs the user to disambiguate; the reply is
				// part of the conversation.
				reply := NewAssistantMessage("", SpeakContent(decision.Question))
				return a.SendAssistantMessage(ctx, reply, &msg, true)
			}
			next = decision.Agent
		}
		agent, ok := a.agents[next]
		if !ok {
			if next != "" {
				a.logger.Warn(ctx, "routed to unknown agent, using default", "agent", next)
			}
			agent = a.agents[a.registry.DefaultAgent]
		}
		a.metrics.IncCounter(telemetry.MetricRoutingTries, 1, "agent", string(agent.Code()))

		// Hand-over pauses and detaches the running activity; it is not
		// deleted and can be resumed later.
		if a.currentActivity != nil && a.currentActivity.Agent != agent.Code() {
			if a.currentActivity.Status == StatusRunning {
				if err := a.pauseCurrentActivity(ctx); err != nil {
					return err
				}
			}
			a.currentActivity = nil
		}

		a.currentAgent = agent
		result, err := agent.HandleMessage(ctx, a, msg)
		if err != nil {
			a.sendInternalError(ctx)
			return fmt.Errorf("agent %q: %w", agent.Code(), err)
		}
		if result.Handled {
			return nil
		}
		next = result.HandOver
	}

	a.metrics.IncCounter(telemetry.MetricRoutingExhausted, 1)
	a.logger.Warn(ctx, "routing exhausted, message unhandled",
		"tries", a.maxTries, "message_id", msg.ID)
	return nil
}

// rejectMessage relays a guard rejection to the user and, for critical
// verdicts, flags the message for review. Rejected messages never enter the
// conversation memory.
func (a *Assistant) rejectMessage(ctx context.Context, msg ChatMessage, decision GuardDecision) error {
	a.metrics.IncCounter(telemetry.MetricGuardRejections, 1, "result", string(decision.Result))
	if decision.Result == CheckRejectCritical && a.store != nil {
		if err := a.store.InsertFlaggedMessage(ctx, a.key, msg, decision); err != nil {
			a.logger.Error(ctx, "flagging message failed", "err", err)
		}
	}
	text := decision.Text
	if text == "" {
		text = genericErrorText
	}
	notice := NewAssistantMessage("", SystemContent(decision.Result.Severity(), text))
	notice.Transient = true
	return a.SendAssistantMessage(ctx, notice, nil, false)
}

// sendInternalError tells the user something failed without leaking
// internals. Best effort; the triggering error is surfaced to the caller.
func (a *Assistant) sendInternalError(ctx context.Context) {
	notice := NewAssistantMessage("", SystemContent(SeverityError, genericErrorText))
	notice.Transient = true
	if err := a.callback.SendAssistantMessage(ctx, notice); err != nil {
		a.logger.Error(ctx, "error notice delivery failed", "err", err)
	}
}

// routeRequest assembles the classification input from the live state.
func (a *Assistant) routeRequest(msg ChatMessage) RouteRequest {
	req := RouteRequest{
		Message:      msg,
		DefaultAgent: a.registry.DefaultAgent,
		Memory:       a.state.Memory,
		Language:     a.language,
	}
	for _, agent := range a.registry.Agents {
		req.Roster = append(req.Roster, AgentDescriptor{
			Code:        agent.Code(),
			Description: agent.Description(),
		})
	}
	if a.currentAgent != nil {
		req.CurrentAgent = &AgentDescriptor{
			Code:        a.currentAgent.Code(),
			Description: a.currentAgent.Description(),
		}
	}
	if activity := a.currentActivity; activity != nil {
		descriptor := &ActivityDescriptor{
			Agent:    activity.Agent,
			Activity: activity.Activity,
			Title:    activity.Title,
		}
		if owner, ok := a.agents[activity.Agent]; ok {
			descriptor.Description = owner.Activities()[activity.Activity]
		}
		req.CurrentActivity = descriptor
	}
	return req
}

// CreateActivity inserts a new activity instance into the activity table and
// propagates the insertion as a whole-activity update.
func (a *Assistant) CreateActivity(ctx context.Context, activity *ActivityState) error {
	if _, ok := a.agents[activity.Agent]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, activity.Agent)
	}
	update := ActivityUpdate{
		StateUpdate: StateUpdate{Value: activity},
		ID:          activity.ID,
		Origin:      OriginAgent,
	}
	return a.propagateActivityUpdate(ctx, update)
}

// StartActivity makes the identified activity current and running, pausing
// whichever activity was running before. Unknown identifiers are ignored:
// the client may reference activities that were pruned server-side.
func (a *Assistant) StartActivity(ctx context.Context, id ActivityID) error {
	if a.currentActivity != nil && a.currentActivity.ID != id && a.currentActivity.Status == StatusRunning {
		if err := a.pauseCurrentActivity(ctx); err != nil {
			return err
		}
	}
	activity, ok := a.state.Activities[id]
	if !ok {
		a.logger.Debug(ctx, "start of unknown activity ignored", "activity_id", id)
		return nil
	}
	a.currentActivity = activity
	return a.propagateActivityUpdate(ctx, statusUpdate(id, StatusRunning))
}

// FinishActivity completes the current activity and detaches it.
func (a *Assistant) FinishActivity(ctx context.Context, agent AgentCode) error {
	return a.closeCurrentActivity(ctx, agent, StatusFinished)
}

// AbortActivity terminates the current activity without completing it and
// detaches it.
func (a *Assistant) AbortActivity(ctx context.Context, agent AgentCode) error {
	return a.closeCurrentActivity(ctx, agent, StatusAborted)
}

func (a *Assistant) closeCurrentActivity(ctx context.Context, agent AgentCode, status ActivityStatus) error {
	if a.currentActivity == nil {
		return ErrNoCurrentActivity
	}
	if a.currentActivity.Agent != agent {
		return fmt.Errorf("%w: %s is owned by %s", ErrActivityOwnership, a.currentActivity.ID, a.currentActivity.Agent)
	}
	id := a.currentActivity.ID
	a.currentActivity = nil
	return a.propagateActivityUpdate(ctx, statusUpdate(id, status))
}

func (a *Assistant) pauseCurrentActivity(ctx context.Context) error {
	return a.propagateActivityUpdate(ctx, statusUpdate(a.currentActivity.ID, StatusPaused))
}

func statusUpdate(id ActivityID, status ActivityStatus) ActivityUpdate {
	return ActivityUpdate{
		StateUpdate: StateUpdate{Path: "status", Value: string(status)},
		ID:          id,
		Origin:      OriginAgent,
	}
}

// UpdateAgentState applies a path mutation to the calling agent's state and
// propagates it.
func (a *Assistant) UpdateAgentState(ctx context.Context, agent AgentCode, path string, value any) error {
	return a.propagateAgentUpdate(ctx, AgentUpdate{
		StateUpdate: StateUpdate{Path: path, Value: value},
		Agent:       agent,
	})
}

// UpdateActivity applies a path mutation to the current activity on behalf
// of the named agent. Only the owning agent may mutate its activity.
func (a *Assistant) UpdateActivity(ctx context.Context, agent AgentCode, path string, value any) error {
	if a.currentActivity == nil {
		return ErrNoCurrentActivity
	}
	if a.currentActivity.Agent != agent {
		return fmt.Errorf("%w: %s is owned by %s", ErrActivityOwnership, a.currentActivity.ID, a.currentActivity.Agent)
	}
	return a.propagateActivityUpdate(ctx, ActivityUpdate{
		StateUpdate: StateUpdate{Path: path, Value: value},
		ID:          a.currentActivity.ID,
		Origin:      OriginAgent,
	})
}

// ApplyClientActivityUpdate ingests an activity mutation the client made on
// the user's behalf (answering a quiz question, picking a menu entry). The
// update is applied in memory and written to the store per the strategy but
// never echoed back to the client that sent it.
func (a *Assistant) ApplyClientActivityUpdate(ctx context.Context, update ActivityUpdate) error {
	update.Origin = OriginUser
	return a.propagateActivityUpdate(ctx, update)
}

// chatDocument snapshots the conversation into its durable form.
func (a *Assistant) chatDocument() *Chat {
	return &Chat{
		ChatKey:     a.key,
		Timestamp:   time.Now().UTC(),
		Title:       a.state.Title,
		Persistence: a.persistence,
		Memory:      a.state.Memory,
		Agents:      a.state.Agents,
		Activities:  a.state.Activities,
	}
}

// stateFromChat rebuilds in-memory state from the durable document.
func stateFromChat(chat *Chat) *State {
	state := &State{
		Title:      chat.Title,
		Memory:     chat.Memory,
		Agents:     chat.Agents,
		Activities: chat.Activities,
	}
	if state.Agents == nil {
		state.Agents = make(map[AgentCode]map[string]any)
	}
	if state.Activities == nil {
		state.Activities = make(map[ActivityID]*ActivityState)
	}
	return state
}

func (a *Assistant) reportPersistFailure(ctx context.Context, target, kind string, err error) {
	a.metrics.IncCounter(telemetry.MetricPersistFailures, 1, "target", target, "kind", kind)
	a.logger.Error(ctx, "persistence failed", "target", target, "kind", kind, "err", err)
}

// agentState returns the state document of the named agent for path
// mutation.
func (a *Assistant) agentState(code AgentCode) (any, error) {
	agent, ok := a.agents[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, code)
	}
	state := agent.State()
	if state == nil {
		return nil, fmt.Errorf("%w: agent %s is stateless", statepath.ErrNotFound, code)
	}
	return state, nil
}
