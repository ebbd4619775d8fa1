package assistant

import (
	"context"
	"fmt"
	"time"

	"goa.design/converse/runtime/assistant/statepath"
	"goa.design/converse/runtime/assistant/telemetry"
)

// The propagate methods are the single funnel for state mutations: apply to
// the in-memory model first, then fan out to the durable store and the live
// client per the persistence strategy. The in-memory application is
// authoritative and its failure aborts the update; the fan-out legs are
// independent and best effort, so one target lagging never blocks the
// conversation or the other target.

// propagateAgentUpdate applies a path mutation to an agent state document
// and fans it out.
func (a *Assistant) propagateAgentUpdate(ctx context.Context, update AgentUpdate) error {
	state, err := a.agentState(update.Agent)
	if err != nil {
		return err
	}
	if err := statepath.Apply(state, update.Path, update.Value); err != nil {
		return fmt.Errorf("agent %s update %q: %w", update.Agent, update.Path, err)
	}
	if a.persistence.Server() {
		if err := a.store.ApplyAgentUpdate(ctx, a.key, update); err != nil {
			a.reportPersistFailure(ctx, "store", "agent", err)
		}
	}
	if a.persistence.Client() {
		if err := a.callback.SendAgentUpdate(ctx, update); err != nil {
			a.reportPersistFailure(ctx, "client", "agent", err)
		}
	}
	return nil
}

// propagateActivityUpdate applies an activity mutation and fans it out. An
// empty path inserts or replaces the whole activity instance; that is the
// only place whole-value replacement is allowed. User-origin updates came
// from the client and are not echoed back to it.
func (a *Assistant) propagateActivityUpdate(ctx context.Context, update ActivityUpdate) error {
	if update.Path == "" {
		activity, ok := update.Value.(*ActivityState)
		if !ok {
			return fmt.Errorf("activity %s: whole-activity update requires an activity value", update.ID)
		}
		if activity.ID != update.ID {
			return fmt.Errorf("activity %s: value carries mismatched id %s", update.ID, activity.ID)
		}
		a.state.Activities[update.ID] = activity
	} else {
		activity, ok := a.state.Activities[update.ID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownActivity, update.ID)
		}
		if err := statepath.Apply(activity, update.Path, update.Value); err != nil {
			return fmt.Errorf("activity %s update %q: %w", update.ID, update.Path, err)
		}
	}
	if a.persistence.Server() {
		if err := a.store.ApplyActivityUpdate(ctx, a.key, update); err != nil {
			a.reportPersistFailure(ctx, "store", "activity", err)
		}
	}
	if update.Origin != OriginUser && a.persistence.Client() {
		if err := a.callback.SendActivityUpdate(ctx, update); err != nil {
			a.reportPersistFailure(ctx, "client", "activity", err)
		}
	}
	return nil
}

// propagateChatMessages appends freshly exchanged messages to the bounded
// memory, compacts the overflow, opportunistically titles the conversation
// and fans the memory update out.
func (a *Assistant) propagateChatMessages(ctx context.Context, messages []ChatMessage) error {
	appended := messages[:0:0]
	for _, msg := range messages {
		if msg.ID == "" {
			continue
		}
		appended = append(appended, msg)
	}
	if len(appended) == 0 {
		return nil
	}
	a.state.Memory.Messages = append(a.state.Memory.Messages, appended...)
	a.compressMemory(ctx)
	a.suggestTitle(ctx)

	update := MemoryUpdate{
		ChatTitle: a.state.Title,
		Messages:  appended,
		KeepCount: a.keepCount,
		Previous:  a.state.Memory.Previous,
	}
	if a.persistence.Server() {
		if err := a.store.ApplyMemoryUpdate(ctx, a.key, update); err != nil {
			a.reportPersistFailure(ctx, "store", "memory", err)
		}
	}
	if a.persistence.Client() {
		if err := a.callback.SendMemoryUpdate(ctx, update); err != nil {
			a.reportPersistFailure(ctx, "client", "memory", err)
		}
	}
	return nil
}

// compressMemory folds messages beyond the keep window into the fading
// summary. Trimming happens only after the summarizer succeeded so a
// summarizer outage delays eviction instead of dropping messages; the next
// append retries with the larger overflow. A no-op when the window is not
// exceeded.
func (a *Assistant) compressMemory(ctx context.Context) {
	messages := a.state.Memory.Messages
	if len(messages) <= a.keepCount {
		return
	}
	evicted := messages[:len(messages)-a.keepCount]
	start := time.Now()
	previous, err := a.registry.Summarizer.Summarize(ctx, a.state.Memory.Previous, evicted, a.language)
	a.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(start), "caller", "summarizer")
	if err != nil {
		a.logger.Error(ctx, "memory compaction failed, eviction postponed",
			"overflow", len(evicted), "err", err)
		return
	}
	a.state.Memory.Previous = previous
	a.state.Memory.Messages = append([]ChatMessage(nil), messages[len(messages)-a.keepCount:]...)
}

// suggestTitle asks the title generator for a conversation title until one
// sticks. Failures and not-yet-meaningful suggestions just retry on the
// next exchange.
func (a *Assistant) suggestTitle(ctx context.Context) {
	if a.state.Title != "" || a.registry.Titles == nil {
		return
	}
	start := time.Now()
	suggestion, err := a.registry.Titles.SuggestTitle(ctx, a.state.Memory, a.language)
	a.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(start), "caller", "titles")
	if err != nil {
		a.logger.Warn(ctx, "title generation failed", "err", err)
		return
	}
	if suggestion.Meaningful && suggestion.Title != "" {
		a.state.Title = suggestion.Title
	}
}
