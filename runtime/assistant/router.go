package assistant

import "context"

type (
	// Router classifies a user message onto the agent roster. The
	// production implementation is LLM-backed; tests substitute fixed
	// decisions.
	Router interface {
		// ChooseAgent picks the agent that should handle the message, or
		// asks a clarifying question when the message is too ambiguous to
		// route.
		ChooseAgent(ctx context.Context, req RouteRequest) (RouteDecision, error)
	}

	// RouteRequest is the classification input: the message, the live
	// conversation context and the roster to choose from.
	RouteRequest struct {
		// Message is the user message to classify.
		Message ChatMessage
		// CurrentAgent describes the agent last engaged, if any.
		CurrentAgent *AgentDescriptor
		// CurrentActivity describes the current activity, if any.
		CurrentActivity *ActivityDescriptor
		// Roster lists the candidate agents in presentation order.
		Roster []AgentDescriptor
		// DefaultAgent is the fallback choice.
		DefaultAgent AgentCode
		// Memory is the bounded conversation context.
		Memory ConversationMemory
		// Language is the conversation language (BCP 47 tag).
		Language string
	}

	// AgentDescriptor presents one agent to the router.
	AgentDescriptor struct {
		Code        AgentCode
		Description string
	}

	// ActivityDescriptor presents the current activity to the router.
	ActivityDescriptor struct {
		Agent       AgentCode
		Activity    ActivityCode
		Title       string
		Description string
	}

	// RouteDecision is the classification outcome. Exactly one of Agent or
	// Question is set: either the message routes to an agent or the router
	// needs the user to disambiguate.
	RouteDecision struct {
		// Agent is the chosen agent code.
		Agent AgentCode
		// Question is a clarifying question to relay to the user.
		Question string
	}
)
