package assistant

import "context"

type (
	// CheckResult is a guard rail verdict.
	CheckResult string

	// GuardRail screens user messages before they reach routing. Guards
	// run in registry order; the first non-accepting verdict stops the
	// message.
	GuardRail interface {
		// CheckMessage inspects the message and returns a verdict. The
		// verdict text, when set, is relayed to the user in the
		// conversation language.
		CheckMessage(ctx context.Context, msg ChatMessage, language string) (GuardDecision, error)
	}

	// GuardDecision is a verdict plus the user-facing explanation for
	// rejections.
	GuardDecision struct {
		Result CheckResult `json:"result" bson:"result"`
		// Text explains a rejection to the user. Empty on accept.
		Text string `json:"text,omitempty" bson:"text,omitempty"`
	}
)

const (
	// CheckAccept lets the message through.
	CheckAccept CheckResult = "accept"
	// CheckRejectWarning rejects the message with a warning to the user.
	CheckRejectWarning CheckResult = "reject-warning"
	// CheckRejectCritical rejects the message, flags it for review and
	// tells the user with critical severity.
	CheckRejectCritical CheckResult = "reject-critical"
)

// Severity maps the verdict onto the system message severity shown to the
// user.
func (r CheckResult) Severity() Severity {
	if r == CheckRejectCritical {
		return SeverityCritical
	}
	return SeverityWarning
}
