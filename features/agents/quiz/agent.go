// Package quiz implements an agent that runs multiple choice quizzes as
// interactive activities. The agent generates the questions with an LLM,
// hands them to the client as an activity, gives hints without revealing
// answers while the quiz runs, and produces feedback once every question is
// answered.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"goa.design/converse/features/internal/prompt"
	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/statepath"
	"goa.design/converse/runtime/model"
)

type (
	// Agent runs multiple choice quizzes.
	Agent struct {
		client model.Client
		opts   Options
	}

	// Options configures the agent.
	Options struct {
		// Code overrides the agent code. Defaults to "quiz-agent".
		Code assistant.AgentCode
		// Persona tailors the agent's voice.
		Persona assistant.Persona
		// Model overrides the client's default model identifier.
		Model string
		// QuestionCount is the number of questions per quiz. Defaults to 5.
		QuestionCount int
	}

	quizQuestion struct {
		Question string   `json:"question"`
		Answers  []string `json:"answers"`
		Correct  int      `json:"correct"`
	}

	quizSpec struct {
		Subject   string         `json:"subject"`
		Level     string         `json:"level"`
		Questions []quizQuestion `json:"questions"`
	}
)

const (
	// DefaultCode is the roster identifier used when none is configured.
	DefaultCode assistant.AgentCode = "quiz-agent"

	// ActivityQuiz is the activity code of a running quiz.
	ActivityQuiz assistant.ActivityCode = "quiz"

	defaultQuestionCount = 5
)

// New builds the quiz agent.
func New(client model.Client, opts Options) (*Agent, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Code == "" {
		opts.Code = DefaultCode
	}
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = defaultQuestionCount
	}
	return &Agent{client: client, opts: opts}, nil
}

// Code returns the agent's roster identifier.
func (a *Agent) Code() assistant.AgentCode { return a.opts.Code }

// Description describes the agent for the router.
func (a *Agent) Description() string {
	return "Plays multiple choice quizzes to test the user's level of knowledge on a topic."
}

// Activities lists the quiz activity for routing.
func (a *Agent) Activities() map[assistant.ActivityCode]string {
	return map[assistant.ActivityCode]string{
		ActivityQuiz: "A fun multiple choice quiz where the player must pick the correct answer from four choices",
	}
}

// State returns nil; quiz progress lives in the activity data.
func (a *Agent) State() any { return nil }

// StateSchema returns nil; there is no state to validate.
func (a *Agent) StateSchema() []byte { return nil }

// Restore is a no-op for the stateless agent.
func (a *Agent) Restore(statepath.Document) error { return nil }

// HandleMessage starts a new quiz, or answers within the running one.
func (a *Agent) HandleMessage(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage) (assistant.HandleResult, error) {
	current := as.CurrentActivity()
	if current != nil && current.Agent == a.opts.Code && current.Activity == ActivityQuiz {
		if answered(current.Data) {
			return a.giveFeedback(ctx, as, msg, current)
		}
		return a.giveHint(ctx, as, msg, current)
	}
	return a.startQuiz(ctx, as, msg)
}

func (a *Agent) startQuiz(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage) (assistant.HandleResult, error) {
	resp, err := a.client.Complete(ctx, model.Request{
		Model: a.opts.Model,
		JSON:  true,
		Messages: []model.Message{
			model.System(a.generationPrompt(as)),
			model.User(msg.Content.PlainText()),
		},
	})
	if err != nil {
		return assistant.HandleResult{}, fmt.Errorf("generate quiz: %w", err)
	}
	var spec quizSpec
	if err := model.DecodeJSON(resp, &spec); err != nil {
		return assistant.HandleResult{}, fmt.Errorf("generate quiz: %w", err)
	}
	if len(spec.Questions) == 0 {
		return assistant.HandleResult{}, errors.New("generate quiz: no questions")
	}

	title := spec.Subject
	if title == "" {
		title = "Quiz"
	}
	activity := assistant.NewActivity(a.opts.Code, ActivityQuiz, title, quizDocument(spec))
	if err := as.CreateActivity(ctx, activity); err != nil {
		return assistant.HandleResult{}, err
	}
	if err := as.StartActivity(ctx, activity.ID); err != nil {
		return assistant.HandleResult{}, err
	}
	reply := assistant.NewAssistantMessage(a.opts.Code, assistant.ActivityContent(activity))
	if err := as.SendAssistantMessage(ctx, reply, &msg, true); err != nil {
		return assistant.HandleResult{}, err
	}
	return assistant.Handled(), nil
}

func (a *Agent) giveHint(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage, current *assistant.ActivityState) (assistant.HandleResult, error) {
	return a.replyAboutQuiz(ctx, as, msg, current,
		"The user is in the middle of the quiz below. Answer their question with hints only. "+
			"Never reveal which answer is correct; politely refuse if the user tries to cheat.")
}

func (a *Agent) giveFeedback(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage, current *assistant.ActivityState) (assistant.HandleResult, error) {
	result, err := a.replyAboutQuiz(ctx, as, msg, current,
		"The user has answered every question of the quiz below; given_answers holds their picks. "+
			"Give feedback and explain every question they answered wrong.")
	if err != nil {
		return assistant.HandleResult{}, err
	}
	if err := as.FinishActivity(ctx, a.opts.Code); err != nil {
		return assistant.HandleResult{}, err
	}
	return result, nil
}

func (a *Agent) replyAboutQuiz(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage, current *assistant.ActivityState, task string) (assistant.HandleResult, error) {
	data, err := json.Marshal(current.Data)
	if err != nil {
		return assistant.HandleResult{}, fmt.Errorf("encode quiz: %w", err)
	}
	var b strings.Builder
	if a.opts.Persona.Instructions != "" {
		b.WriteString(a.opts.Persona.Instructions)
		b.WriteString("\n")
	}
	b.WriteString(task)
	b.WriteString("\nQuiz:\n")
	b.Write(data)
	if lang := as.Language(); lang != "" {
		fmt.Fprintf(&b, "\nRespond in the %q language.", lang)
	}

	resp, err := a.client.Complete(ctx, model.Request{
		Model: a.opts.Model,
		Messages: []model.Message{
			model.System(b.String()),
			model.User(msg.Content.PlainText()),
		},
	})
	if err != nil {
		return assistant.HandleResult{}, fmt.Errorf("quiz reply: %w", err)
	}
	reply := assistant.NewAssistantMessage(a.opts.Code, assistant.SpeakContent(resp.Text))
	if err := as.SendAssistantMessage(ctx, reply, &msg, true); err != nil {
		return assistant.HandleResult{}, err
	}
	return assistant.Handled(), nil
}

func (a *Agent) generationPrompt(as *assistant.Assistant) string {
	var b strings.Builder
	if a.opts.Persona.Instructions != "" {
		b.WriteString(a.opts.Persona.Instructions)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Create a multiple choice quiz of exactly %d questions on the topic the user asks about. ", a.opts.QuestionCount)
	b.WriteString("Each question has exactly four answers of which exactly one is correct; pick questions where the correct answer is not immediately obvious. ")
	b.WriteString("Answer with a JSON object of the form ")
	b.WriteString(`{"subject": "<topic>", "level": "<difficulty>", "questions": [{"question": "...", "answers": ["...", "...", "...", "..."], "correct": 0}]}. `)
	b.WriteString("correct is the zero-based index of the correct answer.")
	if transcript := prompt.Transcript(as.State().Memory); transcript != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(transcript)
	}
	if lang := as.Language(); lang != "" {
		fmt.Fprintf(&b, "\nWrite the quiz in the %q language.", lang)
	}
	return b.String()
}

// quizDocument converts the generated quiz into the document form carried by
// the activity. given_answers starts with one null slot per question; the
// client fills the slots through activity updates as the user answers.
func quizDocument(spec quizSpec) statepath.Document {
	questions := make([]any, len(spec.Questions))
	for i, q := range spec.Questions {
		answers := make([]any, len(q.Answers))
		for j, ans := range q.Answers {
			answers[j] = ans
		}
		questions[i] = statepath.Document{
			"question": q.Question,
			"answers":  answers,
			"correct":  q.Correct,
		}
	}
	given := make([]any, len(spec.Questions))
	return statepath.Document{
		"subject":       spec.Subject,
		"level":         spec.Level,
		"questions":     questions,
		"given_answers": given,
	}
}

// answered reports whether every given_answers slot holds a value.
func answered(data statepath.Document) bool {
	given, ok := data["given_answers"].([]any)
	if !ok || len(given) == 0 {
		return false
	}
	for _, v := range given {
		if v == nil {
			return false
		}
	}
	return true
}
