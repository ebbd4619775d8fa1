package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/converse/runtime/model"
)

type stubRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.output, s.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func newTestClient(t *testing.T, stub *stubRuntime) *Client {
	t.Helper()
	cl, err := New(stub, Options{DefaultModel: "anthropic.claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)
	return cl
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "m"})
	require.Error(t, err)
	_, err = New(&stubRuntime{}, Options{})
	require.Error(t, err)
}

func TestCompleteTranslatesResponse(t *testing.T) {
	stub := &stubRuntime{output: textOutput("hello world")}
	cl := newTestClient(t, stub)

	resp, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.System("be brief"), model.User("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, string(brtypes.StopReasonEndTurn), resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.NotNil(t, stub.lastInput)
	assert.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(stub.lastInput.ModelId))
	require.Len(t, stub.lastInput.System, 1)
	assert.Len(t, stub.lastInput.Messages, 1)
	require.NotNil(t, stub.lastInput.InferenceConfig)
	assert.Equal(t, int32(128), aws.ToInt32(stub.lastInput.InferenceConfig.MaxTokens))
}

func TestCompleteRequiresMessages(t *testing.T) {
	cl := newTestClient(t, &stubRuntime{})
	_, err := cl.Complete(context.Background(), model.Request{})
	require.Error(t, err)
}

func TestJSONModeAddsSystemInstruction(t *testing.T) {
	stub := &stubRuntime{output: textOutput("{}")}
	cl := newTestClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("classify")},
		JSON:     true,
	})
	require.NoError(t, err)
	require.Len(t, stub.lastInput.System, 1)
	block, ok := stub.lastInput.System[0].(*brtypes.SystemContentBlockMemberText)
	require.True(t, ok)
	assert.Contains(t, block.Value, "JSON")
}

type throttleError struct{}

func (throttleError) Error() string                 { return "throttled" }
func (throttleError) ErrorCode() string             { return "ThrottlingException" }
func (throttleError) ErrorMessage() string          { return "slow down" }
func (throttleError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestCompleteMapsThrottlingError(t *testing.T) {
	cl := newTestClient(t, &stubRuntime{err: throttleError{}})

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.ErrorIs(t, err, model.ErrThrottled)
}

func TestCompletePropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	cl := newTestClient(t, &stubRuntime{err: boom})

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, model.ErrThrottled)
}

func TestStreamUnsupported(t *testing.T) {
	cl := newTestClient(t, &stubRuntime{})
	_, err := cl.Stream(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.ErrorIs(t, err, model.ErrStreamingUnsupported)
}
