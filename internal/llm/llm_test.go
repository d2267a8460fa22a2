package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

type stubChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	last     openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.last = req
	return s.response, s.err
}

func TestOpenAIClient_BuildsRequest(t *testing.T) {
	stub := &stubChatClient{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  Temos arroz tipo 1.  "}}},
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	client := newOpenAIClientWith(stub, "gpt-test")

	resp, err := client.Complete(context.Background(), Request{
		System:      []string{"preamble", "  "},
		Messages:    []Message{{Role: RoleUser, Content: "tem arroz?"}, {Role: RoleAssistant, Content: ""}},
		MaxTokens:   200,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Temos arroz tipo 1.", resp.Text)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-test", stub.last.Model)
	assert.Equal(t, 200, stub.last.MaxTokens)
	require.Len(t, stub.last.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.last.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, stub.last.Messages[1].Role)
}

func TestOpenAIClient_EmptyChoicesIsFailure(t *testing.T) {
	client := newOpenAIClientWith(&stubChatClient{}, "")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIClient_RejectsUnknownRole(t *testing.T) {
	client := newOpenAIClientWith(&stubChatClient{}, "")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.Error(t, err)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}

type stubConverse struct {
	out *bedrockruntime.ConverseOutput
	err error
	in  *bedrockruntime.ConverseInput
}

func (s *stubConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.in = in
	return s.out, s.err
}

func TestBedrockClient_Complete(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Olá!"}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	client := NewBedrockClient(stub, "anthropic.test")

	resp, err := client.Complete(context.Background(), Request{
		System:   []string{"preamble"},
		Messages: []Message{{Role: RoleSystem, Content: "catalog"}, {Role: RoleUser, Content: "oi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", resp.Text)
	assert.Len(t, stub.in.System, 2)
	assert.Len(t, stub.in.Messages, 1)
	assert.Nil(t, stub.in.InferenceConfig)
}

func TestBedrockClient_EmptyOutput(t *testing.T) {
	stub := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockClient(stub, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestFallbackClient(t *testing.T) {
	failing := ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("primary down")
	})
	working := ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{Text: "backup"}, nil
	})

	resp, err := NewFallbackClient(failing, working, logging.Discard()).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Text)

	_, err = NewFallbackClient(failing, nil, logging.Discard()).Complete(context.Background(), Request{})
	assert.EqualError(t, err, "primary down")

	resp, err = NewFallbackClient(working, failing, logging.Discard()).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Text)
}
