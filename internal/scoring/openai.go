package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT3Dot5Turbo

const systemPrompt = `あなたはダジャレ評価の専門家です。次の基準で採点してください。
1. thermal (-10〜10): 寒いダジャレは低く、熱いダジャレは高く
2. quality (0〜10): 言葉遊びの巧妙さと面白さ
3. creativity (0〜10): オリジナリティ
4. sound (0〜10): 韻とリズム
必ず次のJSON形式だけで回答してください:
{"thermal": 数値, "quality": 数値, "creativity": 数値, "sound": 数値, "evaluation": "コメント"}`

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI asks a chat completion model to judge dajare.
type OpenAI struct {
	client chatClient
	model  string
}

// NewOpenAI returns an evaluator for apiKey. With an empty key every call
// fails with ErrUnavailable.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	o := &OpenAI{model: model}
	if apiKey != "" {
		o.client = openai.NewClient(apiKey)
	}
	return o
}

func (o *OpenAI) Evaluate(ctx context.Context, text string) (Evaluation, error) {
	if o == nil || o.client == nil {
		return Evaluation{}, fmt.Errorf("%w: no api key", ErrUnavailable)
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("以下のダジャレを評価してください:「%s」", text)},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Evaluation{}, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return parseReply(resp.Choices[0].Message.Content)
}

type reply struct {
	Thermal    float64 `json:"thermal"`
	Quality    float64 `json:"quality"`
	Creativity float64 `json:"creativity"`
	Sound      float64 `json:"sound"`
	Evaluation string  `json:"evaluation"`
}

// parseReply extracts the JSON object from a model reply. Missing fields
// count as zero.
func parseReply(content string) (Evaluation, error) {
	raw := jsonObject.FindString(content)
	if raw == "" {
		return Evaluation{}, fmt.Errorf("%w: no json in reply", ErrUnavailable)
	}
	var r reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Evaluation{}, fmt.Errorf("%w: decode reply: %v", ErrUnavailable, err)
	}
	return Evaluation{
		Temperature: r.Thermal,
		Quality:     r.Quality,
		Creativity:  r.Creativity,
		Sound:       r.Sound,
		Comment:     r.Evaluation,
		Source:      SourceOpenAI,
	}.Normalize(), nil
}
