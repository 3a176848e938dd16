package analysis

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/ergowatch/internal/schema"
	"go.aimuz.me/ergowatch/internal/types"
)

const defaultOpenAIModel = "gpt-4.1-mini"

// OpenAI calls chat completions with an image part and a strict JSON schema
// response format.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI analyzer.
func NewOpenAI(opts Options) *OpenAI {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTP != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTP))
	}

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), model: model}
}

func (o *OpenAI) Analyze(ctx context.Context, img Image, instruction string, s *schema.Schema) (types.WellnessAudit, error) {
	if s == nil {
		s = AuditSchema
	}
	dataURI := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	chat, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "wellness_audit",
					Schema: s.JSONSchema(),
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return types.WellnessAudit{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(chat.Choices) == 0 {
		return types.WellnessAudit{}, fmt.Errorf("no choices")
	}
	return DecodeAudit([]byte(chat.Choices[0].Message.Content), s)
}
