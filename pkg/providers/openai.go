package providers

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1/"

type OpenAIClient struct {
	client *openai.Client
}

// OpenAi returns a client for the OpenAI chat completions API or any server
// compatible with it. OPENAI_API_BASE_URL and OPENAI_API_KEY fill in missing
// options.
func OpenAi(ctx context.Context, opts ...ProviderOption) *OpenAIClient {
	params := applyOptions(opts)
	if params.BaseURL == "" {
		params.BaseURL = os.Getenv("OPENAI_API_BASE_URL")
		if params.BaseURL == "" {
			params.BaseURL = defaultOpenAIBaseURL
		}
	}
	if params.APIKey == "" {
		params.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	clientOpts := []option.RequestOption{option.WithBaseURL(params.BaseURL)}
	if params.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(params.APIKey))
	}
	log.Println("Using Base URL", params.BaseURL)
	return &OpenAIClient{client: openai.NewClient(clientOpts...)}
}

func (c *OpenAIClient) Complete(ctx context.Context, model string, prompt string) (string, error) {
	chatCompletion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		}),
		Model: openai.F(model),
	})
	if err != nil {
		return "", err
	}
	if len(chatCompletion.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	return chatCompletion.Choices[0].Message.Content, nil
}
