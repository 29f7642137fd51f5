package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// AzureDefaultAPIVersion is used when no API version is configured.
const AzureDefaultAPIVersion = "2024-10-21"

func init() {
	RegisterProviderFactory("azure", newAzureProvider)
}

// azureProvider implements the CoreLLM interface for Azure AI Foundry and
// Azure OpenAI deployments using the official OpenAI SDK's Azure support.
// The configured model is the deployment name.
type azureProvider struct {
	BaseProvider
	client          openai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newAzureProvider creates a new Azure provider instance. BaseURL is the
// resource endpoint, for example https://my-resource.openai.azure.com/.
func newAzureProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("azure provider requires a BaseURL")
	}
	endpoint, err := ValidateBaseURL(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	apiVersion := config.APIVersion
	if apiVersion == "" {
		apiVersion = AzureDefaultAPIVersion
	}

	opts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(config.APIKey),
		// The quality gate issues each chat call once; retries are opt-in middleware.
		option.WithMaxRetries(0),
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: ValidateTimeout(config.Timeout)}))
	}

	return &azureProvider{
		BaseProvider:    BaseProvider{model: config.Model},
		client:          openai.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "azure"},
	}, nil
}

// DoRequest sends the conversation to the deployment and returns the reply.
func (p *azureProvider) DoRequest(ctx context.Context, messages []domain.Message, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(messages, options))
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}
	if resp == nil {
		return "", 0, 0, ErrEmptyResponse
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, ErrNoResponseChoice
	}

	content := resp.Choices[0].Message.Content
	tokensIn := p.tokenCounter.GetTokenCount(int(resp.Usage.PromptTokens), joinContent(messages))
	tokensOut := p.tokenCounter.GetTokenCount(int(resp.Usage.CompletionTokens), content)

	return content, tokensIn, tokensOut, nil
}

// buildParams assembles the chat completion parameters.
func (p *azureProvider) buildParams(messages []domain.Message, options RequestOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(options.Model),
		Messages: p.buildMessages(messages),
	}

	if options.Temperature != nil {
		params.Temperature = openai.Float(ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature))
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.TopP != nil {
		params.TopP = openai.Float(ClampFloat64(*options.TopP, MinTopP, MaxTopP))
	}

	if options.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfText: &shared.ResponseFormatTextParam{},
		}
	}

	return params
}

// buildMessages maps conversation messages onto SDK message params.
func (p *azureProvider) buildMessages(messages []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// handleError classifies SDK errors into ProviderError values.
func (p *azureProvider) handleError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return p.errorClassifier.Classify(apiErr.StatusCode, apiErr.Message, err)
	}
	return p.errorClassifier.Classify(0, "", err)
}
