package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"specpilot/internal/receipt"
)

// APIConfig configures the Anthropic API executor.
type APIConfig struct {
	// Model is the model identifier. Required.
	Model string
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
	// MaxTokens bounds the response size. Zero means 8192.
	MaxTokens int64
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional shared-config profile.
	AWSProfile string
}

// APIExecutor runs phase bodies through the Anthropic Messages API.
type APIExecutor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAPIExecutor creates an API executor. Bedrock credentials are
// resolved through the standard AWS shared config chain.
func NewAPIExecutor(cfg APIConfig) (*APIExecutor, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	return &APIExecutor{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: maxTokens,
	}, nil
}

// Name implements Executor.
func (e *APIExecutor) Name() string { return "anthropic-api" }

// Execute implements Executor. The response text becomes the phase's
// single artifact; token usage is captured into the backend metadata.
func (e *APIExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	// Mirror into the partial sink so a caller-side cancellation after
	// this point still has the content.
	if req.Partial != nil {
		req.Partial.Write([]byte(text.String()))
	}

	result := &Result{
		Outputs: []Output{
			{Name: ArtifactName(req.Phase), Content: []byte(text.String())},
		},
		Meta: receipt.BackendMeta{
			Provider:     e.Name(),
			Model:        string(e.model),
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		result.Warnings = append(result.Warnings, "response truncated at max_tokens")
	}
	return result, nil
}
