package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/agentdesk/internal/config"
	"github.com/wolfman30/agentdesk/internal/llm"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// BuildLLMClient picks the provider named by LLM_PRIMARY and falls back to the
// other configured one. Without any credentials it returns the static client.
// The second value is the default model for new agents.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, string) {
	if logger == nil {
		logger = logging.Default()
	}

	var bedrock, gemini llm.Client
	if cfg.BedrockModelID != "" {
		// Bedrock is never emulated locally, so it ignores the endpoint override.
		rt := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) { o.BaseEndpoint = nil })
		bedrock = llm.NewBedrockClient(rt, cfg.BedrockModelID)
	}
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			gemini = client
		}
	}

	primary, fallback := bedrock, gemini
	model := cfg.BedrockModelID
	if cfg.LLMPrimary == "gemini" && gemini != nil || bedrock == nil {
		primary, fallback = gemini, bedrock
		model = cfg.GeminiModel
	}
	if primary == nil {
		logger.Warn("no llm provider configured; using static replies")
		return llm.NewStaticClient(), llm.StaticModel
	}
	if fallback == nil {
		return primary, model
	}
	return llm.NewFallbackClient(primary, fallback, logger), model
}
