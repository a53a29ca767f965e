package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/tools"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

// scriptClient replays a fixed response sequence and records every request.
// Once the script runs out it repeats the last response.
type scriptClient struct {
	responses []*anthropic.MessageResponse
	err       error
	requests  []anthropic.MessageRequest
}

func (c *scriptClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.requests) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

var _ anthropic.Client = (*scriptClient)(nil)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		UrgencyKeywords:        config.DefaultUrgencyKeywords,
		LargeMarketCategories:  config.DefaultLargeMarketCategories,
		BroadAudienceTerms:     config.DefaultBroadAudienceTerms,
		OversaturatedKeywords:  config.DefaultOversaturatedKeywords,
		ComplexCategoryTerms:   config.DefaultComplexCategoryTerms,
		EngagementUpvoteSteps:  config.DefaultEngagementUpvoteSteps,
		EngagementCommentSteps: config.DefaultEngagementCommentSteps,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:     "claude-haiku-4-5-20251001",
			Extractor: config.StageConfig{MaxTokens: 4096},
			Generator: config.StageConfig{MaxTokens: 4096},
			Scorer:    config.StageConfig{MaxTokens: 4096},
		},
		Pipeline: config.PipelineConfig{
			WallClockBudget: 30 * time.Second,
			ToolResults:     true,
		},
		Scoring: testScoringConfig(),
	}
}

func testToolkit() *tools.Toolkit {
	return tools.New(testScoringConfig())
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: anthropic.BlockText, Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func toolUseBlock(id, name, input string) anthropic.ContentBlock {
	return anthropic.ContentBlock{
		Type:      anthropic.BlockToolUse,
		ToolUseID: id,
		ToolName:  name,
		ToolInput: json.RawMessage(input),
	}
}

func toolUseResponse(blocks ...anthropic.ContentBlock) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    blocks,
		StopReason: anthropic.StopReasonToolUse,
		Usage:      anthropic.TokenUsage{InputTokens: 200, OutputTokens: 30},
	}
}

func validPainPoint() model.PainPoint {
	return model.PainPoint{
		Description: "cannot fill an engineering role after three months of sourcing",
		Severity:    model.SeverityMedium,
		Category:    "hiring",
		Source:      "doc-1",
		Examples:    []string{"got zero applications"},
		Confidence:  0.8,
		Frequency:   1,
	}
}

func validIdea() model.Idea {
	return model.Idea{
		Name:           "SourcePilot",
		Pitch:          "A role-fit sourcing service for small SaaS teams hiring their first engineers.",
		PainPoint:      "cannot fill an engineering role after three months of sourcing",
		TargetAudience: "engineering managers at sub-20-person SaaS companies",
		Category:       "hiring",
		Sources:        []string{"doc-1"},
		Confidence:     0.7,
	}
}
