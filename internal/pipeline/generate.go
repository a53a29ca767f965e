package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/agent"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/tools"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

const generatorContract = `You are a product ideation analyst. You turn validated pain points into concrete product concepts.

Work in two phases.

Phase 1 (mandatory): call estimate_market_size exactly %d times, once per pain point, passing the specific audience that feels the pain, the pain point's category, and your best scope estimate (niche, vertical, or horizontal). Do not write any synthesis before all %d calls are made.

Phase 2: after the tool calls, reply with a single JSON object and nothing else:
{"ideas": [{"name": "<distinctive product name>", "pitch": "<one or two sentences on what it does and for whom>", "pain_point": "<the pain point description this addresses>", "target_audience": "<the specific audience, never a generic phrase like 'Startups and small businesses'>", "category": "<the pain point's category>", "sources": ["<document id>"], "confidence": <0.0-1.0>}]}

Rules: one idea per pain point; name the audience precisely (role, company size, situation); never reuse a bare generic word as the product name.`

const painPointEntry = `--- Pain Point %d ---
Problem: %s
Severity: %s  Category: %s  Source: %s
Evidence: %s`

type generateOutput struct {
	Ideas []model.Idea `json:"ideas"`
}

// generate runs the generator stage: one market sizing per pain point,
// then synthesis into product ideas. Zero pain points degrades to zero
// ideas without an agent call.
func (p *Pipeline) generate(ctx context.Context, pains []model.PainPoint) ([]model.Idea, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage
	if len(pains) == 0 {
		zap.L().Info("generate: no pain points, skipping")
		return nil, usage, nil
	}

	ag := agent.New(p.anthropic, p.toolkit, p.cfg.Anthropic.Model, p.cfg.Anthropic.Generator)

	system := fmt.Sprintf(generatorContract, len(pains), len(pains))
	result, err := ag.Run(ctx, system, buildGeneratorPrompt(pains), []string{tools.ToolMarketSize}, len(pains))
	usage = result.Usage
	if err != nil {
		return nil, usage, eris.Wrap(err, "generate: agent run")
	}

	var parsed []model.Idea
	decode := func(data []byte) error {
		var out generateOutput
		if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
			return jsonErr
		}
		if out.Ideas == nil {
			return eris.New("generate: no ideas field")
		}
		parsed = out.Ideas
		return nil
	}

	var reconstruct ReconstructFunc
	if p.cfg.Pipeline.ToolResults {
		reconstruct = func(calls []ToolExchange) error {
			ideas, recErr := reconstructIdeas(calls, pains)
			if recErr != nil {
				return recErr
			}
			parsed = ideas
			return nil
		}
	}

	strategy, err := runCascade(result.Transcript, decode, reconstruct)
	if err != nil {
		return nil, usage, eris.Wrap(err, "generate: recover synthesis")
	}
	zap.L().Info("generate: synthesis recovered",
		zap.String("strategy", string(strategy)),
		zap.Int("ideas", len(parsed)),
		zap.Int("steps", result.Steps),
	)

	return filterIdeas(parsed), usage, nil
}

func buildGeneratorPrompt(pains []model.PainPoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate one product idea for each of the following %d pain points.\n\n", len(pains))
	for i, pain := range pains {
		fmt.Fprintf(&b, painPointEntry, i+1, pain.Description, pain.Severity, pain.Category, pain.Source,
			strings.Join(pain.Examples, " | "))
		b.WriteString("\n\n")
	}
	return b.String()
}

// reconstructIdeas rebuilds approximate ideas from the market sizing
// exchange. The call arguments carry the audience and category the model
// chose; the pain point provides the rest when call order aligns.
func reconstructIdeas(calls []ToolExchange, pains []model.PainPoint) ([]model.Idea, error) {
	var ideas []model.Idea
	idx := 0
	for _, call := range calls {
		if call.Name != tools.ToolMarketSize {
			continue
		}
		var in tools.MarketSizeInput
		if err := json.Unmarshal(call.Input, &in); err != nil {
			continue
		}

		idea := model.Idea{
			Name:           fmt.Sprintf("%s assistant", in.Category),
			TargetAudience: in.Audience,
			Category:       in.Category,
			Confidence:     0.4,
		}
		if idx < len(pains) {
			pain := pains[idx]
			idea.PainPoint = pain.Description
			idea.Pitch = fmt.Sprintf("A focused product for %s that addresses: %s", in.Audience, pain.Description)
			if pain.Source != "" {
				idea.Sources = []string{pain.Source}
			}
		}
		ideas = append(ideas, idea)
		idx++
	}
	if len(ideas) == 0 {
		return nil, eris.New("generate: no usable market size exchanges")
	}
	return ideas, nil
}

func filterIdeas(ideas []model.Idea) []model.Idea {
	var kept []model.Idea
	for _, idea := range ideas {
		v := ValidateIdea(idea)
		if !v.IsValid {
			zap.L().Warn("generate: idea rejected",
				zap.String("name", idea.Name),
				zap.Strings("errors", v.Errors),
			)
			continue
		}
		for _, w := range v.Warnings {
			zap.L().Warn("generate: idea flagged",
				zap.String("name", idea.Name),
				zap.String("warning", w),
			)
		}
		kept = append(kept, idea)
	}
	return kept
}
