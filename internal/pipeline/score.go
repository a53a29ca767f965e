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

const scorerContract = `You are an opportunity scoring analyst. You score product ideas against a fixed five-component rubric.

Work in two phases.

Phase 1 (mandatory): for each of the %d ideas, call all three tools once: assess_pain_severity with the underlying pain point and its evidence, estimate_market_size with the idea's audience, category, and scope, and analyze_competition with the idea's name, category, and differentiating features. That is %d calls total. Do not write any synthesis before all calls are made.

Phase 2: after the tool calls, reply with a single JSON object and nothing else:
{"scores": [{"name": "<idea name exactly as given>", "breakdown": {"pain_severity": <0-30>, "market_size": <0-25>, "competition": <0-20>, "feasibility": <0-15>, "engagement": <0-10>, "total": <sum of the five>, "reasoning": "<one sentence>"}}]}

Rules: scale each tool's 0-100 score into its component budget (pain severity x0.30, market size x0.25, competition x0.20); judge feasibility yourself out of 15; derive engagement from the source post's upvotes and comments out of 10; total must equal the component sum.`

const ideaEntry = `--- Idea %d: %s ---
Pitch: %s
Audience: %s  Category: %s
Pain point: %s
Source engagement: %d upvotes, %d comments`

type scoreOutput struct {
	Scores []scoredIdea `json:"scores"`
}

type scoredIdea struct {
	Name      string               `json:"name"`
	Breakdown model.ScoreBreakdown `json:"breakdown"`
}

// score runs the scorer stage. Unlike the other stages it cannot fail to
// produce output: any idea whose synthesized breakdown is missing or
// range-invalid gets the deterministic fallback, so every idea leaves with
// a complete breakdown. The returned error records degraded synthesis
// without discarding the scores.
func (p *Pipeline) score(ctx context.Context, ideas []model.Idea, pains []model.PainPoint, docs []model.Document) ([]model.Idea, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage
	if len(ideas) == 0 {
		zap.L().Info("score: no ideas, skipping")
		return nil, usage, nil
	}

	synthesized, usage, err := p.scoreSynthesis(ctx, ideas, pains, docs)

	scored := make([]model.Idea, len(ideas))
	for i, idea := range ideas {
		breakdown, ok := synthesized[strings.ToLower(strings.TrimSpace(idea.Name))]
		if !ok {
			breakdown = fallbackBreakdown(p.toolkit, idea, matchPain(pains, idea), sourceEngagement(docs, idea))
			zap.L().Info("score: deterministic fallback used", zap.String("idea", idea.Name))
		}
		idea.Score = breakdown.Total
		idea.ScoreBreakdown = &breakdown
		scored[i] = idea
	}

	return scored, usage, err
}

// scoreSynthesis runs the agent and returns whatever valid breakdowns the
// cascade recovered, keyed by lowercased idea name. Errors here degrade to
// the fallback, never to missing scores.
func (p *Pipeline) scoreSynthesis(ctx context.Context, ideas []model.Idea, pains []model.PainPoint, docs []model.Document) (map[string]model.ScoreBreakdown, anthropic.TokenUsage, error) {
	ag := agent.New(p.anthropic, p.toolkit, p.cfg.Anthropic.Model, p.cfg.Anthropic.Scorer)

	system := fmt.Sprintf(scorerContract, len(ideas), 3*len(ideas))
	toolNames := []string{tools.ToolPainSeverity, tools.ToolMarketSize, tools.ToolCompetition}
	result, err := ag.Run(ctx, system, buildScorerPrompt(ideas, pains, docs), toolNames, 3*len(ideas))
	usage := result.Usage
	if err != nil {
		return nil, usage, eris.Wrap(err, "score: agent run")
	}

	var parsed []scoredIdea
	decode := func(data []byte) error {
		var out scoreOutput
		if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
			return jsonErr
		}
		if out.Scores == nil {
			return eris.New("score: no scores field")
		}
		parsed = out.Scores
		return nil
	}

	// No tool-result reconstruction here: the deterministic fallback is the
	// scorer's recovery path and covers the same evidence.
	strategy, err := runCascade(result.Transcript, decode, nil)
	if err != nil {
		return nil, usage, eris.Wrap(err, "score: recover synthesis")
	}
	zap.L().Info("score: synthesis recovered",
		zap.String("strategy", string(strategy)),
		zap.Int("scores", len(parsed)),
		zap.Int("steps", result.Steps),
	)

	valid := make(map[string]model.ScoreBreakdown, len(parsed))
	for _, s := range parsed {
		v := ValidateBreakdown(s.Breakdown)
		if !v.IsValid {
			zap.L().Warn("score: breakdown rejected",
				zap.String("idea", s.Name),
				zap.Strings("errors", v.Errors),
			)
			continue
		}
		// Total drift is persisted as-is, only logged.
		for _, w := range v.Warnings {
			zap.L().Warn("score: breakdown flagged",
				zap.String("idea", s.Name),
				zap.String("warning", w),
			)
		}
		valid[strings.ToLower(strings.TrimSpace(s.Name))] = s.Breakdown
	}
	return valid, usage, nil
}

func buildScorerPrompt(ideas []model.Idea, pains []model.PainPoint, docs []model.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score the following %d product ideas.\n\n", len(ideas))
	for i, idea := range ideas {
		eng := sourceEngagement(docs, idea)
		fmt.Fprintf(&b, ideaEntry, i+1, idea.Name, idea.Pitch, idea.TargetAudience, idea.Category,
			idea.PainPoint, eng.Upvotes, eng.Comments)
		if pain := matchPain(pains, idea); pain != nil && len(pain.Examples) > 0 {
			fmt.Fprintf(&b, "\nEvidence: %s", strings.Join(pain.Examples, " | "))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// matchPain finds the pain point an idea references by description.
func matchPain(pains []model.PainPoint, idea model.Idea) *model.PainPoint {
	for i := range pains {
		if strings.EqualFold(strings.TrimSpace(pains[i].Description), strings.TrimSpace(idea.PainPoint)) {
			return &pains[i]
		}
	}
	return nil
}

// sourceEngagement sums engagement across the idea's source documents.
func sourceEngagement(docs []model.Document, idea model.Idea) model.Engagement {
	sources := make(map[string]bool, len(idea.Sources))
	for _, s := range idea.Sources {
		sources[s] = true
	}
	var eng model.Engagement
	for _, d := range docs {
		if sources[d.ID] {
			e := d.Engagement()
			eng.Upvotes += e.Upvotes
			eng.Comments += e.Comments
		}
	}
	return eng
}
