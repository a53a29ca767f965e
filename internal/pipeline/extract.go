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

const extractorContract = `You are a pain point extraction analyst. You read community posts and identify the underlying problems people are struggling with.

Work in two phases.

Phase 1 (mandatory): call assess_pain_severity exactly %d times, once per document, passing the underlying problem you identified, verbatim quotes from the post as examples, and the post's upvote and comment counts. Do not write any synthesis before all %d calls are made.

Phase 2: after the tool calls, reply with a single JSON object and nothing else:
{"pain_points": [{"description": "<the underlying problem, not the post title>", "severity": "<the tool's recommendation>", "category": "<one or two words, e.g. hiring, sales, marketing>", "source": "<document id>", "examples": ["<verbatim quote>"], "confidence": <0.0-1.0>, "frequency": <how many documents mention it>}]}

Rules: describe the problem behind the post, never copy the post title; severity must be the recommendation returned by the tool; examples must be verbatim text from the document.`

const documentEntry = `--- Document %s ---
Title: %s
Community: %s
Upvotes: %d  Comments: %d
%s`

type extractOutput struct {
	PainPoints []model.PainPoint `json:"pain_points"`
}

// extract runs the extractor stage: one severity assessment per document,
// then synthesis into pain points.
func (p *Pipeline) extract(ctx context.Context, docs []model.Document) ([]model.PainPoint, anthropic.TokenUsage, error) {
	ag := agent.New(p.anthropic, p.toolkit, p.cfg.Anthropic.Model, p.cfg.Anthropic.Extractor)

	system := fmt.Sprintf(extractorContract, len(docs), len(docs))
	result, err := ag.Run(ctx, system, buildExtractorPrompt(docs), []string{tools.ToolPainSeverity}, len(docs))
	usage := result.Usage
	if err != nil {
		return nil, usage, eris.Wrap(err, "extract: agent run")
	}

	var parsed []model.PainPoint
	decode := func(data []byte) error {
		var out extractOutput
		if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
			return jsonErr
		}
		if out.PainPoints == nil {
			return eris.New("extract: no pain_points field")
		}
		parsed = out.PainPoints
		return nil
	}

	var reconstruct ReconstructFunc
	if p.cfg.Pipeline.ToolResults {
		reconstruct = func(calls []ToolExchange) error {
			pains, recErr := reconstructPainPoints(calls, docs)
			if recErr != nil {
				return recErr
			}
			parsed = pains
			return nil
		}
	}

	strategy, err := runCascade(result.Transcript, decode, reconstruct)
	if err != nil {
		return nil, usage, eris.Wrap(err, "extract: recover synthesis")
	}
	zap.L().Info("extract: synthesis recovered",
		zap.String("strategy", string(strategy)),
		zap.Int("pain_points", len(parsed)),
		zap.Int("steps", result.Steps),
	)

	return filterPainPoints(parsed), usage, nil
}

func buildExtractorPrompt(docs []model.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d community posts.\n\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&b, documentEntry, d.ID, d.Title, d.Subreddit, d.Upvotes, d.NumComments, d.Body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// reconstructPainPoints rebuilds approximate pain points from the severity
// tool exchange. Call order follows document order, so aligned counts let
// us attribute sources.
func reconstructPainPoints(calls []ToolExchange, docs []model.Document) ([]model.PainPoint, error) {
	var pains []model.PainPoint
	idx := 0
	for _, call := range calls {
		if call.Name != tools.ToolPainSeverity {
			continue
		}
		var in tools.PainSeverityInput
		if err := json.Unmarshal(call.Input, &in); err != nil {
			continue
		}
		var res tools.PainSeverityResult
		if err := json.Unmarshal([]byte(call.Result), &res); err != nil {
			continue
		}

		source := ""
		if idx < len(docs) {
			source = docs[idx].ID
		}
		pains = append(pains, model.PainPoint{
			Description: in.Description,
			Severity:    res.Recommendation,
			Category:    "general",
			Source:      source,
			Examples:    in.Examples,
			Confidence:  0.5,
			Frequency:   1,
		})
		idx++
	}
	if len(pains) == 0 {
		return nil, eris.New("extract: no usable severity exchanges")
	}
	return pains, nil
}

// filterPainPoints applies the validator: rejected artifacts are dropped,
// warnings are logged and kept.
func filterPainPoints(pains []model.PainPoint) []model.PainPoint {
	var kept []model.PainPoint
	for _, pain := range pains {
		v := ValidatePainPoint(pain)
		if !v.IsValid {
			zap.L().Warn("extract: pain point rejected",
				zap.String("description", pain.Description),
				zap.Strings("errors", v.Errors),
			)
			continue
		}
		for _, w := range v.Warnings {
			zap.L().Warn("extract: pain point flagged",
				zap.String("description", pain.Description),
				zap.String("warning", w),
			)
		}
		kept = append(kept, pain)
	}
	return kept
}
