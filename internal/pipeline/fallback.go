package pipeline

import (
	"math"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/tools"
)

// Feasibility defaults by category complexity. Regulated or
// integration-heavy categories are harder to ship.
const (
	feasibilitySimple  = 12.0
	feasibilityComplex = 8.0
)

// defaultPainComponent is used when no pain point survives to back the
// idea.
const defaultPainComponent = 15.0

// fallbackBreakdown computes a complete range-valid breakdown from tool
// evidence alone, with no model synthesis. Every component is scaled from
// the 0-100 tool score into its budget, so the result always passes
// ValidateBreakdown.
func fallbackBreakdown(tk *tools.Toolkit, idea model.Idea, pain *model.PainPoint, eng model.Engagement) model.ScoreBreakdown {
	painScore := defaultPainComponent
	if pain != nil {
		res := tk.PainSeverity(tools.PainSeverityInput{
			Description: pain.Description,
			Examples:    pain.Examples,
			Upvotes:     eng.Upvotes,
			Comments:    eng.Comments,
		})
		painScore = res.Score * model.MaxPainSeverity / 100
	}

	market := tk.MarketSize(tools.MarketSizeInput{
		Audience: idea.TargetAudience,
		Category: idea.Category,
		Scope:    tk.InferScope(idea.TargetAudience, idea.Category),
	})

	competition := tk.Competition(tools.CompetitionInput{
		ProductName: idea.Name,
		Category:    idea.Category,
	})

	feasibility := feasibilitySimple
	if tk.ComplexCategory(idea.Category) {
		feasibility = feasibilityComplex
	}

	b := model.ScoreBreakdown{
		PainSeverity: round1(painScore),
		MarketSize:   round1(market.Score * model.MaxMarketSize / 100),
		Competition:  round1(competition.Score * model.MaxCompetition / 100),
		Feasibility:  feasibility,
		Engagement:   engagementPoints(eng),
		Reasoning:    "computed from tool evidence without model synthesis",
	}
	b.Total = round1(b.Sum())
	return b
}

// engagementPoints is a step function over combined upvote/comment volume,
// scaled into the 10-point engagement budget.
func engagementPoints(e model.Engagement) float64 {
	volume := e.Upvotes + 2*e.Comments
	switch {
	case volume >= 500:
		return 10
	case volume >= 200:
		return 8
	case volume >= 50:
		return 6
	case volume >= 10:
		return 4
	case volume > 0:
		return 2
	default:
		return 1
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
