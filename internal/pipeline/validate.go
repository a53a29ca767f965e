package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// ValidationResult reports why an artifact was rejected or flagged.
// Errors exclude the artifact from stage output; warnings are kept and
// logged.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// titlePatterns match recurring community-thread phrasing. A description
// matching one is a copied source title, not an underlying problem.
var titlePatterns = []string{
	"share your",
	"weekly thread",
	"monthly thread",
	"quarterly post",
	"daily thread",
	"megathread",
	"feedback friday",
	"promote your",
	"self-promotion",
	"ask me anything",
}

// genericCategories is the catch-all bucket extractors fall into when the
// evidence is thin.
var genericCategories = map[string]bool{
	"general": true,
	"other":   true,
	"misc":    true,
}

// genericIdeaNames are single words that name nothing.
var genericIdeaNames = map[string]bool{
	"product":  true,
	"platform": true,
	"app":      true,
	"tool":     true,
	"solution": true,
	"service":  true,
	"startup":  true,
	"idea":     true,
}

// genericAudiences is boilerplate audience phrasing that signals the
// generator did not look at the evidence.
var genericAudiences = []string{
	"startups and small businesses",
	"everyone",
	"businesses",
	"people",
	"users",
}

// minDescriptionLen is the shortest description that can plausibly state a
// problem.
const minDescriptionLen = 20

// minPitchLen flags pitches too short to say what the product does.
const minPitchLen = 30

// lowConfidence marks extractions worth keeping but not trusting.
const lowConfidence = 0.6

// ValidatePainPoint rejects pain points that restate a source title or are
// too short to describe a problem.
func ValidatePainPoint(p model.PainPoint) ValidationResult {
	result := ValidationResult{IsValid: true}

	desc := strings.TrimSpace(p.Description)
	if len(desc) < minDescriptionLen {
		result.addError("description too short (%d chars)", len(desc))
	}
	lower := strings.ToLower(desc)
	for _, pattern := range titlePatterns {
		if strings.Contains(lower, pattern) {
			result.addError("description matches source title pattern %q", pattern)
			break
		}
	}

	switch p.Severity {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh:
	default:
		result.addError("unknown severity %q", p.Severity)
	}

	if genericCategories[strings.ToLower(p.Category)] || p.Category == "" {
		result.addWarning("generic category %q", p.Category)
	}
	if p.Confidence < lowConfidence {
		result.addWarning("low confidence %.2f", p.Confidence)
	}
	if len(p.Examples) == 0 {
		result.addWarning("no verbatim evidence quotes")
	}

	return result
}

// ValidateIdea rejects ideas with a throwaway name and flags weak pitches
// and boilerplate audiences.
func ValidateIdea(i model.Idea) ValidationResult {
	result := ValidationResult{IsValid: true}

	name := strings.ToLower(strings.TrimSpace(i.Name))
	if name == "" {
		result.addError("empty name")
	} else if genericIdeaNames[name] {
		result.addError("generic name %q", i.Name)
	}

	if len(strings.TrimSpace(i.Pitch)) < minPitchLen {
		result.addWarning("pitch too short (%d chars)", len(i.Pitch))
	}

	audience := strings.ToLower(strings.TrimSpace(i.TargetAudience))
	for _, generic := range genericAudiences {
		if audience == generic {
			result.addWarning("generic target audience %q", i.TargetAudience)
			break
		}
	}

	return result
}

// componentRanges pairs each breakdown component with its maximum.
type componentRange struct {
	name  string
	value float64
	max   float64
}

// ValidateBreakdown rejects breakdowns with any component outside its
// range and flags totals that drift from the component sum.
func ValidateBreakdown(b model.ScoreBreakdown) ValidationResult {
	result := ValidationResult{IsValid: true}

	for _, c := range []componentRange{
		{"pain_severity", b.PainSeverity, model.MaxPainSeverity},
		{"market_size", b.MarketSize, model.MaxMarketSize},
		{"competition", b.Competition, model.MaxCompetition},
		{"feasibility", b.Feasibility, model.MaxFeasibility},
		{"engagement", b.Engagement, model.MaxEngagement},
	} {
		if c.value < 0 || c.value > c.max {
			result.addError("%s %.1f outside [0, %.0f]", c.name, c.value, c.max)
		}
	}
	if b.Total < 0 || b.Total > 100 {
		result.addError("total %.1f outside [0, 100]", b.Total)
	}

	if !b.Consistent() {
		result.addWarning("total %.1f deviates from component sum %.1f", b.Total, b.Sum())
	}

	return result
}
