package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

func TestFallbackBreakdownIsRangeValid(t *testing.T) {
	tk := testToolkit()
	pain := validPainPoint()

	b := fallbackBreakdown(tk, validIdea(), &pain, model.Engagement{Upvotes: 42, Comments: 12})

	v := ValidateBreakdown(b)
	assert.True(t, v.IsValid, "errors: %v", v.Errors)
	assert.True(t, b.Consistent())
	assert.Greater(t, b.Total, 0.0)
	assert.LessOrEqual(t, b.Total, 100.0)
	assert.NotEmpty(t, b.Reasoning)
}

func TestFallbackBreakdownWithoutPainPoint(t *testing.T) {
	b := fallbackBreakdown(testToolkit(), validIdea(), nil, model.Engagement{})

	assert.Equal(t, defaultPainComponent, b.PainSeverity)
	assert.True(t, ValidateBreakdown(b).IsValid)
	assert.True(t, b.Consistent())
}

func TestFallbackFeasibilityByCategoryComplexity(t *testing.T) {
	tk := testToolkit()

	simple := validIdea()
	simpleB := fallbackBreakdown(tk, simple, nil, model.Engagement{})
	assert.Equal(t, feasibilitySimple, simpleB.Feasibility)

	complexIdea := validIdea()
	complexIdea.Category = "healthcare"
	complexB := fallbackBreakdown(tk, complexIdea, nil, model.Engagement{})
	assert.Equal(t, feasibilityComplex, complexB.Feasibility)
}

func TestFallbackCrowdedCategoryScoresLowerCompetition(t *testing.T) {
	tk := testToolkit()

	open := validIdea()
	openB := fallbackBreakdown(tk, open, nil, model.Engagement{})

	crowded := validIdea()
	crowded.Name = "TaskFlow"
	crowded.Category = "todo task manager"
	crowdedB := fallbackBreakdown(tk, crowded, nil, model.Engagement{})

	assert.Less(t, crowdedB.Competition, openB.Competition)
}

func TestEngagementPoints(t *testing.T) {
	cases := []struct {
		eng  model.Engagement
		want float64
	}{
		{model.Engagement{}, 1},
		{model.Engagement{Upvotes: 3}, 2},
		{model.Engagement{Upvotes: 10}, 4},
		{model.Engagement{Upvotes: 42, Comments: 12}, 6},
		{model.Engagement{Upvotes: 150, Comments: 30}, 8},
		{model.Engagement{Upvotes: 400, Comments: 100}, 10},
	}
	for _, tc := range cases {
		got := engagementPoints(tc.eng)
		require.Equal(t, tc.want, got, "engagement %+v", tc.eng)
		assert.LessOrEqual(t, got, model.MaxEngagement)
	}
}
