package config

// Hand-tuned heuristic tables consumed by the evidence tools and the
// deterministic fallback scorer. These were inherited from the original
// scoring model; product owns any change to the values.

// DefaultUrgencyKeywords raise the pain severity score when present in a pain
// point description or its evidence quotes.
var DefaultUrgencyKeywords = []string{
	"urgent", "desperate", "losing money", "losing customers", "critical",
	"nightmare", "impossible", "wasting hours", "wasting time", "killing",
	"can't afford", "cant afford", "deadline", "burning out", "burnt out",
	"zero applications", "no applicants", "shutting down",
}

// DefaultLargeMarketCategories earn a fixed market size bonus.
var DefaultLargeMarketCategories = []string{
	"sales", "marketing", "hiring", "recruiting", "finance", "accounting",
	"e-commerce", "ecommerce", "healthcare", "education", "productivity",
}

// DefaultBroadAudienceTerms earn a fixed market size bonus when found in the
// audience phrasing.
var DefaultBroadAudienceTerms = []string{
	"small business", "smb", "startup", "enterprise", "teams", "freelancer",
	"everyone", "consumers",
}

// DefaultOversaturatedKeywords impose a competition penalty.
var DefaultOversaturatedKeywords = []string{
	"todo", "to-do", "task manager", "note taking", "note-taking", "crm",
	"project management", "chatbot", "social network", "ai writing",
	"ai assistant", "link in bio", "habit tracker",
}

// DefaultComplexCategoryTerms bucket an idea's category as high-complexity,
// lowering the feasibility component in the fallback score.
var DefaultComplexCategoryTerms = []string{
	"healthcare", "fintech", "finance", "banking", "insurance", "legal",
	"compliance", "blockchain", "hardware", "marketplace",
}

// Engagement step thresholds for the fallback score: upvotes and comments
// each earn one point per threshold crossed, capped at 5 + 5.
var (
	DefaultEngagementUpvoteSteps  = []int{10, 50, 100, 500, 1000}
	DefaultEngagementCommentSteps = []int{5, 20, 50, 100, 250}
)
