package cel

// FilterExpressionExamples documents the shapes of filter expressions that the
// scheduler's item filter accepts.
var FilterExpressionExamples = map[string]string{
	"title_contains":      `title.contains("breaking")`,
	"url_prefix":          `url.startsWith("https://")`,
	"has_content":         `content != ""`,
	"source_type_in_list": `source_type in ["article", "newsletter"]`,
	"category_equals":     `source_category == "technology"`,
	"combined_conditions": `source_type == "article" && !title.contains("[sponsored]")`,
	"recent_only":         `published_at > timestamp("2024-01-01T00:00:00Z")`,
}
