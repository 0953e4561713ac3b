package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newswire/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid bool expression",
			expr:      `source_type == "article"`,
			wantError: false,
		},
		{
			name:      "valid contains",
			expr:      `title.contains("breaking")`,
			wantError: false,
		},
		{
			name:      "non-bool expression",
			expr:      `title`,
			wantError: true,
		},
		{
			name:      "invalid syntax",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `undefinedVar == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompileFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	program, err := eval.CompileFilter(`url.startsWith("https://")`)
	require.NoError(t, err)
	assert.NotNil(t, program)

	_, err = eval.CompileFilter(`content`)
	assert.Error(t, err)
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ctx := context.Background()
	msg := models.CrawlMessage{
		SourceType:     "article",
		SourceCategory: "technology",
		ItemURL:        "https://example.com/posts/42",
		ItemTitle:      "Breaking: Go 1.25 released",
		ItemContent:    "release notes",
		ItemPubDate:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{
			name: "source type equality true",
			expr: `source_type == "article"`,
			want: true,
		},
		{
			name: "source type equality false",
			expr: `source_type == "podcast"`,
			want: false,
		},
		{
			name: "title contains true",
			expr: `title.contains("Go 1.25")`,
			want: true,
		},
		{
			name: "title contains false",
			expr: `title.contains("sponsored")`,
			want: false,
		},
		{
			name: "url prefix",
			expr: `url.startsWith("https://")`,
			want: true,
		},
		{
			name: "timestamp comparison",
			expr: `published_at > timestamp("2024-01-01T00:00:00Z")`,
			want: true,
		},
		{
			name: "category in list",
			expr: `source_category in ["technology", "science"]`,
			want: true,
		},
		{
			name: "combined conditions",
			expr: `source_type == "article" && content != ""`,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := eval.CompileFilter(tt.expr)
			require.NoError(t, err)

			result, err := eval.EvaluateFilter(ctx, program, msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestFilterExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range FilterExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateFilterExpression(expr))
		})
	}
}
