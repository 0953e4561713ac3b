package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"newswire/pkg/models"
)

// Evaluator compiles and evaluates CEL filter expressions against feed items.
// Expressions see the item fields as top-level variables and must return bool.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("title", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("published_at", cel.TimestampType),
		cel.Variable("source_type", cel.StringType),
		cel.Variable("source_category", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, program cel.Program, msg models.CrawlMessage) (bool, error) {
	vars := map[string]interface{}{
		"title":           msg.ItemTitle,
		"url":             msg.ItemURL,
		"content":         msg.ItemContent,
		"published_at":    msg.ItemPubDate,
		"source_type":     msg.SourceType,
		"source_category": msg.SourceCategory,
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
