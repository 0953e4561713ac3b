package logging

import (
	"context"
)

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	SourceIDKey    = "source_id"
	ItemURLKey     = "item_url"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithSourceID tags every log line for work done on behalf of one source.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, SourceIDKey, sourceID)
}

// WithItemURL tags every log line for one item's fetch/analyze/ingest run.
func WithItemURL(ctx context.Context, itemURL string) context.Context {
	return context.WithValue(ctx, ItemURLKey, itemURL)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetMessageID(ctx context.Context) string {
	if messageID, ok := ctx.Value(MessageIDKey).(string); ok {
		return messageID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetSourceID(ctx context.Context) string {
	if sourceID, ok := ctx.Value(SourceIDKey).(string); ok {
		return sourceID
	}
	return ""
}

func GetItemURL(ctx context.Context) string {
	if itemURL, ok := ctx.Value(ItemURLKey).(string); ok {
		return itemURL
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, "message_id", messageID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	if sourceID := GetSourceID(ctx); sourceID != "" {
		fields = append(fields, "source_id", sourceID)
	}

	if itemURL := GetItemURL(ctx); itemURL != "" {
		fields = append(fields, "item_url", itemURL)
	}

	return fields
}
