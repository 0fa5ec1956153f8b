package context

import "context"

type contextKey string

const (
	requestIDKey     contextKey = "observability_request_id"
	merchantIDKey    contextKey = "observability_merchant_id"
	correlationIDKey contextKey = "observability_correlation_id"
	triggerKey       contextKey = "observability_trigger"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	if ctx == nil || merchantID == "" {
		return ctx
	}
	return context.WithValue(ctx, merchantIDKey, merchantID)
}

func MerchantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(merchantIDKey).(string)
	return value
}

// WithCorrelationID tags every log line of one sync attempt.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(correlationIDKey).(string)
	return value
}

// WithTrigger records what started the current work: manual, sweep or cron.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	if ctx == nil || trigger == "" {
		return ctx
	}
	return context.WithValue(ctx, triggerKey, trigger)
}

func TriggerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(triggerKey).(string)
	return value
}
