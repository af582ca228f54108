package logging

import (
	"context"
	"log/slog"

	"folio/internal/services"
)

// WithContext enriches a logger with the correlation attributes carried in
// context (item id, stage, session id, request id).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	if id, ok := services.ItemIDFromContext(ctx); ok {
		logger = logger.With(Int64(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		logger = logger.With(String(FieldStage, stage))
	}
	if session, ok := services.SessionIDFromContext(ctx); ok {
		logger = logger.With(String(FieldSessionID, session))
	}
	if request, ok := services.RequestIDFromContext(ctx); ok {
		logger = logger.With(String(FieldRequestID, request))
	}
	return logger
}
