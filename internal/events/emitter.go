package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryPublisher is a simple implementation of the Publisher
// interface that stores registered handlers in memory and dispatches
// events to them synchronously.
type InMemoryPublisher struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryPublisher creates a new instance of InMemoryPublisher.
func NewInMemoryPublisher(logger *slog.Logger) *InMemoryPublisher {
	return &InMemoryPublisher{
		handlers: make([]Handler, 0),
		logger:   logger.With("component", "in_memory_publisher"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (p *InMemoryPublisher) RegisterHandler(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
	p.logger.Debug("registered new event handler", "handler_count", len(p.handlers))
}

// Publish delivers the given event to all registered handlers.
// If any handler returns an error, the event is still sent to all other
// handlers, and the first error encountered is returned.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *TaskEvent) error {
	p.mu.RLock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	p.logger.Debug("publishing event",
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		p.logger.Warn("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			p.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Ensure InMemoryPublisher implements Publisher
var _ Publisher = (*InMemoryPublisher)(nil)

// LoggingHandler records every lifecycle event to the structured log,
// giving operators a transition audit trail without a subscriber.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a handler that logs lifecycle events.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.With("component", "event_log")}
}

// HandleEvent implements the Handler interface.
func (h *LoggingHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	h.logger.Info("task lifecycle event",
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"user_id", event.UserID)
	return nil
}

// Ensure LoggingHandler implements Handler
var _ Handler = (*LoggingHandler)(nil)
