package provider

import (
	"context"

	"github.com/lashiv/lashivgpt/internal/conversation"
	"github.com/lashiv/lashivgpt/internal/logging"
)

// ProModel is routed through the direct REST path first.
const ProModel = "gemini-2.5-pro"

// ChatGenerator is the history-carrying generation path.
type ChatGenerator interface {
	Generate(ctx context.Context, modelID string, history []conversation.Message, message string) (string, error)
}

// DirectGenerator is the single-prompt generation path.
type DirectGenerator interface {
	Generate(ctx context.Context, modelID, message string) (string, error)
}

// Generator routes a generation call to the right provider path.
//
// The pro model is tried on the direct REST path first; on any error it
// falls back to the chat path so one flaky endpoint never takes the model
// offline. All other models use the chat path only.
type Generator struct {
	chat   ChatGenerator
	direct DirectGenerator
	logger *logging.Logger
}

// NewGenerator creates a router over the two provider paths.
// direct may be nil, in which case every model uses the chat path.
func NewGenerator(chat ChatGenerator, direct DirectGenerator, logger *logging.Logger) *Generator {
	return &Generator{
		chat:   chat,
		direct: direct,
		logger: logger.WithComponent("provider"),
	}
}

// Generate produces a reply for message with the prior history as context.
func (g *Generator) Generate(ctx context.Context, modelID string, history []conversation.Message, message string) (string, error) {
	if modelID == ProModel && g.direct != nil {
		reply, err := g.direct.Generate(ctx, modelID, message)
		if err == nil {
			return reply, nil
		}
		if IsThrottle(err) {
			// Throttling must surface so the scheduler can back off or
			// switch models; retrying the chat path would burn quota.
			return "", err
		}
		g.logger.Warn("direct path failed for %s, falling back to chat path: %v", modelID, err)
	}

	return g.chat.Generate(ctx, modelID, history, message)
}
