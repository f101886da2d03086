package mail

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/logging"
)

// LogGateway writes messages to the log instead of sending them.
// Meant for development, where the verification link is copied from the log.
type LogGateway struct {
	log logging.Logger
}

func NewLogGateway(log logging.Logger) *LogGateway {
	return &LogGateway{log: log.With("module", "mail")}
}

func (g *LogGateway) Send(ctx context.Context, msg Message) error {
	g.log.Info(ctx, "mail not sent (log backend)",
		"kind", msg.Kind, "to", msg.To, "subject", msg.Subject, "link", msg.Link)
	return nil
}
