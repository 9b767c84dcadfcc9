// Package notify delivers password-reset messages out of band.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// ResetMessage carries a plaintext reset link to its recipient. It is the
// only place the plaintext token travels after generation.
type ResetMessage struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Notifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// LogNotifier writes reset links to the log. Development only.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	n.logger.InfoContext(ctx, "password reset link",
		"to", msg.To,
		"reset_url", msg.ResetURL,
		"expires_at", msg.ExpiresAt.Format(time.RFC3339),
	)
	return nil
}
