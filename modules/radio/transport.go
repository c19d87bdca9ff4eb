package radio

import (
	"context"
	"log/slog"
)

// Transport is the player the resolved stream is handed to.
type Transport interface {
	Stop(ctx context.Context) error
	Clear(ctx context.Context) error
	Add(ctx context.Context, uri string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// logTransport records commands without playing anything. It is the default
// until a real player is attached.
type logTransport struct {
	logger *slog.Logger
}

func (t *logTransport) Stop(context.Context) error {
	t.logger.Info("transport", "command", "stop")
	return nil
}

func (t *logTransport) Clear(context.Context) error {
	t.logger.Info("transport", "command", "clear")
	return nil
}

func (t *logTransport) Add(_ context.Context, uri string) error {
	t.logger.Info("transport", "command", "add", "uri", uri)
	return nil
}

func (t *logTransport) Play(context.Context) error {
	t.logger.Info("transport", "command", "play")
	return nil
}

func (t *logTransport) Pause(context.Context) error {
	t.logger.Info("transport", "command", "pause")
	return nil
}

func (t *logTransport) Resume(context.Context) error {
	t.logger.Info("transport", "command", "resume")
	return nil
}
