package radio

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zachfi/personalradio/pkg/secret"
	"github.com/zachfi/personalradio/pkg/station"
)

const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice is a transient, user-visible message.
type Notice struct {
	Kind    string    `json:"kind"`
	Key     string    `json:"key"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier keeps the most recent notices for the host to display.
type Notifier struct {
	mu      sync.Mutex
	notices []Notice
	max     int

	strings *station.Strings
	logger  *slog.Logger
	now     func() time.Time
}

func NewNotifier(str *station.Strings, max int, logger *slog.Logger) *Notifier {
	if max <= 0 {
		max = defaultNoticeHistory
	}
	return &Notifier{max: max, strings: str, logger: logger, now: time.Now}
}

func (n *Notifier) Info(key string, args ...string) {
	n.push(NoticeInfo, key, args...)
}

func (n *Notifier) Error(key string, args ...string) {
	n.push(NoticeError, key, args...)
}

// ResolveFailed raises the notice matching err's class.
func (n *Notifier) ResolveFailed(provider string, err error) {
	var (
		sfe *secret.SecretFetchError
		ire *station.IncorrectResponseError
	)
	switch {
	case errors.As(err, &sfe):
		n.Error("ERROR_SECRET_KEY_SERVER")
	case errors.As(err, &ire):
		n.Error("INCORRECT_RESPONSE", strings.ToUpper(provider))
	default:
		// *fetch.StreamServerError and anything unclassified.
		n.Error("ERROR_STREAM_SERVER", strings.ToUpper(provider))
	}
}

func (n *Notifier) push(kind, key string, args ...string) {
	notice := Notice{
		Kind:    kind,
		Key:     key,
		Title:   n.strings.Get("PLUGIN_NAME"),
		Message: n.strings.Format(key, args...),
		Time:    n.now(),
	}

	n.mu.Lock()
	n.notices = append(n.notices, notice)
	if len(n.notices) > n.max {
		n.notices = n.notices[len(n.notices)-n.max:]
	}
	n.mu.Unlock()

	metricNotices.WithLabelValues(kind, key).Inc()
	n.logger.Info("notice", "kind", kind, "key", key, "message", notice.Message)
}

// Recent returns the kept notices, oldest first.
func (n *Notifier) Recent() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.notices...)
}
