package lastfm

import (
	"log/slog"
	"time"

	"github.com/gregdel/pushover"
)

// Notifier pushes the authorization URL to the user's phone when a new
// Last.fm session is needed. Without a pushover token it degrades to just
// logging the URL, which is fine for interactive use.
type Notifier struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
	logger    *slog.Logger
}

func NewNotifier(token, recipient string, logger *slog.Logger) *Notifier {
	n := &Notifier{logger: logger}
	if token != "" && recipient != "" {
		n.app = pushover.New(token)
		n.recipient = pushover.NewRecipient(recipient)
	}
	return n
}

// AuthorizationNeeded tells the user to approve the application.
func (n *Notifier) AuthorizationNeeded(authorizeURL string) {
	n.logger.With(slog.String("url", authorizeURL)).Info("Please open the following URL in your browser to authorize with Last.fm")

	if n.app == nil {
		return
	}

	message := &pushover.Message{
		Message:    "No valid Last.fm session; scrobbles will queue up until you reauthorize",
		Title:      "Please auth with Last.fm for scritches",
		Priority:   pushover.PriorityHigh,
		URL:        authorizeURL,
		URLTitle:   "Auth with Last.fm",
		Timestamp:  time.Now().Unix(),
		DeviceName: "scritches",
	}
	if _, err := n.app.SendMessage(message, n.recipient); err != nil {
		n.logger.Error("Failed to send pushover notification", slog.String("stack", err.Error()))
	}
}
