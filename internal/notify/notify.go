// Package notify raises desktop notifications for stream events.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

const appName = "Twitch Sentry"

// Notifier sends desktop notifications, gated by the config toggles.
type Notifier struct {
	notifyOnLive     bool
	notifyOnCategory bool
}

// New creates a notifier.
func New(notifyOnLive, notifyOnCategory bool) *Notifier {
	return &Notifier{
		notifyOnLive:     notifyOnLive,
		notifyOnCategory: notifyOnCategory,
	}
}

// StreamLive announces that a watched channel went live.
func (n *Notifier) StreamLive(userName, categoryName, title string) error {
	if !n.notifyOnLive {
		return nil
	}

	message := categoryName
	switch {
	case message == "" && title == "":
		message = "Started streaming"
	case title != "":
		message = fmt.Sprintf("%s - %s", categoryName, truncate(title, 50))
	}
	return beeep.Notify(fmt.Sprintf("%s is now live!", userName), message, "")
}

// CategoryChange announces that a live channel switched category.
func (n *Notifier) CategoryChange(userName, newCategory string) error {
	if !n.notifyOnCategory {
		return nil
	}
	return beeep.Notify(
		fmt.Sprintf("%s changed category", userName),
		fmt.Sprintf("Now playing: %s", newCategory), "")
}

// SubscriptionRevoked warns that a channel's events stopped flowing.
func (n *Notifier) SubscriptionRevoked(subscriptionType string) error {
	return beeep.Notify(appName,
		fmt.Sprintf("Subscription revoked: %s", subscriptionType), "")
}

// AuthCode shows the device code during login.
func (n *Notifier) AuthCode(userCode, verificationURI string) error {
	return beeep.Notify("Twitch Login",
		fmt.Sprintf("Go to %s and enter code: %s", verificationURI, userCode), "")
}

// Error shows an error message.
func (n *Notifier) Error(message string) error {
	return beeep.Notify(appName, message, "")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
