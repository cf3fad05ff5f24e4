// Package notify shows desktop notifications for delivery events.
package notify

import (
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"
)

const appName = "DayMind"

// maxMessage is the number of runes shown before a message is cut.
const maxMessage = 100

// Notifier sends desktop notifications. A disabled Notifier drops every
// message. Safe for concurrent use.
type Notifier struct {
	enabled atomic.Bool
	send    func(title, message, icon string) error
}

// New returns a Notifier backed by the platform notification service.
func New(enabled bool) *Notifier {
	n := &Notifier{send: beeep.Notify}
	n.enabled.Store(enabled)
	return n
}

// SetEnabled switches notifications on or off.
func (n *Notifier) SetEnabled(enabled bool) { n.enabled.Store(enabled) }

// Enabled reports whether notifications are shown.
func (n *Notifier) Enabled() bool { return n.enabled.Load() }

// Delivered announces a transcribed chunk.
func (n *Notifier) Delivered(chunkID, text string) {
	n.notify("chunk "+chunkID+" sent", text)
}

// Failed announces a failed delivery attempt.
func (n *Notifier) Failed(chunkID string, err error) {
	n.notify("upload failed ("+chunkID+")", err.Error())
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled.Load() {
		return
	}
	if r := []rune(message); len(r) > maxMessage {
		message = string(r[:maxMessage]) + "..."
	}
	if err := n.send(appName+": "+title, message, ""); err != nil {
		slog.Debug("desktop notification failed", "err", err)
	}
}
