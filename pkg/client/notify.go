package client

import (
	"github.com/gen2brain/beeep"
)

// DesktopNotifier shows toasts through the OS notification center
type DesktopNotifier struct {
	// IconPath is an optional icon shown next to the toast
	IconPath string
}

// Notify shows a desktop notification (best-effort)
func (n DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, n.IconPath)
}
