package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// Desktop is the Host backed by the desktop notification service.
// Desktops have no permission prompt, so permission reflects configuration.
type Desktop struct {
	// Enabled is the answer given to permission requests.
	Enabled bool

	// Icon is an optional path to the notification icon.
	Icon string
}

// RequestPermission grants when the desktop channel is enabled.
func (d Desktop) RequestPermission(context.Context) (bool, error) {
	return d.Enabled, nil
}

// Show raises a desktop notification.
func (d Desktop) Show(title, body string) error {
	return beeep.Notify(title, body, d.Icon)
}

// Beep is the Sound played through the system speaker.
type Beep struct{}

// Play sounds a short tone.
func (Beep) Play() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}
