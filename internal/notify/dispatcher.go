package notify

import (
	"errors"
	"log/slog"
)

// DefaultTitle heads OS notifications.
const DefaultTitle = "Requisitions"

// Sound plays the alert cue.
type Sound interface {
	Play() error
}

// Dispatcher fans a message out to every configured channel.
type Dispatcher struct {
	toast   *Toast
	sound   Sound
	channel *Channel
	title   string
	logger  *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSound enables the audio cue.
func WithSound(s Sound) DispatcherOption {
	return func(d *Dispatcher) { d.sound = s }
}

// WithChannel enables OS notifications.
func WithChannel(c *Channel) DispatcherOption {
	return func(d *Dispatcher) { d.channel = c }
}

// WithTitle sets the OS notification title.
func WithTitle(title string) DispatcherOption {
	return func(d *Dispatcher) { d.title = title }
}

// WithLogger sets the logger for channel failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher that always shows toast.
func NewDispatcher(toast *Toast, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{toast: toast, title: DefaultTitle, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Toast returns the dispatcher's toast.
func (d *Dispatcher) Toast() *Toast {
	return d.toast
}

// Notify plays the sound, shows the toast and sends the OS notification,
// in that order. Failures are logged and do not affect the other channels.
func (d *Dispatcher) Notify(msg string) {
	if d.sound != nil {
		if err := d.sound.Play(); err != nil {
			d.logger.Debug("alert sound failed", "error", err)
		}
	}

	d.toast.Show(msg)

	if d.channel != nil {
		err := d.channel.Send(d.title, msg)
		switch {
		case errors.Is(err, ErrPermissionDenied):
			d.logger.Debug("os notification skipped", "permission", d.channel.Permission())
		case err != nil:
			d.logger.Warn("os notification failed", "error", err)
		}
	}
}
