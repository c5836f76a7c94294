// Package notify raises the alert for newly detected requisitions on three
// independent channels: a sound, an in-app toast and an OS notification.
//
// Each channel is best-effort. A failure on one is logged and never stops
// the others.
//
// The toast is a single slot: a new message replaces the visible one and
// restarts its 10-second dismissal window. The OS channel only delivers
// after the host granted permission; permission is asked while it is still
// unknown, and a denial is final for the process.
package notify
