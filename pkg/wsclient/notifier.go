package wsclient

import "webdsl/internal/logging"

// Notifier surfaces short user facing messages, the terminal equivalent of a toast.
type Notifier interface {
	Success(msg string)
	Warn(msg string)
	Error(msg string)
}

// LogNotifier writes notifications as log entries.
type LogNotifier struct {
	Log *logging.Logger
}

func (n LogNotifier) Success(msg string) {
	n.Log.Info("notify", logging.Fields{"kind": "success", "message": msg})
}

func (n LogNotifier) Warn(msg string) {
	n.Log.Warn("notify", logging.Fields{"kind": "warn", "message": msg})
}

func (n LogNotifier) Error(msg string) {
	n.Log.Error("notify", nil, logging.Fields{"kind": "error", "message": msg})
}
