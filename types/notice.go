package types

import (
	log "github.com/sirupsen/logrus"
)

type NoticeLevel int

const (
	NoticeInfo    NoticeLevel = 1
	NoticeWarning NoticeLevel = 2
	NoticeError   NoticeLevel = 3
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeInfo:
		return "info"
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	}
	return "unknown"
}

// Notifier is how the engine reaches the user: immediate notices for
// validation problems and credential prompts after provider failures.
type Notifier interface {
	Notify(level NoticeLevel, nodeID string, message string)
	RequestCredentials(provider string, reason string)
}

// LogNotifier writes notices to the logger. It is the default when the
// caller does not wire a UI.
type LogNotifier struct{}

func (LogNotifier) Notify(level NoticeLevel, nodeID string, message string) {
	entry := log.WithField("node", nodeID)
	switch level {
	case NoticeError:
		entry.Error(message)
	case NoticeWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

func (LogNotifier) RequestCredentials(provider string, reason string) {
	log.WithField("provider", provider).Warnf("credentials required: %s", reason)
}
