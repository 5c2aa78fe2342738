package library

import "github.com/therealutkarshpriyadarshi/videosync/internal/logging"

// Notifier is the non-blocking, user-facing notification surface
type Notifier interface {
	Success(message string)
	Error(message string, err error)
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithField("notification", true)}
}

func (n *LogNotifier) Success(message string) {
	n.logger.Info(message)
}

func (n *LogNotifier) Error(message string, err error) {
	n.logger.ErrorWithErr(message, err)
}
