package service

import "github.com/sirupsen/logrus"

// Notifier surfaces short user-facing status messages. The original surface
// was a device toast; headless deployments log them instead.
type Notifier interface {
	Notify(message string)
}

type logNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(message string) {
	n.logger.WithField("notification", message).Info("User notification")
}
