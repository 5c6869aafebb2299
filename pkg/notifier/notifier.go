package notifier

import (
	"context"

	"github.com/sirupsen/logrus"
)

const (
	MeetingStarted = "meeting started"
	MeetingEnded   = "meeting ended"
	MeetingDeleted = "meeting deleted"
)

// LogNotifier announces meeting lifecycle events in the service log.
type LogNotifier struct {
	log *logrus.Entry
}

func New(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{
		log: log.WithField("component", "notifier"),
	}
}

func (n *LogNotifier) Notify(_ context.Context, event string, meetingID int) error {
	n.log.WithField("meeting", meetingID).Info(event)
	return nil
}
