package syncclient

import "github.com/sirupsen/logrus"

type NotificationKind string

const (
	Saving NotificationKind = "saving"
	Saved  NotificationKind = "saved"
	Failed NotificationKind = "error"
)

// Notification is a transient, user-visible save status.
type Notification struct {
	Kind      NotificationKind
	ProjectID string
	Message   string
}

type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier reports notifications through a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(n Notification) {
	entry := l.Log.WithFields(logrus.Fields{"project_id": n.ProjectID, "status": n.Kind})
	switch n.Kind {
	case Failed:
		entry.Warn(n.Message)
	case Saving:
		entry.Debug(n.Message)
	default:
		entry.Info(n.Message)
	}
}
