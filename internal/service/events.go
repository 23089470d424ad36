package service

// Event names pushed to websocket subscribers.
const (
	EventRequestCreated       = "request.created"
	EventRequestStatusChanged = "request.status_changed"
	EventRequestTotalChanged  = "request.total_changed"
)

// Notifier fans request events out to live clients.
type Notifier interface {
	Publish(event string, data map[string]interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, map[string]interface{}) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
