package entity

import (
	"edurecovery/internal/domain/valueobject"
	"encoding/json"
	"time"
)

// NotificationAction is a button offered alongside an in-app notification.
type NotificationAction struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Handler func() `json:"-"`
}

// Notification is an in-app message shown for a ClassifiedError.
type Notification struct {
	ID        string                    `json:"id"`
	Error     *ClassifiedError          `json:"error"`
	Message   string                    `json:"message"`
	Severity  valueobject.ErrorSeverity `json:"severity"`
	Context   valueobject.ErrorContext  `json:"context"`
	Actions   []NotificationAction      `json:"actions,omitempty"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// AutoDismisses reports whether the notification removes itself after a delay.
func (n Notification) AutoDismisses() bool {
	return n.Severity.IsLow()
}

type notificationJSON struct {
	ID        string                    `json:"id"`
	Error     *classifiedErrorJSON      `json:"error"`
	Message   string                    `json:"message"`
	Severity  valueobject.ErrorSeverity `json:"severity"`
	Context   valueobject.ErrorContext  `json:"context"`
	Actions   []NotificationAction      `json:"actions,omitempty"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// MarshalJSON implements json.Marshaler. The technical message is only included
// in contexts that show technical details.
func (n Notification) MarshalJSON() ([]byte, error) {
	out := notificationJSON{
		ID:        n.ID,
		Message:   n.Message,
		Severity:  n.Severity,
		Context:   n.Context,
		Actions:   n.Actions,
		CreatedAt: n.CreatedAt,
	}
	if n.Error != nil {
		errJSON := n.Error.toJSON(n.Context.ShowsTechnicalDetails())
		out.Error = &errJSON
	}
	return json.Marshal(out)
}
