package service

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/domain/valueobject"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Notification defaults.
const (
	DefaultMaxNotifications = 10
	DefaultAutoDismissAfter = 5 * time.Second
)

// NotificationConfig bounds the in-app notification list.
type NotificationConfig struct {
	MaxNotifications int           `mapstructure:"max_notifications"`
	AutoDismissAfter time.Duration `mapstructure:"auto_dismiss_after"`
}

// DefaultNotificationConfig returns ten notifications with a five second auto-dismiss.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		MaxNotifications: DefaultMaxNotifications,
		AutoDismissAfter: DefaultAutoDismissAfter,
	}
}

// NotificationListener receives the full notification list after every change.
type NotificationListener func(notifications []entity.Notification)

// NotificationManager keeps the in-app notification list, newest first.
type NotificationManager struct {
	config     NotificationConfig
	classifier *Classifier
	clock      clockwork.Clock
	logger     logging.ApplicationLogger

	mu            sync.Mutex
	notifications []entity.Notification
	timers        map[string]clockwork.Timer
	listeners     map[uint64]NotificationListener
	nextListener  uint64
}

// NewNotificationManager creates an empty notification list.
func NewNotificationManager(
	config NotificationConfig,
	classifier *Classifier,
	clock clockwork.Clock,
	logger logging.ApplicationLogger,
) (*NotificationManager, error) {
	if classifier == nil {
		return nil, errors.New("notification manager: classifier cannot be nil")
	}
	if config.MaxNotifications <= 0 {
		config.MaxNotifications = DefaultMaxNotifications
	}
	if config.AutoDismissAfter <= 0 {
		config.AutoDismissAfter = DefaultAutoDismissAfter
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slogger.Logger()
	}

	return &NotificationManager{
		config:     config,
		classifier: classifier,
		clock:      clock,
		logger:     logger.WithComponent("notifications"),
		timers:     make(map[string]clockwork.Timer),
		listeners:  make(map[uint64]NotificationListener),
	}, nil
}

// Notify shows err to the user and returns the notification id. Low severity
// notifications dismiss themselves after the configured delay.
func (m *NotificationManager) Notify(
	err any,
	errCtx valueobject.ErrorContext,
	actions ...entity.NotificationAction,
) string {
	classified := m.classifier.Classify(err)
	if classified == nil {
		return ""
	}
	if errCtx == "" {
		errCtx = valueobject.ContextPublic
	}

	notification := entity.Notification{
		ID:        uuid.New().String(),
		Error:     classified,
		Message:   m.classifier.FormatForContext(classified, errCtx),
		Severity:  classified.Severity(),
		Context:   errCtx,
		Actions:   actions,
		CreatedAt: m.clock.Now().UTC(),
	}

	m.mu.Lock()
	m.notifications = append([]entity.Notification{notification}, m.notifications...)
	for len(m.notifications) > m.config.MaxNotifications {
		dropped := m.notifications[len(m.notifications)-1]
		m.notifications = m.notifications[:len(m.notifications)-1]
		m.stopTimerLocked(dropped.ID)
	}
	if notification.AutoDismisses() {
		id := notification.ID
		m.timers[id] = m.clock.AfterFunc(m.config.AutoDismissAfter, func() {
			m.Dismiss(id)
		})
	}
	snapshot, listeners := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug(context.Background(), "Notification shown", logging.Fields{
		"notification_id": notification.ID,
		"code":            classified.Code(),
		"severity":        classified.Severity().String(),
	})
	publish(listeners, snapshot)
	return notification.ID
}

// Dismiss removes a notification. It reports whether the id was present.
func (m *NotificationManager) Dismiss(id string) bool {
	m.mu.Lock()
	index := -1
	for i, n := range m.notifications {
		if n.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		m.mu.Unlock()
		return false
	}
	m.notifications = append(m.notifications[:index:index], m.notifications[index+1:]...)
	m.stopTimerLocked(id)
	snapshot, listeners := m.snapshotLocked()
	m.mu.Unlock()

	publish(listeners, snapshot)
	return true
}

// DismissAll clears the list.
func (m *NotificationManager) DismissAll() {
	m.mu.Lock()
	for id := range m.timers {
		m.stopTimerLocked(id)
	}
	m.notifications = nil
	snapshot, listeners := m.snapshotLocked()
	m.mu.Unlock()

	publish(listeners, snapshot)
}

// Notifications returns the current list, newest first.
func (m *NotificationManager) Notifications() []entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, _ := m.snapshotLocked()
	return snapshot
}

// Subscribe registers listener and returns a function removing it.
func (m *NotificationManager) Subscribe(listener NotificationListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *NotificationManager) stopTimerLocked(id string) {
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
}

func (m *NotificationManager) snapshotLocked() ([]entity.Notification, []NotificationListener) {
	snapshot := make([]entity.Notification, len(m.notifications))
	copy(snapshot, m.notifications)

	listeners := make([]NotificationListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return snapshot, listeners
}

func publish(listeners []NotificationListener, snapshot []entity.Notification) {
	for _, listener := range listeners {
		listener(snapshot)
	}
}
