package services

import (
	"errors"
	"sync"
	"time"

	"github.com/dnastack/ddap-admin/internal/infrastructure/email"
	"github.com/dnastack/ddap-admin/internal/infrastructure/messaging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
)

// ErrorNotifier surfaces a failure to operators and hands the error back so
// callers keep propagating it.
type ErrorNotifier interface {
	NotifyOnError(realm, message string, err error) error
}

// NotificationPublisher delivers notifications to the operators of a realm.
type NotificationPublisher interface {
	Publish(realm string, n messaging.Notification)
}

// BroadcastNotifier publishes every error as a realm notification.
type BroadcastNotifier struct {
	publisher NotificationPublisher
	logger    *logging.ChanneledLogger
}

// NewBroadcastNotifier creates an ErrorNotifier backed by publisher.
func NewBroadcastNotifier(publisher NotificationPublisher, logger *logging.ChanneledLogger) *BroadcastNotifier {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &BroadcastNotifier{publisher: publisher, logger: logger}
}

func (n *BroadcastNotifier) NotifyOnError(realm, message string, err error) error {
	if err == nil {
		return nil
	}

	note := messaging.NewNotification(messaging.LevelError, message)
	note.Detail = err.Error()
	if backend := BackendMessage(err); backend != "" {
		note.Detail = backend
	}
	var metadata map[string]any
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		note.DamID = loadErr.DamID
		metadata = map[string]any{"damId": loadErr.DamID}
	}

	n.logger.LogError(logging.ChannelDAM, message, err, realm, metadata)
	n.publisher.Publish(realm, note)
	return err
}

// nopNotifier only returns the error.
type nopNotifier struct{}

func (nopNotifier) NotifyOnError(_, _ string, err error) error { return err }

// NopNotifier returns an ErrorNotifier that notifies nobody.
func NopNotifier() ErrorNotifier { return nopNotifier{} }

// MailingNotifier forwards to next and also emails operators when a DAM
// cannot be loaded. Each realm/DAM pair is mailed at most once per interval.
type MailingNotifier struct {
	next       ErrorNotifier
	mailer     email.Service
	interval   time.Duration
	consoleURL string
	logger     *logging.ChanneledLogger

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
	// sent receives each dispatched alert; tests only
	sent chan<- email.Alert
}

// NewMailingNotifier wraps next with email alerts sent through mailer.
func NewMailingNotifier(next ErrorNotifier, mailer email.Service, interval time.Duration, consoleURL string, logger *logging.ChanneledLogger) *MailingNotifier {
	if next == nil {
		next = NopNotifier()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &MailingNotifier{
		next:       next,
		mailer:     mailer,
		interval:   interval,
		consoleURL: consoleURL,
		logger:     logger,
		last:       make(map[string]time.Time),
		now:        time.Now,
	}
}

func (n *MailingNotifier) NotifyOnError(realm, message string, err error) error {
	err = n.next.NotifyOnError(realm, message, err)

	var loadErr *LoadError
	if err == nil || !errors.As(err, &loadErr) {
		return err
	}
	if !n.due(realm + "/" + loadErr.DamID) {
		return err
	}

	alert := email.Alert{
		Realm:      realm,
		DamID:      loadErr.DamID,
		Message:    message,
		Detail:     err.Error(),
		At:         n.now().UTC(),
		ConsoleURL: n.consoleURL,
	}
	if backend := BackendMessage(err); backend != "" {
		alert.Detail = backend
	}
	go n.send(alert)
	return err
}

func (n *MailingNotifier) due(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.last[key]; ok && now.Sub(last) < n.interval {
		return false
	}
	n.last[key] = now
	return true
}

func (n *MailingNotifier) send(alert email.Alert) {
	if err := n.mailer.SendAlert(alert); err != nil {
		n.logger.WithRealmAndDam(logging.ChannelSystem, alert.Realm, alert.DamID).Error("Alert email failed", "error", err)
	} else {
		n.logger.WithRealmAndDam(logging.ChannelSystem, alert.Realm, alert.DamID).Info("Alert email sent", "message", alert.Message)
	}
	if n.sent != nil {
		n.sent <- alert
	}
}
