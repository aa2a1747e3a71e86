package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/charitylink/backend/internal/metrics"
	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/repository"
	"github.com/go-redis/redis/v8"
)

const (
	DefaultNotificationQueueSize   = 1000
	DefaultNotificationWorkers     = 4
	defaultNotificationSendTimeout = 5 * time.Second
	NotificationQueueKey           = "notification_queue"
)

// NotificationDispatcher is fire-and-forget. Implementations make at most one
// delivery attempt and never report failure to the caller.
type NotificationDispatcher interface {
	Send(ctx context.Context, userID int64, title, message, notifType string)
}

// NotificationSender performs one synchronous delivery.
type NotificationSender interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// DBNotificationSender stores the notification for the in-app inbox.
type DBNotificationSender struct {
	store repository.Store
}

func NewDBNotificationSender(store repository.Store) *DBNotificationSender {
	return &DBNotificationSender{store: store}
}

func (s *DBNotificationSender) Deliver(ctx context.Context, n *models.Notification) error {
	return s.store.InsertNotification(ctx, n)
}

// RedisNotificationSender pushes the notification onto a list consumed by the
// push delivery workers.
type RedisNotificationSender struct {
	rdb   *redis.Client
	queue string
}

func NewRedisNotificationSender(rdb *redis.Client) *RedisNotificationSender {
	return &RedisNotificationSender{rdb: rdb, queue: NotificationQueueKey}
}

func (s *RedisNotificationSender) Deliver(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, s.queue, data).Err()
}

// MultiSender delivers to every sender and joins their errors.
type MultiSender []NotificationSender

func (m MultiSender) Deliver(ctx context.Context, n *models.Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncDispatcher hands notifications to a worker pool through a bounded
// queue. A full queue drops the notification rather than blocking the caller.
type AsyncDispatcher struct {
	sender      NotificationSender
	metrics     *metrics.Metrics
	sendTimeout time.Duration

	queue   chan models.Notification
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

func NewAsyncDispatcher(sender NotificationSender, m *metrics.Metrics, queueSize, workers int) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = DefaultNotificationQueueSize
	}
	if workers <= 0 {
		workers = DefaultNotificationWorkers
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	d := &AsyncDispatcher{
		sender:      sender,
		metrics:     m,
		sendTimeout: defaultNotificationSendTimeout,
		queue:       make(chan models.Notification, queueSize),
	}
	for range workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *AsyncDispatcher) Send(_ context.Context, userID int64, title, message, notifType string) {
	n := models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		CreatedAt: time.Now(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.metrics.NotificationsDropped.Inc()
		log.Printf("[NOTIFY] Dispatcher stopped, dropping %s for user %d", notifType, userID)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.metrics.NotificationsDropped.Inc()
		log.Printf("[NOTIFY] Queue full, dropping %s for user %d", notifType, userID)
	}
}

// Stop refuses new notifications and waits for queued ones to be delivered.
func (d *AsyncDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *AsyncDispatcher) deliver(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.NotificationFailures.Inc()
			log.Printf("[NOTIFY] Sender panic for user %d: %v", n.UserID, r)
		}
	}()

	if err := d.sender.Deliver(ctx, &n); err != nil {
		d.metrics.NotificationFailures.Inc()
		log.Printf("[NOTIFY] Failed to deliver %s to user %d: %v", n.Type, n.UserID, err)
	}
}

// SyncDispatcher delivers inline. It is meant for tools and tests that need
// deterministic ordering.
type SyncDispatcher struct {
	Sender  NotificationSender
	Metrics *metrics.Metrics
}

func (d *SyncDispatcher) Send(ctx context.Context, userID int64, title, message, notifType string) {
	n := &models.Notification{UserID: userID, Title: title, Message: message, Type: notifType, CreatedAt: time.Now()}
	if err := d.Sender.Deliver(ctx, n); err != nil {
		if d.Metrics != nil {
			d.Metrics.NotificationFailures.Inc()
		}
		log.Printf("[NOTIFY] Failed to deliver %s to user %d: %v", notifType, userID, err)
	}
}
