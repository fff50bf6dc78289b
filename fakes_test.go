package shelfwire

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shelfwire/shelfwire/model"
)

// memStore is a shared in-memory backing store for the fake repositories,
// so a publisher and a consumer in one test see the same broker state.
type memStore struct {
	mu sync.Mutex

	exchanges map[string]model.Exchange
	queues    map[string]model.Queue
	bindings  []model.Binding

	messages  map[int64]model.Message
	nextMsgID int64
	// msgSaveFailures fails that many message saves before recovering;
	// -1 fails forever.
	msgSaveFailures int

	notifications map[int64]model.Notification
	nextNotifID   int64
	// notifSaveFailAfter fails notification saves once the save count
	// exceeds it. Zero means never fail.
	notifSaveFailAfter int
	notifSaveCount     int

	deadLetters map[int64]model.DeadLetter
	nextDLQID   int64

	recipients []model.Recipient
	// recipientFindErr fails FindActive when set.
	recipientFindErr error
}

func newMemStore() *memStore {
	return &memStore{
		exchanges:     make(map[string]model.Exchange),
		queues:        make(map[string]model.Queue),
		messages:      make(map[int64]model.Message),
		notifications: make(map[int64]model.Notification),
		deadLetters:   make(map[int64]model.DeadLetter),
	}
}

func (s *memStore) repos() (*memTopologyRepo, *memMessageRepo, *memNotificationRepo, *memDLQRepo, *memRecipientRepo) {
	return &memTopologyRepo{s}, &memMessageRepo{s}, &memNotificationRepo{s}, &memDLQRepo{s}, &memRecipientRepo{s}
}

// messagesIn returns the buffered messages of a queue ordered by creation.
func (s *memStore) messagesIn(queue string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.QueueName == queue {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) allNotifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) allDeadLetters() []model.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeadLetter
	for _, d := range s.deadLetters {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memTopologyRepo struct{ s *memStore }

func (r *memTopologyRepo) DeclareExchange(_ context.Context, ex model.Exchange) (model.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.exchanges[ex.Name]; ok {
		return existing, nil
	}
	ex.ID = int64(len(r.s.exchanges) + 1)
	r.s.exchanges[ex.Name] = ex
	return ex, nil
}

func (r *memTopologyRepo) DeclareQueue(_ context.Context, q model.Queue) (model.Queue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.queues[q.Name]; ok {
		return existing, nil
	}
	q.ID = int64(len(r.s.queues) + 1)
	r.s.queues[q.Name] = q
	return q, nil
}

func (r *memTopologyRepo) DeclareBinding(_ context.Context, b model.Binding) (model.Binding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.bindings {
		if existing.Exchange == b.Exchange && existing.Queue == b.Queue && existing.RoutingKey == b.RoutingKey {
			return existing, nil
		}
	}
	b.ID = int64(len(r.s.bindings) + 1)
	r.s.bindings = append(r.s.bindings, b)
	return b, nil
}

func (r *memTopologyRepo) GetExchange(_ context.Context, name string) (model.Exchange, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ex, ok := r.s.exchanges[name]
	if !ok {
		return model.Exchange{}, ErrNoData
	}
	return ex, nil
}

func (r *memTopologyRepo) GetQueue(_ context.Context, name string) (model.Queue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.queues[name]
	if !ok {
		return model.Queue{}, ErrNoData
	}
	return q, nil
}

func (r *memTopologyRepo) FindBindings(_ context.Context, exchange string) ([]model.Binding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Binding
	for _, b := range r.s.bindings {
		if b.Exchange == exchange {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memTopologyRepo) ListQueues(_ context.Context) ([]model.Queue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Queue
	for _, q := range r.s.queues {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memMessageRepo struct{ s *memStore }

func (r *memMessageRepo) Save(_ context.Context, m *model.Message) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.msgSaveFailures != 0 {
		if r.s.msgSaveFailures > 0 {
			r.s.msgSaveFailures--
		}
		return m, NewError(ErrCodeDatabase, "injected save failure")
	}
	if m.ID == 0 {
		r.s.nextMsgID++
		m.ID = r.s.nextMsgID
	}
	r.s.messages[m.ID] = *m
	return m, nil
}

func (r *memMessageRepo) Load(_ context.Context, id int64) (model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return model.Message{}, ErrNoData
	}
	return m, nil
}

func (r *memMessageRepo) FetchReady(_ context.Context, queueName string, limit int, lease time.Duration) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	var out []model.Message
	for _, m := range r.s.messages {
		if m.QueueName != queueName {
			continue
		}
		expired := m.LeasedUntil.Valid && m.LeasedUntil.Time.Before(now)
		if m.Status == model.MessageStatusReady || (m.Status == model.MessageStatusUnacked && expired) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}

	for i := range out {
		out[i].Lease(lease)
		r.s.messages[out[i].ID] = out[i]
	}
	return out, nil
}

func (r *memMessageRepo) Ack(_ context.Context, m *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.messages, m.ID)
	return nil
}

func (r *memMessageRepo) FindExpired(_ context.Context, limit int) ([]model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	var out []model.Message
	for _, m := range r.s.messages {
		if !m.ExpiresAt.Before(now) {
			continue
		}
		if m.Status == model.MessageStatusUnacked && m.LeasedUntil.Valid && m.LeasedUntil.Time.After(now) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memMessageRepo) CountReady(_ context.Context, queueName string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, m := range r.s.messages {
		if m.QueueName == queueName && m.Status == model.MessageStatusReady {
			count++
		}
	}
	return count, nil
}

type memNotificationRepo struct{ s *memStore }

func (r *memNotificationRepo) Load(_ context.Context, id int64) (model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return model.Notification{}, ErrNoData
	}
	return n, nil
}

func (r *memNotificationRepo) Save(_ context.Context, n *model.Notification) (*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifSaveCount++
	if r.s.notifSaveFailAfter > 0 && r.s.notifSaveCount > r.s.notifSaveFailAfter {
		return n, NewError(ErrCodeDatabase, "injected save failure")
	}
	if n.ID == 0 {
		r.s.nextNotifID++
		n.ID = r.s.nextNotifID
	}
	r.s.notifications[n.ID] = *n
	return n, nil
}

func (r *memNotificationRepo) FindRetryable(_ context.Context, maxRetries, limit int) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Notification
	for _, n := range r.s.notifications {
		if !n.IsActive || n.RetryCount >= maxRetries {
			continue
		}
		if n.Status == model.NotificationStatusFailed || n.Status == model.NotificationStatusPending {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memNotificationRepo) FindByReference(_ context.Context, referenceID, referenceType string) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Notification
	for _, n := range r.s.notifications {
		if n.ReferenceID == referenceID && n.ReferenceType == referenceType {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memNotificationRepo) FindByStatus(_ context.Context, status model.NotificationStatus, limit int) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Notification
	for _, n := range r.s.notifications {
		if n.IsActive && n.Status == status {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

type memDLQRepo struct{ s *memStore }

func (r *memDLQRepo) Load(_ context.Context, id int64) (model.DeadLetter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deadLetters[id]
	if !ok {
		return model.DeadLetter{}, ErrNoData
	}
	return d, nil
}

func (r *memDLQRepo) Save(_ context.Context, d model.DeadLetter) (model.DeadLetter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == 0 {
		r.s.nextDLQID++
		d.ID = r.s.nextDLQID
	}
	r.s.deadLetters[d.ID] = d
	return d, nil
}

func (r *memDLQRepo) FindUnresolved(_ context.Context, limit int) ([]model.DeadLetter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.DeadLetter
	for _, d := range r.s.deadLetters {
		if !d.IsResolved {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memDLQRepo) FindByQueue(_ context.Context, queue string, limit int) ([]model.DeadLetter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.DeadLetter
	for _, d := range r.s.deadLetters {
		if d.Queue == queue {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *memDLQRepo) GetStats(_ context.Context) (model.DLQStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := model.DLQStats{LastUpdated: time.Now()}
	for _, d := range r.s.deadLetters {
		stats.TotalItems++
		if d.IsResolved {
			stats.ResolvedItems++
		} else {
			stats.UnresolvedItems++
		}
	}
	return stats, nil
}

func (r *memDLQRepo) CountUnresolved(_ context.Context) (int, error) {
	stats, _ := r.GetStats(context.Background())
	return stats.UnresolvedItems, nil
}

type memRecipientRepo struct{ s *memStore }

func (r *memRecipientRepo) Load(_ context.Context, id int64) (model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.recipients {
		if rec.ID == id {
			return rec, nil
		}
	}
	return model.Recipient{}, ErrNoData
}

func (r *memRecipientRepo) Save(_ context.Context, rec model.Recipient) (model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = int64(len(r.s.recipients) + 1)
		r.s.recipients = append(r.s.recipients, rec)
		return rec, nil
	}
	for i := range r.s.recipients {
		if r.s.recipients[i].ID == rec.ID {
			r.s.recipients[i] = rec
		}
	}
	return rec, nil
}

func (r *memRecipientRepo) FindActive(_ context.Context) ([]model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.recipientFindErr != nil {
		return nil, r.s.recipientFindErr
	}
	var out []model.Recipient
	for _, rec := range r.s.recipients {
		if rec.IsActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

// recordingSink collects delivered notifications, optionally failing
// recipients listed in failFor.
type recordingSink struct {
	mu        sync.Mutex
	delivered []string // recipient
	failFor   map[string]error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failFor: make(map[string]error)}
}

func (s *recordingSink) Deliver(_ context.Context, recipient, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[recipient]; ok {
		return err
	}
	s.delivered = append(s.delivered, recipient)
	return nil
}

func (s *recordingSink) deliveries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.delivered))
	copy(out, s.delivered)
	return out
}

// recordingAlerts counts alert invocations.
type recordingAlerts struct {
	mu          sync.Mutex
	deadLetters int
	failures    int
	exhausted   int
}

func (a *recordingAlerts) AlertDeadLetter(_ context.Context, _ model.DeadLetter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deadLetters++
	return nil
}

func (a *recordingAlerts) AlertDeliveryFailure(_ context.Context, _ *model.Notification, _ error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures++
	return nil
}

func (a *recordingAlerts) AlertRetryExhausted(_ context.Context, _ *model.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exhausted++
	return nil
}

// sql.NullString helper kept close to the fakes for test readability.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
