// Package progress fans transcode and migration progress events out to
// subscribed clients. Delivery is in-process and best-effort: a subscriber
// that was not connected when an event was published never sees it.
package progress

import (
	"sync"

	"github.com/brightclass/video-service/pkg/models"
)

// subscriberBuffer bounds the per-subscriber channel; a slow subscriber
// drops events rather than blocking publishers.
const subscriberBuffer = 16

// Subscription is one client's event stream. Close it when the client
// disconnects.
type Subscription struct {
	C      chan models.ProgressEvent
	cancel func()
	once   sync.Once
}

// Close removes the subscription from the bus.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// DashboardSubscription is one client's dashboard metric stream.
type DashboardSubscription struct {
	C      chan models.DashboardEvent
	cancel func()
	once   sync.Once
}

// Close removes the subscription from the bus.
func (s *DashboardSubscription) Close() {
	s.once.Do(s.cancel)
}

// Bus routes progress events by lesson id and dashboard events by user id.
type Bus struct {
	mu         sync.Mutex
	nextID     int64
	lessons    map[string]map[int64]*Subscription
	dashboards map[string]map[int64]*DashboardSubscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		lessons:    make(map[string]map[int64]*Subscription),
		dashboards: make(map[string]map[int64]*DashboardSubscription),
	}
}

// Subscribe registers for a lesson's progress events.
func (b *Bus) Subscribe(lessonID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &Subscription{C: make(chan models.ProgressEvent, subscriberBuffer)}
	sub.cancel = func() { b.unsubscribe(lessonID, id) }

	if b.lessons[lessonID] == nil {
		b.lessons[lessonID] = make(map[int64]*Subscription)
	}
	b.lessons[lessonID][id] = sub
	return sub
}

func (b *Bus) unsubscribe(lessonID string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.lessons[lessonID]
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		close(sub.C)
	}
	if len(subs) == 0 {
		delete(b.lessons, lessonID)
	}
}

// SubscribeDashboard registers for a user's dashboard updates.
func (b *Bus) SubscribeDashboard(userID string) *DashboardSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &DashboardSubscription{C: make(chan models.DashboardEvent, subscriberBuffer)}
	sub.cancel = func() { b.unsubscribeDashboard(userID, id) }

	if b.dashboards[userID] == nil {
		b.dashboards[userID] = make(map[int64]*DashboardSubscription)
	}
	b.dashboards[userID][id] = sub
	return sub
}

func (b *Bus) unsubscribeDashboard(userID string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.dashboards[userID]
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		close(sub.C)
	}
	if len(subs) == 0 {
		delete(b.dashboards, userID)
	}
}

// Publish fans an event out to every subscriber of the lesson.
func (b *Bus) Publish(lessonID string, event models.ProgressEvent) {
	event.LessonID = lessonID

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.lessons[lessonID]))
	for _, sub := range b.lessons[lessonID] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.C <- event:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}

// PublishDashboard sends a dashboard update to one user's subscribers, or
// broadcasts to all dashboard subscribers when userID is empty.
func (b *Bus) PublishDashboard(userID, updateType string, payload any) {
	event := models.DashboardEvent{
		Type:       "dashboard",
		UpdateType: updateType,
		Payload:    payload,
	}

	b.mu.Lock()
	var subs []*DashboardSubscription
	if userID == "" {
		for _, userSubs := range b.dashboards {
			for _, sub := range userSubs {
				subs = append(subs, sub)
			}
		}
	} else {
		for _, sub := range b.dashboards[userID] {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.C <- event:
		default:
		}
	}
}

// SubscriberCount reports active lesson subscribers, for tests and health.
func (b *Bus) SubscriberCount(lessonID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lessons[lessonID])
}
