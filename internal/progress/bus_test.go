package progress

import (
	"fmt"
	"testing"

	"github.com/brightclass/video-service/pkg/models"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("lesson-1")
	defer sub.Close()

	bus.Publish("lesson-1", models.ProgressEvent{Type: models.EventProgress, Progress: 42})

	event := <-sub.C
	if event.Progress != 42 {
		t.Errorf("Progress = %v, want 42", event.Progress)
	}
	if event.LessonID != "lesson-1" {
		t.Errorf("LessonID = %q, want lesson-1", event.LessonID)
	}
}

func TestBus_IsolatesLessons(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("lesson-1")
	defer sub.Close()

	bus.Publish("lesson-2", models.ProgressEvent{Type: models.EventProgress, Progress: 10})

	select {
	case event := <-sub.C:
		t.Errorf("received event for another lesson: %+v", event)
	default:
	}
}

func TestBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	sub1 := bus.Subscribe("lesson-1")
	defer sub1.Close()
	sub2 := bus.Subscribe("lesson-1")
	defer sub2.Close()

	bus.Publish("lesson-1", models.ProgressEvent{Type: models.EventComplete, Progress: 100})

	for i, sub := range []*Subscription{sub1, sub2} {
		event := <-sub.C
		if event.Progress != 100 {
			t.Errorf("subscriber %d Progress = %v, want 100", i, event.Progress)
		}
	}
}

func TestBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("lesson-1")
	defer sub.Close()

	// Overfill the subscriber buffer; Publish must not block.
	for i := 0; i < subscriberBuffer*2; i++ {
		bus.Publish("lesson-1", models.ProgressEvent{Progress: float64(i)})
	}

	received := 0
	for {
		select {
		case <-sub.C:
			received++
			continue
		default:
		}
		break
	}

	if received != subscriberBuffer {
		t.Errorf("received %d events, want %d", received, subscriberBuffer)
	}
}

func TestBus_CloseRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("lesson-1")

	if got := bus.SubscriberCount("lesson-1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()
	sub.Close() // idempotent

	if got := bus.SubscriberCount("lesson-1"); got != 0 {
		t.Errorf("SubscriberCount = %d after Close, want 0", got)
	}
	if _, open := <-sub.C; open {
		t.Error("channel should be closed")
	}
}

func TestBus_DashboardTargetedAndBroadcast(t *testing.T) {
	bus := NewBus()
	teacher := bus.SubscribeDashboard("teacher-1")
	defer teacher.Close()
	other := bus.SubscribeDashboard("teacher-2")
	defer other.Close()

	bus.PublishDashboard("teacher-1", "views", map[string]int{"total": 5})

	event := <-teacher.C
	if event.UpdateType != "views" {
		t.Errorf("UpdateType = %q, want views", event.UpdateType)
	}
	select {
	case <-other.C:
		t.Error("targeted publish reached the wrong user")
	default:
	}

	bus.PublishDashboard("", "refresh", nil)
	for i, sub := range []*DashboardSubscription{teacher, other} {
		event := <-sub.C
		if event.UpdateType != "refresh" {
			t.Errorf("broadcast subscriber %d UpdateType = %q, want refresh", i, event.UpdateType)
		}
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()
	subs := make([]*Subscription, 4)
	for i := range subs {
		subs[i] = bus.Subscribe(fmt.Sprintf("lesson-%d", i))
	}

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(i int) {
			for j := 0; j < 100; j++ {
				bus.Publish(fmt.Sprintf("lesson-%d", i), models.ProgressEvent{Progress: float64(j)})
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	for _, sub := range subs {
		sub.Close()
	}
}
