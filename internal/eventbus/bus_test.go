package eventbus

import (
	"testing"
	"time"

	"github.com/trioctl/trio/pkg/models"
)

func TestPublishDeliversToMatchingSubscribersOnly(t *testing.T) {
	b := New(10)
	var gotA, gotB int
	b.Subscribe(models.EventToolStart, func(models.Event) { gotA++ })
	b.Subscribe(models.EventToolComplete, func(models.Event) { gotB++ })

	b.Publish(models.NewEvent(models.EventToolStart, "agent-1"))
	b.Publish(models.NewEvent(models.EventToolStart, "agent-1"))

	if gotA != 2 || gotB != 0 {
		t.Fatalf("expected gotA=2 gotB=0, got gotA=%d gotB=%d", gotA, gotB)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := New(10)
	count := 0
	b.SubscribeAll(func(models.Event) { count++ })
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	b.Publish(models.NewEvent(models.EventAgentSpawned, ""))
	if count != 2 {
		t.Fatalf("expected 2 deliveries, got %d", count)
	}
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	b := New(10)
	count := 0
	b.Once(models.EventToolStart, func(models.Event) { count++ })
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	if count != 1 {
		t.Fatalf("expected exactly one delivery, got %d", count)
	}
}

func TestUnsubscribeRemovesExactHandler(t *testing.T) {
	b := New(10)
	count := 0
	unsub := b.Subscribe(models.EventToolStart, func(models.Event) { count++ })
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	unsub()
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	if count != 1 {
		t.Fatalf("expected no delivery after unsubscribe, got count=%d", count)
	}
}

func TestHistoryRingBufferOverflowIsSilent(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Publish(models.NewEvent(models.EventToolStart, ""))
	}
	history := b.History()
	if len(history) != 3 {
		t.Fatalf("expected capped history of 3, got %d", len(history))
	}
}

func TestStatsCountsPerType(t *testing.T) {
	b := New(10)
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	b.Publish(models.NewEvent(models.EventToolStart, ""))
	b.Publish(models.NewEvent(models.EventToolComplete, ""))
	stats := b.Stats()
	if stats.TypeCounts[models.EventToolStart] != 2 {
		t.Fatalf("expected 2 TOOL_START, got %d", stats.TypeCounts[models.EventToolStart])
	}
	if stats.RecentCount != 3 {
		t.Fatalf("expected 3 recent events, got %d", stats.RecentCount)
	}
}

func TestRapidFireDetectsBurst(t *testing.T) {
	b := New(100)
	for i := 0; i < 5; i++ {
		b.Publish(models.NewEvent(models.EventToolError, ""))
	}
	if !b.RapidFire(models.EventToolError, 5, time.Minute) {
		t.Fatal("expected rapid-fire detection for 5 errors")
	}
	if b.RapidFire(models.EventToolError, 10, time.Minute) {
		t.Fatal("did not expect rapid-fire detection requiring 10 events")
	}
}

func TestLifecycleCompleteRequiresAllThreePhases(t *testing.T) {
	b := New(100)
	b.Publish(models.NewEvent(models.EventAgentSpawned, "a1"))
	if b.LifecycleComplete("a1") {
		t.Fatal("should not be complete after spawn alone")
	}
	b.Publish(models.NewEvent(models.EventAgentCompleted, "a1"))
	if b.LifecycleComplete("a1") {
		t.Fatal("should not be complete before destroyed")
	}
	b.Publish(models.NewEvent(models.EventAgentDestroyed, "a1"))
	if !b.LifecycleComplete("a1") {
		t.Fatal("expected lifecycle complete after spawn->completed->destroyed")
	}
}

func TestChanSinkDropsOnlyDroppableEventsUnderLoad(t *testing.T) {
	sink := NewChanSink(ChanSinkConfig{HighPriBuffer: 2, LowPriBuffer: 2, OutBuffer: 1})
	defer sink.Close()

	// Nobody drains Events(), so once the merge loop blocks forwarding into
	// the full output channel, the low-priority lane backs up and starts
	// shedding — unlike TOOL_START/AGENT_SPAWNED, PROGRESS_UPDATE is
	// declared droppable precisely so this is safe.
	for i := 0; i < 200; i++ {
		sink.Handle(models.NewEvent(models.EventProgressUpdate, ""))
	}

	if sink.Dropped() == 0 {
		t.Fatal("expected at least one dropped progress event under sustained load")
	}
}
