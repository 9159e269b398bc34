package syncbus

import (
	"log/slog"
	"testing"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

func TestNavigateOrdering(t *testing.T) {
	b := NewBus(slog.Default())

	var got []models.SyncEvent
	b.Subscribe(func(e models.SyncEvent) { got = append(got, e) })

	filters := models.FilterSet{Tab: "traces", TraceState: models.TraceStateError}
	b.Navigate("/traces", filters)

	if len(got) != 2 {
		t.Fatalf("events = %d, want route-change then query-update", len(got))
	}
	if got[0].Type != models.SyncRouteChange || got[0].Path != "/traces" {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Type != models.SyncQueryUpdate || got[1].Filters != filters {
		t.Fatalf("second event = %+v", got[1])
	}
}

func TestLateSubscriberReceivesReplay(t *testing.T) {
	b := NewBus(slog.Default())

	filters := models.FilterSet{ServiceID: "svc-1", MinDuration: "100"}
	b.Navigate("/traces", filters)

	var got []models.SyncEvent
	b.Subscribe(func(e models.SyncEvent) { got = append(got, e) })

	if len(got) != 1 {
		t.Fatalf("replayed events = %d, want exactly the last query-update", len(got))
	}
	if got[0].Type != models.SyncQueryUpdate || got[0].Filters != filters {
		t.Fatalf("replayed event = %+v", got[0])
	}
}

func TestReplaySlotHoldsLatestUpdate(t *testing.T) {
	b := NewBus(slog.Default())

	b.Navigate("/traces", models.FilterSet{ServiceID: "old"})
	b.PublishUpdate(models.FilterSet{ServiceID: "new"})

	e, ok := b.LastUpdate()
	if !ok || e.Filters.ServiceID != "new" {
		t.Fatalf("last update = %+v (ok=%v)", e, ok)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(slog.Default())

	calls := 0
	unsubscribe := b.Subscribe(func(models.SyncEvent) { calls++ })

	b.PublishUpdate(models.FilterSet{Tab: "one"})
	unsubscribe()
	b.PublishUpdate(models.FilterSet{Tab: "two"})

	if calls != 1 {
		t.Fatalf("handler called %d times after unsubscribe, want 1", calls)
	}
}

func TestSubscribeWithoutHistoryIsSilent(t *testing.T) {
	b := NewBus(slog.Default())
	called := false
	b.Subscribe(func(models.SyncEvent) { called = true })
	if called {
		t.Fatal("handler fired with no retained event")
	}
	if _, ok := b.LastUpdate(); ok {
		t.Fatal("empty bus reported a retained update")
	}
}
