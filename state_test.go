package kueri

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestState() *StateManager {
	return NewStateManager(NewEventEmitter(), DefaultQueryKeyFunc)
}

func TestSetCacheResetsStale(t *testing.T) {
	sm := newTestState()

	sm.SetCache("k", EntryState{Data: "v1", Timestamp: time.Now()}, []string{"users"})
	sm.SetStale("k", true)

	entry, ok := sm.GetCache("k")
	if !ok || !entry.Stale {
		t.Fatal("entry should exist and be stale")
	}

	sm.SetCache("k", EntryState{Data: "v2", Timestamp: time.Now()}, []string{"users"})
	entry, _ = sm.GetCache("k")
	if entry.Stale {
		t.Error("SetCache should reset the stale flag")
	}
	if entry.State.Data != "v2" {
		t.Errorf("expected replaced data v2, got %v", entry.State.Data)
	}
}

func TestGetCacheReturnsSnapshot(t *testing.T) {
	sm := newTestState()
	sm.SetCache("k", EntryState{Data: "v"}, []string{"a"})

	entry, _ := sm.GetCache("k")
	entry.Tags[0] = "mutated"
	entry.Stale = true

	fresh, _ := sm.GetCache("k")
	if fresh.Tags[0] != "a" || fresh.Stale {
		t.Error("mutating a returned entry should not affect the stored one")
	}
}

func TestInvalidateByTagsPrecision(t *testing.T) {
	sm := newTestState()
	sm.SetCache("users", EntryState{Data: 1}, []string{"users"})
	sm.SetCache("users/1", EntryState{Data: 2}, []string{"users", "users/1"})
	sm.SetCache("posts", EntryState{Data: 3}, []string{"posts"})

	matched := sm.InvalidateByTags([]string{"users"})
	if len(matched) != 2 {
		t.Errorf("expected 2 matched keys, got %v", matched)
	}

	for key, wantStale := range map[string]bool{"users": true, "users/1": true, "posts": false} {
		entry, _ := sm.GetCache(key)
		if entry.Stale != wantStale {
			t.Errorf("entry %q stale = %v, want %v", key, entry.Stale, wantStale)
		}
	}
}

func TestInvalidateByTagsEmitsEvent(t *testing.T) {
	emitter := NewEventEmitter()
	sm := NewStateManager(emitter, DefaultQueryKeyFunc)
	sm.SetCache("k", EntryState{Data: 1}, []string{"users"})

	var got []string
	emitter.On(TopicInvalidate, func(ev Event) { got = ev.Tags })

	sm.InvalidateByTags([]string{"users", "extra"})
	if len(got) != 2 || got[0] != "users" {
		t.Errorf("expected invalidate event carrying the tag list, got %v", got)
	}
}

func TestSubscribeNotifiedOnMutations(t *testing.T) {
	sm := newTestState()

	var notifications []*CacheEntry
	unsub := sm.Subscribe("k", func(entry *CacheEntry) {
		notifications = append(notifications, entry)
	})

	sm.SetCache("k", EntryState{Data: "v"}, nil)
	sm.SetStale("k", true)
	sm.DeleteCache("k")

	if len(notifications) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notifications))
	}
	if notifications[0] == nil || notifications[0].State.Data != "v" {
		t.Error("first notification should carry the new entry")
	}
	if !notifications[1].Stale {
		t.Error("second notification should carry the stale entry")
	}
	if notifications[2] != nil {
		t.Error("delete should notify with nil")
	}

	unsub()
	sm.SetCache("k", EntryState{Data: "v2"}, nil)
	if len(notifications) != 3 {
		t.Error("unsubscribed callback should not be invoked")
	}
}

func TestClearEmptiesAllMaps(t *testing.T) {
	sm := newTestState()
	sm.SetCache("k", EntryState{Data: "v"}, []string{"users"})
	sm.SetMeta("k", "f", 42)
	sm.BeginPending("k")

	var sawNil bool
	sm.Subscribe("k", func(entry *CacheEntry) { sawNil = entry == nil })

	sm.Clear()

	if _, ok := sm.GetCache("k"); ok {
		t.Error("cache should be empty after Clear")
	}
	if _, ok := sm.Meta("k", "f"); ok {
		t.Error("meta should be empty after Clear")
	}
	if _, ok := sm.PendingCall("k"); ok {
		t.Error("pending map should be empty after Clear")
	}
	if !sawNil {
		t.Error("subscribers should be notified with nil on Clear")
	}
}

func TestPendingCallOwnership(t *testing.T) {
	sm := newTestState()

	first, owner := sm.BeginPending("k")
	if !owner {
		t.Fatal("first caller should own the pending call")
	}
	second, owner2 := sm.BeginPending("k")
	if owner2 {
		t.Fatal("second caller should not own the pending call")
	}
	if first != second {
		t.Fatal("both callers should share one pending call")
	}

	want := &Response{Data: "shared"}
	go sm.CompletePending("k", want, nil)

	resp, err := second.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if resp != want {
		t.Error("waiter should receive the owner's response")
	}

	if _, ok := sm.PendingCall("k"); ok {
		t.Error("pending call should be removed once settled")
	}
}

func TestPendingCallWaitHonorsContext(t *testing.T) {
	sm := newTestState()
	pending, _ := sm.BeginPending("k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pending.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMetaIndependentLifecycle(t *testing.T) {
	sm := newTestState()
	sm.SetCache("k", EntryState{Data: "v"}, nil)
	sm.SetMeta("k", "transformed", "V")

	sm.DeleteCache("k")
	if v, ok := sm.Meta("k", "transformed"); !ok || v != "V" {
		t.Error("meta should outlive the cache entry")
	}

	sm.ClearMeta("k")
	if _, ok := sm.Meta("k", "transformed"); ok {
		t.Error("meta should be gone after ClearMeta")
	}
}
