package kueri

import (
	"context"
	"testing"
	"time"
)

func optimisticWriteRequest(listKey string) *Request {
	return NewRequest("posts").Post().
		Body(map[string]any{"title": "new"}).
		PluginOption(OptimisticPluginName, "queryKey", listKey).
		PluginOption(OptimisticPluginName, "update", func(current any) any {
			list, _ := current.([]any)
			return append(list, "new")
		}).
		Build()
}

func TestOptimisticOverlayVisibleBeforeSettle(t *testing.T) {
	var overlayDuringFlight []any
	listKey := "GET /posts"

	var client *Client
	transport := func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
		// the overlay must already be applied while the write is in flight
		entry, _ := client.State().GetCache(listKey)
		overlayDuringFlight, _ = entry.State.Data.([]any)
		return &TransportResponse{OK: true, Status: 201, Data: map[string]any{"id": float64(1)}}, nil
	}
	client = New(
		WithTransport(transport),
		WithoutDefaultPlugins(),
		WithPlugins(NewOptimisticPlugin()),
	)
	client.State().SetCache(listKey, EntryState{Data: []any{"old"}, Timestamp: time.Now()}, []string{"posts"})

	resp := client.Write(optimisticWriteRequest(listKey)).Execute(context.Background())
	if resp.Error != nil {
		t.Fatalf("write failed: %v", resp.Error)
	}
	if len(overlayDuringFlight) != 2 || overlayDuringFlight[1] != "new" {
		t.Errorf("overlay should be visible during flight, got %v", overlayDuringFlight)
	}
	if v, _ := client.State().Meta(listKey, MetaOptimistic); v != false {
		t.Error("optimistic flag should be cleared after settle")
	}
}

func TestOptimisticRollbackOnError(t *testing.T) {
	client := New(
		WithTransport(func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
			return &TransportResponse{OK: false, Status: 500}, nil
		}),
		WithoutDefaultPlugins(),
		WithPlugins(NewOptimisticPlugin()),
	)
	listKey := "GET /posts"
	client.State().SetCache(listKey, EntryState{Data: []any{"old"}, Timestamp: time.Now()}, []string{"posts"})

	resp := client.Write(optimisticWriteRequest(listKey)).Execute(context.Background())
	if resp.Error == nil {
		t.Fatal("expected write failure")
	}

	entry, ok := client.State().GetCache(listKey)
	if !ok {
		t.Fatal("entry should survive the rollback")
	}
	list, _ := entry.State.Data.([]any)
	if len(list) != 1 || list[0] != "old" {
		t.Errorf("overlay should be rolled back to the previous data, got %v", list)
	}
}

func TestOptimisticRollbackDeletesWhenNoPriorEntry(t *testing.T) {
	client := New(
		WithTransport(func(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
			return &TransportResponse{OK: false, Status: 500}, nil
		}),
		WithoutDefaultPlugins(),
		WithPlugins(NewOptimisticPlugin()),
	)
	listKey := "GET /posts"

	client.Write(optimisticWriteRequest(listKey)).Execute(context.Background())
	if _, ok := client.State().GetCache(listKey); ok {
		t.Error("rollback should delete the overlay when no entry existed before")
	}
}
