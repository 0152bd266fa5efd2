package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type mockFollowerLister struct {
	listFunc func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockFollowerLister) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return m.listFunc(ctx, userID)
}

type mockFeedInvalidator struct {
	invalidated []string
	err         error
}

func (m *mockFeedInvalidator) InvalidateViewers(ctx context.Context, viewerIDs []string) error {
	if m.err != nil {
		return m.err
	}
	m.invalidated = viewerIDs
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlePostCreated_InvalidatesFollowersAndAuthor(t *testing.T) {
	followers := &mockFollowerLister{
		listFunc: func(ctx context.Context, userID string) ([]string, error) {
			if userID != "author-1" {
				t.Errorf("ListFollowerIDs called with %s, want author-1", userID)
			}
			return []string{"follower-1", "follower-2"}, nil
		},
	}
	invalidator := &mockFeedInvalidator{}
	subscriber := NewSubscriber(nil, followers, invalidator, newTestLogger())

	event := PostCreatedEvent{
		PostID:      "post-1",
		AuthorID:    "author-1",
		ContentType: "normal",
		CreatedAt:   time.Now(),
	}

	if err := subscriber.HandlePostCreated(context.Background(), event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"follower-1", "follower-2", "author-1"}
	if len(invalidator.invalidated) != len(want) {
		t.Fatalf("invalidated = %v, want %v", invalidator.invalidated, want)
	}
	for i, id := range want {
		if invalidator.invalidated[i] != id {
			t.Errorf("invalidated[%d] = %s, want %s", i, invalidator.invalidated[i], id)
		}
	}
}

func TestHandlePostCreated_FollowerListFailure(t *testing.T) {
	followers := &mockFollowerLister{
		listFunc: func(ctx context.Context, userID string) ([]string, error) {
			return nil, errors.New("db connection lost")
		},
	}
	invalidator := &mockFeedInvalidator{}
	subscriber := NewSubscriber(nil, followers, invalidator, newTestLogger())

	err := subscriber.HandlePostCreated(context.Background(), PostCreatedEvent{AuthorID: "author-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if invalidator.invalidated != nil {
		t.Errorf("InvalidateViewers should not be called, got %v", invalidator.invalidated)
	}
}

func TestHandlePostCreated_InvalidationFailure(t *testing.T) {
	followers := &mockFollowerLister{
		listFunc: func(ctx context.Context, userID string) ([]string, error) {
			return []string{"follower-1"}, nil
		},
	}
	invalidator := &mockFeedInvalidator{err: errors.New("redis unavailable")}
	subscriber := NewSubscriber(nil, followers, invalidator, newTestLogger())

	err := subscriber.HandlePostCreated(context.Background(), PostCreatedEvent{AuthorID: "author-1"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// TestPostCreatedEvent_PayloadContract はイベントペイロードのJSONフィールド名を検証する。
// 発行側と購読側の暗黙の契約のため、フィールド名の変更を検知する。
func TestPostCreatedEvent_PayloadContract(t *testing.T) {
	event := PostCreatedEvent{
		PostID:      "post-1",
		AuthorID:    "author-1",
		ContentType: "product",
		CreatedAt:   time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"post_id", "author_id", "content_type", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("payload should contain field %q, got %s", key, data)
		}
	}
	if raw["post_id"] != "post-1" {
		t.Errorf("post_id = %v, want post-1", raw["post_id"])
	}
}
