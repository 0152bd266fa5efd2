package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type mockStoryArchiver struct {
	count int64
	err   error
	calls atomic.Int32
}

func (m *mockStoryArchiver) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	m.calls.Add(1)
	return m.count, m.err
}

type mockSessionSweeper struct {
	count int64
	err   error
	calls atomic.Int32
}

func (m *mockSessionSweeper) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.calls.Add(1)
	return m.count, m.err
}

type mockScheduledPublisher struct {
	count int64
	err   error
	calls atomic.Int32
}

func (m *mockScheduledPublisher) PublishDueScheduled(ctx context.Context, now time.Time) (int64, error) {
	m.calls.Add(1)
	return m.count, m.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJob_Run(t *testing.T) {
	stories := &mockStoryArchiver{count: 3}
	sessions := &mockSessionSweeper{count: 5}
	scheduled := &mockScheduledPublisher{count: 2}
	job := NewJob(stories, sessions, scheduled, newTestLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stories.calls.Load() != 1 || sessions.calls.Load() != 1 || scheduled.calls.Load() != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1",
			stories.calls.Load(), sessions.calls.Load(), scheduled.calls.Load())
	}
}

// いずれかの処理が失敗しても残りの処理は実行される。
func TestJob_Run_ContinuesAfterFailure(t *testing.T) {
	stories := &mockStoryArchiver{err: errors.New("db down")}
	sessions := &mockSessionSweeper{}
	scheduled := &mockScheduledPublisher{}
	job := NewJob(stories, sessions, scheduled, newTestLogger())

	if err := job.Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want error")
	}
	if sessions.calls.Load() != 1 {
		t.Errorf("session sweep calls = %d, want 1", sessions.calls.Load())
	}
	if scheduled.calls.Load() != 1 {
		t.Errorf("scheduled publish calls = %d, want 1", scheduled.calls.Load())
	}
}

func TestJob_RunPeriodic_StopsOnCancel(t *testing.T) {
	stories := &mockStoryArchiver{}
	sessions := &mockSessionSweeper{}
	scheduled := &mockScheduledPublisher{}
	job := NewJob(stories, sessions, scheduled, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.RunPeriodic(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の実行を待ってからキャンセルする
	deadline := time.After(time.Second)
	for stories.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial run did not happen")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop after cancel")
	}
}
