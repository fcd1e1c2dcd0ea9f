package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reena96/picstormai-sub001/internal/broadcast"
)

type published struct {
	topic string
	msg   broadcast.Message
}

// recordingPublisher keeps every published message in order
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, msg broadcast.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, msg: msg})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func (p *recordingPublisher) ofType(messageType broadcast.MessageType) []published {
	var out []published
	for _, m := range p.all() {
		if m.msg.MessageType() == messageType {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewService(NewRegistry(), pub)
	svc.now = func() time.Time { return testNow }
	return svc, pub
}

func TestService_CreateSession(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	snap, err := svc.CreateSession(ctx, "alice", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "alice", snap.OwnerID)
	assert.Equal(t, 3, snap.TotalCount)
	assert.Equal(t, 0, snap.UploadedCount)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, testNow, snap.CreatedAt)
	assert.Empty(t, pub.all(), "creating a session is silent")

	got, err := svc.GetSession(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestService_CreateSessionInvalid(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		owner string
		total int
	}{
		{"zero total", "alice", 0},
		{"negative total", "alice", -4},
		{"missing owner", "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSession(context.Background(), tt.owner, tt.total)
			assert.ErrorIs(t, err, ErrInvalidSessionArgument)
		})
	}
	assert.Equal(t, 0, svc.Registry().Len())
}

func TestService_ApplyUploadCompleted_Progress(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 3)
	require.NoError(t, err)

	snap, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.UploadedCount)
	assert.InDelta(t, 33.333, snap.ProgressPercent, 0.001)

	_, err = svc.ApplyUploadCompleted(ctx, created.ID, "p2")
	require.NoError(t, err)
	snap, err = svc.ApplyUploadCompleted(ctx, created.ID, "p3")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.ProgressPercent)
	require.NotNil(t, snap.CompletedAt)

	msgs := pub.all()
	require.Len(t, msgs, 5)

	topic := broadcast.SessionTopic(created.ID)
	for i, photoID := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, topic, msgs[i].topic)
		uploaded, ok := msgs[i].msg.(broadcast.PhotoUploaded)
		require.True(t, ok)
		assert.Equal(t, photoID, uploaded.PhotoID)
		assert.Equal(t, i+1, uploaded.UploadedCount)
		assert.Equal(t, 3, uploaded.TotalCount)
	}

	completed, ok := msgs[3].msg.(broadcast.SessionCompleted)
	require.True(t, ok)
	assert.Equal(t, topic, msgs[3].topic)
	assert.Equal(t, 3, completed.UploadedCount)
	assert.Equal(t, 3, completed.TotalCount)

	note, ok := msgs[4].msg.(broadcast.Notification)
	require.True(t, ok)
	assert.Equal(t, broadcast.UserTopic("alice"), msgs[4].topic)
	assert.Equal(t, created.ID, note.SessionID)

	assert.Empty(t, svc.ListActiveForUser(ctx, "alice"))
}

func TestService_ApplyUploadCompleted_DuplicateIsNoop(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 2)
	require.NoError(t, err)

	first, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	second, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, pub.all(), 1)
}

func TestService_ApplyUploadCompleted_TerminalIsNoop(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 1)
	require.NoError(t, err)
	_, err = svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	before := len(pub.all())

	snap, err := svc.ApplyUploadCompleted(ctx, created.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.UploadedCount)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Len(t, pub.all(), before)

	expiring, err := svc.CreateSession(ctx, "alice", 2)
	require.NoError(t, err)
	_, err = svc.ExpireSession(ctx, expiring.ID)
	require.NoError(t, err)

	snap, err = svc.ApplyUploadCompleted(ctx, expiring.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, snap.Status)
	assert.Equal(t, 0, snap.UploadedCount)
	assert.Len(t, pub.all(), before)
}

func TestService_ApplyUploadCompleted_Errors(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyUploadCompleted(ctx, "missing", "p1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	created, err := svc.CreateSession(ctx, "alice", 1)
	require.NoError(t, err)
	_, err = svc.ApplyUploadCompleted(ctx, created.ID, "")
	assert.ErrorIs(t, err, ErrInvalidSessionArgument)

	assert.Empty(t, pub.all())
}

func TestService_PublishErrorDoesNotFailEvent(t *testing.T) {
	svc, pub := newTestService(t)
	pub.err = errors.New("relay down")
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 1)
	require.NoError(t, err)

	snap, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestService_NilPublisher(t *testing.T) {
	svc := NewService(NewRegistry(), nil)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 1)
	require.NoError(t, err)
	snap, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestService_ConcurrentCompletionsFinishOnce(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	const total = 100
	created, err := svc.CreateSession(ctx, "alice", total)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		photoID := fmt.Sprintf("photo-%d", i)
		// every photo is reported twice to exercise duplicate delivery
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.ApplyUploadCompleted(ctx, created.ID, photoID)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	snap, err := svc.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, total, snap.UploadedCount)
	assert.Len(t, snap.UploadedPhotoIDs, total)
	assert.Equal(t, StatusCompleted, snap.Status)

	assert.Len(t, pub.ofType(broadcast.TypePhotoUploaded), total)
	assert.Len(t, pub.ofType(broadcast.TypeSessionCompleted), 1)
	assert.Len(t, pub.ofType(broadcast.TypeUploadSessionCompleted), 1)

	seen := map[int]bool{}
	for _, m := range pub.ofType(broadcast.TypePhotoUploaded) {
		count := m.msg.(broadcast.PhotoUploaded).UploadedCount
		assert.False(t, seen[count], "uploaded count %d reported twice", count)
		seen[count] = true
	}
}

func TestService_RecordUploadFailed(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 2)
	require.NoError(t, err)
	_, err = svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)

	snap, err := svc.RecordUploadFailed(ctx, created.ID, "p2", "checksum mismatch")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.UploadedCount)
	assert.Equal(t, 1, snap.FailedCount)
	assert.Equal(t, StatusActive, snap.Status)

	failed := pub.ofType(broadcast.TypePhotoFailed)
	require.Len(t, failed, 1)
	msg := failed[0].msg.(broadcast.PhotoFailed)
	assert.Equal(t, "p2", msg.PhotoID)
	assert.Equal(t, "checksum mismatch", msg.ErrorMessage)
	assert.Equal(t, 1, msg.UploadedCount)
	assert.Equal(t, 2, msg.TotalCount)

	// a retried photo still completes the session
	snap, err = svc.ApplyUploadCompleted(ctx, created.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)

	_, err = svc.RecordUploadFailed(ctx, created.ID, "p3", "late")
	require.NoError(t, err)
	assert.Len(t, pub.ofType(broadcast.TypePhotoFailed), 1, "terminal sessions ignore failures")

	_, err = svc.RecordUploadFailed(ctx, "missing", "p1", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ExpireSession(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 2)
	require.NoError(t, err)

	snap, err := svc.ExpireSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, snap.Status)
	require.NotNil(t, snap.ExpiredAt)
	assert.Empty(t, pub.all(), "expiry is not broadcast")
	assert.Empty(t, svc.ListActiveForUser(ctx, "alice"))

	again, err := svc.ExpireSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	_, err = svc.ExpireSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_DeliversThroughHub(t *testing.T) {
	hub := broadcast.NewHub()
	defer hub.Close()
	svc := NewService(NewRegistry(), hub)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice", 1)
	require.NoError(t, err)

	sub := hub.Subscribe(broadcast.SessionTopic(created.ID))
	defer sub.Close()

	_, err = svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)

	var types []broadcast.MessageType
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			types = append(types, msg.MessageType())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, []broadcast.MessageType{broadcast.TypePhotoUploaded, broadcast.TypeSessionCompleted}, types)
}

func TestService_CancelledCallerStillCompletesBroadcast(t *testing.T) {
	hub := broadcast.NewHub(broadcast.WithSubscriberBuffer(2), broadcast.WithSendTimeout(20*time.Millisecond))
	defer hub.Close()
	svc := NewService(NewRegistry(), hub)

	created, err := svc.CreateSession(context.Background(), "alice", 1)
	require.NoError(t, err)
	topic := broadcast.SessionTopic(created.ID)

	slow := hub.Subscribe(topic)
	for i := 0; i < 2; i++ {
		require.NoError(t, hub.Publish(context.Background(), topic, broadcast.NewPhotoUploaded(created.ID, "old", 0, 1, 0)))
	}
	fast := hub.Subscribe(topic)
	defer fast.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := svc.ApplyUploadCompleted(ctx, created.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)

	var types []broadcast.MessageType
	for i := 0; i < 2; i++ {
		select {
		case msg := <-fast.C():
			types = append(types, msg.MessageType())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, []broadcast.MessageType{broadcast.TypePhotoUploaded, broadcast.TypeSessionCompleted}, types)

	// the stalled subscriber is dropped by the send timeout, not by the caller
	select {
	case <-slow.Done():
	case <-time.After(time.Second):
		t.Fatal("slow subscriber should have been dropped")
	}
}
