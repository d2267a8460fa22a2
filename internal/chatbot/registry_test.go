package chatbot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

func newRedisStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSnapshotStore(client, time.Hour), mr
}

func TestRedisSnapshotStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	missing, err := store.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snap := salesSnapshot("sess-redis")
	snap.Turns = []Turn{{ID: "t1", Sender: SenderBot, Content: "Olá!", Timestamp: time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)}}
	snap.Counters = Counters{SalesQuestions: 2, SalesLimit: 5, ExtendedLimit: 5}
	require.NoError(t, store.Save(ctx, snap))
	assert.True(t, mr.Exists("chat_session:sess-redis"))
	assert.Equal(t, time.Hour, mr.TTL("chat_session:sess-redis"))

	loaded, err := store.Load(ctx, "sess-redis")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snap.Lead, loaded.Lead)
	assert.Equal(t, snap.Counters, loaded.Counters)
	require.Len(t, loaded.Turns, 1)
	assert.Equal(t, "Olá!", loaded.Turns[0].Content)

	require.NoError(t, store.Delete(ctx, "sess-redis"))
	assert.False(t, mr.Exists("chat_session:sess-redis"))
}

func TestRedisSnapshotStore_CorruptPayload(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("chat_session:bad", "{not json"))
	_, err := store.Load(context.Background(), "bad")
	assert.Error(t, err)
}

func newTestRegistry(store SnapshotStore) *Registry {
	cfg := testConfig()
	return NewRegistry(RegistryOptions{
		Config:  cfg,
		Session: SessionOptions{Responder: newTestSource(cfg, echoLLM(), nil)},
		Store:   store,
		IdleTTL: time.Minute,
		Logger:  logging.Discard(),
	})
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	s := r.Create(ctx)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RestoresFromStore(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	first := newTestRegistry(store)
	s := first.Create(ctx)
	s.Initialize(ctx)
	s.SendMessage(ctx, "João Silva")
	first.Save(ctx, s)

	// A second process only sees the snapshot.
	second := newTestRegistry(store)
	restored, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, StageCollectingPhone, restored.Stage())
	assert.Equal(t, "João Silva", restored.Lead().Name)
	assert.Len(t, restored.Turns(), 3)

	reply := restored.SendMessage(ctx, "(61) 99999-8888")
	assert.Equal(t, StageCollectingEmail, reply.Stage)
}

func TestRegistry_ResetDropsSnapshot(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	r := newTestRegistry(store)

	s := r.Create(ctx)
	s.Initialize(ctx)
	r.Save(ctx, s)
	require.True(t, mr.Exists("chat_session:"+s.ID()))

	r.Reset(ctx, s)
	assert.False(t, mr.Exists("chat_session:"+s.ID()))
	assert.Equal(t, StageGreeting, s.Stage())
	assert.Equal(t, 1, r.Len())

	r.Delete(ctx, s.ID())
	assert.Zero(t, r.Len())
	_, err := r.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()
	old := r.Create(ctx)
	fresh := r.Create(ctx)

	now := time.Now()
	assert.Zero(t, r.Sweep(now))
	fresh.Initialize(ctx)

	assert.Equal(t, 2, r.Sweep(now.Add(2*time.Minute)))
	_, err := r.Get(ctx, old.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	r := newTestRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
