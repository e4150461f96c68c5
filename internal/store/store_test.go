package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkka02/multi-agent-chat/internal/store"
)

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "chat.sqlite3"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Kind: "status", Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.ID)
	}
}

func TestAppendDefaults(t *testing.T) {
	s := openTestStore(t)

	msg, err := s.Append(context.Background(), store.Draft{Agent: "bot1", Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "default", msg.Room)
	assert.Equal(t, "status", msg.Kind)

	ts, err := time.Parse(time.RFC3339Nano, msg.TS)
	require.NoError(t, err, "default timestamp must be RFC3339")
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestAppendKeepsCallerTimestamp(t *testing.T) {
	s := openTestStore(t)

	msg, err := s.Append(context.Background(), store.Draft{
		TS: "2025-06-01T12:00:00Z", Agent: "bot1", Content: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", msg.TS)
}

func TestAppendValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft store.Draft
	}{
		{"empty content", store.Draft{Agent: "bot1", Content: ""}},
		{"empty agent", store.Draft{Agent: "", Content: "hello"}},
		{"content too long", store.Draft{Agent: "bot1", Content: strings.Repeat("x", 4001)}},
		{"room too long", store.Draft{Room: strings.Repeat("r", 65), Agent: "bot1", Content: "hello"}},
		{"agent too long", store.Draft{Agent: strings.Repeat("a", 65), Content: "hello"}},
		{"kind too long", store.Draft{Agent: "bot1", Kind: strings.Repeat("k", 33), Content: "hello"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Append(ctx, tc.draft)
			require.ErrorIs(t, err, store.ErrValidation)
		})
	}

	// Nothing was persisted.
	msgs, err := s.Fetch(ctx, "default", 1000, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAppendAtMaxBounds(t *testing.T) {
	s := openTestStore(t)

	msg, err := s.Append(context.Background(), store.Draft{
		Room:    strings.Repeat("r", 64),
		Agent:   strings.Repeat("a", 64),
		Kind:    strings.Repeat("k", 32),
		Content: strings.Repeat("c", 4000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
}

func TestFetchReturnsPublishOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	msgs, err := s.Fetch(ctx, "ops", 1000, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 20)

	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.ID)
		assert.Equal(t, fmt.Sprintf("msg %d", i), m.Content)
	}
}

func TestFetchAfterID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "x"})
		require.NoError(t, err)
	}

	msgs, err := s.Fetch(ctx, "ops", 1000, 7)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Greater(t, m.ID, int64(7))
	}
}

func TestFetchClampsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "x"})
		require.NoError(t, err)
	}

	// Below the minimum still returns one message.
	msgs, err := s.Fetch(ctx, "ops", 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = s.Fetch(ctx, "ops", -10, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = s.Fetch(ctx, "ops", 2, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestFetchUnknownRoomIsEmptyNotError(t *testing.T) {
	s := openTestStore(t)

	msgs, err := s.Fetch(context.Background(), "nowhere", 100, 0)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestFetchIsolatesRooms(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "for ops"})
	require.NoError(t, err)
	_, err = s.Append(ctx, store.Draft{Room: "dev", Agent: "bot2", Content: "for dev"})
	require.NoError(t, err)

	msgs, err := s.Fetch(ctx, "dev", 1000, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for dev", msgs[0].Content)
}

func TestIDsNotReusedAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.sqlite3")
	ctx := context.Background()

	s, err := store.Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "x"})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	reopened, err := store.Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	msg, err := reopened.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "after restart"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), msg.ID)
}

func TestConcurrentAppendsProduceGaplessIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const publishers = 2
	const perPublisher = 50

	var wg sync.WaitGroup
	errs := make(chan error, publishers*perPublisher)
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_, err := s.Append(ctx, store.Draft{
					Room:    "ops",
					Agent:   fmt.Sprintf("bot%d", p),
					Content: fmt.Sprintf("msg %d", i),
				})
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.Fetch(ctx, "ops", 1000, 0)
	require.NoError(t, err)
	require.Len(t, msgs, publishers*perPublisher)

	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.ID, "no id skipped or duplicated")
	}
}

func TestReadersDoNotFailDuringConcurrentAppends(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Readers and the writer run on different pooled connections; each
	// connection must carry the WAL and busy-timeout settings or reads
	// would surface busy errors here.
	var wg sync.WaitGroup
	errs := make(chan error, 200)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := s.Append(ctx, store.Draft{Room: "ops", Agent: "bot1", Content: "x"})
			errs <- err
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := s.Fetch(ctx, "ops", 1000, 0)
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := s.Fetch(ctx, "ops", 1000, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 100)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, store.ClampLimit(0))
	assert.Equal(t, 1, store.ClampLimit(-5))
	assert.Equal(t, 1, store.ClampLimit(1))
	assert.Equal(t, 500, store.ClampLimit(500))
	assert.Equal(t, 1000, store.ClampLimit(1000))
	assert.Equal(t, 1000, store.ClampLimit(5000))
}
