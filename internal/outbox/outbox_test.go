package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, o Outbox) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

	require.NoError(t, o.Push(ctx, "a", Event{Kind: KindToast, Level: "success", Message: "sukses attend", At: at}))
	require.NoError(t, o.Push(ctx, "a", Event{Kind: KindOpen, URL: "http://x/public/pdfAttendance-N.pdf", At: at}))
	require.NoError(t, o.Push(ctx, "b", Event{Kind: KindChanged, Field: "fullName", At: at}))

	got, err := o.Drain(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KindToast, got[0].Kind)
	assert.Equal(t, "sukses attend", got[0].Message)
	assert.Equal(t, KindOpen, got[1].Kind)
	assert.True(t, got[1].At.Equal(at))

	got, err = o.Drain(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, o.Discard(ctx, "b"))
	got, err = o.Drain(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, got)

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Push(ctx, "c", Event{Kind: KindChanged, Field: string(rune('a' + i))}))
	}
	got, err = o.Drain(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Field)
	assert.Equal(t, "e", got[2].Field)
}

func TestInMemory(t *testing.T) {
	exercise(t, NewInMemory(3))
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	o := NewRedis(client, "", time.Minute, 3)
	exercise(t, o)

	require.NoError(t, o.Push(context.Background(), "ttl", Event{Kind: KindToast}))
	assert.Equal(t, time.Minute, mr.TTL("kiosk:outbox:ttl"))
}
