package kiosk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorkiosk/internal/form"
	"visitorkiosk/internal/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistryOpenGetClose(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var closed []string
	r := NewRegistry(Config{Client: &fakeClient{}, Metrics: m}, time.Minute, func(id string) { closed = append(closed, id) })

	sinks := map[string]*recordingSink{}
	s, err := r.Open(func(id string) Sink {
		sinks[id] = &recordingSink{}
		return sinks[id]
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())
	require.Contains(t, sinks, s.ID())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	got, ok := r.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	require.NoError(t, got.SetField(form.FieldFullName, "Noor"))
	assert.Equal(t, []form.Field{form.FieldFullName}, sinks[s.ID()].changed)

	assert.True(t, r.Close(s.ID()))
	assert.False(t, r.Close(s.ID()))
	assert.True(t, s.Closed())
	assert.Equal(t, []string{s.ID()}, closed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))

	_, ok = r.Get(s.ID())
	assert.False(t, ok)
}

func TestRegistrySweep(t *testing.T) {
	c := &clock{now: time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)}
	r := NewRegistry(Config{Client: &fakeClient{}, Now: c.Now}, 10*time.Minute, nil)
	sink := func(string) Sink { return &recordingSink{} }

	idle, err := r.Open(sink)
	require.NoError(t, err)
	c.Advance(8 * time.Minute)
	active, err := r.Open(sink)
	require.NoError(t, err)
	c.Advance(5 * time.Minute)
	require.NoError(t, active.SetField(form.FieldAddress, "x"))

	assert.Equal(t, 1, r.Sweep())
	assert.True(t, idle.Closed())
	assert.False(t, active.Closed())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRunClosesAllOnShutdown(t *testing.T) {
	r := NewRegistry(Config{Client: &fakeClient{}}, time.Hour, nil)
	s, err := r.Open(func(string) Sink { return &recordingSink{} })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Hour) }()
	cancel()

	require.NoError(t, <-done)
	assert.True(t, s.Closed())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryMaxSessions(t *testing.T) {
	r := NewRegistry(Config{Client: &fakeClient{}, MaxSessions: 2}, time.Hour, nil)
	sink := func(string) Sink { return &recordingSink{} }

	first, err := r.Open(sink)
	require.NoError(t, err)
	_, err = r.Open(sink)
	require.NoError(t, err)

	_, err = r.Open(sink)
	require.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 2, r.Len())

	require.True(t, r.Close(first.ID()))
	_, err = r.Open(sink)
	assert.NoError(t, err)
}
