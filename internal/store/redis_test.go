package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	defer r.Close()

	assert.True(t, r.Healthy(context.Background()))

	mr.Close()
	assert.False(t, r.Healthy(context.Background()))
}

func TestHealthyNil(t *testing.T) {
	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	require.NoError(t, r.Close())
}
