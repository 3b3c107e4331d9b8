package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientFromRedis(rdb, time.Minute), mr
}

func TestSetAndGetResponse(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "questions:list:abc", []byte(`{"total":1}`)))

	payload, ok, err := c.GetResponse(ctx, "questions:list:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"total":1}`, string(payload))
}

func TestGetResponseMiss(t *testing.T) {
	c, _ := newTestClient(t)

	_, ok, err := c.GetResponse(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResponseExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "questions:filters", []byte(`{}`)))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.GetResponse(ctx, "questions:filters")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateQuestionsOnlyDropsQuestionKeys(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "questions:list:abc", []byte(`{}`)))
	require.NoError(t, c.SetResponse(ctx, "questions:filters", []byte(`{}`)))
	require.NoError(t, c.SetResponse(ctx, "admin:stats", []byte(`{}`)))

	require.NoError(t, c.InvalidateQuestions(ctx))

	_, ok, err := c.GetResponse(ctx, "questions:list:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.GetResponse(ctx, "questions:filters")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.GetResponse(ctx, "admin:stats")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilClientIsDisabledCache(t *testing.T) {
	var c *Client
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "k", []byte("v")))

	_, ok, err := c.GetResponse(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.InvalidateQuestions(ctx))
	require.NoError(t, c.Close())
}
