package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_NoSigners(t *testing.T) {
	_, err := NewScheduler(nil, time.Second)
	assert.ErrorIs(t, err, ErrNoSigners)
}

func TestAcquire_RoundRobin(t *testing.T) {
	s, err := NewScheduler([]string{"0xaa", "0xbb", "0xcc"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())

	ctx := context.Background()
	a1, _ := s.Acquire(ctx)
	a2, _ := s.Acquire(ctx)
	a3, _ := s.Acquire(ctx)

	// 三个钱包轮流取用，互不重复
	assert.ElementsMatch(t, []string{"0xaa", "0xbb", "0xcc"}, []string{a1, a2, a3})
}

func TestAcquire_PerWalletSpacing(t *testing.T) {
	delay := 100 * time.Millisecond
	s, err := NewScheduler([]string{"0xaa"}, delay)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	_, err = s.Acquire(ctx)
	require.NoError(t, err)
	_, err = s.Acquire(ctx)
	require.NoError(t, err)

	// 同一钱包两次取用间隔不小于 delay
	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestAcquire_ContextCancel(t *testing.T) {
	s, err := NewScheduler([]string{"0xaa"}, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Acquire(ctx)
	require.NoError(t, err)

	// 钱包被占用一分钟，取消应立即返回
	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = s.Acquire(cancelCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStats(t *testing.T) {
	s, err := NewScheduler([]string{"0xaa", "0xbb"}, time.Minute)
	require.NoError(t, err)

	_, err = s.Acquire(context.Background())
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 2, stats["signers"])
	assert.Equal(t, 1, stats["busy"])
}
