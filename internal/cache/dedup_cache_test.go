package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCache_IsSeen(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)

	// 首次查询
	assert.False(t, cache.IsSeen(KindEntry, 123))

	// 标记后命中
	cache.Mark(KindEntry, 123)
	assert.True(t, cache.IsSeen(KindEntry, 123))

	// 入场/出场维度独立
	assert.False(t, cache.IsSeen(KindExit, 123))

	// 不同交易独立
	assert.False(t, cache.IsSeen(KindEntry, 456))
}

func TestDedupCache_TTL(t *testing.T) {
	cache := NewDedupCache(100 * time.Millisecond)

	cache.Mark(KindEntry, 123)
	assert.True(t, cache.IsSeen(KindEntry, 123))

	// 等待窗口过期，同一交易重新可提交
	time.Sleep(150 * time.Millisecond)
	assert.False(t, cache.IsSeen(KindEntry, 123))
}

func TestDedupCache_TryMark(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)

	// 首次占位成功，窗口内再占失败
	assert.True(t, cache.TryMark(KindEntry, 123))
	assert.False(t, cache.TryMark(KindEntry, 123))
	assert.True(t, cache.IsSeen(KindEntry, 123))

	// 维度独立
	assert.True(t, cache.TryMark(KindExit, 123))
}

func TestDedupCache_TryMarkConcurrent(t *testing.T) {
	// 多轮并发争抢同一键，每轮恰好一个协程占位成功
	for round := int64(0); round < 200; round++ {
		cache := NewDedupCache(30 * time.Second)
		wins := make(chan bool, 8)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if cache.TryMark(KindExit, round) {
					wins <- true
				}
			}()
		}
		wg.Wait()
		close(wins)

		assert.Len(t, wins, 1, "round %d", round)
	}
}

func TestDedupCache_Concurrent(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)
	done := make(chan bool)

	// 10 个协程同时读写
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				tradeID := int64(id*1000 + j)
				cache.Mark(KindEntry, tradeID)
				cache.IsSeen(KindEntry, tradeID)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}
