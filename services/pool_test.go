package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunParallelRunsEveryTask(t *testing.T) {
	var hits [100]atomic.Int32
	ran := runParallel(context.Background(), 8, len(hits), func(i int) {
		hits[i].Add(1)
	})

	assert.Equal(t, len(hits), ran)
	for i := range hits {
		assert.Equal(t, int32(1), hits[i].Load(), "task %d must run exactly once", i)
	}
}

func TestRunParallelEmptyBatch(t *testing.T) {
	assert.Zero(t, runParallel(context.Background(), 4, 0, func(int) {
		t.Fatal("no task should run")
	}))
}

func TestRunParallelStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	total := 10000
	ran := runParallel(ctx, 1, total, func(i int) {
		if i == 0 {
			cancel()
		}
	})

	assert.Greater(t, ran, 0, "in-flight work completes")
	assert.Less(t, ran, total, "pending tasks are discarded after cancel")
}
