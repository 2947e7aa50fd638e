package workerPool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_CollectKeepsOrder(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4, GlobalBuffer: 8})
	defer wp.Close()

	const tasks = 500
	room := wp.CreateRoom(tasks)
	for i := 0; i < tasks; i++ {
		i := i
		room.NewTaskWaitForFreeSlot(i, func() interface{} {
			return i * i
		})
	}

	results := room.Collect()
	require.Len(t, results, tasks)
	for i, r := range results {
		assert.Equal(t, i*i, r.(int))
	}
}

func TestRoom_NewTaskRejectsBadIndex(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1})
	defer wp.Close()

	room := wp.CreateRoom(2)
	assert.Error(t, room.NewTask(2, func() interface{} { return nil }))
	assert.Error(t, room.NewTask(-1, func() interface{} { return nil }))
	require.NoError(t, room.NewTask(1, func() interface{} { return "done" }))

	results := room.Collect()
	assert.Nil(t, results[0])
	assert.Equal(t, "done", results[1])
}

func TestNewWorkerPool_Defaults(t *testing.T) {
	wp := NewWorkerPool(Config{})
	defer wp.Close()

	assert.Greater(t, wp.WorkerCount(), 0)
	assert.Equal(t, 10000, cap(wp.taskQueue))
}

func TestRoom_EmptyCollect(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 2})
	defer wp.Close()

	assert.Empty(t, wp.CreateRoom(0).Collect())
}
