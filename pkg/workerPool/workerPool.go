package workerPool

import (
	"fmt"
	"runtime"
	"sync"
)

type WorkerPool struct {
	config    Config
	taskQueue chan Task
	closeOnce sync.Once
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Room groups the tasks of one job. Results are kept at the index they were
// submitted with, so callers get them back in order.
type Room struct {
	results     []interface{}
	resultMutex sync.Mutex
	wg          sync.WaitGroup
	wp          *WorkerPool
}

type Task struct {
	index int
	run   func() interface{}
	room  *Room
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		numberOfCPUs := runtime.NumCPU()
		config.WorkerCount = numberOfCPUs * 3
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
	}

	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) WorkerCount() int {
	return wp.config.WorkerCount
}

func (wp *WorkerPool) worker() {
	for t := range wp.taskQueue {
		result := t.run()

		t.room.resultMutex.Lock()
		t.room.results[t.index] = result
		t.room.resultMutex.Unlock()

		t.room.wg.Done()
	}
}

// Close stops the workers once the queue is drained. Submitting after Close
// panics.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.taskQueue)
	})
}

// CreateRoom prepares a room for exactly size tasks, indexed 0..size-1.
func (wp *WorkerPool) CreateRoom(size int) *Room {
	return &Room{
		results: make([]interface{}, size),
		wp:      wp,
	}
}

// NewTaskWaitForFreeSlot queues the job and blocks while the global queue is full.
func (ro *Room) NewTaskWaitForFreeSlot(index int, job func() interface{}) {
	ro.wg.Add(1)
	ro.wp.taskQueue <- Task{
		index: index,
		run:   job,
		room:  ro,
	}
}

// NewTask is the non blocking variant of NewTaskWaitForFreeSlot.
func (ro *Room) NewTask(index int, job func() interface{}) error {
	if index < 0 || index >= len(ro.results) {
		return fmt.Errorf("task index %d outside of room size %d", index, len(ro.results))
	}

	ro.wg.Add(1)
	select {
	case ro.wp.taskQueue <- Task{index: index, run: job, room: ro}:
		return nil
	default:
		ro.wg.Done()
		return fmt.Errorf("Global buffer is full. Please wait for some tasks to finish. Or increase the buffer size.")
	}
}

// Collect waits for all queued tasks and returns their results by index.
func (ro *Room) Collect() []interface{} {
	ro.wg.Wait()

	ro.resultMutex.Lock()
	defer ro.resultMutex.Unlock()

	results := make([]interface{}, len(ro.results))
	copy(results, ro.results)
	return results
}
