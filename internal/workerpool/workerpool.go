// Package workerpool runs a fixed-size pool of goroutines, supervised by
// a tomb.Tomb, against a shared task channel. It is the transport
// layer's connection-handling primitive, not part of the matching core.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction processes one task. A non-nil error kills the tomb.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool dispatches queued tasks to n long-lived workers.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
}

// New creates a pool sized for n concurrent workers.
func New(n int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     n,
	}
}

// AddTask enqueues a task for the next free worker. Blocks if the queue
// is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup keeps the pool topped up to n active workers until t dies.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("workerpool: starting")

	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.n {
				t.Go(func() error {
					err := pool.worker(t)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-pool.tasks:
		if err := pool.work(t, task); err != nil {
			log.Error().Err(err).Msg("workerpool: worker exiting on error")
			return err
		}
	}
	return nil
}
