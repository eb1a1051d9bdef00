package live

import (
	"log"
	"sync"
)

// Worker runs submitted jobs one at a time, in submission order, on its own
// goroutine.
type Worker struct {
	jobs chan func()
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewWorker(queue int) *Worker {
	if queue <= 0 {
		queue = 16
	}
	w := &Worker{
		jobs: make(chan func(), queue),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	for job := range w.jobs {
		w.exec(job)
	}
}

func (w *Worker) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: job panicked: %v", r)
		}
	}()
	job()
}

// Submit queues job. It reports false once the worker is closed.
func (w *Worker) Submit(job func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.jobs <- job
	return true
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
