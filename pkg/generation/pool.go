package generation

import (
	"log/slog"
	"sync"
)

var (
	defaultNumWorkers = 4
	defaultQueueSize  = 256
)

// pool runs admitted requests on a fixed number of workers fed by a
// buffered channel.
type pool struct {
	jobs   chan *request
	wg     sync.WaitGroup
	logger *slog.Logger
	run    func(*request)
}

func newPool(workers, size int, logger *slog.Logger, run func(*request)) *pool {
	if workers <= 0 {
		workers = defaultNumWorkers
	}
	if size <= 0 {
		size = defaultQueueSize
	}

	p := &pool{
		jobs:   make(chan *request, size),
		logger: logger,
		run:    run,
	}

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// enqueue hands r to the workers. Returns false if the buffer is full, in
// which case the request was not queued.
func (p *pool) enqueue(r *request) bool {
	select {
	case p.jobs <- r:
		return true
	default:
		return false
	}
}

func (p *pool) depth() int {
	return len(p.jobs)
}

// close stops accepting jobs and waits for queued and running jobs to drain.
// Callers must not enqueue after close.
func (p *pool) close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("generation worker started", "worker_id", id)

	for r := range p.jobs {
		p.run(r)
	}

	p.logger.Debug("generation worker stopped", "worker_id", id)
}
