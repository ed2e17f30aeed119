package radapter

import (
	"hash/fnv"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// WorkerPool is the fixed-size, name-hash-sharded pool of §4.9: Submit hashes name and
// assigns the job to workers[hash % N], keeping FIFO order for a given name at the cost
// of no load balancing across workers. The listener and reader pass the target stream or
// channel key as name.
type WorkerPool struct {
	logger  *log.Logger
	queues  []chan func()
	group   errgroup.Group
	closeMu sync.Mutex
	closed  bool
}

// NewWorkerPool starts n workers, each with a queue of the given depth.
func NewWorkerPool(n, queueDepth int, logger *log.Logger) *WorkerPool {
	if n <= 0 {
		n = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &WorkerPool{logger: logger, queues: make([]chan func(), n)}
	for i := range p.queues {
		q := make(chan func(), queueDepth)
		p.queues[i] = q
		p.group.Go(func() error {
			p.runWorker(q)
			return nil
		})
	}
	return p
}

func (p *WorkerPool) runWorker(queue chan func()) {
	for job := range queue {
		p.runJob(job)
	}
}

func (p *WorkerPool) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "recovered", r)
		}
	}()
	job()
}

// Submit enqueues job onto the worker selected by hashing name. It blocks if that
// worker's queue is full, applying natural backpressure to the caller (the listener or
// reader read loop) rather than dropping work silently.
func (p *WorkerPool) Submit(name string, job func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	idx := int(h.Sum32()) % len(p.queues)
	if idx < 0 {
		idx += len(p.queues)
	}
	p.queues[idx] <- job
}

// Close signals every worker to exit once its queue drains, then waits for them all.
func (p *WorkerPool) Close() error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	p.closeMu.Unlock()

	for _, q := range p.queues {
		close(q)
	}
	return p.group.Wait()
}
