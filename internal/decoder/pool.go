package decoder

import (
	"context"
	"runtime"
	"sync"

	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

type task struct {
	raw   []byte
	style Style
	reply chan result
}

type result struct {
	png []byte
	err error
}

// Pool rasterizes vector tiles on a fixed set of workers. A tile at (x, y)
// is always handled by worker (x+y) mod poolSize, so repeated decodes of the
// same coordinate are deterministically reproducible. When the pool is
// closed, Rasterize falls back to decoding on the caller's goroutine:
// correctness never depends on worker availability, only latency does.
type Pool struct {
	queues []chan task
	size   int
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger logger.Logger
}

// NewPool starts workers. size <= 0 sizes the pool to available cores minus
// one, with a floor of one worker.
func NewPool(size int, l logger.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU() - 1
	}
	if size < 1 {
		size = 1
	}

	p := &Pool{
		queues: make([]chan task, size),
		size:   size,
		quit:   make(chan struct{}),
		logger: l,
	}
	for i := range p.queues {
		p.queues[i] = make(chan task, 16)
		p.wg.Add(1)
		go p.worker(p.queues[i])
	}

	l.Info("decoder pool started", "workers", size)
	return p
}

func (p *Pool) worker(queue chan task) {
	defer p.wg.Done()
	// Each worker owns its decode scratch state; the queue is the only
	// shared structure.
	for {
		select {
		case t := <-queue:
			png, err := render(t.raw, t.style)
			t.reply <- result{png: png, err: err}
		case <-p.quit:
			return
		}
	}
}

// Rasterize decodes raw vector payload bytes and renders them with the given
// style, returning PNG bytes.
func (p *Pool) Rasterize(ctx context.Context, x, y int, raw []byte, style Style) ([]byte, error) {
	if p == nil {
		return render(raw, style)
	}

	idx := (x + y) % p.size
	if idx < 0 {
		idx += p.size
	}

	t := task{raw: raw, style: style, reply: make(chan result, 1)}
	select {
	case p.queues[idx] <- t:
	case <-p.quit:
		return render(raw, style)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-t.reply:
		return res.png, res.err
	case <-p.quit:
		return render(raw, style)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers. Later Rasterize calls run synchronously on the
// caller's goroutine.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
