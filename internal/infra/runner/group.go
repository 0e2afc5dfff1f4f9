package runner

import (
	"context"
	"sync"
)

// Result carries one task's terminal error, tagged with its name so the
// supervisor can tell which goroutine ended.
type Result struct {
	Name string
	Err  error
}

// Group supervises the long-running goroutines of the process: the scanner
// pool, the coordinator and the admin server. Every task reports its exit on
// the shared channel; the first unexpected exit tears the process down.
type Group struct {
	wg   sync.WaitGroup
	once sync.Once
	done chan Result
}

func New() *Group {
	return &Group{done: make(chan Result, 8)}
}

// Go starts a named task.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.done <- Result{Name: name, Err: fn(ctx)}
	}()
}

// Done receives task exits.
func (g *Group) Done() <-chan Result { return g.done }

// Wait blocks until every task has exited, then closes the exit channel.
func (g *Group) Wait() {
	g.wg.Wait()
	g.once.Do(func() { close(g.done) })
}
