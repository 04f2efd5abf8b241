package orch

import (
	"context"
	"sync"
	"time"
)

// EventLoop is the client's single logical thread. Posted work runs in
// order on the goroutine calling Run; Go steps run on their own goroutines
// and post their continuations back.
type EventLoop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	steps sync.WaitGroup
}

func NewEventLoop() *EventLoop {
	return &EventLoop{wake: make(chan struct{}, 1)}
}

func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) Go(step func() func()) {
	l.steps.Add(1)
	go func() {
		defer l.steps.Done()
		if cont := step(); cont != nil {
			l.Post(cont)
		}
	}()
}

// Run drains posted work and calls tick once per period until ctx ends.
func (l *EventLoop) Run(ctx context.Context, period time.Duration, tick func()) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.flush()
			return
		case <-l.wake:
			l.flush()
		case <-t.C:
			l.flush()
			if tick != nil {
				tick()
			}
		}
	}
}

// Wait blocks until every started step has returned.
func (l *EventLoop) Wait() { l.steps.Wait() }

func (l *EventLoop) flush() {
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}
