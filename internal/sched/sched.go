// Package sched triggers bounded-batch handlers. Polling is the only
// trigger source today; the Trigger interface exists so a notification
// feed can replace the tickers without touching kernel logic.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler is one bounded unit of work. It must run to completion and
// return; a handler never blocks waiting for new work.
type Handler func(ctx context.Context) error

// Trigger drives a handler until the context is canceled.
type Trigger interface {
	Run(ctx context.Context, h Handler)
}

// Interval fires a handler on a fixed period. Handler errors are logged
// and the ticker keeps going; retry is the next tick.
type Interval struct {
	Name   string
	Period time.Duration
	Log    *slog.Logger
}

func (t Interval) Run(ctx context.Context, h Handler) {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	ticker := time.NewTicker(t.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h(ctx); err != nil {
				log.Warn("trigger run failed", "trigger", t.Name, "error", err)
			}
		}
	}
}

// Group runs a set of trigger/handler pairs and waits for all of them on
// shutdown.
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) Go(ctx context.Context, t Trigger, h Handler) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		t.Run(ctx, h)
	}()
}

func (g *Group) Wait() {
	g.wg.Wait()
}
