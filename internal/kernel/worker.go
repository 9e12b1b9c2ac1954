package kernel

import (
	"context"
	"fmt"

	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// EnvSpanID names the environment key that pins a run-code invocation to
// its target function span.
const EnvSpanID = "SPAN_ID"

// Worker drains scheduled requests by re-entering the boot path.
//
// Each request delegates to the run-code kernel with the request's parent
// pinned through the environment. Requests are processed independently: a
// failed boot is logged and the batch continues. The worker never writes a
// terminal status back onto the request span; completion is observed only
// through the correlated execution span.
type Worker struct{}

func (w *Worker) ID() string   { return span.RequestWorkerKernelID }
func (w *Worker) Name() string { return "request_worker" }

func (w *Worker) Run(ctx context.Context, kc *Context) error {
	requests, err := kc.Visible(ctx, store.Filter{
		EntityType: span.EntityRequest,
		Status:     span.StatusScheduled,
		Limit:      WorkerBatchSize,
	})
	if err != nil {
		return fmt.Errorf("scan scheduled requests: %w", err)
	}

	processed := 0
	for _, req := range requests {
		if req.ParentID == "" {
			kc.Log.Warn("request has no parent, skipping", "request_id", req.ID)
			continue
		}
		env := make(map[string]string, len(kc.Env)+1)
		for k, v := range kc.Env {
			env[k] = v
		}
		env[EnvSpanID] = req.ParentID

		if err := kc.Boot(ctx, span.RunCodeKernelID, env); err != nil {
			kc.Log.Warn("request boot failed",
				"request_id", req.ID,
				"function_id", req.ParentID,
				"error", err)
			continue
		}
		processed++
	}

	kc.Log.Info("worker run complete",
		"scanned", len(requests),
		"processed", processed)
	return nil
}
