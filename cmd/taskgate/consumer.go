package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskgate/internal/host"
	"github.com/phrazzld/taskgate/internal/task"
	"github.com/phrazzld/taskgate/internal/work/httpwork"
)

// summary counts terminal deliveries across every consumer of a demo run.
type summary struct {
	Finished  int
	Failed    int
	Cancelled int
	Killed    int
}

// demo plays the consumer side: it owns the host and manager of the current
// consumer and replaces both on rotate. Every method runs on the loop.
type demo struct {
	app     *application
	baseURL string
	ids     []int
	logger  *slog.Logger

	manager *httpManager
	host    *host.Host

	settled map[int]bool
	summary summary
	err     error
}

func newDemo(app *application, baseURL string, count int) *demo {
	ids := make([]int, count)
	for i := range ids {
		ids[i] = i + 1
	}
	return &demo{
		app:     app,
		baseURL: baseURL,
		ids:     ids,
		logger:  app.logger.With("component", "demo_consumer"),
		settled: make(map[int]bool, count),
	}
}

// attach brings up a consumer. A recreated consumer replays the snapshot left
// by its predecessor; ids it reports killed are started again.
func (d *demo) attach(ctx context.Context, recreated bool) error {
	d.manager = d.app.newManager()
	h, err := host.New(d.manager, d.app.snapshots, d.app.config.Snapshot.Scope, d.app.logger)
	if err != nil {
		return err
	}
	d.host = h

	if err := d.host.Create(ctx, recreated); err != nil {
		return err
	}
	for _, id := range d.ids {
		if d.settled[id] {
			continue
		}
		if err := d.manager.RegisterCallbacks(id, d.handler()); err != nil {
			return err
		}
	}
	d.host.Resume()
	return nil
}

// startAll starts every id that is neither settled nor already running.
func (d *demo) startAll() error {
	for _, id := range d.ids {
		if d.settled[id] || d.manager.State(id) != task.SlotIdle {
			continue
		}
		if err := d.manager.StartTask(id); err != nil {
			return err
		}
	}
	return nil
}

// teardown simulates the consumer going away with work still in flight.
func (d *demo) teardown(ctx context.Context) error {
	d.host.Pause()
	err := d.host.SaveState(ctx)
	d.host.Detach()
	d.host.Destroy()
	return err
}

// rotate tears the current consumer down and recreates it.
func (d *demo) rotate(ctx context.Context) {
	if d.done() {
		return
	}
	d.logger.Info("rotating consumer", "outstanding_ids", d.manager.SnapshotOutstandingIDs())
	if err := d.teardown(ctx); err != nil {
		d.fail(err)
		return
	}
	if err := d.attach(ctx, true); err != nil {
		d.fail(err)
	}
}

func (d *demo) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *demo) done() bool {
	return d.err != nil || len(d.settled) == len(d.ids)
}

func (d *demo) handler() task.Handler[httpwork.Progress, httpwork.Response] {
	return task.HandlerFuncs[httpwork.Progress, httpwork.Response]{
		Create: func(id int) task.Work[httpwork.Progress, httpwork.Response] {
			return d.app.http.Get(fmt.Sprintf("%s/items/%d", d.baseURL, id))
		},
		Progress: func(id int, p httpwork.Progress) {
			d.logger.Info("task progress", "task_id", id, "attempt", p.Attempt, "bytes_read", p.BytesRead)
		},
		Finished: func(id int, out task.Outcome[httpwork.Response]) {
			d.settled[id] = true
			switch {
			case out.Failed():
				d.summary.Failed++
				d.logger.Warn("task failed", "task_id", id, "error", out.Err)
			case !out.Value.Successful():
				d.summary.Failed++
				d.logger.Warn("request failed", "task_id", id, "status", out.Value.StatusCode, "error", out.Value.Err)
			default:
				d.summary.Finished++
				d.logger.Info("task finished", "task_id", id, "status", out.Value.StatusCode, "body", string(out.Value.Body))
			}
		},
		Cancelled: func(id int) {
			d.settled[id] = true
			d.summary.Cancelled++
			d.logger.Info("task cancelled", "task_id", id)
		},
		Killed: func(id int) {
			d.summary.Killed++
			d.logger.Info("task killed, restarting", "task_id", id)
			if err := d.manager.StartTask(id); err != nil {
				d.fail(err)
			}
		},
	}
}
