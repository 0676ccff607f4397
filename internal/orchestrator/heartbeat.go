package orchestrator

import (
	"context"
	"time"

	"github.com/gbos-io/gbos/internal/controlplane"
	"github.com/gbos-io/gbos/internal/runstate"
)

const defaultHeartbeatInterval = 30 * time.Second

// startHeartbeat launches the heartbeat timer described in spec §5: a
// goroutine independent of the workflow loop that posts liveness every
// interval, carrying the current task id and state name, swallowing any
// failure. It returns a stop function the caller defers.
func (d *Driver) startHeartbeat(ctx context.Context, run *runstate.Run) func() {
	interval := defaultHeartbeatInterval
	if d.cfg.Heartbeat.Interval != "" {
		if parsed, err := time.ParseDuration(d.cfg.Heartbeat.Interval); err == nil {
			interval = parsed
		}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				req := controlplane.HeartbeatRequest{
					CurrentTaskID: run.Context.TaskID,
					Progress:      string(run.State),
				}
				if err := d.cp.Heartbeat(ctx, req); err != nil && d.logger != nil {
					d.logger.Warning("heartbeat failed: " + err.Error())
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}
