package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/ashita-ai/auditfront/internal/model"
)

// RunPlain starts req on machine and prints each new log line and the final
// outcome to w. It returns the final snapshot once the run completes or
// fails, or when ctx is cancelled (the run is reset first).
func RunPlain(ctx context.Context, machine Machine, req model.RunRequest, w io.Writer) (model.Snapshot, error) {
	changes, cancel := machine.Subscribe()
	defer cancel()

	if err := machine.Start(req); err != nil {
		return machine.Snapshot(), err
	}
	if machine.Simulated() {
		fmt.Fprintln(w, "(simulated run: results are sample data)")
	}

	printed := 0
	announced := false
	for {
		select {
		case <-ctx.Done():
			machine.Reset()
			return machine.Snapshot(), ctx.Err()
		case _, ok := <-changes:
			snap := machine.Snapshot()
			if !announced && snap.RunID != "" {
				fmt.Fprintf(w, "Run %s started\n", snap.RunID)
				announced = true
			}
			for ; printed < len(snap.Logs); printed++ {
				fmt.Fprintln(w, formatLogEntry(snap.Logs[printed], true))
			}
			if done(snap) || !ok {
				printOutcome(w, snap)
				return snap, nil
			}
		}
	}
}

// done reports whether a started run has ended.
func done(snap model.Snapshot) bool {
	return snap.State == model.StateComplete || (snap.State == model.StateIdle && snap.Error != "")
}

func printOutcome(w io.Writer, snap model.Snapshot) {
	switch {
	case snap.State == model.StateComplete:
		fmt.Fprintln(w, renderResult(snap.Result, true))
	case snap.Error != "":
		fmt.Fprintln(w, "Run failed: "+snap.Error)
	default:
		fmt.Fprintln(w, "Run ended in state "+string(snap.State))
	}
}

// ExitCode maps a final snapshot to a process exit status: 0 for a completed
// run, 1 otherwise.
func ExitCode(snap model.Snapshot) int {
	if snap.State == model.StateComplete {
		return 0
	}
	return 1
}
