// Command dlq-requeue is the operator tool for inspecting and reprocessing
// the Dead-Letter Sink's JSONL log: on a schedule (or once, with
// --once) it reads every dead-lettered entry, reports it by agent/kind,
// and re-appends a fresh AgentTask for each Transient entry to a requeue
// file an orchestrator run can pick up. Scheduling is robfig/cron/v3,
// used here for its real parsing/scheduling API instead of a hand-rolled
// minute-only substitute.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dlq-requeue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	dlqPath := fs.String("dlq-path", "", "path to a dead_letter/<job_id>.jsonl file")
	requeuePath := fs.String("requeue-path", "", "path to write requeue-candidate tasks to (defaults next to --dlq-path)")
	schedule := fs.String("schedule", "", "cron expression to sweep on; omit with --once for a single pass")
	once := fs.Bool("once", false, "run a single sweep and exit instead of scheduling")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *dlqPath == "" {
		fmt.Fprintln(os.Stderr, "dlq-requeue: --dlq-path is required")
		return 1
	}
	if *requeuePath == "" {
		*requeuePath = filepath.Join(filepath.Dir(*dlqPath), "requeue.jsonl")
	}

	sweep := func() {
		if err := sweepOnce(*dlqPath, *requeuePath); err != nil {
			fmt.Fprintln(os.Stderr, "dlq-requeue: sweep failed:", err)
		}
	}

	if *once || *schedule == "" {
		sweep()
		return 0
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		fmt.Fprintln(os.Stderr, "dlq-requeue: invalid schedule:", err)
		return 1
	}
	c.Start()
	defer c.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return 0
}

// sweepOnce reads every dead-letter entry from dlqPath via
// deadletter.ReadAll, prints a one-line summary per entry, and
// re-appends the Transient-class entries (deadletter.Requeueable — the
// only class the dead-letter log is meant to be replayed automatically
// for, per its own doc comment) as fresh tasks to requeuePath with their
// attempt counter reset, so a later orchestrator run can re-drive them.
func sweepOnce(dlqPath, requeuePath string) error {
	entries, err := deadletter.ReadAll(dlqPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("dlq-requeue: no dead-letter entries at", dlqPath)
		return nil
	}

	for _, entry := range entries {
		fmt.Printf("[%s] kind=%s attempts=%d last_seen=%s\n",
		entry.Task.AgentType, entry.ErrorKind, entry.Attempts, entry.LastSeen)
	}

	requeueable := deadletter.Requeueable(entries)
	if len(requeueable) == 0 {
		fmt.Println("dlq-requeue: nothing requeueable")
		return nil
	}

	out, err := os.OpenFile(requeuePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	var requeued int
	for _, entry := range requeueable {
		entry.Task.Attempt = 0
		entry.Task.Deadline = time.Now().Add(30 * time.Second)
		raw, err := json.Marshal(entry.Task)
		if err != nil {
			continue
		}
		if _, err := out.Write(append(raw, '\n')); err == nil {
			requeued++
		}
	}

	fmt.Printf("dlq-requeue: swept %d entries, requeued %d to %s\n", len(entries), requeued, requeuePath)
	return nil
}
