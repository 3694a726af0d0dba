package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
)

func writeDLQ(t *testing.T, path string, entries...deadletter.Entry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, e := range entries {
		raw, err := json.Marshal(e)
		require.NoError(t, err)
		_, err = f.Write(append(raw, '\n'))
		require.NoError(t, err)
	}
}

func TestSweepOnceRequeuesOnlyTransientEntries(t *testing.T) {
	dir := t.TempDir()
	dlqPath := filepath.Join(dir, "dead_letter.jsonl")
	requeuePath := filepath.Join(dir, "requeue.jsonl")

	writeDLQ(t, dlqPath,
		deadletter.NewEntry(agents.AgentTask{AgentType: "discovery.site_mapper", Attempt: 3}, "transient", "timeout", 3),
		deadletter.NewEntry(agents.AgentTask{AgentType: "gatekeeper.domain_checker"}, "circuit_open", "breaker open", 1),
	)

	require.NoError(t, sweepOnce(dlqPath, requeuePath))

	data, err := os.ReadFile(requeuePath)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var tasks []agents.AgentTask
	for scanner.Scan() {
		var task agents.AgentTask
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &task))
		tasks = append(tasks, task)
	}
	require.Len(t, tasks, 1)
	assert.Equal(t, "discovery.site_mapper", tasks[0].AgentType)
	assert.Equal(t, 0, tasks[0].Attempt, "a requeued task's attempt counter is reset")
}

func TestSweepOnceHandlesMissingDLQFile(t *testing.T) {
	dir := t.TempDir()
	err := sweepOnce(filepath.Join(dir, "absent.jsonl"), filepath.Join(dir, "requeue.jsonl"))
	assert.NoError(t, err)
}

func TestSweepOnceNoOpWhenNothingRequeueable(t *testing.T) {
	dir := t.TempDir()
	dlqPath := filepath.Join(dir, "dead_letter.jsonl")
	requeuePath := filepath.Join(dir, "requeue.jsonl")
	writeDLQ(t, dlqPath, deadletter.NewEntry(agents.AgentTask{AgentType: "x"}, "forbidden", "denied", 1))

	require.NoError(t, sweepOnce(dlqPath, requeuePath))
	_, err := os.Stat(requeuePath)
	assert.True(t, os.IsNotExist(err), "no requeue file should be created when nothing is requeueable")
}

func TestRunRequiresDLQPathFlag(t *testing.T) {
	assert.Equal(t, 1, run([]string{"--once"}))
}

func TestRunOnceExitsZeroAndSweepsOnce(t *testing.T) {
	dir := t.TempDir()
	dlqPath := filepath.Join(dir, "dead_letter.jsonl")
	writeDLQ(t, dlqPath, deadletter.NewEntry(agents.AgentTask{AgentType: "x"}, "transient", "down", 1))

	code := run([]string{"--dlq-path", dlqPath, "--once"})
	assert.Equal(t, 0, code)

	_, err := os.Stat(filepath.Join(dir, "requeue.jsonl"))
	assert.NoError(t, err, "default requeue path sits next to --dlq-path")
}

func TestRunRejectsInvalidSchedule(t *testing.T) {
	dir := t.TempDir()
	dlqPath := filepath.Join(dir, "dead_letter.jsonl")
	writeDLQ(t, dlqPath, deadletter.NewEntry(agents.AgentTask{AgentType: "x"}, "transient", "down", 1))

	code := run([]string{"--dlq-path", dlqPath, "--schedule", "not a cron expression"})
	assert.Equal(t, 1, code)
}
