package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/parley/pkg/blob"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "parley.yaml")
	content := "history:\n  store: file\n  path: " + filepath.Join(dir, "history") + "\n" +
		"schedule:\n  path: " + filepath.Join(dir, "schedules.db") + "\n" +
		"memory:\n  path: " + filepath.Join(dir, "memory.db") + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestToolsList(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "--config", writeConfig(t, dir), "tools", "list")
	assert.Contains(t, out, "name: datetime")
	assert.Contains(t, out, "name: memory")
	assert.Contains(t, out, "name: schedule")
}

func TestHistoryShowAndCompact(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	blobs, err := blob.NewFileStore(filepath.Join(dir, "history"))
	require.NoError(t, err)
	store := history.NewStore(blobs)
	var lg turns.Log
	for i := 0; i < 4; i++ {
		lg = append(lg, turns.NewUserText("question"), turns.NewAssistantText("answer"))
	}
	require.NoError(t, store.Save(context.Background(), "42", lg, history.NewMetadata("42", "", "")))

	out := execute(t, "--config", cfgPath, "history", "show", "42")
	assert.Contains(t, out, "question")
	assert.Contains(t, out, "answer")

	out = execute(t, "--config", cfgPath, "history", "compact", "42", "--max-length", "4")
	assert.Contains(t, out, "compacted from 8 to 4 turns")

	compacted, err := store.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Len(t, compacted, 4)

	out = execute(t, "--config", cfgPath, "history", "show", "missing")
	assert.Contains(t, out, "no history for missing")
}

func TestSchedulesListEmpty(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "--config", writeConfig(t, dir), "schedules", "list")
	assert.Contains(t, out, "no scheduled messages")
}
