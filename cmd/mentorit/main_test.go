package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestCommandFlags(t *testing.T) {
	app := newApp()

	t.Run("ingest defaults", func(t *testing.T) {
		cmd := findCommand(t, app, "ingest")
		for _, flag := range cmd.Flags {
			switch f := flag.(type) {
			case *cli.StringFlag:
				if f.Name == "mode" {
					assert.Equal(t, "plain", f.Value)
				}
			case *cli.BoolFlag:
				if f.Name == "wait" {
					assert.True(t, f.Value)
				}
			}
		}
	})

	t.Run("search requires a namespace", func(t *testing.T) {
		app := newApp()
		app.Writer = io.Discard
		app.ErrWriter = io.Discard
		err := app.Run([]string{"mentorit", "search", "anything"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "namespace")
	})

	t.Run("every command is registered", func(t *testing.T) {
		for _, name := range []string{
			"ingest", "batches", "episodes", "confirm", "cancel", "retry",
			"delete", "override", "recover", "consolidate", "search", "serve",
		} {
			findCommand(t, app, name)
		}
	})

	t.Run("serve documents the database lock", func(t *testing.T) {
		cmd := findCommand(t, app, "serve")
		assert.Contains(t, cmd.Description, "database lock")
		assert.Contains(t, cmd.Description, "staleness window")
	})
}

func TestSetupLogger(t *testing.T) {
	run := func(args ...string) error {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info"},
				&cli.StringFlag{Name: "log-file"},
			},
			Before: setupLogger,
			After:  closeLogger,
			Action: func(c *cli.Context) error {
				slog.Info("hello from test", "answer", 42)
				return nil
			},
		}
		return app.Run(append([]string{"test"}, args...))
	}
	defer slog.SetDefault(slog.Default())

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				require.NoError(t, run("--log-level", level))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := run("-l", "loud")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log file receives JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mentorit.log")
		require.NoError(t, run("--log-file", path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		line := strings.TrimSpace(string(data))
		require.NotEmpty(t, line)

		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "hello from test", entry["msg"])
		assert.EqualValues(t, 42, entry["answer"])
	})

	t.Run("unwritable log file fails", func(t *testing.T) {
		err := run("--log-file", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
		assert.ErrorContains(t, err, "log file")
	})
}

type cliHarness struct {
	t      *testing.T
	config string
	db     string
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mentorit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ai:\n  provider: mock\n  dimension: 16\n"), 0o600))
	return &cliHarness{t: t, config: cfgPath, db: filepath.Join(dir, "db")}
}

func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	full := append([]string{"mentorit", "--config", h.config, "--db", h.db, "--log-level", "error"}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	h := newCLIHarness(t)

	transcripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(transcripts, "session.txt"),
		[]byte("We talked about planning quarterly goals with the team.\n"), 0o644))

	out, err := h.run("ingest", "--namespace", "Engineering", transcripts)
	require.NoError(t, err)
	assert.Contains(t, out, "episodes: 1 total")

	id := regexp.MustCompile(`Batch (\S+) submitted`).FindStringSubmatch(out)
	require.Len(t, id, 2)
	batchID := id[1]

	out, err = h.run("batches")
	require.NoError(t, err)
	assert.Contains(t, out, batchID)
	assert.Contains(t, out, "engineering")

	out, err = h.run("episodes", batchID)
	require.NoError(t, err)
	assert.Contains(t, out, "session.txt")

	out, err = h.run("consolidate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would move 0 vectors")

	out, err = h.run("recover")
	require.NoError(t, err)
	assert.Contains(t, out, "Resubmitted 0 batches")

	out, err = h.run("search", "--namespace", "engineering", "quarterly", "goals")
	require.NoError(t, err)
	assert.Contains(t, out, "hits")

	out, err = h.run("delete", batchID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = h.run("episodes")
	assert.ErrorIs(t, err, errMissingArg)

	_, err = h.run("ingest", "--mode", "poetry", transcripts)
	assert.Error(t, err)
}

func TestIngestWithoutWait(t *testing.T) {
	h := newCLIHarness(t)

	transcripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(transcripts, "a.md"),
		[]byte("Say no to meetings without an agenda, it protects focus.\n"), 0o644))

	out, err := h.run("ingest", "--wait=false", "--namespace", "leadership", transcripts)
	require.NoError(t, err)
	assert.Contains(t, out, "(pending)")
}
