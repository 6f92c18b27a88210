package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/ai/mock"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(t.Context(), tc.expected))
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "log-level",
					Value: "info",
				},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}

		err := app.Run([]string{"test", "--log-level", "invalid"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), ".env")))
		assert.NoError(t, loadEnv(""))
	})

	t.Run("sets unset variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("TRIAGE_TEST_MODEL=from-file\nTRIAGE_TEST_KEEP=from-file\n"), 0644))
		t.Setenv("TRIAGE_TEST_KEEP", "from-env")
		os.Unsetenv("TRIAGE_TEST_MODEL")
		t.Cleanup(func() { os.Unsetenv("TRIAGE_TEST_MODEL") })

		require.NoError(t, loadEnv(path))
		assert.Equal(t, "from-file", os.Getenv("TRIAGE_TEST_MODEL"))
		assert.Equal(t, "from-env", os.Getenv("TRIAGE_TEST_KEEP"), "existing variables win")
	})
}

func TestNewApp_Flags(t *testing.T) {
	app := newApp()

	find := func(name string) *cli.StringFlag {
		for _, flag := range app.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
				return f
			}
		}
		return nil
	}

	db := find("db")
	require.NotNil(t, db)
	assert.Equal(t, []string{"TRIAGE_DB"}, db.EnvVars)

	key := find("api-key")
	require.NotNil(t, key)
	assert.Empty(t, key.Value)
	assert.Contains(t, key.EnvVars, "OPENAI_API_KEY")

	var names []string
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"run", "kb", "records", "learn", "cleanup"}, names)
}

// cliHarness runs the app against a temporary database and spool with a
// mock provider.
type cliHarness struct {
	db       string
	spool    string
	provider *mock.MockProvider
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	h := &cliHarness{
		db:       filepath.Join(dir, "db"),
		spool:    filepath.Join(dir, "spool"),
		provider: mock.NewMockProvider(),
	}
	h.provider.MockEmbedder().Dimensions = 16

	original := newProvider
	newProvider = func(*ai.Config) (ai.AIProvider, error) { return h.provider, nil }
	t.Cleanup(func() { newProvider = original })
	return h
}

func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"triage", "--log-level", "error", "--db", h.db, "--spool", h.spool}, args...))
	return out.String(), err
}

func (h *cliHarness) deliver(t *testing.T, msg core.Message) {
	t.Helper()
	inbox := filepath.Join(h.spool, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0755))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, string(msg.ID)+".json"), data, 0644))
}

func TestRunCommand(t *testing.T) {
	h := newCLIHarness(t)
	h.provider.MockAnalyzer().AnalyzeFunc = mock.Categorize("personal", 2)
	h.provider.MockComposer().ComposeFunc = mock.Reply("Friday works for me.", 0.95)
	h.deliver(t, core.Message{
		ID:         "m1",
		Sender:     "friend@example.com",
		Subject:    "Lunch",
		Body:       "Lunch on Friday?",
		ReceivedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	})

	out, err := h.run(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "claimed 1")
	assert.Contains(t, out, string(core.StageAutoSent))

	sent, err := filepath.Glob(filepath.Join(h.spool, "sent", "*.json"))
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	// The message was acknowledged, so a second run has nothing to do.
	out, err = h.run(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "claimed 0")
	assert.Equal(t, 1, h.provider.MockComposer().CallCount())

	out, err = h.run(t, "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "archived/auto_sent")

	out, err = h.run(t, "records", "show", "m1")
	require.NoError(t, err)
	var record core.ProcessingRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "Friday works for me.", record.Reply)
}

func TestRecordsCommands_Errors(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run(t, "records", "show")
	assert.ErrorContains(t, err, "record ID is required")

	_, err = h.run(t, "records", "show", "missing")
	assert.Error(t, err)

	_, err = h.run(t, "records", "list", "--stage", "bogus")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = h.run(t, "records", "reset", "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestKnowledgeCommands(t *testing.T) {
	h := newCLIHarness(t)
	doc := filepath.Join(t.TempDir(), "refunds.txt")
	require.NoError(t, os.WriteFile(doc, []byte("Refunds are issued within 14 days of receipt."), 0644))

	out, err := h.run(t, "kb", "add", "--category", "policy", doc)
	require.NoError(t, err)
	assert.Contains(t, out, `Added "refunds" as 1 entries`)

	out, err = h.run(t, "kb", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:    1")
	assert.Contains(t, out, "Dimensions: 16")
	assert.Contains(t, out, "policy")

	out, err = h.run(t, "kb", "search", "Refunds are issued within 14 days of receipt.")
	require.NoError(t, err)
	assert.Contains(t, out, "1. refunds")

	_, err = h.run(t, "kb", "search")
	assert.ErrorContains(t, err, "query is required")

	h.provider.MockEmbedder().Dimensions = 24
	out, err = h.run(t, "kb", "reembed", "--batch-size", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Dimensions: 24")
}

func TestMaintenanceCommands(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 archived records")

	out, err = h.run(t, "learn", "--since", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Learned from 0 sent replies")
}

func TestPrintSummary(t *testing.T) {
	s := &pipeline.Summary{
		RunID:   "run-1",
		Fetched: 3,
		Claimed: 2,
		Resumed: 1,
		Pending: 1,
		Stages:  map[core.Stage]int{core.StageAutoSent: 1, core.StageFailed: 1, core.StageResponded: 1},
	}
	var buf bytes.Buffer
	printSummary(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "fetched 3, claimed 2, resumed 1")
	assert.Contains(t, out, "auto_sent")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "1 records still pending")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}
