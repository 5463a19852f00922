package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-mailpipe/internal/config"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
	"github.com/gotrs-io/gotrs-mailpipe/internal/models"
)

func TestOpenLogOutput(t *testing.T) {
	w, closeFn, err := openLogOutput("stdout")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)
	assert.Nil(t, closeFn)

	w, closeFn, err = openLogOutput("STDERR")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)
	assert.Nil(t, closeFn)

	path := filepath.Join(t.TempDir(), "mailpipe.log")
	w, closeFn, err = openLogOutput(path)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	_, _, err = openLogOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}

func TestNewAppWithSQLiteRunsDisabled(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:      "sqlite3",
			DSN:         filepath.Join(t.TempDir(), "tickets.db"),
			TablePrefix: "wp_",
		},
		Logging: config.LoggingConfig{Output: filepath.Join(t.TempDir(), "app.log")},
	}

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.tickets.Migrate(context.Background()))
	assert.NotNil(t, a.registry)

	report := a.ingester.Run(context.Background())
	assert.Equal(t, postmaster.StateDisabled, report.State)

	last, ok := a.ingester.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestWriteConfigYAMLMasksSecrets(t *testing.T) {
	cfg := &config.Config{
		Piping: config.PipingConfig{IMAP: config.IMAPConfig{Host: "imap.example.com", Password: "hunter2"}},
	}
	cfg.Scheduler.RunTimeout = 4 * time.Minute

	var buf bytes.Buffer
	require.NoError(t, writeConfigYAML(&buf, cfg))
	out := buf.String()
	assert.Contains(t, out, "host: imap.example.com")
	assert.Contains(t, out, "run_timeout: 4m0s")
	assert.NotContains(t, out, "hunter2")
}

func TestWriteThread(t *testing.T) {
	ticket := &models.Ticket{ID: 7, Title: "Login broken", Status: models.TicketStatusOpen, UserName: "Alice", UserEmail: "alice@example.com"}
	msgs := []*models.Message{
		{ID: 1, SenderType: models.SenderUser, SenderName: "Alice", Body: "It fails\nevery time"},
		{ID: 2, SenderType: models.SenderAgent, SenderName: "Support Team", Body: "Fixed."},
	}

	var buf bytes.Buffer
	require.NoError(t, writeThread(&buf, ticket, msgs, 2))
	out := buf.String()
	assert.Contains(t, out, "Ticket #7: Login broken (open, Alice <alice@example.com>)")
	assert.Contains(t, out, "It fails ...")
	assert.Contains(t, out, "Support Team")
	assert.Contains(t, out, "Last message id: 2")
}
