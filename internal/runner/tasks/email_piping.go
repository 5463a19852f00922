package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
	"github.com/gotrs-io/gotrs-mailpipe/internal/runner"
)

const (
	// EmailPipingTaskName is the registry name of the mailbox piping task.
	EmailPipingTaskName = "email-piping"
	// DefaultPipingSchedule polls every five minutes.
	DefaultPipingSchedule = "0 */5 * * * *"
)

// PipingRunner performs a single mailbox pass.
type PipingRunner interface {
	Run(ctx context.Context) postmaster.RunReport
}

// EmailPipingTask drains the support mailbox on a schedule.
type EmailPipingTask struct {
	ingester PipingRunner
	schedule string
	timeout  time.Duration
	logger   *log.Logger
}

// EmailPipingOption customises an EmailPipingTask.
type EmailPipingOption func(*EmailPipingTask)

// WithPipingSchedule overrides the cron schedule.
func WithPipingSchedule(schedule string) EmailPipingOption {
	return func(t *EmailPipingTask) {
		if schedule != "" {
			t.schedule = schedule
		}
	}
}

// WithPipingTimeout overrides the task timeout.
func WithPipingTimeout(d time.Duration) EmailPipingOption {
	return func(t *EmailPipingTask) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithPipingLogger overrides the task logger.
func WithPipingLogger(logger *log.Logger) EmailPipingOption {
	return func(t *EmailPipingTask) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewEmailPipingTask creates a new email piping task
func NewEmailPipingTask(ingester PipingRunner, opts ...EmailPipingOption) runner.Task {
	t := &EmailPipingTask{
		ingester: ingester,
		schedule: DefaultPipingSchedule,
		timeout:  postmaster.DefaultRunTimeout,
		logger:   log.New(log.Writer(), "[EMAIL-PIPING] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Name returns the task name
func (t *EmailPipingTask) Name() string {
	return EmailPipingTaskName
}

// Schedule returns the cron schedule
func (t *EmailPipingTask) Schedule() string {
	return t.schedule
}

// Timeout returns the task timeout
func (t *EmailPipingTask) Timeout() time.Duration {
	return t.timeout
}

// Run performs one pass. Only a run that could not reach the mailbox is
// reported as a failure; skipped messages are part of a normal run.
func (t *EmailPipingTask) Run(ctx context.Context) error {
	report := t.ingester.Run(ctx)

	switch report.State {
	case postmaster.StateDisabled:
		return nil
	case postmaster.StateConnectFailed:
		return fmt.Errorf("piping run %s failed: %w", report.RunID, report.Err)
	case postmaster.StateBusy:
		t.logger.Printf("Piping run %s skipped: %v", report.RunID, report.Err)
		return nil
	}

	if report.Seen > 0 {
		t.logger.Printf("Piping run %s: %d unseen, %d ingested, %d skipped, %d deferred",
			report.RunID, report.Seen, report.Ingested, report.Skipped, report.Deferred)
	}
	return nil
}
