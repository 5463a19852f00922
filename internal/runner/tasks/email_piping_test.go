package tasks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
)

type stubIngester struct {
	report postmaster.RunReport
	calls  int
}

func (s *stubIngester) Run(context.Context) postmaster.RunReport {
	s.calls++
	return s.report
}

func newTestTask(report postmaster.RunReport) (*EmailPipingTask, *stubIngester, *bytes.Buffer) {
	var buf bytes.Buffer
	ing := &stubIngester{report: report}
	task := NewEmailPipingTask(ing, WithPipingLogger(log.New(&buf, "", 0))).(*EmailPipingTask)
	return task, ing, &buf
}

func TestEmailPipingTaskDefaults(t *testing.T) {
	task, _, _ := newTestTask(postmaster.RunReport{})
	if task.Name() != EmailPipingTaskName {
		t.Fatalf("unexpected name %s", task.Name())
	}
	if task.Schedule() != DefaultPipingSchedule {
		t.Fatalf("unexpected schedule %s", task.Schedule())
	}
	if task.Timeout() != postmaster.DefaultRunTimeout {
		t.Fatalf("unexpected timeout %v", task.Timeout())
	}

	custom := NewEmailPipingTask(&stubIngester{}, WithPipingSchedule("@every 1m"), WithPipingTimeout(time.Minute))
	if custom.Schedule() != "@every 1m" || custom.Timeout() != time.Minute {
		t.Fatalf("options not applied: %s %v", custom.Schedule(), custom.Timeout())
	}
}

func TestEmailPipingTaskFailsOnlyOnConnectFailure(t *testing.T) {
	boom := errors.New("imap auth: bad credentials")
	task, ing, _ := newTestTask(postmaster.RunReport{RunID: "r1", State: postmaster.StateConnectFailed, Err: boom})

	err := task.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if ing.calls != 1 {
		t.Fatalf("expected one ingester run, got %d", ing.calls)
	}

	for _, state := range []postmaster.State{postmaster.StateDone, postmaster.StateBusy, postmaster.StateDisabled} {
		task, _, _ := newTestTask(postmaster.RunReport{State: state, Skipped: 3})
		if err := task.Run(context.Background()); err != nil {
			t.Fatalf("state %s: expected no error, got %v", state, err)
		}
	}
}

func TestEmailPipingTaskLogsSummary(t *testing.T) {
	task, _, buf := newTestTask(postmaster.RunReport{RunID: "r2", State: postmaster.StateDone, Seen: 3, Ingested: 2, Skipped: 1})
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "3 unseen, 2 ingested, 1 skipped") {
		t.Fatalf("unexpected log output %q", buf.String())
	}

	quiet, _, buf := newTestTask(postmaster.RunReport{State: postmaster.StateDisabled})
	_ = quiet.Run(context.Background())
	if buf.Len() != 0 {
		t.Fatalf("expected disabled runs to be silent, got %q", buf.String())
	}
}
