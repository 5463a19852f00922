package postmaster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/connector"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/filters"
	"github.com/gotrs-io/gotrs-mailpipe/internal/lock"
)

const (
	DefaultMaxMessages     = 50
	DefaultConnectAttempts = 3
	DefaultRetryDelay      = time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultRunTimeout      = 4 * time.Minute
)

// ErrLockHeld is reported when another run is draining the same mailbox.
var ErrLockHeld = errors.New("mailbox lock held by another run")

// Ingester runs one scheduled pass over the configured mailbox.
type Ingester struct {
	dialer          connector.Dialer
	store           TicketStore
	settings        SettingsProvider
	locker          lock.Locker
	observers       []RunObserver
	logger          *log.Logger
	maxMessages     int
	connectAttempts int
	retryDelay      time.Duration
	connectTimeout  time.Duration
	runTimeout      time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
	newRunID        func() string

	mu   sync.RWMutex
	last *RunReport
}

// IngesterOption customises an Ingester.
type IngesterOption func(*Ingester)

// WithIngesterLogger overrides the logger.
func WithIngesterLogger(logger *log.Logger) IngesterOption {
	return func(in *Ingester) {
		in.logger = logger
	}
}

// WithLocker sets the lock guarding a mailbox for the duration of a run.
func WithLocker(l lock.Locker) IngesterOption {
	return func(in *Ingester) {
		if l != nil {
			in.locker = l
		}
	}
}

// WithRunObserver registers an observer for finished runs.
func WithRunObserver(o RunObserver) IngesterOption {
	return func(in *Ingester) {
		if o != nil {
			in.observers = append(in.observers, o)
		}
	}
}

// WithMaxMessages caps the number of messages handled per run.
func WithMaxMessages(n int) IngesterOption {
	return func(in *Ingester) {
		if n > 0 {
			in.maxMessages = n
		}
	}
}

// WithConnectRetry sets how many times a connect is attempted and the pause
// between attempts.
func WithConnectRetry(attempts int, delay time.Duration) IngesterOption {
	return func(in *Ingester) {
		if attempts > 0 {
			in.connectAttempts = attempts
		}
		if delay >= 0 {
			in.retryDelay = delay
		}
	}
}

// WithConnectTimeout bounds each connect attempt. Zero disables the bound.
func WithConnectTimeout(d time.Duration) IngesterOption {
	return func(in *Ingester) {
		if d >= 0 {
			in.connectTimeout = d
		}
	}
}

// WithRunTimeout bounds a whole run. Zero disables the bound.
func WithRunTimeout(d time.Duration) IngesterOption {
	return func(in *Ingester) {
		if d >= 0 {
			in.runTimeout = d
		}
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) IngesterOption {
	return func(in *Ingester) {
		if now != nil {
			in.now = now
		}
	}
}

func withSleeper(sleep func(ctx context.Context, d time.Duration) error) IngesterOption {
	return func(in *Ingester) {
		in.sleep = sleep
	}
}

func withRunIDs(next func() string) IngesterOption {
	return func(in *Ingester) {
		in.newRunID = next
	}
}

// NewIngester wires an ingester. Without WithLocker runs are serialised by an
// in-process lock.
func NewIngester(dialer connector.Dialer, store TicketStore, settings SettingsProvider, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		dialer:          dialer,
		store:           store,
		settings:        settings,
		locker:          lock.NewLocalLocker(),
		logger:          log.Default(),
		maxMessages:     DefaultMaxMessages,
		connectAttempts: DefaultConnectAttempts,
		retryDelay:      DefaultRetryDelay,
		connectTimeout:  DefaultConnectTimeout,
		runTimeout:      DefaultRunTimeout,
		now:             time.Now,
		sleep:           sleepContext,
		newRunID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in
}

// Run drains up to the configured number of unseen messages, newest first.
// Failures never escape; they are recorded in the returned report.
func (in *Ingester) Run(ctx context.Context) RunReport {
	report := RunReport{RunID: in.newRunID(), StartedAt: in.now()}

	var settings Settings
	if in.settings != nil {
		settings = in.settings.Settings()
	}
	if !settings.Configured() {
		report.State = StateDisabled
		return in.finish(report)
	}
	account := settings.Account
	report.Mailbox = account.Identity()

	if in.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.runTimeout)
		defer cancel()
	}

	unlock, ok, err := in.locker.TryLock(ctx, report.Mailbox)
	if err != nil {
		report.State = StateBusy
		report.Err = fmt.Errorf("acquire lock: %w", err)
		in.logf("postmaster: run %s could not lock %s: %v", report.RunID, report.Mailbox, err)
		return in.finish(report)
	}
	if !ok {
		report.State = StateBusy
		report.Err = ErrLockHeld
		in.logf("postmaster: run %s skipped, %s is busy", report.RunID, report.Mailbox)
		return in.finish(report)
	}
	defer unlock()

	report.State = StateConnecting
	session, err := in.connect(ctx, account)
	if err != nil {
		report.State = StateConnectFailed
		report.Err = err
		in.logf("postmaster: run %s connect to %s failed: %v", report.RunID, report.Mailbox, err)
		return in.finish(report)
	}
	defer func() {
		if err := session.Close(); err != nil {
			in.logf("postmaster: close %s: %v", report.Mailbox, err)
		}
	}()

	report.State = StateListing
	uids, err := session.SearchUnseen(ctx)
	if err != nil {
		report.State = StateConnectFailed
		report.Err = fmt.Errorf("search unseen: %w", err)
		in.logf("postmaster: run %s listing %s failed: %v", report.RunID, report.Mailbox, err)
		return in.finish(report)
	}
	uids = slices.Clone(uids)
	slices.SortFunc(uids, func(a, b uint32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})
	report.Seen = len(uids)
	if len(uids) == 0 {
		report.State = StateDone
		return in.finish(report)
	}

	batch := uids
	if len(batch) > in.maxMessages {
		batch = batch[:in.maxMessages]
	}
	report.Deferred = len(uids) - len(batch)

	report.State = StateProcessing
	processor := NewReplyProcessor(in.store, filters.NewClassifier(settings.AgentName, settings.Agents()...), in.logger)
	for i, uid := range batch {
		if err := ctx.Err(); err != nil {
			report.State = StateConnectFailed
			report.Err = fmt.Errorf("run deadline: %w", err)
			report.Deferred += len(batch) - i
			in.logf("postmaster: run %s aborted after %d messages: %v", report.RunID, i, err)
			return in.finish(report)
		}
		report.record(processor.Process(ctx, session, uid))
	}

	report.State = StateDone
	return in.finish(report)
}

func (in *Ingester) connect(ctx context.Context, account connector.Account) (connector.Session, error) {
	if in.dialer == nil {
		return nil, errors.New("no mailbox dialer configured")
	}
	var errs []error
	for attempt := 1; attempt <= in.connectAttempts; attempt++ {
		if attempt > 1 {
			if err := in.sleep(ctx, in.retryDelay); err != nil {
				errs = append(errs, err)
				break
			}
		}
		session, err := in.dial(ctx, account)
		if err == nil {
			if attempt > 1 {
				in.logf("postmaster: connected to %s on attempt %d", account.Identity(), attempt)
			}
			return session, nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))
		in.logf("postmaster: connect attempt %d/%d to %s failed: %v", attempt, in.connectAttempts, account.Identity(), err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// dial bounds the handshake by the connect timeout. The timeout context is
// released once Dial returns, which leaves an established session untouched.
func (in *Ingester) dial(ctx context.Context, account connector.Account) (connector.Session, error) {
	if in.connectTimeout <= 0 {
		return in.dialer.Dial(ctx, account)
	}
	dialCtx, cancel := context.WithTimeout(ctx, in.connectTimeout)
	defer cancel()
	return in.dialer.Dial(dialCtx, account)
}

func (in *Ingester) finish(report RunReport) RunReport {
	report.FinishedAt = in.now()
	if report.Err != nil {
		report.Error = report.Err.Error()
	}
	if report.State != StateDisabled {
		in.logf("postmaster: run %s %s: seen=%d routed=%d ingested=%d skipped=%d errored=%d deferred=%d",
			report.RunID, report.State, report.Seen, report.Routed, report.Ingested, report.Skipped, report.Errored, report.Deferred)
	}

	in.mu.Lock()
	stored := report
	stored.Results = slices.Clone(report.Results)
	in.last = &stored
	in.mu.Unlock()

	for _, o := range in.observers {
		o.ObserveRun(report)
	}
	return report
}

// LastReport returns the most recent run report, if any run has finished.
func (in *Ingester) LastReport() (RunReport, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.last == nil {
		return RunReport{}, false
	}
	report := *in.last
	report.Results = slices.Clone(in.last.Results)
	return report, true
}

func (in *Ingester) logf(format string, args ...any) {
	if in == nil || in.logger == nil {
		return
	}
	in.logger.Printf(format, args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
