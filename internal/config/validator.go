package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var tablePrefixRegexp = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

var supportedDrivers = map[string]struct{}{
	"postgres": {},
	"mysql":    {},
	"sqlite3":  {},
}

// ScheduleParser parses six-field cron expressions (with seconds) and descriptors.
var ScheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Validator struct {
	config *Config
	errors []string
}

func NewValidator(cfg *Config) *Validator {
	return &Validator{config: cfg, errors: []string{}}
}

func (v *Validator) Validate() error {
	if v.config == nil {
		return fmt.Errorf("config validation failed: no configuration loaded")
	}
	v.validateDatabase()
	v.validatePorts()
	v.validateScheduler()

	if len(v.errors) > 0 {
		return fmt.Errorf("config validation failed:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) validateDatabase() {
	db := v.config.Database
	if _, ok := supportedDrivers[db.Driver]; !ok {
		v.addError(fmt.Sprintf("database.driver %q is not supported (postgres, mysql, sqlite3)", db.Driver))
	}
	if !tablePrefixRegexp.MatchString(db.TablePrefix) {
		v.addError(fmt.Sprintf("database.table_prefix %q may only contain letters, digits and underscores", db.TablePrefix))
	}
}

func (v *Validator) validatePorts() {
	if p := v.config.Piping.IMAP.Port; p < 0 || p > 65535 {
		v.addError(fmt.Sprintf("piping.imap.port %d is out of range", p))
	}
	if v.config.Piping.IMAP.UseTLS && v.config.Piping.IMAP.StartTLS {
		v.addError("piping.imap.use_tls and piping.imap.starttls are mutually exclusive")
	}
	if v.config.Redis.Enabled {
		if p := v.config.Redis.Port; p <= 0 || p > 65535 {
			v.addError(fmt.Sprintf("redis.port %d is out of range", p))
		}
	}
	if v.config.Metrics.Enabled {
		if p := v.config.Metrics.Port; p <= 0 || p > 65535 {
			v.addError(fmt.Sprintf("metrics.port %d is out of range", p))
		}
	}
}

func (v *Validator) validateScheduler() {
	s := v.config.Scheduler
	if _, err := ScheduleParser.Parse(s.Schedule); err != nil {
		v.addError(fmt.Sprintf("scheduler.schedule %q is invalid: %v", s.Schedule, err))
	}
	if s.MaxMessages <= 0 {
		v.addError("scheduler.max_messages must be positive")
	}
	if s.RetryAttempts <= 0 {
		v.addError("scheduler.retry_attempts must be positive")
	}
	if s.RetryDelay < 0 || s.RunTimeout < 0 || s.ConnectTimeout < 0 {
		v.addError("scheduler durations must not be negative")
	}
	if v.config.Redis.Enabled {
		v.validateLockTTL()
	}
}

// The run lock must outlive the run it guards, or a second process can take
// the key while the first is still ingesting.
func (v *Validator) validateLockTTL() {
	ttl, run := v.config.Redis.LockTTL, v.config.Scheduler.RunTimeout
	switch {
	case ttl <= 0:
		v.addError("redis.lock_ttl must be positive")
	case run == 0:
		v.addError("scheduler.run_timeout must be set when redis locking is enabled")
	case ttl <= run:
		v.addError(fmt.Sprintf("redis.lock_ttl %s must be longer than scheduler.run_timeout %s", ttl, run))
	}
}

func (v *Validator) addError(message string) {
	v.errors = append(v.errors, "   - "+message)
}

// Validate checks cfg for values the service cannot run with.
func Validate(cfg *Config) error {
	return NewValidator(cfg).Validate()
}
