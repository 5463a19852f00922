package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Task represents a background task that can be scheduled
type Task interface {
	// Name returns the unique name of the task
	Name() string

	// Schedule returns the cron schedule expression for this task,
	// seconds field first
	Schedule() string

	// Run executes the task
	Run(ctx context.Context) error

	// Timeout returns the maximum time this task should run, zero for none
	Timeout() time.Duration
}

// TaskRegistry holds all registered tasks
type TaskRegistry struct {
	tasks map[string]Task
}

// NewTaskRegistry creates a new task registry
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]Task),
	}
}

// Register adds a task to the registry. Names must be unique and schedules
// must parse.
func (r *TaskRegistry) Register(task Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}
	name := task.Name()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	if _, err := scheduleParser.Parse(task.Schedule()); err != nil {
		return fmt.Errorf("task %s: invalid schedule %q: %w", name, task.Schedule(), err)
	}
	r.tasks[name] = task
	return nil
}

// Get returns a task by name
func (r *TaskRegistry) Get(name string) (Task, bool) {
	task, exists := r.tasks[name]
	return task, exists
}

// All returns all registered tasks
func (r *TaskRegistry) All() map[string]Task {
	return r.tasks
}

// Names returns the registered task names in sorted order.
func (r *TaskRegistry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
