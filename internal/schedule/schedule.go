package schedule

import (
	"sort"
	"time"
)

// Task is a keyed one-shot action due at a deadline
type Task struct {
	Key string
	At  time.Time
	Run func(now time.Time)
}

// Queue is a deadline queue drained by its owner on each turn of the event
// loop. Arming a key that is already pending replaces it. Not safe for
// concurrent use.
type Queue struct {
	tasks map[string]Task
}

// New creates an empty queue
func New() *Queue {
	return &Queue{tasks: make(map[string]Task)}
}

// Arm schedules run at the given time under key, superseding any pending task
// with the same key.
func (q *Queue) Arm(key string, at time.Time, run func(now time.Time)) {
	q.tasks[key] = Task{Key: key, At: at, Run: run}
}

// Pending returns the deadline of key, if armed
func (q *Queue) Pending(key string) (time.Time, bool) {
	t, ok := q.tasks[key]
	return t.At, ok
}

// Len returns the number of armed tasks
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Next returns the earliest deadline
func (q *Queue) Next() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range q.tasks {
		if !found || t.At.Before(next) {
			next = t.At
			found = true
		}
	}
	return next, found
}

// RunDue runs and disarms every task whose deadline is at or before now, in
// deadline order. It returns the number of tasks run.
func (q *Queue) RunDue(now time.Time) int {
	var due []Task
	for key, t := range q.tasks {
		if !now.Before(t.At) {
			due = append(due, t)
			delete(q.tasks, key)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].At.Equal(due[j].At) {
			return due[i].Key < due[j].Key
		}
		return due[i].At.Before(due[j].At)
	})
	for _, t := range due {
		t.Run(now)
	}
	return len(due)
}
