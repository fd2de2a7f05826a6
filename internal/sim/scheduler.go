package sim

import "sort"

// TaskID identifies a scheduled task so callers can cancel it.
type TaskID uint64

type scheduledTask struct {
	id  TaskID
	due uint64
	fn  func(tick uint64)
}

// Scheduler runs callbacks at future ticks. It is owned by the world and only
// touched from the tick goroutine, so it needs no locking. Tasks due on the
// same tick run in the order they were scheduled.
type Scheduler struct {
	nextID  TaskID
	pending map[TaskID]*scheduledTask
}

// NewScheduler constructs an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[TaskID]*scheduledTask)}
}

// ScheduleAt registers fn to run when the world reaches tick due. A due tick
// at or before the current tick fires on the next timer phase.
func (s *Scheduler) ScheduleAt(due uint64, fn func(tick uint64)) TaskID {
	if s == nil || fn == nil {
		return 0
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = &scheduledTask{id: id, due: due, fn: fn}
	return id
}

// Cancel removes a pending task. It reports whether the task was still
// pending.
func (s *Scheduler) Cancel(id TaskID) bool {
	if s == nil {
		return false
	}
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// Pending reports the number of tasks not yet fired.
func (s *Scheduler) Pending() int {
	if s == nil {
		return 0
	}
	return len(s.pending)
}

// RunDue fires every task whose due tick is at or before tick. Tasks scheduled
// by a firing task for the same tick run within the same call.
func (s *Scheduler) RunDue(tick uint64) {
	if s == nil {
		return
	}
	for {
		var due []*scheduledTask
		for _, task := range s.pending {
			if task.due <= tick {
				due = append(due, task)
			}
		}
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].due != due[j].due {
				return due[i].due < due[j].due
			}
			return due[i].id < due[j].id
		})
		for _, task := range due {
			delete(s.pending, task.id)
			task.fn(tick)
		}
	}
}
