package views

import (
	"time"

	"tasksync/internal/model"
	"tasksync/internal/statusutil"
	"tasksync/internal/store"
)

// Column is one board column.
type Column struct {
	Status model.Status
	Tasks  []model.Task
}

// ByStatus groups tasks into one column per status, in board order. Every status
// gets a column, empty or not; tasks inside a column keep created order.
func ByStatus(tasks []model.Task) []Column {
	cols := make([]Column, 0, len(statusutil.Statuses()))
	idx := map[model.Status]int{}
	for i, s := range statusutil.Statuses() {
		cols = append(cols, Column{Status: s, Tasks: []model.Task{}})
		idx[s] = i
	}
	sorted := append([]model.Task(nil), tasks...)
	store.SortTasks(sorted, store.Sort{Field: store.SortCreatedAt})
	for _, t := range sorted {
		i, ok := idx[t.Status]
		if !ok {
			continue
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// Flat is the list view: every task ordered by s.
func Flat(s store.Sort) func([]model.Task) []model.Task {
	return func(tasks []model.Task) []model.Task {
		out := append([]model.Task{}, tasks...)
		store.SortTasks(out, s)
		return out
	}
}

// WithStatus projects only tasks in the given status, by id.
func WithStatus(status model.Status) func([]model.Task) []model.Task {
	return func(tasks []model.Task) []model.Task {
		out := []model.Task{}
		for _, t := range tasks {
			if t.Status == status {
				out = append(out, t)
			}
		}
		return out
	}
}

// Card is the part of a task the calendar draws. Comments, attachments, history and
// timestamps are left out so changes to them do not reach calendar subscribers.
type Card struct {
	ID       string
	Title    string
	Status   model.Status
	Priority model.Priority
	Assignee string
	Deadline time.Time
}

func cardOf(t model.Task) Card {
	c := Card{
		ID:       t.ID,
		Title:    t.Title,
		Status:   t.Status,
		Priority: t.Priority,
		Assignee: t.Assignee,
	}
	if t.Deadline != nil {
		c.Deadline = t.Deadline.UTC()
	}
	return c
}

// DateBucket holds the cards due on one UTC calendar day.
type DateBucket struct {
	Date  time.Time
	Cards []Card
}

// ByDate is the calendar view: tasks with a deadline bucketed per UTC day, oldest day
// first. Tasks without a deadline are left out.
func ByDate(tasks []model.Task) []DateBucket {
	sorted := append([]model.Task(nil), tasks...)
	store.SortTasks(sorted, store.Sort{Field: store.SortDeadline})

	out := []DateBucket{}
	for _, t := range sorted {
		if t.Deadline == nil {
			continue
		}
		c := cardOf(t)
		d := c.Deadline
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Cards = append(out[n-1].Cards, c)
			continue
		}
		out = append(out, DateBucket{Date: day, Cards: []Card{c}})
	}
	return out
}
