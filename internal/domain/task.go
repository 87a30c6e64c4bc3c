package domain

import (
	"slices"
	"strings"
)

// TaskStatus is the lifecycle status of a project task.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

var validTaskStatuses = []TaskStatus{TaskStatusNotStarted, TaskStatusInProgress, TaskStatusCompleted}

// Task is a unit of project work an engineer reports on.
type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Title     string     `json:"title"`
	SubTask   string     `json:"subTask,omitempty"`
	Status    TaskStatus `json:"status"`
}

type TaskInput struct {
	ID        string
	ProjectID string
	Title     string
	SubTask   string
	Status    TaskStatus
}

func NewTask(in TaskInput) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Title = strings.TrimSpace(in.Title)
	in.SubTask = strings.TrimSpace(in.SubTask)

	if in.ID == "" || in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Title == "" {
		return Task{}, ErrInvalidTitle
	}
	status, err := ParseTaskStatus(string(in.Status))
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Title:     in.Title,
		SubTask:   in.SubTask,
		Status:    status,
	}, nil
}

// ParseTaskStatus normalizes a raw status; empty means not started.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(strings.TrimSpace(strings.ToLower(raw)))
	status = TaskStatus(strings.ReplaceAll(string(status), "-", "_"))
	if status == "" {
		return TaskStatusNotStarted, nil
	}
	if !slices.Contains(validTaskStatuses, status) {
		return "", ErrInvalidTaskStatus
	}
	return status, nil
}

// IsActive reports whether the task still takes part in daily surveys.
func (t Task) IsActive() bool {
	return t.Status == TaskStatusNotStarted || t.Status == TaskStatusInProgress
}

// DisplayTitle joins the title and sub-task label.
func (t Task) DisplayTitle() string {
	if t.SubTask == "" {
		return t.Title
	}
	return t.Title + " / " + t.SubTask
}

// ActiveTasks returns the active tasks in input order.
func ActiveTasks(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		if task.IsActive() {
			out = append(out, task)
		}
	}
	return out
}
