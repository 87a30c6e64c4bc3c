package domain

import (
	"slices"
	"strings"
	"time"
)

// SiteStatus is the engineer's overall answer for the site on one day.
type SiteStatus string

const (
	SiteStatusNormal  SiteStatus = "normal"
	SiteStatusDelayed SiteStatus = "delayed"
	SiteStatusClosed  SiteStatus = "closed"
)

var validSiteStatuses = []SiteStatus{SiteStatusNormal, SiteStatusDelayed, SiteStatusClosed}

// ParseSiteStatus normalizes a raw site status value.
func ParseSiteStatus(raw string) (SiteStatus, error) {
	status := SiteStatus(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(validSiteStatuses, status) {
		return "", ErrInvalidSiteStatus
	}
	return status, nil
}

// TaskProductivity classifies whether a task advanced on a given day.
type TaskProductivity string

const (
	Productive    TaskProductivity = "productive"
	NonProductive TaskProductivity = "non_productive"
)

// ReasonOther is the reason value that unlocks the free-text field.
const ReasonOther = "Other"

// SiteClosedReasons lists the accepted reasons for a closed site.
var SiteClosedReasons = []string{
	"Holiday",
	"Bad Weather",
	"Permit Issue",
	"Safety Inspection",
	"Material Shortage",
	"Labor Strike",
	ReasonOther,
}

// DelayReasons lists the accepted reasons for a non-productive task.
var DelayReasons = []string{
	"Bad Weather",
	"Material Delay",
	"Permit Issue",
	"Equipment Breakdown",
	"Manpower Shortage",
	"Safety/Hazard",
	ReasonOther,
}

// IsSiteClosedReason reports whether reason is in the closed-site set.
func IsSiteClosedReason(reason string) bool {
	return slices.Contains(SiteClosedReasons, reason)
}

// IsDelayReason reports whether reason is in the delay set.
func IsDelayReason(reason string) bool {
	return slices.Contains(DelayReasons, reason)
}

// TaskUpdate is the per-task answer inside one survey.
type TaskUpdate struct {
	Status           TaskProductivity `json:"status"`
	DelayReason      string           `json:"delayReason,omitempty"`
	DelayReasonOther string           `json:"delayReasonOther,omitempty"`
}

// SurveyData is one day's submission for a project.
type SurveyData struct {
	ID                    string                `json:"id,omitempty"`
	ProjectID             string                `json:"projectId"`
	Date                  time.Time             `json:"date"`
	EngineerName          string                `json:"engineerName"`
	SiteStatus            SiteStatus            `json:"siteStatus"`
	SiteClosedReason      string                `json:"siteClosedReason,omitempty"`
	SiteClosedReasonOther string                `json:"siteClosedReasonOther,omitempty"`
	TaskUpdates           map[string]TaskUpdate `json:"taskUpdates"`
}

// Validate checks the submit guard rules for a completed survey.
func (d SurveyData) Validate() error {
	verr := &ValidationError{Cause: ErrSurveyIncomplete}
	if strings.TrimSpace(d.ProjectID) == "" {
		verr.add("projectId", "project id is required")
	}
	if !slices.Contains(validSiteStatuses, d.SiteStatus) {
		verr.add("siteStatus", "site status must be normal, delayed, or closed")
	}
	if d.SiteStatus == SiteStatusClosed {
		switch {
		case d.SiteClosedReason == "":
			verr.add("siteClosedReason", "a reason is required when the site is closed")
		case !IsSiteClosedReason(d.SiteClosedReason):
			verr.add("siteClosedReason", "unknown site closed reason")
		}
	}
	for _, taskID := range sortedKeys(d.TaskUpdates) {
		update := d.TaskUpdates[taskID]
		field := "taskUpdates." + taskID
		switch update.Status {
		case Productive:
			if update.DelayReason != "" {
				verr.add(field+".delayReason", "productive tasks carry no delay reason")
			}
		case NonProductive:
			if d.SiteStatus != SiteStatusDelayed {
				continue
			}
			switch {
			case strings.TrimSpace(update.DelayReason) == "":
				verr.add(field+".delayReason", "a delay reason is required")
			case !IsDelayReason(update.DelayReason):
				verr.add(field+".delayReason", "unknown delay reason")
			}
		default:
			verr.add(field+".status", "status must be productive or non_productive")
		}
		if update.DelayReasonOther != "" && update.DelayReason != ReasonOther {
			verr.add(field+".delayReasonOther", "free text is only allowed with reason Other")
		}
	}
	return verr.errOrNil()
}

// Normalized returns a copy with trimmed text fields and a UTC date.
func (d SurveyData) Normalized() SurveyData {
	d.ID = strings.TrimSpace(d.ID)
	d.ProjectID = strings.TrimSpace(d.ProjectID)
	d.EngineerName = strings.TrimSpace(d.EngineerName)
	d.SiteClosedReason = strings.TrimSpace(d.SiteClosedReason)
	d.SiteClosedReasonOther = strings.TrimSpace(d.SiteClosedReasonOther)
	if d.SiteClosedReason != ReasonOther {
		d.SiteClosedReasonOther = ""
	}
	if d.SiteStatus != SiteStatusClosed {
		d.SiteClosedReason = ""
		d.SiteClosedReasonOther = ""
	}
	d.Date = d.Date.UTC()
	updates := make(map[string]TaskUpdate, len(d.TaskUpdates))
	for taskID, update := range d.TaskUpdates {
		update.DelayReason = strings.TrimSpace(update.DelayReason)
		update.DelayReasonOther = strings.TrimSpace(update.DelayReasonOther)
		updates[strings.TrimSpace(taskID)] = update
	}
	d.TaskUpdates = updates
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SurveySubmission is a delivered survey as kept in history.
type SurveySubmission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Survey      SurveyData       `json:"survey"`
	Result      SubmissionResult `json:"result"`
	SubmittedAt time.Time        `json:"submittedAt"`
}
