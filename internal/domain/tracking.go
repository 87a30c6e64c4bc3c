package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date form used for day comparisons.
const DateLayout = "2006-01-02"

// wallClockLayout is the zone-less timestamp form some clients write.
const wallClockLayout = "2006-01-02T15:04:05"

// SurveyTrackingRecord remembers the last day a user addressed a project's survey.
type SurveyTrackingRecord struct {
	UserID         string     `json:"userId"`
	ProjectID      string     `json:"projectId"`
	LastSurveyDate *time.Time `json:"lastSurveyDate,omitempty"`
	// WallClock marks LastSurveyDate as stored without a zone. Its fields are
	// read in the gate's location rather than as a UTC instant.
	WallClock      bool       `json:"-"`
	Skipped        bool       `json:"skipped"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TrackingKey builds the document key for a (user, project) pair.
func TrackingKey(userID, projectID string) string {
	return strings.TrimSpace(userID) + "_" + strings.TrimSpace(projectID)
}

// Key returns the record's document key.
func (r SurveyTrackingRecord) Key() string {
	return TrackingKey(r.UserID, r.ProjectID)
}

// NewTrackingRecord builds the merge payload written on submit or skip.
func NewTrackingRecord(userID, projectID string, skipped bool, now time.Time) (SurveyTrackingRecord, error) {
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		return SurveyTrackingRecord{}, ErrInvalidID
	}
	addressed := now.UTC()
	return SurveyTrackingRecord{
		UserID:         userID,
		ProjectID:      projectID,
		LastSurveyDate: &addressed,
		Skipped:        skipped,
		UpdatedAt:      now.UTC(),
	}, nil
}

// Merge folds an incoming write into the stored record.
// LastSurveyDate never moves backwards, and Skipped is taken only from a
// write dated no earlier than the stored date.
func (r SurveyTrackingRecord) Merge(in SurveyTrackingRecord) SurveyTrackingRecord {
	out := r
	if in.UserID != "" {
		out.UserID = in.UserID
	}
	if in.ProjectID != "" {
		out.ProjectID = in.ProjectID
	}
	switch {
	case in.LastSurveyDate == nil:
		out.Skipped = in.Skipped
	case out.LastSurveyDate == nil || in.LastSurveyDate.After(*out.LastSurveyDate):
		last := in.LastSurveyDate.UTC()
		out.LastSurveyDate = &last
		out.WallClock = in.WallClock
		out.Skipped = in.Skipped
	case in.LastSurveyDate.Equal(*out.LastSurveyDate):
		out.Skipped = in.Skipped
	}
	if in.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = in.UpdatedAt.UTC()
	}
	return out
}

// AddressedOn reports whether the record marks the day of now as addressed.
func (r SurveyTrackingRecord) AddressedOn(now time.Time, loc *time.Location) bool {
	if r.LastSurveyDate == nil {
		return false
	}
	if r.WallClock {
		return r.LastSurveyDate.Format(DateLayout) == DateKey(now, loc)
	}
	return DateKey(*r.LastSurveyDate, loc) == DateKey(now, loc)
}

// SetStoredSurveyDate decodes a stored lastSurveyDate onto the record.
// Unknown shapes leave the record untouched and report false.
func (r *SurveyTrackingRecord) SetStoredSurveyDate(v any) bool {
	t, wallClock, ok := normalizeSurveyDate(v)
	if !ok {
		return false
	}
	t = t.UTC()
	r.LastSurveyDate = &t
	r.WallClock = wallClock
	return true
}

// StoredSurveyDate returns the value to persist for LastSurveyDate: a UTC
// instant, a zone-less string for wall-clock dates, or nil when unset.
func (r SurveyTrackingRecord) StoredSurveyDate() any {
	switch {
	case r.LastSurveyDate == nil:
		return nil
	case r.WallClock:
		return r.LastSurveyDate.UTC().Format(wallClockLayout)
	default:
		return r.LastSurveyDate.UTC()
	}
}

// DateKey formats t as YYYY-MM-DD in loc, or in t's own zone when loc is nil.
func DateKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateLayout)
}

type asTimer interface {
	AsTime() time.Time
}

type toDater interface {
	ToDate() time.Time
}

// NormalizeSurveyDate accepts a stored survey date in any supported shape.
// Server timestamps expose AsTime or ToDate; native values are time.Time;
// strings are RFC3339, zone-less, or a bare calendar date. Zone-less strings
// keep their wall-clock fields in UTC. Unknown shapes report false.
func NormalizeSurveyDate(v any) (time.Time, bool) {
	t, _, ok := normalizeSurveyDate(v)
	return t, ok
}

func normalizeSurveyDate(v any) (t time.Time, wallClock bool, ok bool) {
	switch value := v.(type) {
	case nil:
		return time.Time{}, false, false
	case time.Time:
		return value, false, !value.IsZero()
	case *time.Time:
		if value == nil || value.IsZero() {
			return time.Time{}, false, false
		}
		return *value, false, true
	case asTimer:
		return value.AsTime(), false, true
	case toDater:
		return value.ToDate(), false, true
	case string:
		return parseISODate(value)
	default:
		return time.Time{}, false, false
	}
}

func parseISODate(raw string) (time.Time, bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, false, true
		}
	}
	for _, layout := range []string{wallClockLayout, DateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, true
		}
	}
	return time.Time{}, false, false
}
