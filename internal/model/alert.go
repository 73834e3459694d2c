package model

import "time"

// Alert is shaped to match the Alertmanager v2 POST /api/v2/alerts body.
type Alert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt,omitempty"`
	EndsAt       string            `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}

// CachedAlarm is what ActiveAlarmTable stores per reduction key: the raw
// alarm, the alert it last mapped to, and when it was last sent. The
// cached Alert is re-derived at every resend (see scheduler.Resend) rather
// than trusted verbatim, so node-cache updates that arrive after the alarm
// are reflected on the next tick; it is read back verbatim only when a
// tombstone arrives and the raw alarm is no longer available, or when a
// resend finds the alarm no longer passes the filter.
type CachedAlarm struct {
	Alarm    Alarm
	Alert    Alert
	LastSent time.Time
}
