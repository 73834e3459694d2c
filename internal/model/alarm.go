package model

import "time"

// Severity is the OpenNMS-style alarm severity scale.
type Severity int

const (
	SeverityIndeterminate Severity = iota
	SeverityCleared
	SeverityNormal
	SeverityWarning
	SeverityMinor
	SeverityMajor
	SeverityCritical
)

// String renders the severity the way it appears on the wire / in logs.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityMajor:
		return "MAJOR"
	case SeverityMinor:
		return "MINOR"
	case SeverityWarning:
		return "WARNING"
	case SeverityNormal:
		return "NORMAL"
	case SeverityCleared:
		return "CLEARED"
	default:
		return "INDETERMINATE"
	}
}

// AlarmType distinguishes a raise from a clear record for the same
// reduction key.
type AlarmType int

const (
	AlarmTypeRaise AlarmType = iota
	AlarmTypeClear
)

func (t AlarmType) String() string {
	if t == AlarmTypeClear {
		return "CLEAR"
	}
	return "RAISE"
}

// RelatedAlarm is a summary of another alarm correlated with this one.
type RelatedAlarm struct {
	ReductionKey string `json:"reductionKey"`
	UEI          string `json:"uei,omitempty"`
}

// Alarm is a single fault-alarm record off the alarms stream.
type Alarm struct {
	ID             int64    `json:"id"`
	ReductionKey   string   `json:"reductionKey"`
	UEI            string   `json:"uei"`
	Severity       Severity `json:"severity"`
	Type           AlarmType `json:"type"`
	FirstEventTime int64    `json:"firstEventTime"` // epoch-ms

	Service   string `json:"service,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	IfIndex   int    `json:"ifIndex,omitempty"`

	TroubleTicketID    string `json:"troubleTicketId,omitempty"`
	TroubleTicketState string `json:"troubleTicketState,omitempty"`

	ManagedObjectType     string `json:"managedObjectType,omitempty"`
	ManagedObjectInstance string `json:"managedObjectInstance,omitempty"`

	LogMessage           string `json:"logMessage,omitempty"`
	Description          string `json:"description,omitempty"`
	OperatorInstructions string `json:"operatorInstructions,omitempty"`

	Count int `json:"count,omitempty"`

	AckUser string     `json:"ackUser,omitempty"`
	AckTime *time.Time `json:"ackTime,omitempty"`

	NodeCriteria NodeCriteria `json:"nodeCriteria"`

	RelatedAlarms []RelatedAlarm `json:"relatedAlarms,omitempty"`
}

// IsClear reports whether the alarm record itself signals a clear, either
// by severity or by type. Both conditions route ActiveAlarmTable.Upsert
// into a resolve rather than a store.
func (a Alarm) IsClear() bool {
	return a.Severity == SeverityCleared || a.Type == AlarmTypeClear
}
