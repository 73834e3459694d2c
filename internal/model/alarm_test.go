package model

import "testing"

func TestAlarmIsClear(t *testing.T) {
	cases := []struct {
		name  string
		alarm Alarm
		want  bool
	}{
		{"normal raise", Alarm{Severity: SeverityMajor, Type: AlarmTypeRaise}, false},
		{"cleared severity", Alarm{Severity: SeverityCleared, Type: AlarmTypeRaise}, true},
		{"clear type", Alarm{Severity: SeverityMajor, Type: AlarmTypeClear}, true},
		{"both", Alarm{Severity: SeverityCleared, Type: AlarmTypeClear}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.alarm.IsClear(); got != tc.want {
				t.Errorf("IsClear() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		SeverityCritical:      "CRITICAL",
		SeverityMajor:         "MAJOR",
		SeverityMinor:         "MINOR",
		SeverityWarning:       "WARNING",
		SeverityNormal:        "NORMAL",
		SeverityCleared:       "CLEARED",
		SeverityIndeterminate: "INDETERMINATE",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}
