package api

import (
	"strings"

	"checkin/internal/attendance"
)

// Labels used by the web client. Storage names are accepted as well.
var wireStatus = map[string]attendance.Status{
	"HADIR":       attendance.StatusPresent,
	"IZIN":        attendance.StatusExcused,
	"TIDAK_HADIR": attendance.StatusAbsent,
}

// parseStatus returns the zero Status and false for an unknown label.
func parseStatus(s string) (attendance.Status, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if st, ok := wireStatus[s]; ok {
		return st, true
	}
	st, err := attendance.ParseStatus(s)
	return st, err == nil
}

func statusLabel(st attendance.Status) string {
	for label, v := range wireStatus {
		if v == st {
			return label
		}
	}
	return st.String()
}
