package models

import "strings"

// Normalize applies field normalization to an inbound draft
// - trims and lower-cases SourceType and Severity
// - defaults Severity to info
func (d *Draft) Normalize() {
	d.SourceType = strings.ToLower(strings.TrimSpace(d.SourceType))
	d.DriverID = strings.TrimSpace(d.DriverID)

	d.Severity = Severity(strings.ToLower(strings.TrimSpace(string(d.Severity))))
	if d.Severity == "" {
		d.Severity = SeverityInfo
	}
}
