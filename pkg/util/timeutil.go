package util

import "time"

// ExportLayout formats the timestamp embedded in exported summary filenames.
const ExportLayout = "20060102_150405"

// Now returns the local wall clock; export filenames use local time.
func Now() time.Time {
	return time.Now()
}

// SummaryFilename returns summary_<YYYYMMDD_HHMMSS>.txt for the given instant.
func SummaryFilename(at time.Time) string {
	return "summary_" + at.Format(ExportLayout) + ".txt"
}
