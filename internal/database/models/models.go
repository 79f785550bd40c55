// Package models holds the persisted row shapes.
package models

import "time"

// Upload is the header record for one persisted export file. It owns the
// call records that were first inserted under it, scoped to one agency.
type Upload struct {
	ID           string
	AgencyID     string
	FileName     string
	SourceFormat string
	RawCallCount int
	RecordCount  int
	CreatedAt    time.Time
}
