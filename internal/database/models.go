// Package database provides the metadata store models and queries for the
// dataset ingestion orchestrator.
package database

import (
	"database/sql"
	"time"
)

// =============================================================================
// UPDATE FREQUENCY
// =============================================================================

// Frequency is the cadence at which a dataset is re-ingested.
type Frequency string

const (
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Frequencies lists every supported cadence in scheduling order.
var Frequencies = []Frequency{
	FrequencyHourly,
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
	FrequencyYearly,
}

// Valid reports whether f is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// =============================================================================
// METADATA MODELS
// =============================================================================

// DatasetRecord represents a registered tabular dataset in meta_master.
// ResultIDs is the append-only history of worker run ids that have touched
// the dataset, most recent last. A null DateAdded means the dataset was
// registered but never successfully ingested.
type DatasetRecord struct {
	SourceHash string       `json:"sourceHash"`
	HumanName  string       `json:"humanName"`
	SourceURL  string       `json:"sourceUrl"`
	UpdateFreq Frequency    `json:"updateFreq"`
	ResultIDs  []string     `json:"resultIds"`
	DateAdded  sql.NullTime `json:"dateAdded"`
	TableName  string       `json:"tableName"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Ingested reports whether the dataset has ever been successfully ingested.
func (r *DatasetRecord) Ingested() bool {
	return r.DateAdded.Valid
}

// LastRunID returns the most recent run id in the history, or "" if none.
func (r *DatasetRecord) LastRunID() string {
	if len(r.ResultIDs) == 0 {
		return ""
	}
	return r.ResultIDs[len(r.ResultIDs)-1]
}

// ShapeRecord represents a registered shapefile dataset in meta_shape.
// Unlike tabular datasets, shapes keep a single run id slot rather than a
// history.
type ShapeRecord struct {
	TableName   string         `json:"tableName"`
	DatasetName string         `json:"datasetName"`
	SourceURL   string         `json:"sourceUrl"`
	UpdateFreq  Frequency      `json:"updateFreq"`
	IsIngested  bool           `json:"isIngested"`
	RunID       sql.NullString `json:"runId"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// =============================================================================
// NULLABLE HELPERS
// =============================================================================

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ToNullTime converts a time to sql.NullTime.
func ToNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
