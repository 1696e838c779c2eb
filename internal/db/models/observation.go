// Package models - observation.go defines pulsars and observations together with
// the storage path conventions of an observation's archive files.
package models

import (
	"fmt"
	"path"
	"time"
)

// UTCFormat is the layout of observation timestamps in URLs and on the file store
const UTCFormat = "2006-01-02-15:04:05"

// ObsType is the kind of observation
type ObsType string

const (
	ObsTypeFold   ObsType = "fold"
	ObsTypeSearch ObsType = "search"
	ObsTypeCal    ObsType = "cal"
)

// FileType names a downloadable product of an observation
type FileType string

const (
	FileTypeFull      FileType = "full"
	FileTypeDecimated FileType = "decimated"
	FileTypeToas      FileType = "toas"
)

// ParseFileType validates a file type taken from a request
func ParseFileType(s string) (FileType, bool) {
	switch FileType(s) {
	case FileTypeFull, FileTypeDecimated, FileTypeToas:
		return FileType(s), true
	}
	return "", false
}

// Pulsar is a named pulsar
type Pulsar struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Observation is a single telescope observation of a pulsar. Project is joined
// from the projects table.
type Observation struct {
	ID         int64     `db:"id" json:"id"`
	PulsarID   int64     `db:"pulsar_id" json:"pulsar_id"`
	PulsarName string    `db:"pulsar_name" json:"pulsar"`
	Telescope  string    `db:"telescope" json:"telescope"`
	Project    Project   `db:"project" json:"project"`
	UTCStart   time.Time `db:"utc_start" json:"utc_start"`
	Beam       int       `db:"beam" json:"beam"`
	ObsType    ObsType   `db:"obs_type" json:"obs_type"`

	// EmbargoEndDate is the stored snapshot taken at ingest (and refreshed after an
	// embargo period edit). It is shown in listings only and never used for decisions.
	EmbargoEndDate time.Time `db:"embargo_end_date" json:"embargo_end_date"`
	EphemerisID    *int64    `db:"ephemeris_id" json:"ephemeris_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EmbargoSubject returns the observation's own project and start time
func (o *Observation) EmbargoSubject() EmbargoSubject {
	s := EmbargoSubject{Kind: KindObservation, ID: o.ID, Reference: o.UTCStart}
	if o.Project.ID != 0 {
		s.Project = &o.Project
	}
	return s
}

// UTC returns the observation start formatted for paths and URLs
func (o *Observation) UTC() string {
	return o.UTCStart.UTC().Format(UTCFormat)
}

// Dir is the observation's directory on the file store:
// <main project>/<pulsar>/<utc>/<beam>
func (o *Observation) Dir() string {
	return path.Join(o.Project.MainProject, o.PulsarName, o.UTC(), fmt.Sprintf("%d", o.Beam))
}

// ArchivePath returns the store path of the full or decimated archive file.
// It returns "" for file types that are not a single archive.
func (o *Observation) ArchivePath(ft FileType) string {
	base := fmt.Sprintf("%s_%s_%d", o.PulsarName, o.UTC(), o.Beam)
	switch ft {
	case FileTypeFull:
		return path.Join(o.Dir(), "full", base+"_zap.ar")
	case FileTypeDecimated:
		return path.Join(o.Dir(), "decimated", base+"_zap.dly")
	}
	return ""
}

// ObservationCriteria selects observations. Zero-valued fields do not filter.
type ObservationCriteria struct {
	PulsarName      string
	Telescope       string
	ObsType         ObsType
	UTCStart        *time.Time
	Beam            *int
	ExcludeProjects []string // project codes
}
