// Package models - toa.go defines time-of-arrival rows and the bundles they form.
// A ToA row carries its own project, independent of its observation's project.
package models

import (
	"fmt"
	"path"
	"time"
)

// Toa is a single time-of-arrival measurement (one per frequency channel)
type Toa struct {
	ID            int64     `db:"id" json:"id"`
	PipelineRunID int64     `db:"pipeline_run_id" json:"pipeline_run_id"`
	ObservationID int64     `db:"observation_id" json:"observation_id"`
	ProjectID     int64     `db:"project_id" json:"project_id"`
	DMCorrected   bool      `db:"dm_corrected" json:"dm_corrected"`
	NsubType      string    `db:"nsub_type" json:"nsub_type"`
	ObsNchan      int       `db:"obs_nchan" json:"obs_nchan"`
	ObsNpol       int       `db:"obs_npol" json:"obs_npol"`
	Frequency     float64   `db:"freq_mhz" json:"freq_mhz"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Decimation selects one ToA file out of the several produced per observation
type Decimation struct {
	DMCorrected bool   `db:"dm_corrected" json:"dm_corrected"`
	NsubType    string `db:"nsub_type" json:"nsub_type"`
	Nchan       int    `db:"obs_nchan" json:"nchan"`
	Npol        int    `db:"obs_npol" json:"npol"`
}

// Label renders the decimation as used in ToA file names, e.g. "dm0_nsub1_1ch1p"
func (d Decimation) Label() string {
	dm := 0
	if d.DMCorrected {
		dm = 1
	}
	return fmt.Sprintf("dm%d_nsub%s_%dch%dp", dm, d.NsubType, d.Nchan, d.Npol)
}

// ToaBundle is the logical file formed by all ToA rows of one observation, one
// project and one decimation. Its embargo uses the bundle's project and the
// observation's start time.
type ToaBundle struct {
	ObservationID int64   `db:"observation_id" json:"observation_id"`
	Project       Project `db:"project" json:"project"`
	RowCount      int     `db:"row_count" json:"row_count"`
	Decimation

	Observation *Observation `db:"-" json:"-"`
}

// EmbargoSubject returns the bundle's own project and the observation start time
func (b *ToaBundle) EmbargoSubject() EmbargoSubject {
	s := EmbargoSubject{Kind: KindToaBundle, ID: b.ObservationID}
	if b.Project.ID != 0 {
		s.Project = &b.Project
	}
	if b.Observation != nil {
		s.Reference = b.Observation.UTCStart
	}
	return s
}

// FileName is the base name of the bundle's timing file
func (b *ToaBundle) FileName() string {
	if b.Observation == nil {
		return ""
	}
	o := b.Observation
	return fmt.Sprintf("%s_%s_%d_%s.tim", o.PulsarName, o.UTC(), o.Beam, b.Decimation.Label())
}

// FilePath is the store path of the bundle's timing file:
// <observation dir>/timing/<project code>/<file name>
func (b *ToaBundle) FilePath() string {
	if b.Observation == nil {
		return ""
	}
	return path.Join(b.Observation.Dir(), "timing", b.Project.Code, b.FileName())
}
