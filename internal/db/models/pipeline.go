// Package models - pipeline.go defines pipeline runs and the images and files they
// produce. Images and files have no embargo clock of their own; they inherit the
// parent observation's.
package models

import (
	"path"
	"time"
)

// PipelineRun is one processing run over an observation
type PipelineRun struct {
	ID            int64     `db:"id" json:"id"`
	ObservationID int64     `db:"observation_id" json:"observation_id"`
	EphemerisID   *int64    `db:"ephemeris_id" json:"ephemeris_id,omitempty"`
	TemplateID    *int64    `db:"template_id" json:"template_id,omitempty"`
	SN            *float64  `db:"sn" json:"sn,omitempty"`
	DM            *float64  `db:"dm" json:"dm,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PipelineImage is a diagnostic plot produced by a pipeline run
type PipelineImage struct {
	ID            int64     `db:"id" json:"id"`
	ObservationID int64     `db:"observation_id" json:"-"`
	PipelineRunID int64     `db:"pipeline_run_id" json:"pipeline_run_id"`
	ImageType     string    `db:"image_type" json:"image_type"`
	Resolution    string    `db:"resolution" json:"resolution"`
	Cleaned       bool      `db:"cleaned" json:"cleaned"`
	Path          string    `db:"path" json:"path"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Observation *Observation `db:"-" json:"-"`
}

// EmbargoSubject returns the parent observation's subject
func (i *PipelineImage) EmbargoSubject() EmbargoSubject {
	return inheritSubject(KindImage, i.ID, i.Observation)
}

// PipelineFile is a data product file produced by a pipeline run
type PipelineFile struct {
	ID            int64     `db:"id" json:"id"`
	ObservationID int64     `db:"observation_id" json:"-"`
	PipelineRunID int64     `db:"pipeline_run_id" json:"pipeline_run_id"`
	FileType      string    `db:"file_type" json:"file_type"`
	Path          string    `db:"path" json:"path"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Observation *Observation `db:"-" json:"-"`
}

// Name is the base name of the file
func (f *PipelineFile) Name() string {
	return path.Base(f.Path)
}

// EmbargoSubject returns the parent observation's subject
func (f *PipelineFile) EmbargoSubject() EmbargoSubject {
	return inheritSubject(KindFile, f.ID, f.Observation)
}

func inheritSubject(kind string, id int64, obs *Observation) EmbargoSubject {
	if obs == nil {
		return EmbargoSubject{Kind: kind, ID: id}
	}
	s := obs.EmbargoSubject()
	s.Kind = kind
	s.ID = id
	return s
}
