package models

import (
	"encoding/json"
	"time"
)

// Ephemeris is a timing solution for a pulsar, produced within a project. Its
// embargo clock starts at CreatedAt, independent of any observation it was used for.
type Ephemeris struct {
	ID        int64           `db:"id" json:"id"`
	PulsarID  int64           `db:"pulsar_id" json:"pulsar_id"`
	Project   Project         `db:"project" json:"project"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	Data      json.RawMessage `db:"ephemeris_data" json:"data"`
	Hash      string          `db:"ephemeris_hash" json:"hash"`
	Comment   string          `db:"comment" json:"comment"`

	// HasToas is joined: true when a pipeline run folded with this ephemeris
	// produced ToA rows.
	HasToas bool `db:"has_toas" json:"-"`
}

// EmbargoSubject returns the ephemeris project and creation time
func (e *Ephemeris) EmbargoSubject() EmbargoSubject {
	s := EmbargoSubject{Kind: KindEphemeris, ID: e.ID, Reference: e.CreatedAt}
	if e.Project.ID != 0 {
		s.Project = &e.Project
	}
	return s
}

// Template is a standard profile used to fold a pulsar in a given band
type Template struct {
	ID           int64     `db:"id" json:"id"`
	PulsarID     int64     `db:"pulsar_id" json:"pulsar_id"`
	Project      Project   `db:"project" json:"project"`
	Band         string    `db:"band" json:"band"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	TemplateFile string    `db:"template_file" json:"template_file"`
	Hash         string    `db:"template_hash" json:"hash"`
}

// EmbargoSubject returns the template project and creation time
func (t *Template) EmbargoSubject() EmbargoSubject {
	s := EmbargoSubject{Kind: KindTemplate, ID: t.ID, Reference: t.CreatedAt}
	if t.Project.ID != 0 {
		s.Project = &t.Project
	}
	return s
}
