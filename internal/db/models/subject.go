package models

import "time"

// Artifact kinds, used as labels on access decisions.
const (
	KindObservation = "observation"
	KindEphemeris   = "ephemeris"
	KindTemplate    = "template"
	KindToaBundle   = "toa_bundle"
	KindImage       = "pipeline_image"
	KindFile        = "pipeline_file"
)

// EmbargoSubject is the (project, reference timestamp) pair an artifact's embargo
// is evaluated against. Project is nil when the owning project could not be joined.
type EmbargoSubject struct {
	Kind      string
	ID        int64
	Project   *Project
	Reference time.Time
}
