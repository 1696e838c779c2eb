// Package models defines the database model types for the data portal.
// Each type corresponds to a database table (or a join over several) and uses struct
// tags for both JSON serialization and sqlx row scanning.
// Models are pure data types. Access decisions belong in the embargo package and
// query logic belongs in the repositories layer.
package models

import "time"

// Project is a proposal/science project that owns observations and derived data.
// Every artifact tagged with a project becomes public EmbargoPeriod after its
// reference timestamp.
type Project struct {
	ID                   int64     `db:"id" json:"id"`
	Code                 string    `db:"code" json:"code"`
	ShortName            string    `db:"short_name" json:"short_name"`
	MainProject          string    `db:"main_project" json:"main_project"`
	EmbargoPeriodSeconds int64     `db:"embargo_period_seconds" json:"-"`
	Description          string    `db:"description" json:"description"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// EmbargoPeriod returns the project's embargo period. A negative value is not
// corrected here; the embargo clock rejects it.
func (p *Project) EmbargoPeriod() time.Duration {
	return time.Duration(p.EmbargoPeriodSeconds) * time.Second
}

// EmbargoPeriodDays returns the embargo period rounded down to whole days
func (p *Project) EmbargoPeriodDays() int64 {
	return p.EmbargoPeriodSeconds / 86400
}

// DefaultEmbargoPeriod is roughly eighteen months, the period new projects are created with.
const DefaultEmbargoPeriod = 548 * 24 * time.Hour
