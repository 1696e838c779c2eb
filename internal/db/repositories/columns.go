package repositories

// projectColumns selects the joined project (alias p) into a nested `db:"project"` struct
const projectColumns = `
	p.id AS "project.id",
	p.code AS "project.code",
	p.short_name AS "project.short_name",
	p.main_project AS "project.main_project",
	p.embargo_period_seconds AS "project.embargo_period_seconds",
	p.description AS "project.description",
	p.created_at AS "project.created_at",
	p.updated_at AS "project.updated_at"`
