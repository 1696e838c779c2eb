package embargo

import "github.com/meertime/dataportal/internal/db/models"

// Standing is a principal's relationship to a project
type Standing int

const (
	StandingNonMember Standing = iota
	StandingMember
	StandingSuperuser
)

func (s Standing) String() string {
	switch s {
	case StandingMember:
		return "member"
	case StandingSuperuser:
		return "superuser"
	default:
		return "non_member"
	}
}

// StandingOf returns the principal's standing toward project. Anonymous principals
// and authenticated users without an active membership are non-members.
func StandingOf(p *Principal, project *models.Project) Standing {
	if p.IsSuperuser() {
		return StandingSuperuser
	}
	if project != nil && p.IsMemberOf(project.ID) {
		return StandingMember
	}
	return StandingNonMember
}
