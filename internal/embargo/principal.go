package embargo

import "slices"

// Kind is the kind of principal making a request
type Kind int

const (
	KindAnonymous Kind = iota
	KindAuthenticated
	KindSuperuser
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindSuperuser:
		return "superuser"
	default:
		return "anonymous"
	}
}

// Principal is the actor behind a request. It is immutable once built; the set
// of active project memberships is a snapshot taken when the request started.
// A nil *Principal behaves as anonymous.
type Principal struct {
	kind     Kind
	userID   int64
	username string
	projects map[int64]struct{}
}

// Anonymous returns the principal for unauthenticated requests
func Anonymous() *Principal {
	return &Principal{kind: KindAnonymous}
}

// NewAuthenticated returns a regular user with the given active project memberships.
// Callers pass only active memberships; inactive rows must already be filtered out.
func NewAuthenticated(userID int64, username string, activeProjectIDs []int64) *Principal {
	projects := make(map[int64]struct{}, len(activeProjectIDs))
	for _, id := range activeProjectIDs {
		projects[id] = struct{}{}
	}
	return &Principal{kind: KindAuthenticated, userID: userID, username: username, projects: projects}
}

// NewSuperuser returns a principal that bypasses every embargo
func NewSuperuser(userID int64, username string) *Principal {
	return &Principal{kind: KindSuperuser, userID: userID, username: username}
}

// Kind returns the principal kind
func (p *Principal) Kind() Kind {
	if p == nil {
		return KindAnonymous
	}
	return p.kind
}

// UserID returns the user ID, or 0 for anonymous principals
func (p *Principal) UserID() int64 {
	if p == nil {
		return 0
	}
	return p.userID
}

// Username returns the user name, or "" for anonymous principals
func (p *Principal) Username() string {
	if p == nil {
		return ""
	}
	return p.username
}

func (p *Principal) IsAnonymous() bool { return p.Kind() == KindAnonymous }
func (p *Principal) IsSuperuser() bool { return p.Kind() == KindSuperuser }

// IsMemberOf reports an active membership in projectID. Only authenticated
// principals hold memberships.
func (p *Principal) IsMemberOf(projectID int64) bool {
	if p.Kind() != KindAuthenticated {
		return false
	}
	_, ok := p.projects[projectID]
	return ok
}

// ActiveProjects returns the IDs of the principal's active memberships in ascending order
func (p *Principal) ActiveProjects() []int64 {
	if p.Kind() != KindAuthenticated {
		return nil
	}
	ids := make([]int64, 0, len(p.projects))
	for id := range p.projects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
