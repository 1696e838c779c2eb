package embargo

import (
	"errors"
	"time"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/telemetry"
)

// Artifact is anything that can be reduced to an embargo subject
type Artifact interface {
	EmbargoSubject() models.EmbargoSubject
}

// Decision is the outcome of evaluating one artifact for one principal
type Decision struct {
	Allowed   bool
	Embargoed bool
	Standing  Standing
}

// outcome labels for telemetry.AccessDecisionsTotal
const (
	outcomePublic    = "public"
	outcomeMember    = "member"
	outcomeSuperuser = "superuser"
	outcomeDenied    = "denied"
	outcomeIntegrity = "integrity_error"
)

// Accessor applies the embargo rule to single artifacts
type Accessor struct {
	clock Clock
}

// NewAccessor returns an accessor reading time from clock (SystemClock if nil)
func NewAccessor(clock Clock) *Accessor {
	if clock == nil {
		clock = SystemClock
	}
	return &Accessor{clock: clock}
}

// Now returns the accessor's current time
func (a *Accessor) Now() time.Time {
	return a.clock.Now()
}

// Decide evaluates art for p:
//
//	superuser           → allowed
//	embargo has lapsed  → allowed (anyone, including anonymous)
//	otherwise           → allowed only for active members of the subject's project
//
// Superusers are allowed even when the subject is malformed; Embargoed is then
// reported false. For everyone else a malformed subject is a *DataIntegrityError.
func (a *Accessor) Decide(p *Principal, art Artifact) (Decision, error) {
	subject := art.EmbargoSubject()
	standing := StandingOf(p, subject.Project)

	embargoed, err := a.embargoed(subject)
	if standing == StandingSuperuser {
		telemetry.AccessDecisionsTotal.WithLabelValues(subject.Kind, outcomeSuperuser).Inc()
		return Decision{Allowed: true, Embargoed: err == nil && embargoed, Standing: standing}, nil
	}
	if err != nil {
		telemetry.AccessDecisionsTotal.WithLabelValues(subject.Kind, outcomeIntegrity).Inc()
		return Decision{Standing: standing}, err
	}

	d := Decision{Embargoed: embargoed, Standing: standing}
	switch {
	case !embargoed:
		d.Allowed = true
		telemetry.AccessDecisionsTotal.WithLabelValues(subject.Kind, outcomePublic).Inc()
	case standing == StandingMember:
		d.Allowed = true
		telemetry.AccessDecisionsTotal.WithLabelValues(subject.Kind, outcomeMember).Inc()
	default:
		telemetry.AccessDecisionsTotal.WithLabelValues(subject.Kind, outcomeDenied).Inc()
	}
	return d, nil
}

// CanAccess is Decide reduced to its verdict
func (a *Accessor) CanAccess(p *Principal, art Artifact) (bool, error) {
	d, err := a.Decide(p, art)
	return d.Allowed, err
}

func (a *Accessor) embargoed(s models.EmbargoSubject) (bool, error) {
	if s.Project == nil {
		return false, &DataIntegrityError{Artifact: s.Kind, ID: s.ID, Field: "project", Reason: "is missing"}
	}
	embargoed, err := IsEmbargoed(s.Reference, s.Project.EmbargoPeriod(), a.clock.Now())
	if err != nil {
		var die *DataIntegrityError
		if errors.As(err, &die) {
			die.Artifact = s.Kind
			die.ID = s.ID
		}
		return false, err
	}
	return embargoed, nil
}
