package embargo

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/telemetry"
)

func TestStandingOf(t *testing.T) {
	p := project(5, "SCI-A", 548*day)

	assert.Equal(t, StandingNonMember, StandingOf(nil, &p))
	assert.Equal(t, StandingNonMember, StandingOf(Anonymous(), &p))
	assert.Equal(t, StandingNonMember, StandingOf(NewAuthenticated(1, "ana", []int64{6}), &p))
	assert.Equal(t, StandingMember, StandingOf(NewAuthenticated(1, "ana", []int64{5, 6}), &p))
	assert.Equal(t, StandingSuperuser, StandingOf(NewSuperuser(2, "root"), &p))
	assert.Equal(t, StandingNonMember, StandingOf(NewAuthenticated(1, "ana", []int64{5}), nil))
}

func TestAccessor_Rule(t *testing.T) {
	embargoed := project(1, "SCI-EMB", 548*day)
	open := project(2, "SCI-OPEN", 0)

	recent := observation(10, embargoed, daysAgo(30))
	old := observation(11, embargoed, daysAgo(600))
	public := observation(12, open, daysAgo(1))

	member := NewAuthenticated(7, "member", []int64{1})
	outsider := NewAuthenticated(8, "outsider", []int64{2})

	tests := []struct {
		name          string
		principal     *Principal
		artifact      Artifact
		wantAllowed   bool
		wantEmbargoed bool
	}{
		{"anonymous denied embargoed", Anonymous(), recent, false, true},
		{"nil principal denied embargoed", nil, recent, false, true},
		{"non-member denied embargoed", outsider, recent, false, true},
		{"member allowed embargoed", member, recent, true, true},
		{"anonymous allowed lapsed embargo", Anonymous(), old, true, false},
		{"anonymous allowed zero period", Anonymous(), public, true, false},
		{"superuser allowed embargoed", NewSuperuser(1, "root"), recent, true, true},
	}

	a := testAccessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := a.Decide(tt.principal, tt.artifact)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.wantEmbargoed, d.Embargoed)
		})
	}
}

func TestAccessor_SuperuserBypassesEverything(t *testing.T) {
	a := testAccessor()
	su := NewSuperuser(1, "root")
	p := project(1, "SCI", 10000*day)

	artifacts := []Artifact{
		observation(1, p, daysAgo(1)),
		ephemeris(2, p, daysAgo(1)),
		&models.Template{ID: 3, Project: p, CreatedAt: daysAgo(1)},
		&models.ToaBundle{ObservationID: 1, Project: p, Observation: observation(1, p, daysAgo(1))},
		&models.PipelineImage{ID: 4, Observation: observation(1, p, daysAgo(1))},
		// malformed subjects are still allowed for superusers
		observation(5, p, time.Time{}),
		&models.PipelineFile{ID: 6},
	}
	for _, art := range artifacts {
		ok, err := a.CanAccess(su, art)
		require.NoError(t, err)
		assert.True(t, ok, "superuser denied %T", art)
	}
}

func TestAccessor_IntegrityErrorsForNonSuperusers(t *testing.T) {
	a := testAccessor()
	p := project(1, "SCI", 548*day)

	_, err := a.CanAccess(Anonymous(), observation(9, p, time.Time{}))
	var die *DataIntegrityError
	require.True(t, errors.As(err, &die))
	assert.Equal(t, models.KindObservation, die.Artifact)
	assert.Equal(t, int64(9), die.ID)

	_, err = a.CanAccess(Anonymous(), &models.PipelineFile{ID: 3})
	assert.True(t, errors.Is(err, ErrDataIntegrity), "file without parent observation has no project")

	negative := project(2, "BAD", -day)
	_, err = a.CanAccess(NewAuthenticated(1, "u", []int64{2}), ephemeris(4, negative, daysAgo(1)))
	assert.True(t, errors.Is(err, ErrDataIntegrity))
}

func TestAccessor_ToaBundleUsesOwnProjectAndObservationTime(t *testing.T) {
	a := testAccessor()
	obsProject := project(1, "SCI-OBS", 0)
	toaProject := project(2, "SCI-TOA", 548*day)

	obs := observation(1, obsProject, daysAgo(30))
	bundle := &models.ToaBundle{ObservationID: 1, Project: toaProject, Observation: obs}

	ok, err := a.CanAccess(NewAuthenticated(5, "u", []int64{1}), bundle)
	require.NoError(t, err)
	assert.False(t, ok, "membership of the observation's project does not open another project's ToAs")

	ok, err = a.CanAccess(NewAuthenticated(5, "u", []int64{2}), bundle)
	require.NoError(t, err)
	assert.True(t, ok)

	obs.UTCStart = daysAgo(600)
	ok, err = a.CanAccess(Anonymous(), bundle)
	require.NoError(t, err)
	assert.True(t, ok, "bundle clock runs from the observation start")
}

func TestAccessor_EphemerisClockIndependentOfObservation(t *testing.T) {
	a := testAccessor()
	p := project(1, "SCI", 548*day)

	// An old observation folded with a new ephemeris: the ephemeris stays embargoed.
	eph := ephemeris(1, p, daysAgo(30))
	obs := observation(1, p, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	id := eph.ID
	obs.EphemerisID = &id

	ok, err := a.CanAccess(Anonymous(), eph)
	require.NoError(t, err)
	assert.False(t, ok)

	// A recent observation folded with an old ephemeris: the ephemeris is public.
	oldEph := ephemeris(2, p, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	ok, err = a.CanAccess(Anonymous(), oldEph)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CanAccess(Anonymous(), observation(2, p, daysAgo(1)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessor_InactiveMembershipIsNoMembership(t *testing.T) {
	a := testAccessor()
	p := project(1, "SCI", 548*day)
	eph := ephemeris(1, p, daysAgo(30))

	// Principals are built from active memberships only; after deactivation the
	// next request's principal no longer lists the project.
	before := NewAuthenticated(3, "u", []int64{1})
	after := NewAuthenticated(3, "u", nil)

	ok, err := a.CanAccess(before, eph)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CanAccess(after, eph)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessor_CountsDecisions(t *testing.T) {
	a := testAccessor()
	p := project(1, "SCI", 548*day)
	denied := telemetry.AccessDecisionsTotal.WithLabelValues(models.KindTemplate, outcomeDenied)

	before := testutil.ToFloat64(denied)
	_, err := a.CanAccess(Anonymous(), &models.Template{ID: 1, Project: p, CreatedAt: daysAgo(1)})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(denied))
}

func TestPrincipal(t *testing.T) {
	var nilP *Principal
	assert.True(t, nilP.IsAnonymous())
	assert.Equal(t, int64(0), nilP.UserID())
	assert.Nil(t, nilP.ActiveProjects())

	u := NewAuthenticated(4, "ana", []int64{9, 3, 3})
	assert.Equal(t, KindAuthenticated, u.Kind())
	assert.Equal(t, []int64{3, 9}, u.ActiveProjects())
	assert.Equal(t, "ana", u.Username())

	su := NewSuperuser(1, "root")
	assert.False(t, su.IsMemberOf(3), "superusers hold no memberships")
	assert.Equal(t, "superuser", su.Kind().String())
}
