package embargo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meertime/dataportal/internal/db/models"
)

var headline = models.Decimation{NsubType: "1", Nchan: 1, Npol: 1}

type fakeBundleSource struct {
	bundles []models.ToaBundle
	asked   [][]int64
	err     error
}

func (f *fakeBundleSource) BundlesForObservations(_ context.Context, ids []int64, d models.Decimation) ([]models.ToaBundle, error) {
	f.asked = append(f.asked, ids)
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.ToaBundle
	for _, b := range f.bundles {
		if want[b.ObservationID] && b.Decimation == d {
			out = append(out, b)
		}
	}
	return out, nil
}

// fakeFiles reports every path as present unless listed in missing or failing
type fakeFiles struct {
	missing map[string]bool
	failing map[string]bool
}

func (f *fakeFiles) Exists(_ context.Context, path string) (bool, error) {
	if f.failing[path] {
		return false, errors.New("store unavailable")
	}
	return !f.missing[path], nil
}

func bundle(obsID int64, p models.Project) models.ToaBundle {
	return models.ToaBundle{ObservationID: obsID, Project: p, Decimation: headline, RowCount: 16}
}

func projectCodes(files []BundleFile) []string {
	codes := make([]string, len(files))
	for i, f := range files {
		codes[i] = f.Project.Code
	}
	return codes
}

func TestToaResolver_GateTwoIsPerProject(t *testing.T) {
	public := project(1, "SCI-PUBLIC", 0)
	embargoed := project(2, "SCI-EMB", 548*day)
	third := project(3, "SCI-THIRD", 0)

	obs := observation(1, public, daysAgo(30))
	src := &fakeBundleSource{bundles: []models.ToaBundle{bundle(1, embargoed), bundle(1, third), bundle(1, public)}}
	r := NewToaResolver(testAccessor(), src, &fakeFiles{}, headline)

	got, err := r.Resolve(context.Background(), NewAuthenticated(5, "u", nil), []*models.Observation{obs})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"SCI-PUBLIC", "SCI-THIRD"}, projectCodes(got[0].Files))

	got, err = r.Resolve(context.Background(), NewAuthenticated(5, "u", []int64{2}), []*models.Observation{obs})
	require.NoError(t, err)
	assert.Equal(t, []string{"SCI-EMB", "SCI-PUBLIC", "SCI-THIRD"}, projectCodes(got[0].Files))
}

func TestToaResolver_GateOneDenialYieldsNothing(t *testing.T) {
	embargoed := project(1, "SCI-EMB", 548*day)
	publicToas := project(2, "SCI-PUBLIC", 0)

	obs := observation(1, embargoed, daysAgo(30))
	src := &fakeBundleSource{bundles: []models.ToaBundle{bundle(1, publicToas)}}
	r := NewToaResolver(testAccessor(), src, &fakeFiles{}, headline)

	got, err := r.Resolve(context.Background(), Anonymous(), []*models.Observation{obs})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.asked, "bundles of a denied observation are never fetched")
}

func TestToaResolver_MissingFilesDroppedSilently(t *testing.T) {
	p := project(1, "SCI", 0)
	other := project(2, "SCI-B", 0)
	obs := observation(1, p, daysAgo(3))

	missing := bundle(1, p)
	missing.Observation = obs
	failing := bundle(1, other)
	failing.Observation = obs

	src := &fakeBundleSource{bundles: []models.ToaBundle{bundle(1, p), bundle(1, other)}}
	files := &fakeFiles{
		missing: map[string]bool{missing.FilePath(): true},
		failing: map[string]bool{failing.FilePath(): true},
	}
	r := NewToaResolver(testAccessor(), src, files, headline)

	got, err := r.Resolve(context.Background(), Anonymous(), []*models.Observation{obs})
	require.NoError(t, err)
	require.Len(t, got, 1, "the observation passed gate one")
	assert.Empty(t, got[0].Files)
}

func TestToaResolver_OnlyHeadlineDecimation(t *testing.T) {
	p := project(1, "SCI", 0)
	obs := observation(1, p, daysAgo(3))
	full := bundle(1, p)
	full.Decimation = models.Decimation{DMCorrected: true, NsubType: "max", Nchan: 16, Npol: 4}

	r := NewToaResolver(testAccessor(), &fakeBundleSource{bundles: []models.ToaBundle{full}}, &fakeFiles{}, headline)
	got, err := r.Resolve(context.Background(), Anonymous(), []*models.Observation{obs})
	require.NoError(t, err)
	assert.Empty(t, got[0].Files)
	assert.Equal(t, headline, r.Headline())
}

func TestToaResolver_PreservesObservationOrderAndProvenance(t *testing.T) {
	p := project(1, "SCI", 0)
	emb := project(2, "SCI-EMB", 548*day)
	o1 := observation(1, p, daysAgo(10))
	o2 := observation(2, emb, daysAgo(10)) // denied at gate one
	o3 := observation(3, p, daysAgo(20))

	src := &fakeBundleSource{bundles: []models.ToaBundle{bundle(3, p), bundle(1, p), bundle(2, p)}}
	r := NewToaResolver(testAccessor(), src, &fakeFiles{}, headline)

	got, err := r.Resolve(context.Background(), Anonymous(), []*models.Observation{o3, o2, o1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Observation.ID)
	assert.Equal(t, int64(1), got[1].Observation.ID)
	assert.Equal(t, []int64{3, 1}, src.asked[0])

	f := got[0].Files[0]
	assert.Equal(t, o3, f.Bundle.Observation)
	assert.Contains(t, f.Path, "/timing/SCI/")
}

func TestToaResolver_Errors(t *testing.T) {
	p := project(1, "SCI", 0)
	obs := observation(1, p, daysAgo(3))

	r := NewToaResolver(testAccessor(), &fakeBundleSource{err: errors.New("db down")}, &fakeFiles{}, headline)
	_, err := r.Resolve(context.Background(), Anonymous(), []*models.Observation{obs})
	assert.Error(t, err)

	r = NewToaResolver(testAccessor(), &fakeBundleSource{}, &fakeFiles{}, headline)
	corrupt := observation(3, models.Project{}, daysAgo(3))
	_, err = r.Resolve(context.Background(), Anonymous(), []*models.Observation{corrupt})
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r = NewToaResolver(testAccessor(), &fakeBundleSource{bundles: []models.ToaBundle{bundle(1, p)}}, &fakeFiles{}, headline)
	_, err = r.Resolve(ctx, Anonymous(), []*models.Observation{obs})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToaResolver_ResolveBulkSkipsInvalidEmbargoData(t *testing.T) {
	public := project(1, "SCI", 0)
	broken := project(9, "BROKEN", -time.Second)

	healthy := observation(1, public, daysAgo(30))
	orphan := observation(2, models.Project{}, daysAgo(30))
	other := observation(3, public, daysAgo(40))
	src := &fakeBundleSource{bundles: []models.ToaBundle{
		bundle(1, public), bundle(1, broken), bundle(2, public), bundle(3, public),
	}}
	r := NewToaResolver(testAccessor(), src, &fakeFiles{}, headline)
	observations := []*models.Observation{healthy, orphan, other}

	_, err := r.Resolve(context.Background(), Anonymous(), observations)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	got, err := r.ResolveBulk(context.Background(), Anonymous(), observations)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, healthy, got[0].Observation)
	assert.Equal(t, []string{"SCI"}, projectCodes(got[0].Files))
	assert.Equal(t, other, got[1].Observation)
	assert.Equal(t, []string{"SCI"}, projectCodes(got[1].Files))
}
