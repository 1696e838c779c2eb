package services

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/storage"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func daysAgo(n int) time.Time {
	return testNow.Add(-time.Duration(n) * day).Truncate(time.Second)
}

func project(id int64, code string) models.Project {
	return models.Project{ID: id, Code: code, MainProject: "MeerTIME", EmbargoPeriodSeconds: int64(548 * day / time.Second)}
}

var (
	pta   = project(1, "PTA")
	tpa   = project(2, "TPA")
	ptuse = project(3, "PTUSE")
)

func member(projects ...models.Project) *embargo.Principal {
	ids := make([]int64, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return embargo.NewAuthenticated(42, "alice", ids)
}

func obs(id int64, p models.Project, utc time.Time) *models.Observation {
	return &models.Observation{
		ID: id, PulsarID: 1, PulsarName: "J1909-3744", Telescope: "MeerKAT",
		Project: p, UTCStart: utc, Beam: 1, ObsType: models.ObsTypeFold,
	}
}

type fakeObservations struct {
	pulsars      []string
	observations []*models.Observation
	images       map[int64][]*models.PipelineImage
	files        map[int64][]*models.PipelineFile
	lastCriteria models.ObservationCriteria
}

func (f *fakeObservations) GetPulsarByName(_ context.Context, name string) (*models.Pulsar, error) {
	if !slices.Contains(f.pulsars, name) {
		return nil, nil
	}
	return &models.Pulsar{ID: 1, Name: name}, nil
}

func (f *fakeObservations) match(c models.ObservationCriteria, o *models.Observation) bool {
	switch {
	case c.PulsarName != "" && c.PulsarName != o.PulsarName:
		return false
	case c.Telescope != "" && c.Telescope != o.Telescope:
		return false
	case c.ObsType != "" && c.ObsType != o.ObsType:
		return false
	case c.UTCStart != nil && !c.UTCStart.Equal(o.UTCStart):
		return false
	case c.Beam != nil && *c.Beam != o.Beam:
		return false
	case slices.Contains(c.ExcludeProjects, o.Project.Code):
		return false
	}
	return true
}

func (f *fakeObservations) Find(_ context.Context, c models.ObservationCriteria) (*models.Observation, error) {
	for _, o := range f.observations {
		if f.match(c, o) {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeObservations) List(_ context.Context, c models.ObservationCriteria) ([]*models.Observation, error) {
	f.lastCriteria = c
	var out []*models.Observation
	for _, o := range f.observations {
		if f.match(c, o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeObservations) ListImages(_ context.Context, o *models.Observation) ([]*models.PipelineImage, error) {
	images := f.images[o.ID]
	for _, img := range images {
		img.Observation = o
	}
	return images, nil
}

func (f *fakeObservations) ListFiles(_ context.Context, o *models.Observation) ([]*models.PipelineFile, error) {
	files := f.files[o.ID]
	for _, pf := range files {
		pf.Observation = o
	}
	return files, nil
}

type fakeCandidates struct {
	ephemerides []*models.Ephemeris
	templates   []*models.Template
}

func (f *fakeCandidates) EphemerisCandidates(context.Context, string, string) ([]*models.Ephemeris, error) {
	return f.ephemerides, nil
}

func (f *fakeCandidates) TemplateCandidates(_ context.Context, _, _, band string) ([]*models.Template, error) {
	var out []*models.Template
	for _, t := range f.templates {
		if band == "" || t.Band == band {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeBundles returns one bundle per observation in the observation's own project
// unless overridden
type fakeBundles struct {
	extra []models.ToaBundle
}

func (f *fakeBundles) BundlesForObservations(_ context.Context, ids []int64, d models.Decimation) ([]models.ToaBundle, error) {
	var out []models.ToaBundle
	for _, b := range f.extra {
		if slices.Contains(ids, b.ObservationID) {
			b.Decimation = d
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeStore struct {
	files map[string]string
}

func (f *fakeStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeStore) Stat(_ context.Context, path string) (*storage.FileMetadata, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return &storage.FileMetadata{Path: path, Size: int64(len(data))}, nil
}

var headline = models.Decimation{NsubType: "1", Nchan: 1, Npol: 1}

// bundleFor is the headline ToA bundle of o in project p; its path is filled once the
// observation is attached
func bundleFor(o *models.Observation, p models.Project) models.ToaBundle {
	return models.ToaBundle{ObservationID: o.ID, Project: p, RowCount: 10, Decimation: headline}
}

func toaPath(o *models.Observation, p models.Project) string {
	b := bundleFor(o, p)
	b.Observation = o
	return b.FilePath()
}

type portalFixture struct {
	observations *fakeObservations
	candidates   *fakeCandidates
	bundles      *fakeBundles
	store        *fakeStore
	portal       *Portal
}

func newPortalFixture() *portalFixture {
	f := &portalFixture{
		observations: &fakeObservations{pulsars: []string{"J1909-3744"}, images: map[int64][]*models.PipelineImage{}, files: map[int64][]*models.PipelineFile{}},
		candidates:   &fakeCandidates{},
		bundles:      &fakeBundles{},
		store:        &fakeStore{files: map[string]string{}},
	}
	accessor := embargo.NewAccessor(embargo.FixedClock(testNow))
	resolver := embargo.NewToaResolver(accessor, f.bundles, f.store, headline)
	f.portal = NewPortal(accessor, f.observations, f.candidates, resolver, f.store, PortalOptions{
		ExcludedProjectCodes: []string{"PTUSE"},
		PrimaryTelescope:     "MeerKAT",
		DefaultMainProject:   "MeerTIME",
		ArchivePlaceholder:   "No files available",
	})
	return f
}

// addObservation registers o with a stored headline ToA file and full archive
func (f *portalFixture) addObservation(o *models.Observation) {
	f.observations.observations = append(f.observations.observations, o)
	f.bundles.extra = append(f.bundles.extra, bundleFor(o, o.Project))
	f.store.files[toaPath(o, o.Project)] = fmt.Sprintf("toas of %d", o.ID)
	f.store.files[o.ArchivePath(models.FileTypeFull)] = fmt.Sprintf("archive of %d", o.ID)
}
