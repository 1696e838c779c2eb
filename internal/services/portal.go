// Package services implements the portal's request-level operations on top of the
// embargo engine: fallback selection of ephemerides and templates, download planning
// and streaming, and the project membership workflow. Services take a principal that
// the HTTP layer has already resolved and return the sentinel errors in errors.go.
package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/storage"
)

// ObservationStore reads pulsars, observations and their pipeline products
type ObservationStore interface {
	GetPulsarByName(ctx context.Context, name string) (*models.Pulsar, error)
	Find(ctx context.Context, c models.ObservationCriteria) (*models.Observation, error)
	List(ctx context.Context, c models.ObservationCriteria) ([]*models.Observation, error)
	ListImages(ctx context.Context, obs *models.Observation) ([]*models.PipelineImage, error)
	ListFiles(ctx context.Context, obs *models.Observation) ([]*models.PipelineFile, error)
}

// CandidateStore lists ephemeris and template candidates newest first
type CandidateStore interface {
	EphemerisCandidates(ctx context.Context, pulsarName, mainProject string) ([]*models.Ephemeris, error)
	TemplateCandidates(ctx context.Context, pulsarName, mainProject, band string) ([]*models.Template, error)
}

// PortalOptions carries the embargo and portal configuration the services need
type PortalOptions struct {
	ExcludedProjectCodes []string
	PrimaryTelescope     string
	DefaultMainProject   string
	ArchivePlaceholder   string
}

// Portal serves embargo-aware reads and downloads
type Portal struct {
	accessor     *embargo.Accessor
	observations ObservationStore
	candidates   CandidateStore
	toas         *embargo.ToaResolver
	files        storage.Storage
	opts         PortalOptions
}

// NewPortal creates a Portal
func NewPortal(accessor *embargo.Accessor, observations ObservationStore, candidates CandidateStore, toas *embargo.ToaResolver, files storage.Storage, opts PortalOptions) *Portal {
	return &Portal{
		accessor:     accessor,
		observations: observations,
		candidates:   candidates,
		toas:         toas,
		files:        files,
		opts:         opts,
	}
}

func (s *Portal) excluded(p *models.Project) bool {
	return slices.Contains(s.opts.ExcludedProjectCodes, p.Code)
}

func (s *Portal) mainProject(name string) string {
	if name == "" {
		return s.opts.DefaultMainProject
	}
	return name
}

// EphemerisResolution is the outcome of residual ephemeris selection. IsEmbargoed is
// nil when no ephemeris was selected.
type EphemerisResolution struct {
	Ephemeris             *models.Ephemeris `json:"ephemeris"`
	IsEmbargoed           *bool             `json:"is_embargoed"`
	ExistsButInaccessible bool              `json:"exists_but_inaccessible"`
}

// ResolveResidualEphemeris returns the newest ephemeris of the pulsar in the main
// project that p may see. Ephemerides of excluded projects, and those whose pipeline
// runs produced no ToAs, are not candidates.
func (s *Portal) ResolveResidualEphemeris(ctx context.Context, p *embargo.Principal, pulsar, mainProject string) (*EphemerisResolution, error) {
	candidates, err := s.candidates.EphemerisCandidates(ctx, pulsar, s.mainProject(mainProject))
	if err != nil {
		return nil, err
	}
	sel := embargo.SelectMostRecent(s.accessor, p, candidates, func(e *models.Ephemeris) bool {
		return s.excluded(&e.Project) || !e.HasToas
	})

	res := &EphemerisResolution{ExistsButInaccessible: sel.ExistsButInaccessible}
	if sel.Found {
		embargoed := sel.Embargoed
		res.Ephemeris = sel.Artifact
		res.IsEmbargoed = &embargoed
	}
	return res, nil
}

// TemplateResolution is the outcome of folding template selection
type TemplateResolution struct {
	Template              *models.Template `json:"template"`
	IsEmbargoed           *bool            `json:"is_embargoed"`
	ExistsButInaccessible bool             `json:"exists_but_inaccessible"`
}

// ResolveFoldingTemplate returns the newest template of the pulsar in the main project
// that p may see, optionally restricted to one band
func (s *Portal) ResolveFoldingTemplate(ctx context.Context, p *embargo.Principal, pulsar, mainProject, band string) (*TemplateResolution, error) {
	candidates, err := s.candidates.TemplateCandidates(ctx, pulsar, s.mainProject(mainProject), band)
	if err != nil {
		return nil, err
	}
	sel := embargo.SelectMostRecent(s.accessor, p, candidates, func(t *models.Template) bool {
		return s.excluded(&t.Project)
	})

	res := &TemplateResolution{ExistsButInaccessible: sel.ExistsButInaccessible}
	if sel.Found {
		embargoed := sel.Embargoed
		res.Template = sel.Artifact
		res.IsEmbargoed = &embargoed
	}
	return res, nil
}

// findObservation looks up one observation and applies gate 1
func (s *Portal) findObservation(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int) (*models.Observation, error) {
	obs, err := s.observations.Find(ctx, models.ObservationCriteria{
		PulsarName: pulsar,
		UTCStart:   &utcStart,
		Beam:       &beam,
	})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, fmt.Errorf("%w: observation %s %s beam %d", ErrNotFound, pulsar, utcStart.UTC().Format(models.UTCFormat), beam)
	}
	ok, err := s.accessor.CanAccess(p, obs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEmbargoDenied
	}
	return obs, nil
}

// ListObservationImages returns the pipeline images of one observation. Images share
// the observation's embargo.
func (s *Portal) ListObservationImages(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int) ([]*models.PipelineImage, error) {
	obs, err := s.findObservation(ctx, p, pulsar, utcStart, beam)
	if err != nil {
		return nil, err
	}
	images, err := s.observations.ListImages(ctx, obs)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PipelineImage, 0, len(images))
	for _, img := range images {
		ok, err := s.accessor.CanAccess(p, img)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, img)
		}
	}
	return out, nil
}

// ListObservationFiles returns the pipeline data products of one observation, under
// the same gate as its images
func (s *Portal) ListObservationFiles(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int) ([]*models.PipelineFile, error) {
	obs, err := s.findObservation(ctx, p, pulsar, utcStart, beam)
	if err != nil {
		return nil, err
	}
	files, err := s.observations.ListFiles(ctx, obs)
	if err != nil {
		return nil, err
	}
	out := make([]*models.PipelineFile, 0, len(files))
	for _, f := range files {
		ok, err := s.accessor.CanAccess(p, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}
