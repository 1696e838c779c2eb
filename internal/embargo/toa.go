package embargo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/telemetry"
)

// BundleSource lists the ToA bundles of observations at one decimation. Each
// returned bundle carries its own project; Observation is filled in by the resolver.
type BundleSource interface {
	BundlesForObservations(ctx context.Context, observationIDs []int64, d models.Decimation) ([]models.ToaBundle, error)
}

// FileChecker probes the file store
type FileChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// BundleFile is one accessible ToA file together with the project it belongs to
type BundleFile struct {
	Project models.Project
	Path    string
	Bundle  models.ToaBundle
}

// ObservationBundles groups the files an observation contributed
type ObservationBundles struct {
	Observation *models.Observation
	Files       []BundleFile
}

// ToaResolver applies the two ToA gates:
//
//	gate 1: the observation against its own project and start time; a denied
//	        observation contributes nothing, whatever its ToA projects say
//	gate 2: each bundle against the ToA's own project and the observation's
//	        start time, followed by a file store existence check
type ToaResolver struct {
	accessor *Accessor
	source   BundleSource
	files    FileChecker
	headline models.Decimation
}

// NewToaResolver builds a resolver serving bundles at the headline decimation
func NewToaResolver(accessor *Accessor, source BundleSource, files FileChecker, headline models.Decimation) *ToaResolver {
	return &ToaResolver{accessor: accessor, source: source, files: files, headline: headline}
}

// Headline returns the decimation the resolver serves
func (r *ToaResolver) Headline() models.Decimation {
	return r.headline
}

// Resolve returns, in input order, one entry per observation that passes gate 1.
// Entries may have no files. Bundles within an observation are ordered by project
// code. Missing files are dropped silently; data integrity errors abort.
func (r *ToaResolver) Resolve(ctx context.Context, p *Principal, observations []*models.Observation) ([]ObservationBundles, error) {
	return r.resolve(ctx, p, observations, false)
}

// ResolveBulk is Resolve for multi-observation archives. An observation or bundle
// whose embargo cannot be evaluated is logged, counted and left out, so one bad row
// does not withhold the rest.
func (r *ToaResolver) ResolveBulk(ctx context.Context, p *Principal, observations []*models.Observation) ([]ObservationBundles, error) {
	return r.resolve(ctx, p, observations, true)
}

func (r *ToaResolver) resolve(ctx context.Context, p *Principal, observations []*models.Observation, skipInvalid bool) ([]ObservationBundles, error) {
	passed := make([]*models.Observation, 0, len(observations))
	for _, obs := range observations {
		ok, err := r.accessor.CanAccess(p, obs)
		if err != nil && skipInvalid && errors.Is(err, ErrDataIntegrity) {
			SkipInvalid(obs, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			passed = append(passed, obs)
		}
	}
	if len(passed) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(passed))
	byID := make(map[int64]*models.Observation, len(passed))
	for i, obs := range passed {
		ids[i] = obs.ID
		byID[obs.ID] = obs
	}

	bundles, err := r.source.BundlesForObservations(ctx, ids, r.headline)
	if err != nil {
		return nil, fmt.Errorf("failed to list toa bundles: %w", err)
	}

	files := make(map[int64][]BundleFile, len(passed))
	for _, b := range bundles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obs, ok := byID[b.ObservationID]
		if !ok {
			continue
		}
		b.Observation = obs

		allowed, err := r.accessor.CanAccess(p, &b)
		if err != nil && skipInvalid && errors.Is(err, ErrDataIntegrity) {
			SkipInvalid(&b, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !allowed {
			continue
		}

		filePath := b.FilePath()
		exists, err := r.files.Exists(ctx, filePath)
		if err != nil {
			slog.Warn("toa file probe failed, dropping bundle", "observation_id", obs.ID, "project", b.Project.Code, "path", filePath, "error", err)
			telemetry.ToaBundlesDroppedTotal.WithLabelValues("store_error").Inc()
			continue
		}
		if !exists {
			slog.Debug("toa file not on store yet, dropping bundle", "observation_id", obs.ID, "project", b.Project.Code, "path", filePath)
			telemetry.ToaBundlesDroppedTotal.WithLabelValues("missing").Inc()
			continue
		}

		files[obs.ID] = append(files[obs.ID], BundleFile{Project: b.Project, Path: filePath, Bundle: b})
	}

	out := make([]ObservationBundles, 0, len(passed))
	for _, obs := range passed {
		fs := files[obs.ID]
		sort.SliceStable(fs, func(i, j int) bool { return fs[i].Project.Code < fs[j].Project.Code })
		out = append(out, ObservationBundles{Observation: obs, Files: fs})
	}
	return out, nil
}

// SkipInvalid records an artifact left out of a bulk result because its embargo
// could not be evaluated
func SkipInvalid(a Artifact, err error) {
	subject := a.EmbargoSubject()
	slog.Warn("leaving out artifact with invalid embargo data", "artifact", subject.Kind, "id", subject.ID, "error", err)
	telemetry.BulkSkippedTotal.WithLabelValues(subject.Kind).Inc()
}
