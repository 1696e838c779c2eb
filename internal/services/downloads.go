package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/meertime/dataportal/internal/archive"
	"github.com/meertime/dataportal/internal/db/models"
	"github.com/meertime/dataportal/internal/embargo"
	"github.com/meertime/dataportal/internal/storage"
	"github.com/meertime/dataportal/internal/telemetry"
)

const (
	zipContentType     = "application/zip"
	defaultContentType = "application/octet-stream"
)

// DownloadPlan is everything needed to answer a download request, decided before the
// first byte is written. A plan holds either one store file or a list of archive
// entries.
type DownloadPlan struct {
	FileName    string
	ContentType string

	// Path is the store path of a single-file download
	Path string
	Size int64

	Entries     []archive.Entry
	Placeholder string
}

// IsArchive reports whether the plan streams a zip archive
func (d *DownloadPlan) IsArchive() bool {
	return d.Path == ""
}

func (s *Portal) countDownload(scope string, ft models.FileType, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrEmbargoDenied):
		outcome = "denied"
	default:
		outcome = "error"
	}
	telemetry.DownloadsTotal.WithLabelValues(scope, string(ft), outcome).Inc()
}

// DownloadObservationFiles plans the download of one observation's files. ToAs come as
// a zip with one <project>/<file> entry per accessible bundle; full and decimated
// archives come as the single raw file.
func (s *Portal) DownloadObservationFiles(ctx context.Context, p *embargo.Principal, pulsar string, utcStart time.Time, beam int, ft models.FileType) (plan *DownloadPlan, err error) {
	defer func() { s.countDownload("observation", ft, err) }()

	obs, err := s.findObservation(ctx, p, pulsar, utcStart, beam)
	if err != nil {
		return nil, err
	}

	if ft == models.FileTypeToas {
		resolved, err := s.toas.Resolve(ctx, p, []*models.Observation{obs})
		if err != nil {
			return nil, err
		}
		var entries []archive.Entry
		for _, ob := range resolved {
			for _, f := range ob.Files {
				entries = append(entries, archive.Entry{Name: path.Join(f.Project.Code, path.Base(f.Path)), Path: f.Path})
			}
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: no toa files for observation", ErrNotFound)
		}
		return &DownloadPlan{
			FileName:    fmt.Sprintf("%s_%s_%d_toas.zip", obs.PulsarName, obs.UTC(), obs.Beam),
			ContentType: zipContentType,
			Entries:     entries,
			Placeholder: s.opts.ArchivePlaceholder,
		}, nil
	}

	filePath := obs.ArchivePath(ft)
	if filePath == "" {
		return nil, fmt.Errorf("%w: file type %q", ErrInvalidInput, ft)
	}
	meta, err := s.files.Stat(ctx, filePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s file not available", ErrNotFound, ft)
	}
	if err != nil {
		return nil, err
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	return &DownloadPlan{
		FileName:    path.Base(filePath),
		ContentType: contentType,
		Path:        filePath,
		Size:        meta.Size,
	}, nil
}

// DownloadPulsarFiles plans a zip of every accessible file of one type across the
// pulsar's fold observations from the primary telescope. Entries are laid out as
// <utc>_<beam>/<project>/<file> for ToAs and <utc>_<beam>/<file> otherwise. Denied
// observations are left out; if every observation is denied the request is denied.
// Observations and bundles with invalid embargo data are skipped and count as denied.
func (s *Portal) DownloadPulsarFiles(ctx context.Context, p *embargo.Principal, pulsar string, ft models.FileType) (plan *DownloadPlan, err error) {
	defer func() { s.countDownload("pulsar", ft, err) }()

	if _, ok := models.ParseFileType(string(ft)); !ok {
		return nil, fmt.Errorf("%w: file type %q", ErrInvalidInput, ft)
	}

	ps, err := s.observations.GetPulsarByName(ctx, pulsar)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		return nil, fmt.Errorf("%w: pulsar %s", ErrNotFound, pulsar)
	}

	observations, err := s.observations.List(ctx, models.ObservationCriteria{
		PulsarName:      pulsar,
		Telescope:       s.opts.PrimaryTelescope,
		ObsType:         models.ObsTypeFold,
		ExcludeProjects: s.opts.ExcludedProjectCodes,
	})
	if err != nil {
		return nil, err
	}

	allowed := make([]*models.Observation, 0, len(observations))
	for _, obs := range observations {
		ok, err := s.accessor.CanAccess(p, obs)
		if errors.Is(err, embargo.ErrDataIntegrity) {
			embargo.SkipInvalid(obs, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if ok {
			allowed = append(allowed, obs)
		}
	}
	if len(observations) > 0 && len(allowed) == 0 {
		return nil, ErrEmbargoDenied
	}

	var entries []archive.Entry
	if ft == models.FileTypeToas {
		resolved, err := s.toas.ResolveBulk(ctx, p, allowed)
		if err != nil {
			return nil, err
		}
		for _, ob := range resolved {
			dir := observationDir(ob.Observation)
			for _, f := range ob.Files {
				entries = append(entries, archive.Entry{Name: path.Join(dir, f.Project.Code, path.Base(f.Path)), Path: f.Path})
			}
		}
	} else {
		for _, obs := range allowed {
			filePath := obs.ArchivePath(ft)
			exists, err := s.files.Exists(ctx, filePath)
			if err != nil {
				slog.Warn("archive probe failed, leaving file out", "observation_id", obs.ID, "path", filePath, "error", err)
				continue
			}
			if !exists {
				continue
			}
			entries = append(entries, archive.Entry{Name: path.Join(observationDir(obs), path.Base(filePath)), Path: filePath})
		}
	}

	return &DownloadPlan{
		FileName:    fmt.Sprintf("%s_%s.zip", pulsar, ft),
		ContentType: zipContentType,
		Entries:     entries,
		Placeholder: s.opts.ArchivePlaceholder,
	}, nil
}

func observationDir(obs *models.Observation) string {
	return fmt.Sprintf("%s_%d", obs.UTC(), obs.Beam)
}

// Stream writes the planned content to w
func (s *Portal) Stream(ctx context.Context, w io.Writer, plan *DownloadPlan) error {
	if plan.IsArchive() {
		res, err := archive.WriteZip(ctx, w, s.files, plan.Entries, plan.Placeholder)
		if err != nil {
			return err
		}
		slog.Debug("archive streamed", "name", plan.FileName, "files", res.Files, "skipped", res.Skipped, "bytes", res.Bytes)
		return nil
	}

	rc, err := s.files.Open(ctx, plan.Path)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to stream %s: %w", plan.Path, err)
	}
	return nil
}
