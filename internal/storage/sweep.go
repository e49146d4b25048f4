package storage

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/responses"
)

// SweepService periodically deletes uploaded files that were never attached
// to a submitted response. A user who uploads a file_upload answer and then
// abandons the form before submitting leaves one of these behind.
type SweepService struct {
	store     *Store
	backend   Backend
	responses *responses.Store
	orphanAge time.Duration
	cron      *cron.Cron
}

// NewSweepService builds a sweep that deletes files older than orphanAge
// that no response references.
func NewSweepService(store *Store, backend Backend, respStore *responses.Store, orphanAge time.Duration) *SweepService {
	return &SweepService{store: store, backend: backend, responses: respStore, orphanAge: orphanAge, cron: cron.New()}
}

// Start schedules RunOnce on interval using robfig/cron's @every
// descriptor rather than a fixed cron expression, since the sweep cadence
// is a plain duration in config.
func (s *SweepService) Start(interval time.Duration) error {
	_, err := s.cron.AddFunc("@every "+interval.String(), func() {
		if err := s.RunOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("orphaned upload sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduled sweep.
func (s *SweepService) Stop() {
	s.cron.Stop()
}

// RunOnce deletes every file older than orphanAge that no submitted
// response references.
func (s *SweepService) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.orphanAge)
	candidates, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, file := range candidates {
		formID, _, ok := strings.Cut(file.Bucket, "/")
		if !ok {
			continue
		}

		referenced, err := s.responses.DataReferencesFile(ctx, formID, file.ID)
		if err != nil {
			log.Error().Err(err).Str("file_id", file.ID).Msg("checking file reference failed")
			continue
		}
		if referenced {
			continue
		}

		if err := s.backend.Delete(ctx, file.Bucket, file.Path); err != nil {
			log.Error().Err(err).Str("file_id", file.ID).Msg("deleting orphaned file from backend failed")
			continue
		}
		if err := s.store.Delete(ctx, file.Bucket, file.ID); err != nil {
			log.Error().Err(err).Str("file_id", file.ID).Msg("deleting orphaned file metadata failed")
			continue
		}
		log.Info().Str("file_id", file.ID).Str("bucket", file.Bucket).Msg("deleted orphaned upload")
	}
	return nil
}
