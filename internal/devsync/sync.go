package devsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/forms"
)

// FormSyncer re-syncs YAML form definitions from disk into the form store,
// creating a form on first sight of a slug and a new activated version on
// every subsequent change.
type FormSyncer struct {
	store *forms.Store
}

// NewFormSyncer wraps store for use as a devsync handler.
func NewFormSyncer(store *forms.Store) *FormSyncer {
	return &FormSyncer{store: store}
}

// Sync reads path as a YAML form definition and applies it, creating the
// form if its slug is new or publishing a new active version otherwise.
func (fs *FormSyncer) Sync(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	formInput, versionInput, err := forms.UnmarshalYAML(data, "dev-watcher")
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	existing, err := fs.store.GetFormBySlug(ctx, formInput.Slug)
	switch {
	case errors.Is(err, forms.ErrNotFound):
		versionInput.Version = "1"
		form, err := fs.store.CreateForm(ctx, formInput)
		if err != nil {
			return fmt.Errorf("creating form %s: %w", formInput.Slug, err)
		}
		if _, err := fs.store.CreateVersion(ctx, form.ID, versionInput); err != nil {
			return fmt.Errorf("creating version for %s: %w", formInput.Slug, err)
		}
		if err := fs.store.ActivateVersion(ctx, form.ID, versionInput.Version); err != nil {
			return fmt.Errorf("activating version for %s: %w", formInput.Slug, err)
		}
		log.Info().Str("slug", formInput.Slug).Str("form_id", form.ID).Msg("dev watcher created form from definition")
	case err != nil:
		return fmt.Errorf("looking up form %s: %w", formInput.Slug, err)
	default:
		versionInput.Version = nextDevVersionLabel()
		if _, err := fs.store.CreateVersion(ctx, existing.ID, versionInput); err != nil {
			return fmt.Errorf("creating version for %s: %w", formInput.Slug, err)
		}
		if err := fs.store.ActivateVersion(ctx, existing.ID, versionInput.Version); err != nil {
			return fmt.Errorf("activating version for %s: %w", formInput.Slug, err)
		}
		log.Info().Str("slug", formInput.Slug).Str("form_id", existing.ID).Str("version", versionInput.Version).
			Msg("dev watcher published new form version from definition")
	}

	return nil
}

func nextDevVersionLabel() string {
	return "dev-" + strconv.FormatInt(time.Now().UTC().UnixNano(), 36)
}

// Run starts a Watcher over dir and applies every create/modify event via
// syncer until ctx is cancelled. It blocks until the watcher stops.
func Run(ctx context.Context, dir string, syncer *FormSyncer) error {
	w, err := NewWatcher(dir, func(event FileEvent) {
		if event.Type == EventDeleted {
			return
		}
		if err := syncer.Sync(ctx, filepath.Clean(event.Path)); err != nil {
			log.Error().Err(err).Str("path", event.Path).Msg("dev watcher sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("starting form definition watcher on %s: %w", dir, err)
	}

	w.Start(ctx)
	log.Info().Str("dir", dir).Msg("watching form definitions for changes")

	<-ctx.Done()
	return w.Stop()
}
