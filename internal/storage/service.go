package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
	"github.com/formwright/formwright/internal/validator"
)

// ErrForbidden is returned when actor lacks the permission a file operation
// requires on the owning form.
var ErrForbidden = errors.New("not permitted to perform this file operation")

// Service stores file_upload answers (C1-C5's file_upload field type) in a
// single configured backend, keyed as
// uploads/<form_id>/<question_id>/<uuid>_<filename> so a question's files
// can be listed without a secondary index.
type Service struct {
	store   *Store
	backend Backend
	forms   *forms.Store
}

// NewService builds a Service backed by backend, validating uploads against
// formStore's forms before they ever reach it.
func NewService(store *Store, backend Backend, formStore *forms.Store) *Service {
	return &Service{store: store, backend: backend, forms: formStore}
}

// Upload stores a file submitted for formID's questionID question, after
// checking the actor may submit to the form and that the file itself passes
// validator.ValidateUploadedFile's extension/size rules.
func (s *Service) Upload(ctx context.Context, formID, questionID string, actor *auth.User, filename string, r io.Reader, size int64) (*File, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("form not found: %w", err)
	}
	if !permissions.HasPermission(actor, form, permissions.ActionSubmit) {
		return nil, ErrForbidden
	}
	if err := validator.ValidateUploadedFile(filename, size); err != nil {
		return nil, err
	}

	fileID := uuid.New().String()
	bucket := formID + "/" + questionID
	key := bucket + "/" + fileID + "_" + filename

	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	buf = buf[:n]
	mimeType := http.DetectContentType(buf)

	hasher := sha256.New()
	teeReader := io.TeeReader(io.MultiReader(strings.NewReader(string(buf)), r), hasher)

	if err := s.backend.Put(ctx, bucket, key, teeReader, size); err != nil {
		return nil, fmt.Errorf("storing file: %w", err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	file := &File{
		ID:       fileID,
		Bucket:   bucket,
		Name:     filename,
		Path:     key,
		MimeType: mimeType,
		Size:     size,
		Checksum: checksum,
	}

	if err := s.store.Create(ctx, file); err != nil {
		_ = s.backend.Delete(ctx, bucket, key)
		return nil, fmt.Errorf("storing file metadata: %w", err)
	}

	return file, nil
}

// Download returns the stored content and metadata for a file, gated by the
// same view permission as the question's response.
func (s *Service) Download(ctx context.Context, formID, questionID, fileID string, actor *auth.User) (io.ReadCloser, *File, error) {
	bucket := formID + "/" + questionID
	file, err := s.store.Get(ctx, bucket, fileID)
	if err != nil {
		return nil, nil, err
	}

	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, nil, fmt.Errorf("form not found: %w", err)
	}
	if !permissions.HasPermission(actor, form, permissions.ActionView) {
		return nil, nil, ErrForbidden
	}

	rc, err := s.backend.Get(ctx, bucket, file.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving file: %w", err)
	}
	return rc, file, nil
}

// Delete removes a stored file and its metadata, gated by edit permission.
func (s *Service) Delete(ctx context.Context, formID, questionID, fileID string, actor *auth.User) error {
	bucket := formID + "/" + questionID
	file, err := s.store.Get(ctx, bucket, fileID)
	if err != nil {
		return err
	}

	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return fmt.Errorf("form not found: %w", err)
	}
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		return ErrForbidden
	}

	if err := s.backend.Delete(ctx, bucket, file.Path); err != nil {
		return fmt.Errorf("deleting file from backend: %w", err)
	}
	return s.store.Delete(ctx, bucket, fileID)
}

// List returns the files uploaded against one question, gated by view
// permission.
func (s *Service) List(ctx context.Context, formID, questionID string, actor *auth.User, offset, limit int) ([]*File, error) {
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("form not found: %w", err)
	}
	if !permissions.HasPermission(actor, form, permissions.ActionView) {
		return nil, ErrForbidden
	}

	return s.store.List(ctx, formID+"/"+questionID, offset, limit)
}
