package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
)

func testService(t *testing.T) (*Service, Backend, *forms.Form) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.DatabaseConfig{
		Path:         dbPath,
		WALMode:      true,
		ForeignKeys:  true,
		CacheSize:    -2000,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("failed to close database: %v", closeErr)
		}
	})

	storagePath := filepath.Join(tmpDir, "storage")
	backend := NewFilesystemBackend(storagePath)

	formStore := forms.NewStore(db)
	form, err := formStore.CreateForm(context.Background(), forms.CreateFormInput{
		Title: "Intake", Slug: "intake", CreatedBy: "owner1", IsPublic: true,
	})
	if err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}

	service := NewService(NewStore(db), backend, formStore)

	return service, backend, form
}

func uploadAs(t *testing.T, service *Service, form *forms.Form, actor *auth.User, filename string, content []byte) (*File, error) {
	t.Helper()
	return service.Upload(context.Background(), form.ID, "q1", actor, filename, bytes.NewReader(content), int64(len(content)))
}

func TestServiceUpload(t *testing.T) {
	service, _, form := testService(t)
	content := []byte("Hello, World!")

	file, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, "test.txt", content)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if file.ID == "" {
		t.Error("File ID not set")
	}
	if file.Name != "test.txt" {
		t.Errorf("Name = %s, want test.txt", file.Name)
	}
	if file.MimeType != "text/plain; charset=utf-8" {
		t.Errorf("MimeType = %s, want text/plain; charset=utf-8", file.MimeType)
	}
	if file.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", file.Size, len(content))
	}
	if file.Checksum == "" {
		t.Error("Checksum not set")
	}
}

func TestServiceUploadRequiresSubmitPermission(t *testing.T) {
	service, _, form := testService(t)
	notPublic := false
	if _, err := service.forms.UpdateForm(context.Background(), form.ID, forms.UpdateFormInput{IsPublic: &notPublic}); err != nil {
		t.Fatalf("UpdateForm failed: %v", err)
	}

	_, err := uploadAs(t, service, form, &auth.User{ID: "stranger"}, "test.txt", []byte("hi"))
	if err == nil {
		t.Fatal("Upload should fail for a user with no submit permission")
	}
}

func TestServiceUploadSizeLimit(t *testing.T) {
	service, _, form := testService(t)
	content := make([]byte, 11*1024*1024)

	_, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, "large.pdf", content)
	if err == nil {
		t.Fatal("Upload should fail for file exceeding size limit")
	}
}

func TestServiceUploadExtensionValidation(t *testing.T) {
	service, _, form := testService(t)
	content := []byte("PK\x03\x04")

	_, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, "archive.zip", content)
	if err == nil {
		t.Fatal("Upload should fail for a disallowed extension")
	}
	if !strings.Contains(err.Error(), "not allowed") {
		t.Errorf("Error message = %v, want extension error", err)
	}
}

func TestServiceDownload(t *testing.T) {
	service, _, form := testService(t)
	content := []byte("Hello, World!")

	file, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, "test.txt", content)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	rc, metadata, err := service.Download(context.Background(), form.ID, "q1", file.ID, &auth.User{ID: "owner1"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer rc.Close()

	if metadata.ID != file.ID {
		t.Errorf("Metadata ID = %s, want %s", metadata.ID, file.ID)
	}

	downloaded, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Reading downloaded content failed: %v", err)
	}
	if !bytes.Equal(downloaded, content) {
		t.Errorf("Downloaded content = %q, want %q", downloaded, content)
	}
}

func TestServiceDelete(t *testing.T) {
	service, backend, form := testService(t)
	content := []byte("Hello, World!")

	file, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, "test.txt", content)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if err := service.Delete(context.Background(), form.ID, "q1", file.ID, &auth.User{ID: "owner1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	bucket := form.ID + "/q1"
	if _, err := service.store.Get(context.Background(), bucket, file.ID); err != ErrNotFound {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}

	exists, err := backend.Exists(context.Background(), bucket, file.Path)
	if err != nil {
		t.Fatalf("Exists check failed: %v", err)
	}
	if exists {
		t.Error("File still exists in backend after Delete")
	}
}

func TestServiceList(t *testing.T) {
	service, _, form := testService(t)

	for i := 0; i < 5; i++ {
		filename := string(rune('a'+i)) + ".txt"
		if _, err := uploadAs(t, service, form, &auth.User{ID: "owner1"}, filename, []byte("content")); err != nil {
			t.Fatalf("Upload %d failed: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	files, err := service.List(context.Background(), form.ID, "q1", &auth.User{ID: "owner1"}, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("List returned %d files, want 5", len(files))
	}
}

func TestServiceUploadUnknownForm(t *testing.T) {
	service, _, _ := testService(t)

	_, err := service.Upload(context.Background(), "does-not-exist", "q1", &auth.User{ID: "owner1"}, "file.txt", bytes.NewReader([]byte("hi")), 2)
	if err == nil {
		t.Error("Upload should fail for a nonexistent form")
	}
}
