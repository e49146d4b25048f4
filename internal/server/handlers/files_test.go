package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/storage"
)

func testFileHandlers(t *testing.T) (*FileHandlers, *storage.Service, *forms.Form, *auth.User) {
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

	formStore := forms.NewStore(db)
	form, err := formStore.CreateForm(t.Context(), forms.CreateFormInput{
		Title:     "Intake",
		Slug:      "intake",
		CreatedBy: "u1",
	})
	if err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}

	backend := storage.NewFilesystemBackend(filepath.Join(tmpDir, "storage"))
	store := storage.NewStore(db)
	service := storage.NewService(store, backend, formStore)
	handlers := NewFileHandlers(service)

	actor := &auth.User{ID: "u1", Roles: []auth.Role{auth.RoleAdmin}}

	return handlers, service, form, actor
}

func requestWithActor(req *http.Request, actor *auth.User) *http.Request {
	return req.WithContext(auth.ContextWithUser(req.Context(), actor))
}

func TestFileHandlersUpload(t *testing.T) {
	handlers, _, form, actor := testFileHandlers(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "test.txt")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := part.Write([]byte("Hello, World!")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/forms/"+form.ID+"/questions/q1/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.Upload(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var file storage.File
	if err := json.NewDecoder(w.Body).Decode(&file); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}
	if file.ID == "" {
		t.Error("File ID not set")
	}
	if file.Name != "test.txt" {
		t.Errorf("Name = %s, want test.txt", file.Name)
	}
}

func TestFileHandlersList(t *testing.T) {
	handlers, service, form, actor := testFileHandlers(t)

	content := []byte("content")
	for i := 0; i < 3; i++ {
		filename := string(rune('a'+i)) + ".txt"
		_, err := service.Upload(t.Context(), form.ID, "q1", actor, filename, bytes.NewReader(content), int64(len(content)))
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/forms/"+form.ID+"/questions/q1/files", nil)
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Decode response failed: %v", err)
	}

	files, ok := response["files"].([]any)
	if !ok {
		t.Fatal("files field not found or wrong type")
	}
	if len(files) != 3 {
		t.Errorf("Files count = %d, want 3", len(files))
	}
}

func TestFileHandlersDownload(t *testing.T) {
	handlers, service, form, actor := testFileHandlers(t)

	content := []byte("Hello, World!")
	file, err := service.Upload(t.Context(), form.ID, "q1", actor, "test.txt", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/forms/"+form.ID+"/questions/q1/files/"+file.ID, nil)
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req.SetPathValue("file_id", file.ID)
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.Download(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	downloaded, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("Read body failed: %v", err)
	}
	if !bytes.Equal(downloaded, content) {
		t.Errorf("Downloaded content = %q, want %q", downloaded, content)
	}

	contentDisposition := w.Header().Get("Content-Disposition")
	if contentDisposition != "attachment; filename=\"test.txt\"" {
		t.Errorf("Content-Disposition = %s, want attachment", contentDisposition)
	}
}

func TestFileHandlersDelete(t *testing.T) {
	handlers, service, form, actor := testFileHandlers(t)

	content := []byte("Hello, World!")
	file, err := service.Upload(t.Context(), form.ID, "q1", actor, "test.txt", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/forms/"+form.ID+"/questions/q1/files/"+file.ID, nil)
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req.SetPathValue("file_id", file.ID)
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.Delete(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusNoContent, w.Body.String())
	}

	if _, _, err := service.Download(t.Context(), form.ID, "q1", file.ID, actor); err == nil {
		t.Error("expected download of deleted file to fail")
	}
}

func TestFileHandlersUpload_RejectsUnsupportedType(t *testing.T) {
	handlers, _, form, actor := testFileHandlers(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "script.exe")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte("MZ"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/forms/"+form.ID+"/questions/q1/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.Upload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestFileHandlersDownload_NotFound(t *testing.T) {
	handlers, _, form, actor := testFileHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/forms/"+form.ID+"/questions/q1/files/missing", nil)
	req.SetPathValue("form_id", form.ID)
	req.SetPathValue("question_id", "q1")
	req.SetPathValue("file_id", "missing")
	req = requestWithActor(req, actor)

	w := httptest.NewRecorder()
	handlers.Download(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}
