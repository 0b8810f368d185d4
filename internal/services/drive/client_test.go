package drive_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capnote/internal/services"
	"capnote/internal/services/drive"
	"capnote/internal/testsupport"
)

// fakeDrive is a minimal Drive-compatible API: list, create, multipart
// upload, media download, and media update.
type fakeDrive struct {
	t       *testing.T
	nextID  int
	files   map[string]*fakeFile
	folders map[string]string
}

type fakeFile struct {
	id      string
	name    string
	parent  string
	content []byte
}

func newFakeDrive(t *testing.T) (*fakeDrive, *httptest.Server) {
	fake := &fakeDrive{
		t:       t,
		files:   make(map[string]*fakeFile),
		folders: make(map[string]string),
	}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeDrive) newID() string {
	f.nextID++
	return fmt.Sprintf("file-%d", f.nextID)
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		f.handleList(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/files":
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/related" {
			f.handleMultipartUpload(w, r)
		} else {
			f.handleCreateFolder(w, r)
		}
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
		f.handleDownload(w, r)
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/files/"):
		f.handleUpdate(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (f *fakeDrive) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var matches []entry

	if strings.Contains(query, "application/vnd.google-apps.folder") {
		for name, id := range f.folders {
			if strings.Contains(query, "name = '"+name+"'") {
				matches = append(matches, entry{ID: id, Name: name})
			}
		}
	} else {
		for _, file := range f.files {
			if strings.Contains(query, "name = '"+file.name+"'") {
				matches = append(matches, entry{ID: file.id, Name: file.name})
			}
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"files": matches})
}

func (f *fakeDrive) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var metadata struct {
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := f.newID()
	f.folders[metadata.Name] = id
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (f *fakeDrive) handleMultipartUpload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reader := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var metadata struct {
		Name    string   `json:"name"`
		Parents []string `json:"parents"`
	}
	if err := json.NewDecoder(metaPart).Decode(&metadata); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(mediaPart)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file := &fakeFile{id: f.newID(), name: metadata.Name, content: content}
	if len(metadata.Parents) > 0 {
		file.parent = metadata.Parents[0]
	}
	f.files[file.id] = file
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":          file.id,
		"webViewLink": "https://drive.test/view/" + file.id,
	})
}

func (f *fakeDrive) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/files/")
	file, ok := f.files[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_, _ = w.Write(file.content)
}

func (f *fakeDrive) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/files/")
	file, ok := f.files[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file.content = content
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (f *fakeDrive) fileByName(name string) *fakeFile {
	for _, file := range f.files {
		if file.name == name {
			return file
		}
	}
	return nil
}

func writeAudioFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write audio file: %v", err)
	}
	return path
}

func TestUploadCreatesFolderAndReturnsFileInfo(t *testing.T) {
	fake, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

	audio := writeAudioFile(t, t.TempDir(), "memo.m4a", []byte("audio-bytes"))
	info, err := client.Upload(context.Background(), audio)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if info.ID == "" || info.URL == "" {
		t.Fatalf("expected remote identifiers, got %#v", info)
	}

	uploaded := fake.fileByName("memo.m4a")
	if uploaded == nil {
		t.Fatal("expected file uploaded to fake drive")
	}
	if string(uploaded.content) != "audio-bytes" {
		t.Fatalf("unexpected uploaded content %q", uploaded.content)
	}
	folderID, ok := fake.folders[cfg.Storage.Folder]
	if !ok {
		t.Fatalf("expected folder %q created", cfg.Storage.Folder)
	}
	if uploaded.parent != folderID {
		t.Fatalf("expected file parented to %q, got %q", folderID, uploaded.parent)
	}
}

func TestUploadReusesExistingFolder(t *testing.T) {
	fake, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
	fake.folders[cfg.Storage.Folder] = "folder-existing"

	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))
	audio := writeAudioFile(t, t.TempDir(), "memo.m4a", []byte("audio"))
	if _, err := client.Upload(context.Background(), audio); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if len(fake.folders) != 1 {
		t.Fatalf("expected no duplicate folder, got %v", fake.folders)
	}
	if fake.fileByName("memo.m4a").parent != "folder-existing" {
		t.Fatal("expected upload into existing folder")
	}
}

func TestUploadWithoutTokenIsAuthError(t *testing.T) {
	_, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t)
	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

	if client.Ready(context.Background()) {
		t.Fatal("expected Ready false without token file")
	}

	audio := writeAudioFile(t, t.TempDir(), "memo.m4a", []byte("audio"))
	_, err := client.Upload(context.Background(), audio)
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestUploadMissingLocalFileIsNotFound(t *testing.T) {
	_, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

	_, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.m4a"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestUploadClassifiesHTTPStatuses(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrAuth},
		{http.StatusForbidden, services.ErrAuth},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadRequest, services.ErrExternal},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
		cfg.Storage.Folder = ""
		client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

		audio := writeAudioFile(t, t.TempDir(), "memo.m4a", []byte("audio"))
		_, err := client.Upload(context.Background(), audio)
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d: expected marker %v, got %v", tc.status, tc.marker, err)
		}
		server.Close()
	}
}

func TestAppendDailyLogCreatesThenAppends(t *testing.T) {
	fake, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

	ctx := context.Background()
	if err := client.AppendDailyLog(ctx, "2026-08-31", "09:15 Morning memo: call the dentist"); err != nil {
		t.Fatalf("AppendDailyLog failed: %v", err)
	}

	log := fake.fileByName("transcripts-2026-08-31.txt")
	if log == nil {
		t.Fatal("expected daily log created")
	}
	if string(log.content) != "09:15 Morning memo: call the dentist\n" {
		t.Fatalf("unexpected log content %q", log.content)
	}

	if err := client.AppendDailyLog(ctx, "2026-08-31", "10:40 Second memo: buy milk"); err != nil {
		t.Fatalf("AppendDailyLog failed: %v", err)
	}
	want := "09:15 Morning memo: call the dentist\n10:40 Second memo: buy milk\n"
	if string(log.content) != want {
		t.Fatalf("unexpected appended content %q", log.content)
	}
}

func TestAppendDailyLogSkipsBlankEntries(t *testing.T) {
	fake, server := newFakeDrive(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStorageToken("test-token"))
	client := drive.NewClient(cfg, drive.WithBaseURL(server.URL))

	if err := client.AppendDailyLog(context.Background(), "2026-08-31", "   "); err != nil {
		t.Fatalf("AppendDailyLog failed: %v", err)
	}
	if len(fake.files) != 0 {
		t.Fatalf("expected no log file for blank entry, got %d files", len(fake.files))
	}
}
