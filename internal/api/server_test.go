package api

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/http"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
)

// fakeServer is an in-memory SimpleFS API.
type fakeServer struct {
	t *testing.T

	mu       sync.Mutex
	blobs    map[string][]byte
	files    map[string]*models.FsFile
	sessions map[string]*fakeSession
	names    map[string]bool

	// requests counts calls per "METHOD pattern".
	requests map[string]int
	// lastHeaders keeps the headers of the latest call per pattern.
	lastHeaders map[string]nethttp.Header
	// completed keeps the part list of the latest complete call.
	completed []models.PartResult

	// failParts answers these part numbers with the given status.
	failParts map[int32]int
}

type fakeSession struct {
	md    models.UploadBlobMetadata
	parts map[int32][]byte
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{
		t:           t,
		blobs:       make(map[string][]byte),
		files:       make(map[string]*models.FsFile),
		sessions:    make(map[string]*fakeSession),
		names:       make(map[string]bool),
		requests:    make(map[string]int),
		lastHeaders: make(map[string]nethttp.Header),
		failParts:   make(map[int32]int),
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("POST /blob/upload", f.track("POST /blob/upload", f.handleUpload))
	mux.HandleFunc("POST /blob/multipart/create", f.track("POST /blob/multipart/create", f.handleCreate))
	mux.HandleFunc("PUT /blob/multipart/{id}/parts/{n}", f.track("PUT part", f.handlePart))
	mux.HandleFunc("POST /blob/multipart/{id}/complete", f.track("POST complete", f.handleComplete))
	mux.HandleFunc("DELETE /blob/multipart/{id}", f.track("DELETE multipart", f.handleAbort))
	mux.HandleFunc("GET /metadata/{id}", f.track("GET metadata", f.handleMetadata))
	mux.HandleFunc("GET /{id}", f.track("GET blob", f.handleGet))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server) *Client {
	retry := http.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return newClient(srv.Client(), srv.URL, "test-token", retry, nil)
}

func (f *fakeServer) track(key string, h nethttp.HandlerFunc) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f.mu.Lock()
		f.requests[key]++
		f.lastHeaders[key] = r.Header.Clone()
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer test-token" {
			writeJSON(w, nethttp.StatusUnauthorized, models.APIResponse[struct{}]{Message: "missing token", Error: "ERR_UNAUTHORIZED"})
			return
		}
		h(w, r)
	}
}

func (f *fakeServer) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

func writeJSON[T any](w nethttp.ResponseWriter, status int, v models.APIResponse[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) store(md models.UploadBlobMetadata, data []byte) (*models.FsFile, bool) {
	if md.Name != "" && f.names[md.Name] && !md.ForceWrite {
		return nil, false
	}
	id := uuid.NewString()
	file := &models.FsFile{
		Name:        md.Name,
		StorageID:   id,
		FileSize:    int64(len(data)),
		FileType:    md.ContentType,
		IsEncrypted: md.Encryption != nil && md.Encryption.AttemptDecryption,
		IsPublic:    md.IsPublic,
		CreatedAt:   time.Now().UTC(),
		Encryption:  md.Encryption,
		DeletedAt:   md.DeletedAt,
	}
	f.blobs[id] = data
	f.files[id] = file
	f.names[md.Name] = true
	return file, true
}

func (f *fakeServer) handleUpload(w nethttp.ResponseWriter, r *nethttp.Request) {
	var md models.UploadBlobMetadata
	if err := json.Unmarshal([]byte(r.Header.Get(constants.HeaderUploadMetadata)), &md); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: "bad metadata header"})
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.store(md, data)
	if !ok {
		writeJSON(w, nethttp.StatusConflict, models.APIResponse[struct{}]{Message: "file exists", Error: constants.APIErrAlreadyExists})
		return
	}
	writeJSON(w, nethttp.StatusOK, models.APIResponse[models.FsFile]{Message: "ok", Data: file})
}

func (f *fakeServer) handleCreate(w nethttp.ResponseWriter, r *nethttp.Request) {
	var md models.UploadBlobMetadata
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: err.Error()})
		return
	}
	id := uuid.NewString()
	f.mu.Lock()
	f.sessions[id] = &fakeSession{md: md, parts: make(map[int32][]byte)}
	f.mu.Unlock()
	writeJSON(w, nethttp.StatusOK, models.APIResponse[models.MultipartSession]{Data: &models.MultipartSession{UploadID: id}})
}

func (f *fakeServer) handlePart(w nethttp.ResponseWriter, r *nethttp.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: "bad part number"})
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.failParts[int32(n)]; ok {
		writeJSON(w, status, models.APIResponse[struct{}]{Message: "injected failure"})
		return
	}
	s, ok := f.sessions[r.PathValue("id")]
	if !ok {
		writeJSON(w, nethttp.StatusNotFound, models.APIResponse[struct{}]{Message: "no such upload"})
		return
	}
	s.parts[int32(n)] = data
	// Tag only in the ETag header to exercise the fallback.
	w.Header().Set("ETag", `"tag-`+strconv.Itoa(n)+`"`)
	w.WriteHeader(nethttp.StatusOK)
}

func (f *fakeServer) handleComplete(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req models.CompleteMultipartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[r.PathValue("id")]
	if !ok {
		writeJSON(w, nethttp.StatusNotFound, models.APIResponse[struct{}]{Message: "no such upload"})
		return
	}
	f.completed = req.Parts

	var buf bytes.Buffer
	for _, p := range req.Parts {
		if p.CompletionTag != `"tag-`+strconv.Itoa(int(p.PartNumber))+`"` {
			writeJSON(w, nethttp.StatusBadRequest, models.APIResponse[struct{}]{Message: "bad completion tag"})
			return
		}
		buf.Write(s.parts[p.PartNumber])
	}
	md := s.md
	if req.Metadata != nil {
		md = *req.Metadata
	}
	delete(f.sessions, r.PathValue("id"))
	file, ok := f.store(md, buf.Bytes())
	if !ok {
		writeJSON(w, nethttp.StatusConflict, models.APIResponse[struct{}]{Error: constants.APIErrAlreadyExists})
		return
	}
	writeJSON(w, nethttp.StatusOK, models.APIResponse[models.FsFile]{Data: file})
}

func (f *fakeServer) handleAbort(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	delete(f.sessions, r.PathValue("id"))
	f.mu.Unlock()
	writeJSON(w, nethttp.StatusOK, models.APIResponse[struct{}]{Message: "aborted", Data: &struct{}{}})
}

func (f *fakeServer) handleMetadata(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	file, ok := f.files[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, nethttp.StatusNotFound, models.APIResponse[struct{}]{Message: "not found"})
		return
	}
	writeJSON(w, nethttp.StatusOK, models.APIResponse[models.FsFile]{Data: file})
}

func (f *fakeServer) handleGet(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	data, ok := f.blobs[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, nethttp.StatusNotFound, models.APIResponse[struct{}]{Message: "not found"})
		return
	}
	nethttp.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

func (f *fakeServer) blob(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[id]
}

func (f *fakeServer) headers(key string) nethttp.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHeaders[key]
}

func (f *fakeServer) failPart(n int32, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failParts[n] = status
}

func (f *fakeServer) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeServer) completedNumbers() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int32, 0, len(f.completed))
	for _, p := range f.completed {
		out = append(out, p.PartNumber)
	}
	return out
}

func sortedCopy(in []int32) []int32 {
	out := append([]int32(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
