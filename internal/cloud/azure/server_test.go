package azure

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testAccount   = "devstoreaccount1"
	testContainer = "sfs-test"
)

// fakeBlob is a committed block blob.
type fakeBlob struct {
	data     []byte
	header   nethttp.Header // x-ms-meta-* and content headers
	modified time.Time
}

// fakeBlobService serves the block blob subset of the Blob REST API.
type fakeBlobService struct {
	mu      sync.Mutex
	blobs   map[string]*fakeBlob
	staged  map[string]map[string][]byte // blob name -> block id -> data
	commits int
}

func newFakeBlobService(t *testing.T) (*fakeBlobService, *httptest.Server) {
	f := &fakeBlobService{
		blobs:  make(map[string]*fakeBlob),
		staged: make(map[string]map[string][]byte),
	}
	srv := httptest.NewServer(nethttp.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBlobService) serve(w nethttp.ResponseWriter, r *nethttp.Request) {
	prefix := "/" + testAccount + "/" + testContainer + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		azError(w, nethttp.StatusNotFound, "ContainerNotFound")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, prefix)
	q := r.URL.Query()

	switch {
	case r.Method == nethttp.MethodPut && q.Get("comp") == "block":
		f.putBlock(w, r, name, q.Get("blockid"))
	case r.Method == nethttp.MethodPut && q.Get("comp") == "blocklist":
		f.putBlockList(w, r, name)
	case r.Method == nethttp.MethodPut:
		f.putBlob(w, r, name)
	case r.Method == nethttp.MethodHead:
		f.head(w, name)
	case r.Method == nethttp.MethodGet:
		f.get(w, r, name)
	default:
		azError(w, nethttp.StatusMethodNotAllowed, "UnsupportedHttpVerb")
	}
}

func azError(w nethttp.ResponseWriter, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>fake</Message></Error>`, code)
}

func created(w nethttp.ResponseWriter) {
	w.Header().Set("ETag", `"0x1"`)
	w.Header().Set("Last-Modified", time.Now().UTC().Format(nethttp.TimeFormat))
	w.WriteHeader(nethttp.StatusCreated)
}

// blobHeaders keeps the request headers a committed blob is served with.
func blobHeaders(r *nethttp.Request) nethttp.Header {
	h := make(nethttp.Header)
	for k, v := range r.Header {
		if strings.HasPrefix(strings.ToLower(k), "x-ms-meta-") {
			h[k] = v
		}
	}
	if ct := r.Header.Get("x-ms-blob-content-type"); ct != "" {
		h.Set("Content-Type", ct)
	}
	if cc := r.Header.Get("x-ms-blob-cache-control"); cc != "" {
		h.Set("Cache-Control", cc)
	}
	return h
}

func (f *fakeBlobService) putBlock(w nethttp.ResponseWriter, r *nethttp.Request, name, id string) {
	data, err := io.ReadAll(r.Body)
	if err != nil || id == "" {
		azError(w, nethttp.StatusBadRequest, "InvalidInput")
		return
	}
	f.mu.Lock()
	if f.staged[name] == nil {
		f.staged[name] = make(map[string][]byte)
	}
	f.staged[name][id] = data
	f.mu.Unlock()
	created(w)
}

type blockList struct {
	Latest      []string `xml:"Latest"`
	Uncommitted []string `xml:"Uncommitted"`
	Committed   []string `xml:"Committed"`
}

func (f *fakeBlobService) putBlockList(w nethttp.ResponseWriter, r *nethttp.Request, name string) {
	var list blockList
	if err := xml.NewDecoder(r.Body).Decode(&list); err != nil {
		azError(w, nethttp.StatusBadRequest, "InvalidXmlDocument")
		return
	}
	ids := append(append(list.Latest, list.Uncommitted...), list.Committed...)

	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, id := range ids {
		block, ok := f.staged[name][id]
		if !ok {
			azError(w, nethttp.StatusBadRequest, "InvalidBlockList")
			return
		}
		buf.Write(block)
	}
	delete(f.staged, name)
	f.blobs[name] = &fakeBlob{data: buf.Bytes(), header: blobHeaders(r), modified: time.Now().UTC()}
	f.commits++
	created(w)
}

func (f *fakeBlobService) putBlob(w nethttp.ResponseWriter, r *nethttp.Request, name string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		azError(w, nethttp.StatusBadRequest, "InvalidInput")
		return
	}
	f.mu.Lock()
	f.blobs[name] = &fakeBlob{data: data, header: blobHeaders(r), modified: time.Now().UTC()}
	f.mu.Unlock()
	created(w)
}

func (f *fakeBlobService) lookup(name string) (*fakeBlob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[name]
	return b, ok
}

func (f *fakeBlobService) writeHeaders(w nethttp.ResponseWriter, b *fakeBlob) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("ETag", `"0x1"`)
	w.Header().Set("Last-Modified", b.modified.Format(nethttp.TimeFormat))
	w.Header().Set("x-ms-blob-type", "BlockBlob")
	w.Header().Set("Accept-Ranges", "bytes")
}

func (f *fakeBlobService) head(w nethttp.ResponseWriter, name string) {
	b, ok := f.lookup(name)
	if !ok {
		w.Header().Set("x-ms-error-code", "BlobNotFound")
		w.WriteHeader(nethttp.StatusNotFound)
		return
	}
	f.writeHeaders(w, b)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.data)))
	w.WriteHeader(nethttp.StatusOK)
}

func (f *fakeBlobService) get(w nethttp.ResponseWriter, r *nethttp.Request, name string) {
	b, ok := f.lookup(name)
	if !ok {
		azError(w, nethttp.StatusNotFound, "BlobNotFound")
		return
	}
	f.writeHeaders(w, b)

	rng := r.Header.Get("x-ms-range")
	if rng == "" {
		rng = r.Header.Get("Range")
	}
	if rng == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(b.data)))
		w.WriteHeader(nethttp.StatusOK)
		w.Write(b.data)
		return
	}

	var start, end int64
	spec := strings.TrimPrefix(rng, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	start, _ = strconv.ParseInt(parts[0], 10, 64)
	end = int64(len(b.data)) - 1
	if len(parts) == 2 && parts[1] != "" {
		end, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if end >= int64(len(b.data)) {
		end = int64(len(b.data)) - 1
	}
	if start > end {
		azError(w, nethttp.StatusRequestedRangeNotSatisfiable, "InvalidRange")
		return
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(b.data)))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(nethttp.StatusPartialContent)
	w.Write(b.data[start : end+1])
}

func (f *fakeBlobService) blob(name string) []byte {
	b, ok := f.lookup(name)
	if !ok {
		return nil
	}
	return b.data
}

func (f *fakeBlobService) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}
