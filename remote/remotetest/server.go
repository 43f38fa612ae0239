// Package remotetest provides an in-memory documents API served over
// httptest, for tests of code that talks to the remote store.
package remotetest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/docsync/remote"
)

type failure struct {
	status int
	msg    string
}

// Server is a fake documents API. Route names used by Fail and Calls are
// "METHOD /pattern", e.g. "PATCH /api/documents/{id}".
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	seq     int
	now     func() time.Time
	folders []remote.Folder
	docs    map[string]remote.Document
	history []remote.HistoryEntry
	fail    map[string]failure
	calls   map[string]int
}

func NewServer() *Server {
	s := &Server{
		now:   time.Now,
		docs:  make(map[string]remote.Document),
		fail:  make(map[string]failure),
		calls: make(map[string]int),
	}
	mux := http.NewServeMux()
	s.route(mux, "GET /api/folders", s.listFolders)
	s.route(mux, "POST /api/folders", s.createFolder)
	s.route(mux, "GET /api/folders/{id}", s.listDocuments)
	s.route(mux, "DELETE /api/folders/{id}", s.deleteFolder)
	s.route(mux, "GET /api/documents/{id}", s.getDocument)
	s.route(mux, "POST /api/documents", s.createDocument)
	s.route(mux, "PATCH /api/documents/{id}", s.updateDocument)
	s.route(mux, "DELETE /api/documents/{id}", s.deleteDocument)
	s.route(mux, "GET /api/search", s.search)
	s.route(mux, "GET /api/history", s.listHistory)
	s.route(mux, "POST /api/history", s.addHistory)
	s.Server = httptest.NewServer(mux)
	return s
}

// BaseURL is the value for remote.Config.BaseURL.
func (s *Server) BaseURL() string { return s.URL + "/api" }

// Fail makes the next call of route answer with status and {error: msg}.
func (s *Server) Fail(route string, status int, msg string) {
	s.mu.Lock()
	s.fail[route] = failure{status: status, msg: msg}
	s.mu.Unlock()
}

// Calls reports how many requests route has served.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// SeedFolder adds a folder and returns it.
func (s *Server) SeedFolder(name string) remote.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := remote.Folder{ID: s.nextID("f"), Name: name, Type: "folder"}
	s.folders = append(s.folders, f)
	return f
}

// SeedDocument adds a document and returns it.
func (s *Server) SeedDocument(nd remote.NewDocument) remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertDocument(nd)
}

// SeedHistory appends raw history rows, duplicates included.
func (s *Server) SeedHistory(entries ...remote.HistoryEntry) {
	s.mu.Lock()
	s.history = append(s.history, entries...)
	s.mu.Unlock()
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[pattern]++
		f, failing := s.fail[pattern]
		delete(s.fail, pattern)
		s.mu.Unlock()
		if failing {
			writeError(w, f.status, f.msg)
			return
		}
		h(w, r)
	})
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return prefix + strconv.Itoa(s.seq)
}

func (s *Server) insertDocument(nd remote.NewDocument) remote.Document {
	ts := s.now().UnixMilli()
	d := remote.Document{
		ID:        s.nextID("d"),
		Title:     nd.Title,
		Content:   nd.Content,
		FolderID:  nd.FolderID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.docs[d.ID] = d
	return d
}

func (s *Server) listFolders(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]remote.Folder{}, s.folders...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "Folder name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.SeedFolder(in.Name))
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	out := []remote.Document{}
	for _, d := range s.docs {
		if d.FolderID == id {
			out = append(out, d)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, f := range s.folders {
		if f.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Folder not found")
		return
	}
	s.folders = append(s.folders[:idx], s.folders[idx+1:]...)
	for did, d := range s.docs {
		if d.FolderID == id {
			delete(s.docs, did)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	d, ok := s.docs[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var nd remote.NewDocument
	if err := json.NewDecoder(r.Body).Decode(&nd); err != nil || strings.TrimSpace(nd.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.SeedDocument(nd))
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	d.Content = in.Content
	d.UpdatedAt = s.now().UnixMilli()
	s.docs[d.ID] = d
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	delete(s.docs, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("query"))
	s.mu.Lock()
	out := []remote.SearchResult{}
	for _, d := range s.docs {
		if q != "" && (strings.Contains(strings.ToLower(d.Title), q) || strings.Contains(strings.ToLower(d.Content), q)) {
			out = append(out, remote.SearchResult{ID: d.ID, Title: d.Title, Snippet: snippet(d.Content)})
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listHistory(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]remote.HistoryEntry{}, s.history...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addHistory(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ID == "" {
		writeError(w, http.StatusBadRequest, "Document id is required")
		return
	}
	s.SeedHistory(remote.HistoryEntry{ID: in.ID, Title: in.Title, Timestamp: s.now().UnixMilli()})
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func snippet(content string) string {
	const limit = 80
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "..."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
