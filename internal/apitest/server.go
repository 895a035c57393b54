package apitest

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/encoding/json"
)

// Token is the access token accepted by servers created with NewServer
const Token = "test-token"

// EchoEndpoint returns what it received instead of querying the dataset
const EchoEndpoint = "echo"

// Request is a request observed by the server
type Request struct {
	ID          string // X-Request-ID sent by the client
	Endpoint    string
	Method      string // value of _method, "post" when absent
	ContentType string
	JSON        map[string]any
	Form        map[string][]string
	Files       map[string]UploadedFile
}

// UploadedFile is a file part observed by the server
type UploadedFile struct {
	Filename string
	Content  string
}

// Server is a fake catalog API
type Server struct {
	*httptest.Server

	data *Dataset

	mu         sync.Mutex
	requests   []Request
	failStatus int
}

// NewServer starts a server for ds and closes it when the test ends
func NewServer(t testing.TB, ds *Dataset) *Server {
	s := &Server{data: ds}
	s.Server = httptest.NewServer(s.Router())
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns the API root URL to configure clients with
func (s *Server) Endpoint() string {
	return s.URL + "/api"
}

// FailWith makes every following request answer with status.
// Zero restores normal behaviour.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// Requests returns the requests received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request
func (s *Server) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Router builds the HTTP routes of the fake API
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(echoRequestID)
	r.Route("/api", func(r chi.Router) {
		r.Post("/view/{token}/*", s.handleView)
		r.Get("/storage/{file}", s.handleStorage)
	})
	return r
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "token") != Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
		return
	}

	req, err := readRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	req.Endpoint = chi.URLParam(r, "*")
	req.ID = r.Header.Get(RequestIDHeader)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failStatus
	s.mu.Unlock()

	if fail != 0 {
		writeJSON(w, fail, map[string]any{"error": "forced failure"})
		return
	}

	switch {
	case req.Endpoint == "schema" && req.Method == "get":
		writeJSON(w, http.StatusOK, s.data.Schema)
	case req.Endpoint == EchoEndpoint:
		writeJSON(w, http.StatusCreated, map[string]any{
			"method": req.Method,
			"json":   req.JSON,
			"form":   req.Form,
			"files":  req.Files,
		})
	case req.Method == "get":
		s.handleQuery(w, req)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown endpoint " + req.Endpoint})
	}
}

// RequestIDHeader is echoed back on every response
const RequestIDHeader = "X-Request-ID"

func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(RequestIDHeader); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.WriteString(w, chi.URLParam(r, "file"))
}

func (s *Server) handleQuery(w http.ResponseWriter, req Request) {
	resource := req.Endpoint
	rows, ok := s.data.Rows[resource]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown resource " + resource})
		return
	}

	if rel, ok := req.JSON["related_to"].(map[string]any); ok {
		rows = s.related(rel)
	}
	if filters, ok := req.JSON["filters"].(map[string]any); ok {
		rows = filterRows(rows, filters)
	}

	total := len(rows)
	if offset := intParam(req.JSON["offset"]); offset > 0 {
		if offset > len(rows) {
			offset = len(rows)
		}
		rows = rows[offset:]
	}
	if limit := intParam(req.JSON["limit"]); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	with, _ := req.JSON["with"].(map[string]any)
	data := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, s.render(resource, row, with))
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data, "count": total})
}

// related returns the rows linked from the owner named in a related_to filter
func (s *Server) related(rel map[string]any) []*Row {
	owner := s.data.Find(fmt.Sprint(rel["resource"]), int64(intParam(rel["id"])))
	if owner == nil {
		return nil
	}

	field, ok := s.data.relation(fmt.Sprint(rel["resource"]), fmt.Sprint(rel["relation"]))
	if !ok {
		return nil
	}

	var out []*Row
	for _, id := range owner.Links[field.Name] {
		if row := s.data.Find(field.RelResource, id); row != nil {
			out = append(out, row)
		}
	}
	return out
}

// render encodes a row, embedding the relations named in with
func (s *Server) render(resource string, row *Row, with map[string]any) map[string]any {
	out := map[string]any{"id": row.ID, "fields": row.Fields}
	if len(with) == 0 {
		return out
	}

	relations := map[string]any{}
	for name, sub := range with {
		field, ok := s.data.relation(resource, name)
		if !ok {
			continue
		}
		subWith, _ := sub.(map[string]any)

		var linked []map[string]any
		for _, id := range row.Links[name] {
			if target := s.data.Find(field.RelResource, id); target != nil {
				linked = append(linked, s.render(field.RelResource, target, subWith))
			}
		}

		switch {
		case field.Multiple:
			if linked == nil {
				linked = []map[string]any{}
			}
			relations[name] = linked
		case len(linked) > 0:
			relations[name] = linked[0]
		default:
			relations[name] = nil
		}
	}
	out["relations"] = relations
	return out
}

func filterRows(rows []*Row, filters map[string]any) []*Row {
	var out []*Row
	for _, row := range rows {
		if matches(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row *Row, filters map[string]any) bool {
	for key, want := range filters {
		if key == "id" {
			if int64(intParam(want)) != row.ID {
				return false
			}
			continue
		}

		got, ok := row.Fields[key]
		if !ok {
			return false
		}
		if !containsValue(got, fmt.Sprint(want)) {
			return false
		}
	}
	return true
}

func containsValue(v any, want string) bool {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if fmt.Sprint(item) == want {
				return true
			}
		}
		return false
	}
	return fmt.Sprint(v) == want
}

func readRequest(r *http.Request) (Request, error) {
	req := Request{ContentType: r.Header.Get("Content-Type"), Method: "post"}

	mediaType, _, _ := mime.ParseMediaType(req.ContentType)
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, err
		}
		req.Form = r.MultipartForm.Value
		req.Files = map[string]UploadedFile{}
		for name, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				f, err := fh.Open()
				if err != nil {
					return req, err
				}
				content, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					return req, err
				}
				req.Files[name] = UploadedFile{Filename: fh.Filename, Content: string(content)}
			}
		}
		if m := r.MultipartForm.Value["_method"]; len(m) > 0 {
			req.Method = m[0]
		}
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, err
		}
		req.JSON = map[string]any{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req.JSON); err != nil {
				return req, err
			}
		}
		if m, ok := req.JSON["_method"].(string); ok {
			req.Method = m
		}
	}
	return req, nil
}

func intParam(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
