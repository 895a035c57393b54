package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/conduit-lang/onpage/internal/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendJSON(t *testing.T) {
	var gotPath, gotType, gotID, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotID = r.Header.Get(RequestIDHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL+"/api/view/tok/", time.Second, zap.NewNop())
	body, err := payload.Encode(payload.NewMap("_method", "get"))
	require.NoError(t, err)

	status, data, err := tr.Send(context.Background(), http.MethodPost, "schema", body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, `{"ok":true}`, string(data))
	assert.Equal(t, "/api/view/tok/schema", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Len(t, gotID, 36)
	assert.Equal(t, `{"_method":"get"}`, gotBody)
}

func TestSendMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))

	var fields map[string][]string
	var fileName, fileContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		fields = r.MultipartForm.Value
		fh := r.MultipartForm.File["thing[photo]"][0]
		fileName = fh.Filename
		f, _ := fh.Open()
		b, _ := io.ReadAll(f)
		fileContent = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body, err := payload.Encode(payload.NewMap("thing", payload.NewMap(
		"photo", payload.Upload(path),
		"title", "Profili",
	)))
	require.NoError(t, err)
	require.Equal(t, payload.FormatMultipart, body.Format)

	tr := NewHTTP(srv.URL, time.Second, nil)
	status, _, err := tr.Send(context.Background(), http.MethodPost, "/things", body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Profili"}, fields["thing[title]"])
	assert.Equal(t, "photo.jpg", fileName)
	assert.Equal(t, "jpeg", fileContent)
}

func TestSendReturnsErrorStatusWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL, time.Second, nil)
	status, data, err := tr.Send(context.Background(), http.MethodPost, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(data), "boom")
}

func TestSendTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := NewHTTP(url, time.Second, nil)
	_, _, err := tr.Send(context.Background(), http.MethodPost, "schema", nil)
	require.Error(t, err)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "schema", te.Path)
	assert.False(t, te.Timeout())
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTP(srv.URL, 50*time.Millisecond, nil)
	_, _, err := tr.Send(context.Background(), http.MethodPost, "slow", nil)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Timeout())
}

func TestSendMissingUploadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	body := &payload.Body{
		Format: payload.FormatMultipart,
		Parts:  []payload.Part{{Name: "f", Upload: &payload.FileUpload{Path: "/does/not/exist"}}},
	}
	tr := NewHTTP(srv.URL, time.Second, nil)
	_, _, err := tr.Send(context.Background(), http.MethodPost, "upload", body)

	var te *Error
	assert.True(t, errors.As(err, &te))
}

func TestSendInvalidURLReleasesMultipartWriter(t *testing.T) {
	body := &payload.Body{
		Format: payload.FormatMultipart,
		Parts:  []payload.Part{{Name: "title", Value: "Profili"}},
	}
	tr := NewHTTP("http://exa\x7fmple/", time.Second, nil)

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		_, _, err := tr.Send(context.Background(), http.MethodPost, "things", body)
		var te *Error
		require.True(t, errors.As(err, &te))
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, time.Second, 10*time.Millisecond)
}
