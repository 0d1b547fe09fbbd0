package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		w.Write([]byte(`{"message":"Welcome to AnimeLens API"}`))
	}))
	defer server.Close()

	resp, err := New(server.URL+"/", time.Second).Root(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Welcome to AnimeLens API"}`, string(resp.Body))
}

func TestPredict(t *testing.T) {
	image := filepath.Join(t.TempDir(), "test_image.jpeg")
	require.NoError(t, os.WriteFile(image, []byte("fake jpeg bytes"), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "fake jpeg bytes", string(content))
		assert.Equal(t, "test_image.jpeg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"Error processing image"}`))
	}))
	defer server.Close()

	resp, err := New(server.URL, time.Second).Predict(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Error processing image")
}

func TestPredict_MissingImage(t *testing.T) {
	_, err := New("http://127.0.0.1:1", time.Second).Predict(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).Root(context.Background())
	assert.Error(t, err)
}
