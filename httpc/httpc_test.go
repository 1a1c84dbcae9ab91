package httpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestGet(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Fox", "den")
			io.WriteString(w, "hello")
		}))
	defer srv.Close()

	resp, err := Get(context.Background(), srv.URL)
	is.NoErr(err)
	is.True(resp.OK())
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(string(resp.Content), "hello")
	is.Equal(resp.Header.Get("X-Fox"), "den")
}

func TestPost(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			is.Equal(r.Method, http.MethodPost)
			is.Equal(r.Header.Get("Content-Type"), "text/plain")

			body, err := io.ReadAll(r.Body)
			is.NoErr(err)

			w.WriteHeader(http.StatusCreated)
			w.Write(body)
		}))
	defer srv.Close()

	resp, err := Post(context.Background(), srv.URL, "text/plain", "ping")
	is.NoErr(err)
	is.True(resp.OK())
	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(string(resp.Content), "ping")
}

func TestGetConnectionRefused(t *testing.T) {
	is := is.New(t)

	// a closed test server leaves a port nothing listens on
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp, err := Get(context.Background(), url)
	is.True(err != nil)
	is.True(resp == nil)
}
