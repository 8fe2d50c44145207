package cinemeta

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/flixresolver/internal/domain"
	providerx "github.com/John-Robertt/flixresolver/internal/provider"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/meta/series/tt0903747.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"meta":{"id":"tt0903747","type":"series","name":"Breaking Bad","poster":"p.jpg","genres":["Drama"]}}`)
	})
	mux.HandleFunc("/meta/movie/tt2935510.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"meta":{"name":"Ad Astra"}}`)
	})
	mux.HandleFunc("/meta/movie/tt0000000.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/meta/movie/tt5.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_Series(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())

	rec, err := c.Lookup(context.Background(), domain.TypeSeries, "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", rec.Name)
	assert.Equal(t, domain.TypeSeries, rec.Type)
	assert.Equal(t, []string{"Drama"}, rec.Genres)

	// TypeAll 按剧集查询。
	rec, err = c.Lookup(context.Background(), domain.TypeAll, "tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "Breaking Bad", rec.Name)
}

func TestLookup_Movie(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())

	rec, err := c.Lookup(context.Background(), domain.TypeMovie, "tt2935510")
	require.NoError(t, err)
	assert.Equal(t, "Ad Astra", rec.Name)
	assert.Equal(t, "tt2935510", rec.ID)
}

func TestLookup_NotFoundAndErrors(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, srv.Client())

	_, err := c.Lookup(context.Background(), domain.TypeMovie, "tt0000000")
	assert.True(t, errors.Is(err, providerx.ErrNotFound), "err=%v", err)

	_, err = c.Lookup(context.Background(), domain.TypeMovie, "tt404")
	assert.True(t, errors.Is(err, providerx.ErrNotFound), "err=%v", err)

	_, err = c.Lookup(context.Background(), domain.TypeMovie, "tt5")
	var he *providerx.HTTPStatusError
	require.True(t, errors.As(err, &he), "err=%v", err)
	assert.Equal(t, http.StatusBadGateway, he.StatusCode)
}
