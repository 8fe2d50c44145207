package resolve

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/John-Robertt/flixresolver/internal/domain"
	"github.com/John-Robertt/flixresolver/internal/infra/cache"
	"github.com/John-Robertt/flixresolver/internal/logx"
	"github.com/John-Robertt/flixresolver/internal/provider"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix"
	"github.com/John-Robertt/flixresolver/internal/provider/dflix/dflixtest"
	"github.com/John-Robertt/flixresolver/internal/session"
)

const loginPath = "/login/demo"

// fakeSite 是内存版内容站点：按路径返回页面，并统计每个路径的请求次数。
type fakeSite struct {
	srv *httptest.Server

	mu     sync.Mutex
	pages  map[string]string
	search map[string]string
	hits   map[string]int
	logins int
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	f := &fakeSite{
		pages:  map[string]string{},
		search: map[string]string{},
		hits:   map[string]int{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == loginPath:
		f.logins++
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
		http.Redirect(w, r, "/home", http.StatusFound)
	case r.Method == http.MethodPost && r.URL.Path == "/search":
		_ = r.ParseForm()
		key := r.PostForm.Get("types") + "|" + r.PostForm.Get("term")
		f.hits["POST /search "+key]++
		body, ok := f.search[key]
		if !ok {
			body = dflixtest.SearchPage()
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	default:
		f.hits[r.URL.Path]++
		body, ok := f.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeSite) page(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = body
}

func (f *fakeSite) removePage(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, path)
}

func (f *fakeSite) searchResult(types, term, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.search[types+"|"+term] = body
}

// fetches 返回登录以外的请求总数。
func (f *fakeSite) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.hits {
		n += c
	}
	return n
}

func (f *fakeSite) hitCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeSite) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// fakeMeta 是内存版外部元数据源。
type fakeMeta struct {
	mu    sync.Mutex
	names map[string]string
	calls int
}

func (m *fakeMeta) Lookup(_ context.Context, typ domain.ContentType, id string) (domain.MetadataRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	name, ok := m.names[id]
	if !ok {
		return domain.MetadataRecord{}, &provider.Error{Provider: "fake", Stage: "fetch", Err: provider.ErrNotFound}
	}
	return domain.MetadataRecord{ID: id, Type: typ, Name: name}, nil
}

func newTestService(t *testing.T, site *fakeSite, names map[string]string, mutate ...func(*Options)) *Service {
	t.Helper()
	client := site.srv.Client()
	opts := Options{
		Site: dflix.New(site.srv.URL, client),
		Meta: &fakeMeta{names: names},
		Sessions: session.New(session.Options{
			LoginURL: site.srv.URL + loginPath,
			Client:   client,
			Logger:   logx.Discard(),
		}),
		Cache:          cache.New(cache.Options{}),
		AdjacentWindow: 2,
		Parallelism:    2,
		Logger:         logx.Discard(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return New(opts)
}

func variantTitles(vs []domain.StreamVariant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Title)
	}
	return out
}
