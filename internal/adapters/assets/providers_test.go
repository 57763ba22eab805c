package assets

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

func TestPexels_SearchContentImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		assert.Equal(t, "coffee", r.URL.Query().Get("query"))
		assert.Equal(t, "12", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{"photos":[
			{"alt":"latte art","src":{"medium":"https://img/1.jpg"}},
			{"alt":"","src":{"medium":"https://img/2.jpg"}},
			{"alt":"no src","src":{}}
		]}`))
	}))
	defer srv.Close()

	p := NewPexels(Config{PexelsAPIKey: "secret", PexelsURL: srv.URL + "/v1"}, nil)
	got, err := p.SearchContentImages(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, []core.ImageResource{
		{Category: core.ImageCategoryContent, Description: "latte art", URL: "https://img/1.jpg"},
		{Category: core.ImageCategoryContent, Description: "coffee", URL: "https://img/2.jpg"},
	}, got)
}

func TestPexels_Errors(t *testing.T) {
	_, err := NewPexels(Config{}, nil).SearchContentImages(context.Background(), "x")
	assert.True(t, core.IsCategory(err, core.ErrCatConfiguration))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err = NewPexels(Config{PexelsAPIKey: "bad", PexelsURL: srv.URL}, nil).SearchContentImages(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
}

func TestUndraw_SearchIllustrations(t *testing.T) {
	var items []string
	for i := 0; i < 15; i++ {
		items = append(items, `{"title":"Team work","media":"https://undraw/x.svg"}`)
	}
	items = append([]string{`{"title":"","media":"https://undraw/untitled.svg"}`, `{"title":"blank","media":" "}`}, items...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/team work.json", r.URL.Path)
		assert.Equal(t, "team work", r.URL.Query().Get("term"))
		_, _ = w.Write([]byte(`{"pageProps":{"initialResults":[` + strings.Join(items, ",") + `]}}`))
	}))
	defer srv.Close()

	got, err := NewUndraw(Config{UndrawURL: srv.URL}, nil).SearchIllustrations(context.Background(), "team work")
	require.NoError(t, err)
	require.Len(t, got, resultsPerQuery)
	assert.Equal(t, "illustration", got[0].Description)
	assert.Equal(t, core.ImageCategoryIllustration, got[1].Category)
}

func TestUndraw_MissingPageProps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	got, err := NewUndraw(Config{UndrawURL: srv.URL}, nil).SearchIllustrations(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUndraw_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := NewUndraw(Config{UndrawURL: srv.URL}, nil).SearchIllustrations(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}

func TestMermaid_RenderDiagram(t *testing.T) {
	code := "graph TD; A-->B"
	encoded := base64.URLEncoding.EncodeToString([]byte(code))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/svg/"+encoded {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	m := NewMermaid(Config{MermaidURL: srv.URL}, nil)
	got, err := m.RenderDiagram(context.Background(), code, "")
	require.NoError(t, err)
	assert.Equal(t, []core.ImageResource{
		{Category: core.ImageCategoryArchitecture, Description: "architecture diagram", URL: srv.URL + "/svg/" + encoded},
	}, got)

	got, err = m.RenderDiagram(context.Background(), "  ", "empty")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewMermaid(Config{MermaidURL: srv.URL + "/broken"}, nil).RenderDiagram(context.Background(), code, "d")
	assert.Error(t, err)
}

func TestLogos_GenerateLogo(t *testing.T) {
	l := NewLogos(Config{LogoURL: "https://logos.test/svg"})

	got, err := l.GenerateLogo(context.Background(), "Blue Bean Coffee")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.ImageCategoryLogo, got[0].Category)
	assert.Equal(t, "https://logos.test/svg?seed=Blue+Bean+Coffee&size=512", got[0].URL)

	got, err = l.GenerateLogo(context.Background(), " ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_RateLimited(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	u := NewUndraw(Config{UndrawURL: srv.URL, RequestsPerSecond: 1}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := u.SearchIllustrations(ctx, "a")
	require.NoError(t, err)
	_, err = u.SearchIllustrations(ctx, "b")
	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

func TestNew_BundlesProviders(t *testing.T) {
	p := New(Config{}, nil)
	var (
		_ core.ImageSearcher        = p
		_ core.IllustrationSearcher = p
		_ core.DiagramRenderer      = p
		_ core.LogoGenerator        = p
	)
	assert.Equal(t, DefaultLogoURL, p.Logos.base)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"pageProps":{"initialResults":[{"title":"Team","media":"https://cdn.test/team.svg"}]}}`))
	}))
	defer srv.Close()

	got, err := NewUndraw(Config{UndrawURL: srv.URL}, nil).SearchIllustrations(context.Background(), "team")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewMermaid(Config{MermaidURL: srv.URL}, nil).RenderDiagram(context.Background(), "graph TD; A-->B", "")
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
	assert.Equal(t, int32(1), hits.Load())
}
