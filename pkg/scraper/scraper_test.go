package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	s := New()
	assert.Equal(t, 5, s.config.MaxConcurrent)
	assert.Equal(t, 10*time.Second, s.config.Timeout)
	assert.NotEmpty(t, s.config.UserAgent)
	assert.Equal(t, DefaultSelectors, s.config.Selectors)
}

func TestExtractMainContent(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		html   string
		want   string
	}{
		{
			name:   "site selector",
			domain: "www.rbc.ru",
			html: `<html><body><p>menu</p><div class="article__text">
				<p>Первый   абзац.</p><div class="banner"><p>Реклама</p></div><p> </p><p>Второй абзац.</p>
				</div></body></html>`,
			want: "Первый абзац.\nВторой абзац.",
		},
		{
			name:   "interfax attribute selector",
			domain: "interfax.ru",
			html:   `<article><p>other</p></article><article itemprop="articleBody"><p>Текст</p></article>`,
			want:   "Текст",
		},
		{
			name:   "article fallback",
			domain: "example.com",
			html:   `<body><p>outside</p><article><p>inside</p><p class="adv">ad</p></article></body>`,
			want:   "inside",
		},
		{
			name:   "body fallback",
			domain: "tass.ru",
			html:   `<body><p>one</p><div class="subscription-block"><p>pay</p></div><p>two</p></body>`,
			want:   "one\ntwo",
		},
		{
			name:   "no paragraphs",
			domain: "ria.ru",
			html:   `<body><div>just text</div></body>`,
			want:   "",
		},
	}

	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.extractMainContent(doc, tt.domain))
		})
	}
}

func TestFetchArticleWithMockServer(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main><h1>Title</h1><p>This is a test paragraph.</p></main></body></html>`))
	}))
	defer server.Close()

	var progress []string
	s := NewWithConfig(ScraperConfig{
		RateLimit:  100,
		UserAgent:  "test-agent",
		OnProgress: func(url string) { progress = append(progress, url) },
	})

	text, err := s.FetchArticle(context.Background(), server.URL+"/a", "example.com")
	require.NoError(t, err)
	assert.Equal(t, "This is a test paragraph.", text)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, []string{server.URL + "/a"}, progress)

	_, err = s.FetchArticle(context.Background(), server.URL+"/missing", "example.com")
	assert.Error(t, err)
}

func TestFetchAllPreservesOrderAndLimit(t *testing.T) {
	const limit = 2
	var inFlight, peak int32
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		defer atomic.AddInt32(&inFlight, -1)

		time.Sleep(20 * time.Millisecond)
		if r.URL.Path == "/3" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "<body><p>page %s</p></body>", strings.TrimPrefix(r.URL.Path, "/"))
	}))
	defer server.Close()

	s := NewWithConfig(ScraperConfig{MaxConcurrent: limit, RateLimit: 1000})

	var targets []Target
	for i := 0; i < 6; i++ {
		targets = append(targets, Target{URL: fmt.Sprintf("%s/%d", server.URL, i), Domain: "example.com"})
	}

	texts, err := s.FetchAll(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, []string{"page 0", "page 1", "page 2", "", "page 4", "page 5"}, texts)
	assert.LessOrEqual(t, peak, int32(limit))
}

func TestFetchAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	_, err := s.FetchAll(ctx, []Target{{URL: "http://127.0.0.1:1/x"}})
	assert.Error(t, err)
}
