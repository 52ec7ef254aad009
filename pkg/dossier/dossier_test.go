package dossier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/fusion"
	"github.com/xhad/dossier/pkg/store"
)

const testINN = "7707083893"

type fakeRegistry struct {
	rec   models.CompanyRecord
	err   error
	calls int
}

func (r *fakeRegistry) Extract(_ context.Context, inn string) (models.CompanyRecord, error) {
	r.calls++
	if r.err != nil {
		return models.CompanyRecord{}, r.err
	}
	rec := r.rec
	rec.INN = inn
	return rec, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fail    map[string]bool
}

func (s *fakeSearcher) SearchAndFetch(_ context.Context, query string, _ []string, _ int, outDir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.fail[query] {
		return "", errors.New("search returned no results")
	}
	return filepath.Join(outDir, "20240301_120000_parsed.json"), nil
}

// fakeDistiller writes a summary naming the query.
type fakeDistiller struct{}

func (fakeDistiller) Run(_ context.Context, rawPath, query, outDir string) (string, error) {
	path := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(rawPath), ".json")+"_level_3_summary.txt")
	return path, os.WriteFile(path, []byte("сводка: "+query), 0o644)
}

type fakeMarket struct {
	seed string
	err  error
}

func (m *fakeMarket) Run(_ context.Context, summary, outDir string) (string, error) {
	m.seed = summary
	if m.err != nil {
		return "", m.err
	}
	path := filepath.Join(outDir, "market_level_3_summary.txt")
	return path, os.WriteFile(path, []byte("рынок"), 0o644)
}

// echoGenerator answers fusion prompts with a numbered report.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *echoGenerator) Generate(_ context.Context, prompt, _ string, _ types.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return "отчёт " + string(rune('0'+len(g.prompts))), nil
}

type fakeArchive struct{ kinds []string }

func (a *fakeArchive) Archive(_ context.Context, s store.Summary) (int, error) {
	a.kinds = append(a.kinds, s.Kind)
	return 1, nil
}

type fixture struct {
	registry *fakeRegistry
	searcher *fakeSearcher
	market   *fakeMarket
	gen      *echoGenerator
	archive  *fakeArchive
	ledger   *store.Ledger
	config   Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, err := store.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	f := &fixture{
		registry: &fakeRegistry{rec: models.CompanyRecord{FullName: "ПАО Сбербанк", DirectorName: "Греф Г.О.", City: "МОСКВА"}},
		searcher: &fakeSearcher{fail: map[string]bool{}},
		market:   &fakeMarket{},
		gen:      &echoGenerator{},
		archive:  &fakeArchive{},
		ledger:   ledger,
	}
	fuser, err := fusion.New(fusion.Config{Generator: f.gen})
	require.NoError(t, err)

	f.config = Config{
		Registry:  f.registry,
		Searcher:  f.searcher,
		Distiller: fakeDistiller{},
		Fuser:     fuser,
		Market:    f.market,
		Financials: func(_, inn string) (*models.FinancialSnapshot, error) {
			return &models.FinancialSnapshot{INN: inn}, nil
		},
		FinancialsFile: "financials.csv",
		OutputDir:      t.TempDir(),
		Ledger:         ledger,
		Archive:        f.archive,
		Now:            func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) service(t *testing.T) *Service {
	t.Helper()
	s, err := New(f.config)
	require.NoError(t, err)
	return s
}

func TestRunInvalidINN(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)

	for _, id := range []string{"123", "7707083894", "500100732259", "77O7083893"} {
		res, payload := s.Run(context.Background(), id)
		assert.Nil(t, res)
		require.NotNil(t, payload, id)
		assert.Equal(t, CodeInvalidINN, payload.Code)
	}
	assert.Zero(t, f.registry.calls)
	assert.Empty(t, f.searcher.queries)
}

func TestRunRegistryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.registry.err = errors.New("no extract")
	s := f.service(t)

	res, payload := s.Run(context.Background(), testINN)
	assert.Nil(t, res)
	require.NotNil(t, payload)
	assert.Equal(t, CodeRegistryUnavailable, payload.Code)
	assert.Empty(t, f.searcher.queries)
}

func TestRunComplete(t *testing.T) {
	f := newFixture(t)
	var statuses []string
	s := f.service(t).WithStatus(func(st string) { statuses = append(statuses, st) })

	res, payload := s.Run(context.Background(), " 7707083893 ")
	require.Nil(t, payload)
	require.NotNil(t, res)

	assert.Equal(t, []string{"7707083893 ПАО Сбербанк МОСКВА", "Греф Г.О. МОСКВА"}, f.searcher.queries)
	assert.Equal(t, f.config.OutputDir, filepath.Dir(res.RunDir))
	assert.True(t, strings.HasPrefix(filepath.Base(res.RunDir), "20240301_120000_"), res.RunDir)
	for _, dir := range []string{DirCompanyNews, DirExecutiveNews, DirMarketNews, DirSummaries} {
		assert.DirExists(t, filepath.Join(res.RunDir, dir))
	}

	summaries := filepath.Join(res.RunDir, DirSummaries)
	assert.Equal(t, filepath.Join(summaries, testINN+"_fused_summary.txt"), res.FusedSummary)
	assert.Equal(t, filepath.Join(summaries, testINN+"_fused_financials.txt"), res.FusedFinancials)
	assert.Equal(t, filepath.Join(summaries, testINN+"_final_report.txt"), res.FinalReport)
	assert.Equal(t, res.FinalReport, res.ReportPath)
	assert.Equal(t, "отчёт 3", res.Report)
	assert.Empty(t, res.Warnings)

	require.Len(t, f.gen.prompts, 3)
	assert.Contains(t, f.gen.prompts[0], "сводка: 7707083893 ПАО Сбербанк МОСКВА")
	assert.Contains(t, f.gen.prompts[0], "сводка: Греф Г.О. МОСКВА")
	assert.Contains(t, f.gen.prompts[1], "отчёт 1")
	assert.Contains(t, f.gen.prompts[1], `"inn": "7707083893"`)
	assert.Contains(t, f.gen.prompts[2], "рынок")
	assert.Equal(t, "отчёт 2", f.market.seed)

	assert.Equal(t, []string{KindFinalReport}, f.archive.kinds)
	assert.Contains(t, statuses, "done")

	run, err := f.ledger.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, run.Status)
	artifacts, err := f.ledger.Artifacts(context.Background(), res.RunID)
	require.NoError(t, err)
	var kinds []string
	for _, a := range artifacts {
		kinds = append(kinds, a.Stage)
	}
	assert.Equal(t, []string{
		"raw_" + KindCompany, KindCompany,
		"raw_" + KindExecutive, KindExecutive,
		KindFused, KindFusedFinancials, KindMarket, KindFinalReport,
	}, kinds)
}

func TestRunSameSecondKeepsArtifactsApart(t *testing.T) {
	f := newFixture(t)
	s := f.service(t)

	first, payload := s.Run(context.Background(), testINN)
	require.Nil(t, payload)
	second, payload := s.Run(context.Background(), testINN)
	require.Nil(t, payload)

	assert.NotEqual(t, first.RunDir, second.RunDir)
	assert.NotEqual(t, first.ReportPath, second.ReportPath)
	assert.NotEqual(t, first.RunID, second.RunID)

	report, err := os.ReadFile(first.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "отчёт 3", string(report), "second run must not overwrite the first report")
	assert.Equal(t, "отчёт 6", second.Report)
}

func TestRunDegradesGracefully(t *testing.T) {
	f := newFixture(t)
	f.searcher.fail["Греф Г.О. МОСКВА"] = true
	f.config.Financials = func(string, string) (*models.FinancialSnapshot, error) {
		return nil, errors.New("company not found in financial data")
	}
	f.market.err = errors.New("market: search")
	s := f.service(t)

	res, payload := s.Run(context.Background(), testINN)
	require.Nil(t, payload)

	assert.NotEmpty(t, res.CompanySummary)
	assert.Empty(t, res.ExecutiveSummary)
	assert.NotEmpty(t, res.FusedSummary)
	assert.Empty(t, res.FusedFinancials)
	assert.Empty(t, res.FinalReport)
	assert.Equal(t, res.FusedSummary, res.ReportPath)
	assert.Len(t, res.Warnings, 3)

	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Сводка B:\n---\n—\n---")
}

func TestRunNoEvidence(t *testing.T) {
	f := newFixture(t)
	f.searcher.fail["7707083893 ПАО Сбербанк МОСКВА"] = true
	f.searcher.fail["Греф Г.О. МОСКВА"] = true
	f.config.Financials = nil
	s := f.service(t)

	res, payload := s.Run(context.Background(), testINN)
	assert.Nil(t, res)
	require.NotNil(t, payload)
	assert.Equal(t, CodeNoReport, payload.Code)
	assert.Empty(t, f.gen.prompts)
	assert.Empty(t, f.market.seed, "market digest needs a seed")
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := f.service(t)

	res, payload := s.Run(ctx, testINN)
	assert.Nil(t, res)
	require.NotNil(t, payload)
	assert.Equal(t, CodeCancelled, payload.Code)
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "a c", joinNonEmpty("a", " ", "c"))
	assert.Equal(t, "", joinNonEmpty())
}
