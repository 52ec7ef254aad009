// Package dossier runs a complete company dossier build: registry lookup,
// news distillation for the company and its executive, fusion with
// financial data and a market digest.
package dossier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/pkg/artifact"
	"github.com/xhad/dossier/pkg/fusion"
	"github.com/xhad/dossier/pkg/inn"
	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/pkg/registry"
	"github.com/xhad/dossier/pkg/store"
)

// Error codes of ErrorPayload.
const (
	CodeInvalidINN          = "invalid_inn"
	CodeRegistryUnavailable = "registry_unavailable"
	CodeNoReport            = "no_report"
	CodeCancelled           = "cancelled"
	CodeInternal            = "internal"
)

// Run directory layout.
const (
	DirCompanyNews   = "search_api_news_company"
	DirExecutiveNews = "search_api_news_seo"
	DirMarketNews    = "search_api_news_market"
	DirSummaries     = "summaries"
)

// Artifact kinds recorded in the ledger and the archive.
const (
	KindCompany         = "company_summary"
	KindExecutive       = "executive_summary"
	KindFused           = "fused_summary"
	KindFusedFinancials = "fused_financials"
	KindMarket          = "market_summary"
	KindFinalReport     = "final_report"
)

// ErrorPayload is the structured failure of a whole run.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorPayload) Error() string {
	return e.Code + ": " + e.Message
}

// Result describes a finished run. Paths are empty for steps that produced
// nothing; Warnings says why.
type Result struct {
	RunID            string                    `json:"run_id,omitempty"`
	INN              string                    `json:"inn"`
	RunDir           string                    `json:"run_dir"`
	Company          models.CompanyRecord      `json:"company"`
	Financials       *models.FinancialSnapshot `json:"financials,omitempty"`
	CompanySummary   string                    `json:"company_summary,omitempty"`
	ExecutiveSummary string                    `json:"executive_summary,omitempty"`
	FusedSummary     string                    `json:"fused_summary,omitempty"`
	FusedFinancials  string                    `json:"fused_financials,omitempty"`
	MarketSummary    string                    `json:"market_summary,omitempty"`
	FinalReport      string                    `json:"final_report,omitempty"`
	// ReportPath is the most complete report produced.
	ReportPath string   `json:"report_path"`
	Report     string   `json:"report"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Searcher collects raw evidence for a query into outDir.
type Searcher interface {
	SearchAndFetch(ctx context.Context, query string, domains []string, pages int, outDir string) (string, error)
}

// Distiller turns raw evidence into a level 3 summary.
type Distiller interface {
	Run(ctx context.Context, rawPath, query, outDir string) (string, error)
}

type Fuser interface {
	Fuse(ctx context.Context, first, second fusion.Source, subject fusion.Subject, outPath string) (string, error)
}

// MarketDigest produces a market summary seeded by a company report.
type MarketDigest interface {
	Run(ctx context.Context, summary, outDir string) (string, error)
}

// FinancialLookup returns the financial snapshot for an INN.
type FinancialLookup func(path, inn string) (*models.FinancialSnapshot, error)

type Ledger interface {
	BeginRun(ctx context.Context, inn string) (string, error)
	RecordArtifact(ctx context.Context, runID, stage, path string) error
	FinishRun(ctx context.Context, runID string, runErr error) error
}

type Archiver interface {
	Archive(ctx context.Context, s store.Summary) (int, error)
}

type Config struct {
	Registry       registry.Extractor
	Searcher       Searcher
	Distiller      Distiller
	Fuser          Fuser
	Market         MarketDigest
	Financials     FinancialLookup
	FinancialsFile string
	Domains        []string
	PagesCompany   int
	PagesExecutive int
	OutputDir      string
	// Ledger and Archive are optional.
	Ledger  Ledger
	Archive Archiver
	// OnStatus receives human-readable progress lines.
	OnStatus func(status string)
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service builds dossiers. Concurrent runs are safe as long as the
// collaborators are; each run writes into its own directory.
type Service struct {
	config Config
	logger *zap.Logger
}

func New(config Config) (*Service, error) {
	if config.Registry == nil || config.Searcher == nil || config.Distiller == nil || config.Fuser == nil {
		return nil, errors.New("dossier: registry, searcher, distiller and fuser are required")
	}
	if config.PagesCompany <= 0 {
		config.PagesCompany = 1
	}
	if config.PagesExecutive <= 0 {
		config.PagesExecutive = 1
	}
	if config.OutputDir == "" {
		config.OutputDir = "output"
	}
	if config.OnStatus == nil {
		config.OnStatus = func(string) {}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{config: config, logger: logging.OrNop(config.Logger)}, nil
}

// run carries the state of one build.
type run struct {
	*Service
	ctx     context.Context
	id      string
	result  *Result
	subject fusion.Subject
	log     *zap.Logger
}

// Run builds the dossier for rawINN. Exactly one of the return values is
// non-nil.
func (s *Service) Run(ctx context.Context, rawINN string) (*Result, *ErrorPayload) {
	id := inn.Normalize(rawINN)
	if err := inn.Validate(id); err != nil {
		s.logger.Warn("dossier: invalid inn", zap.String("inn", rawINN), zap.Error(err))
		return nil, &ErrorPayload{Code: CodeInvalidINN, Message: err.Error()}
	}

	r := &run{
		Service: s,
		ctx:     ctx,
		result:  &Result{INN: id},
		log:     s.logger.With(zap.String("inn", id)),
	}
	r.begin()

	res, payload := r.execute()
	r.finish(payload)
	return res, payload
}

func (r *run) execute() (*Result, *ErrorPayload) {
	if err := os.MkdirAll(r.config.OutputDir, 0o755); err != nil {
		return nil, &ErrorPayload{Code: CodeInternal, Message: fmt.Sprintf("create output directory: %v", err)}
	}
	// runs started within the same second get distinct directories
	runDir, err := os.MkdirTemp(r.config.OutputDir, r.config.Now().Format("20060102_150405")+"_*")
	if err != nil {
		return nil, &ErrorPayload{Code: CodeInternal, Message: fmt.Sprintf("create run directory: %v", err)}
	}
	if err := os.Chmod(runDir, 0o755); err != nil {
		return nil, &ErrorPayload{Code: CodeInternal, Message: fmt.Sprintf("create run directory: %v", err)}
	}
	for _, dir := range []string{DirCompanyNews, DirExecutiveNews, DirMarketNews, DirSummaries} {
		if err := os.MkdirAll(filepath.Join(runDir, dir), 0o755); err != nil {
			return nil, &ErrorPayload{Code: CodeInternal, Message: fmt.Sprintf("create run directory: %v", err)}
		}
	}
	r.result.RunDir = runDir

	r.status("loading registry record")
	company, err := r.config.Registry.Extract(r.ctx, r.result.INN)
	if err != nil {
		if p := r.cancelled(); p != nil {
			return nil, p
		}
		r.log.Error("dossier: registry unavailable", zap.Error(err))
		return nil, &ErrorPayload{Code: CodeRegistryUnavailable, Message: err.Error()}
	}
	r.result.Company = company
	r.subject = fusion.Subject{INN: company.INN, Company: company.FullName, Executive: company.DirectorName, City: company.City}

	r.loadFinancials()

	companyQuery := joinNonEmpty(r.result.INN, company.FullName, company.City)
	r.result.CompanySummary = r.distill(KindCompany, companyQuery, r.config.PagesCompany, DirCompanyNews)
	if p := r.cancelled(); p != nil {
		return nil, p
	}

	if company.DirectorName == "" {
		r.warn("executive run skipped: registry record has no director")
	} else {
		execQuery := joinNonEmpty(company.DirectorName, company.City)
		r.result.ExecutiveSummary = r.distill(KindExecutive, execQuery, r.config.PagesExecutive, DirExecutiveNews)
		if p := r.cancelled(); p != nil {
			return nil, p
		}
	}

	r.result.FusedSummary = r.fuse(KindFused,
		fusion.FromPath(r.result.CompanySummary),
		fusion.FromPath(r.result.ExecutiveSummary),
		r.result.INN+"_fused_summary.txt")

	if r.result.Financials != nil {
		fin, err := fusion.FinancialSource(r.result.Financials)
		if err != nil {
			r.warn("financial snapshot not rendered: %v", err)
		} else {
			r.result.FusedFinancials = r.fuse(KindFusedFinancials,
				fusion.FromPath(r.latest()), fin,
				r.result.INN+"_fused_financials.txt")
		}
	}
	if p := r.cancelled(); p != nil {
		return nil, p
	}

	r.marketDigest()
	if p := r.cancelled(); p != nil {
		return nil, p
	}

	r.result.ReportPath = r.latest()
	if r.result.ReportPath == "" {
		return nil, &ErrorPayload{Code: CodeNoReport, Message: "no summary could be produced: " + strings.Join(r.result.Warnings, "; ")}
	}
	report, err := artifact.ReadText(r.result.ReportPath)
	if err != nil {
		return nil, &ErrorPayload{Code: CodeInternal, Message: err.Error()}
	}
	r.result.Report = report
	r.archive(KindFinalReport, r.result.ReportPath, report)

	r.status("done")
	r.log.Info("dossier: run complete", zap.String("report", r.result.ReportPath), zap.Int("warnings", len(r.result.Warnings)))
	return r.result, nil
}

func (r *run) loadFinancials() {
	if r.config.Financials == nil || r.config.FinancialsFile == "" {
		r.warn("financial data not configured")
		return
	}
	r.status("looking up financial data")
	snap, err := r.config.Financials(r.config.FinancialsFile, r.result.INN)
	if err != nil {
		r.warn("financial data unavailable: %v", err)
		return
	}
	r.result.Financials = snap
}

// distill runs search and the pipeline for one query and returns the
// summary path, or "" with a warning.
func (r *run) distill(kind, query string, pages int, subdir string) string {
	outDir := filepath.Join(r.result.RunDir, subdir)
	r.status(fmt.Sprintf("searching news: %s", query))
	raw, err := r.config.Searcher.SearchAndFetch(r.ctx, query, r.config.Domains, pages, outDir)
	if err != nil {
		r.warn("%s: search produced no evidence: %v", kind, err)
		return ""
	}
	r.record("raw_"+kind, raw)

	r.status(fmt.Sprintf("distilling news: %s", query))
	summary, err := r.config.Distiller.Run(r.ctx, raw, query, outDir)
	if err != nil {
		r.warn("%s: pipeline produced no summary: %v", kind, err)
		return ""
	}
	r.record(kind, summary)
	return summary
}

func (r *run) fuse(kind string, first, second fusion.Source, name string) string {
	r.status("fusing " + strings.ReplaceAll(kind, "_", " "))
	out := filepath.Join(r.result.RunDir, DirSummaries, name)
	path, err := r.config.Fuser.Fuse(r.ctx, first, second, r.subject, out)
	if err != nil {
		r.warn("%s: fusion skipped: %v", kind, err)
		return ""
	}
	r.record(kind, path)
	return path
}

func (r *run) marketDigest() {
	if r.config.Market == nil {
		return
	}
	seedPath := r.latest()
	if seedPath == "" {
		r.warn("market digest skipped: no company summary to seed it")
		return
	}
	seed, err := artifact.ReadText(seedPath)
	if err != nil {
		r.warn("market digest skipped: %v", err)
		return
	}

	r.status("building market digest")
	path, err := r.config.Market.Run(r.ctx, seed, filepath.Join(r.result.RunDir, DirMarketNews))
	if err != nil {
		r.warn("market digest failed: %v", err)
		return
	}
	r.result.MarketSummary = path
	r.record(KindMarket, path)

	r.result.FinalReport = r.fuse(KindFinalReport,
		fusion.FromPath(seedPath), fusion.FromPath(path),
		r.result.INN+"_final_report.txt")
}

// latest is the most complete report so far.
func (r *run) latest() string {
	for _, p := range []string{
		r.result.FinalReport,
		r.result.FusedFinancials,
		r.result.FusedSummary,
		r.result.CompanySummary,
		r.result.ExecutiveSummary,
	} {
		if p != "" {
			return p
		}
	}
	return ""
}

func (r *run) begin() {
	if r.config.Ledger == nil {
		return
	}
	id, err := r.config.Ledger.BeginRun(r.ctx, r.result.INN)
	if err != nil {
		r.log.Warn("dossier: ledger unavailable", zap.Error(err))
		return
	}
	r.id = id
	r.result.RunID = id
	r.log = r.log.With(zap.String("run_id", id))
}

func (r *run) finish(payload *ErrorPayload) {
	if r.config.Ledger == nil || r.id == "" {
		return
	}
	var runErr error
	if payload != nil {
		runErr = payload
	}
	// the run context may already be cancelled
	if err := r.config.Ledger.FinishRun(context.WithoutCancel(r.ctx), r.id, runErr); err != nil {
		r.log.Warn("dossier: failed to finish ledger run", zap.Error(err))
	}
}

func (r *run) record(kind, path string) {
	if r.config.Ledger == nil || r.id == "" {
		return
	}
	if err := r.config.Ledger.RecordArtifact(r.ctx, r.id, kind, path); err != nil {
		r.log.Warn("dossier: failed to record artifact", zap.String("kind", kind), zap.Error(err))
	}
}

func (r *run) archive(kind, path, text string) {
	if r.config.Archive == nil {
		return
	}
	if _, err := r.config.Archive.Archive(r.ctx, store.Summary{INN: r.result.INN, Kind: kind, Path: path, Text: text}); err != nil {
		r.warn("archive failed: %v", err)
	}
}

func (r *run) cancelled() *ErrorPayload {
	if err := r.ctx.Err(); err != nil {
		return &ErrorPayload{Code: CodeCancelled, Message: err.Error()}
	}
	return nil
}

func (r *run) status(msg string) {
	r.log.Info("dossier: " + msg)
	r.config.OnStatus(msg)
}

func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Warn("dossier: " + msg)
	r.result.Warnings = append(r.result.Warnings, msg)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
