// Package registry loads company records from EGRUL extracts.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/models"
	"github.com/xhad/dossier/pkg/logging"
)

// Extractor returns the registry record for an INN.
type Extractor interface {
	Extract(ctx context.Context, inn string) (models.CompanyRecord, error)
}

// ExtractionError reports why a registry record could not be produced.
type ExtractionError struct {
	INN    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry %s: %s: %v", e.INN, e.Reason, e.Err)
	}
	return fmt.Sprintf("registry %s: %s", e.INN, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrNotFound is wrapped when no extract exists for the INN.
var ErrNotFound = errors.New("registry extract not found")

var cityRe = regexp.MustCompile(`(?:Г\.|ГОР\.)\s*([А-ЯЁ][А-ЯЁ\s-]+)`)

// City pulls the city name out of a legal address ("Г. МОСКВА, УЛ. ...").
// It returns "" when the address carries no city prefix.
func City(address string) string {
	m := cityRe.FindStringSubmatch(strings.ToUpper(address))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extract is the on-disk layout of a converted EGRUL extract.
type extract struct {
	CompanyInfo struct {
		FullName         string `json:"full_name"`
		ShortName        string `json:"short_name"`
		OGRN             string `json:"ogrn"`
		INN              string `json:"inn"`
		RegistrationDate string `json:"registration_date"`
		LegalAddress     string `json:"legal_address"`
		Status           string `json:"status"`
	} `json:"company_info"`
	Director struct {
		FullName string `json:"full_name"`
		Position string `json:"position"`
	} `json:"director"`
}

// JSONExtractor reads <dir>/<inn>.json files.
type JSONExtractor struct {
	dir    string
	logger *zap.Logger
}

var _ Extractor = (*JSONExtractor)(nil)

func NewJSONExtractor(dir string, logger *zap.Logger) *JSONExtractor {
	return &JSONExtractor{dir: dir, logger: logging.OrNop(logger)}
}

func (x *JSONExtractor) Extract(ctx context.Context, inn string) (models.CompanyRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.CompanyRecord{}, err
	}
	path := filepath.Join(x.dir, inn+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		x.logger.Warn("registry: extract not found", zap.String("inn", inn), zap.String("path", path))
		return models.CompanyRecord{}, &ExtractionError{INN: inn, Reason: "no extract at " + path, Err: ErrNotFound}
	}
	if err != nil {
		return models.CompanyRecord{}, &ExtractionError{INN: inn, Reason: "read extract", Err: err}
	}

	var doc extract
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.CompanyRecord{}, &ExtractionError{INN: inn, Reason: "decode extract", Err: err}
	}
	info := doc.CompanyInfo
	if strings.TrimSpace(info.FullName) == "" {
		return models.CompanyRecord{}, &ExtractionError{INN: inn, Reason: "extract has no company name"}
	}
	if info.INN != "" && info.INN != inn {
		return models.CompanyRecord{}, &ExtractionError{INN: inn, Reason: "extract belongs to " + info.INN}
	}

	rec := models.CompanyRecord{
		INN:              inn,
		OGRN:             info.OGRN,
		FullName:         collapse(info.FullName),
		ShortName:        collapse(info.ShortName),
		LegalAddress:     collapse(info.LegalAddress),
		Status:           info.Status,
		RegistrationDate: info.RegistrationDate,
		DirectorName:     collapse(doc.Director.FullName),
		DirectorPosition: collapse(doc.Director.Position),
		City:             City(info.LegalAddress),
	}
	x.logger.Info("registry: record loaded",
		zap.String("inn", inn),
		zap.String("name", rec.FullName),
		zap.String("director", rec.DirectorName),
		zap.String("city", rec.City))
	return rec, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
