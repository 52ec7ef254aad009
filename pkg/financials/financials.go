// Package financials looks up a company's row in the financial spreadsheet.
package financials

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/xhad/dossier/internal/models"
)

// ErrNotFound is returned when no row carries the INN.
var ErrNotFound = errors.New("company not found in financial data")

// Reporting years covered by the spreadsheet, as column prefixes.
const (
	firstYear = 2019
	lastYear  = 2024
)

// statementCodes maps statement names to accounting line codes; yearly
// columns are named "<year>_<code>".
var statementCodes = map[string]string{
	"revenue":              "2110",
	"gross_profit":         "2100",
	"ebit":                 "2200",
	"net_profit":           "2400",
	"operating_cash_flow":  "4100",
	"long_term_debt":       "1410",
	"short_term_debt":      "1510",
	"cash_and_equivalents": "1250",
}

// Lookup finds inn in the first column of an .xlsx or ;-separated .csv file.
func Lookup(path, inn string) (*models.FinancialSnapshot, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Wrapf(ErrNotFound, "%s has no data rows", path)
	}

	header := rows[0]
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) != inn {
			continue
		}
		return snapshot(header, row), nil
	}
	return nil, eris.Wrapf(ErrNotFound, "inn %s in %s", inn, path)
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, eris.Errorf("no sheets in %s", path)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read rows of %s", path)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse %s", path)
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

type row struct {
	index  map[string]int
	values []string
}

func (r row) raw(column string) (string, bool) {
	i, ok := r.index[column]
	if !ok || i >= len(r.values) {
		return "", false
	}
	return r.values[i], true
}

func (r row) text(column string) string {
	v, _ := r.raw(column)
	return strings.TrimSpace(v)
}

func (r row) clean(column string) any {
	v, ok := r.raw(column)
	if !ok {
		return nil
	}
	return CleanValue(v)
}

func snapshot(header, values []string) *models.FinancialSnapshot {
	r := row{index: make(map[string]int, len(header)), values: values}
	for i, name := range header {
		r.index[strings.TrimSpace(name)] = i
	}

	s := &models.FinancialSnapshot{INN: strings.TrimSpace(values[0])}
	s.GeneralInfo.Name = r.text("Name")
	s.GeneralInfo.OKVEDName = r.text("ОКВЭ name")
	s.GeneralInfo.OKVEDCode = r.text("Основной ОКВЭД")
	s.GeneralInfo.CEOName = r.text("CEO")
	s.GeneralInfo.EmployeeCount = r.clean("Кол-во сотрудников")

	if nd := r.text("ND/EBIT"); nd != "" && nd != "-" {
		s.FinancialMetrics.NDEBIT = nd
	}
	s.FinancialMetrics.RevenuePerEmployee = r.clean("Revenue/employee")

	s.GrowthMetrics.YearOverYearRevenueGrowth = map[string]any{
		"21/20": r.clean("21/20"),
		"22/21": r.clean("22/21"),
		"23/22": r.clean("23/22"),
		"24/23": r.clean("24/23"),
	}
	s.GrowthMetrics.CAGR = map[string]any{
		"22-24": r.clean("CAGR 22-24"),
		"20-24": r.clean("CAGR 20-24"),
	}

	s.FinancialStatements = make(map[string]models.YearlyValues, len(statementCodes))
	for name, code := range statementCodes {
		yearly := make(models.YearlyValues, lastYear-firstYear+1)
		for year := firstYear; year <= lastYear; year++ {
			y := strconv.Itoa(year)
			yearly[y] = r.clean(y + "_" + code)
		}
		s.FinancialStatements[name] = yearly
	}
	return s
}

// CleanValue normalises a spreadsheet cell: "-" and blanks become nil,
// percentages stay strings, numbers lose NBSP and thousands separators and
// whole numbers become int64.
func CleanValue(v string) any {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" || trimmed == "-" {
		return nil
	}
	if strings.Contains(trimmed, "%") {
		return trimmed
	}
	digits := strings.NewReplacer("\u00a0", "", "\u202f", "", " ", "", ",", "").Replace(trimmed)
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return trimmed
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}
