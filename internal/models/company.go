package models

// CompanyRecord is the subset of a registry (EGRUL) extract the dossier needs.
type CompanyRecord struct {
	INN              string `json:"inn"`
	OGRN             string `json:"ogrn,omitempty"`
	FullName         string `json:"full_name"`
	ShortName        string `json:"short_name,omitempty"`
	LegalAddress     string `json:"legal_address,omitempty"`
	Status           string `json:"status,omitempty"`
	RegistrationDate string `json:"registration_date,omitempty"`
	DirectorName     string `json:"director_name,omitempty"`
	DirectorPosition string `json:"director_position,omitempty"`
	City             string `json:"city,omitempty"`
}

// YearlyValues maps a reporting year to a cleaned cell value.
type YearlyValues map[string]any

// FinancialSnapshot is one row of the financial spreadsheet, grouped.
type FinancialSnapshot struct {
	INN         string `json:"inn"`
	GeneralInfo struct {
		Name          string `json:"name"`
		OKVEDName     string `json:"okved_name"`
		OKVEDCode     string `json:"okved_code"`
		CEOName       string `json:"ceo_name"`
		EmployeeCount any    `json:"employee_count"`
	} `json:"general_info"`
	FinancialMetrics struct {
		NDEBIT             any `json:"nd_ebit"`
		RevenuePerEmployee any `json:"revenue_per_employee"`
	} `json:"financial_metrics"`
	GrowthMetrics struct {
		YearOverYearRevenueGrowth map[string]any `json:"year_over_year_revenue_growth"`
		CAGR                      map[string]any `json:"cagr"`
	} `json:"growth_metrics"`
	FinancialStatements map[string]YearlyValues `json:"financial_statements"`
}
