// Package record defines the row types persisted into partition snapshots and
// the builder that assembles one FinancialRecord per filing document.
package record

import (
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
)

// DateLayout is the serialized form of every date column. All writers use the
// same string form so snapshots stay consistent across jobs.
const DateLayout = "2006-01-02"

// FinancialRecord is one filing's extracted facts plus provenance. Date
// columns are ISO strings; numeric columns are nil when the filing did not
// report the concept, which is common.
type FinancialRecord struct {
	// provenance
	RunCode   string `parquet:"run_code,optional"`
	SourceURL string `parquet:"zip_url,optional"`

	// top-level filing info
	Date     *string `parquet:"date,optional"`
	FileType string  `parquet:"file_type,optional"`
	Taxonomy *string `parquet:"taxonomy,optional"`

	// identity
	EntityKey         string   `parquet:"companies_house_registered_number,optional"`
	CompanyID         string   `parquet:"company_id,optional"`
	LegalName         *string  `parquet:"entity_current_legal_name,optional"`
	CompanyType       *string  `parquet:"company_type,optional"`
	Dormant           *bool    `parquet:"company_dormant,optional"`
	SICCode           *float64 `parquet:"sic_code,optional"`
	IncorporationDate *string  `parquet:"incorporation_date,optional"`

	// period information
	BalanceSheetDate *string  `parquet:"balance_sheet_date,optional"`
	PeriodStart      *string  `parquet:"period_start,optional"`
	PeriodEnd        *string  `parquet:"period_end,optional"`
	AvgEmployees     *float64 `parquet:"average_number_employees_during_period,optional"`

	// balance sheet (instant)
	TangibleFixedAssets       *float64 `parquet:"tangible_fixed_assets,optional"`
	Debtors                   *float64 `parquet:"debtors,optional"`
	CashBankInHand            *float64 `parquet:"cash_bank_in_hand,optional"`
	CurrentAssets             *float64 `parquet:"current_assets,optional"`
	CreditorsDueWithinOneYear *float64 `parquet:"creditors_due_within_one_year,optional"`
	CreditorsDueAfterOneYear  *float64 `parquet:"creditors_due_after_one_year,optional"`
	NetCurrentAssets          *float64 `parquet:"net_current_assets_liabilities,optional"`
	TotalAssetsLessCurrent    *float64 `parquet:"total_assets_less_current_liabilities,optional"`
	NetAssets                 *float64 `parquet:"net_assets_liabilities_including_pension_asset_liability,optional"`
	CalledUpShareCapital      *float64 `parquet:"called_up_share_capital,optional"`

	// profit and loss (duration)
	Turnover           *float64 `parquet:"turnover_gross_operating_revenue,optional"`
	OtherOperatingInc  *float64 `parquet:"other_operating_income,optional"`
	CostOfSales        *float64 `parquet:"cost_sales,optional"`
	GrossProfitLoss    *float64 `parquet:"gross_profit_loss,optional"`
	AdminExpenses      *float64 `parquet:"administrative_expenses,optional"`
	RawMaterials       *float64 `parquet:"raw_materials_consumables,optional"`
	StaffCosts         *float64 `parquet:"staff_costs,optional"`
	Depreciation       *float64 `parquet:"depreciation_other_amounts_written_off_tangible_intangible_fixed_assets,optional"`
	OtherOpCharges     *float64 `parquet:"other_operating_charges_format2,optional"`
	OperatingProfit    *float64 `parquet:"operating_profit_loss,optional"`
	ProfitBeforeTax    *float64 `parquet:"profit_loss_on_ordinary_activities_before_tax,optional"`
	TaxOnProfit        *float64 `parquet:"tax_on_profit_or_loss_on_ordinary_activities,optional"`
	ProfitForPeriod    *float64 `parquet:"profit_loss_for_period,optional"`

	Error *string `parquet:"error,optional"`
}

// SetField assigns a resolved value to its canonical numeric column. Unknown
// names are ignored; the canonical set is fixed by the concepts table.
func (r *FinancialRecord) SetField(name string, v *float64) {
	if p := r.fieldPtr(name); p != nil {
		*p = v
	}
}

// Field returns the value of a canonical numeric column.
func (r *FinancialRecord) Field(name string) *float64 {
	if p := r.fieldPtr(name); p != nil {
		return *p
	}
	return nil
}

func (r *FinancialRecord) fieldPtr(name string) **float64 {
	switch name {
	case "tangible_fixed_assets":
		return &r.TangibleFixedAssets
	case "debtors":
		return &r.Debtors
	case "cash_bank_in_hand":
		return &r.CashBankInHand
	case "current_assets":
		return &r.CurrentAssets
	case "creditors_due_within_one_year":
		return &r.CreditorsDueWithinOneYear
	case "creditors_due_after_one_year":
		return &r.CreditorsDueAfterOneYear
	case "net_current_assets_liabilities":
		return &r.NetCurrentAssets
	case "total_assets_less_current_liabilities":
		return &r.TotalAssetsLessCurrent
	case "net_assets_liabilities_including_pension_asset_liability":
		return &r.NetAssets
	case "called_up_share_capital":
		return &r.CalledUpShareCapital
	case "turnover_gross_operating_revenue":
		return &r.Turnover
	case "other_operating_income":
		return &r.OtherOperatingInc
	case "cost_sales":
		return &r.CostOfSales
	case "gross_profit_loss":
		return &r.GrossProfitLoss
	case "administrative_expenses":
		return &r.AdminExpenses
	case "raw_materials_consumables":
		return &r.RawMaterials
	case "staff_costs":
		return &r.StaffCosts
	case "depreciation_other_amounts_written_off_tangible_intangible_fixed_assets":
		return &r.Depreciation
	case "other_operating_charges_format2":
		return &r.OtherOpCharges
	case "operating_profit_loss":
		return &r.OperatingProfit
	case "profit_loss_on_ordinary_activities_before_tax":
		return &r.ProfitBeforeTax
	case "tax_on_profit_or_loss_on_ordinary_activities":
		return &r.TaxOnProfit
	case "profit_loss_for_period":
		return &r.ProfitForPeriod
	}
	return nil
}

// BalanceSheetTime decodes the balance sheet date column.
func (r *FinancialRecord) BalanceSheetTime() (time.Time, bool) {
	return parseDateCol(r.BalanceSheetDate)
}

// PeriodEndTime decodes the period end column.
func (r *FinancialRecord) PeriodEndTime() (time.Time, bool) {
	return parseDateCol(r.PeriodEnd)
}

// RegistryRecord is one company's descriptive metadata, keyed by the same
// entity-key normalization as FinancialRecord. Columns follow the Basic
// Company Data export, snake-cased.
type RegistryRecord struct {
	EntityKey         string  `parquet:"companies_house_registered_number,optional"`
	LegalName         *string `parquet:"entity_current_legal_name,optional"`
	CompanyType       *string `parquet:"company_type,optional"`
	CompanyStatus     *string `parquet:"company_status,optional"`
	CountryOfOrigin   *string `parquet:"country_of_origin,optional"`
	IncorporationDate *string `parquet:"incorporation_date,optional"`
	DissolutionDate   *string `parquet:"dissolution_date,optional"`

	SICCodes []string `parquet:"sic_codes,list,optional"`

	RegisteredCareOf       *string `parquet:"registered_office_care_of,optional"`
	RegisteredPOBox        *string `parquet:"registered_office_po_box,optional"`
	RegisteredAddressLine1 *string `parquet:"registered_office_address_line_1,optional"`
	RegisteredAddressLine2 *string `parquet:"registered_office_address_line_2,optional"`
	RegisteredAddressLine3 *string `parquet:"registered_office_address_line_3,optional"`
	RegisteredAddressLine4 *string `parquet:"registered_office_address_line_4,optional"`
	RegisteredPostTown     *string `parquet:"registered_office_post_town,optional"`
	RegisteredCounty       *string `parquet:"registered_office_county,optional"`
	RegisteredCountry      *string `parquet:"registered_office_country,optional"`
	RegisteredPostcode     *string `parquet:"registered_office_postcode,optional"`

	AccountsRefDay          *string `parquet:"accounts_ref_day,optional"`
	AccountsRefMonth        *string `parquet:"accounts_ref_month,optional"`
	AccountsNextDueDate     *string `parquet:"accounts_next_due_date,optional"`
	AccountsLastMadeUpDate  *string `parquet:"accounts_last_made_up_date,optional"`
	ReturnsNextDueDate      *string `parquet:"returns_next_due_date,optional"`
	ReturnsLastMadeUpDate   *string `parquet:"returns_last_made_up_date,optional"`
	ConfStmtNextDueDate     *string `parquet:"conf_stmt_next_due_date,optional"`
	ConfStmtLastMadeUpDate  *string `parquet:"conf_stmt_last_made_up_date,optional"`
	MortgagesNumCharges     *string `parquet:"mortgages_num_charges,optional"`
	MortgagesNumOutstanding *string `parquet:"mortgages_num_outstanding,optional"`
	MortgagesNumPartSat     *string `parquet:"mortgages_num_part_satisfied,optional"`
	MortgagesNumSatisfied   *string `parquet:"mortgages_num_satisfied,optional"`

	URI         *string `parquet:"uri,optional"`
	LastUpdated *string `parquet:"last_updated,optional"`
}

func parseDateCol(s *string) (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	return normalize.ParseDate(*s)
}

// ISODate formats t for a date column; zero times yield nil.
func ISODate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// StrPtr returns nil for empty strings, a pointer otherwise.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
