package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

const defaultAPIBase = "https://api.company-information.service.gov.uk"

// Client looks companies up on the Companies House REST API. All calls go
// through a shared rate limiter so concurrent fills stay inside the
// per-key quota.
type Client struct {
	http    *fetch.Client
	limiter *rate.Limiter
	apiBase string
}

// NewClient builds an API client authenticated with apiKey, paced to at
// most rpm requests per minute.
func NewClient(apiKey string, rpm int) *Client {
	if rpm <= 0 {
		rpm = 500
	}
	hc := fetch.NewClient()
	hc.BasicAuthUser = apiKey
	return &Client{
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		apiBase: defaultAPIBase,
	}
}

// companyProfile is the subset of the profile resource we keep.
type companyProfile struct {
	CompanyName     string   `json:"company_name"`
	CompanyNumber   string   `json:"company_number"`
	Type            string   `json:"type"`
	CompanyStatus   string   `json:"company_status"`
	DateOfCreation  string   `json:"date_of_creation"`
	DateOfCessation string   `json:"date_of_cessation"`
	SICCodes        []string `json:"sic_codes"`

	RegisteredOfficeAddress struct {
		CareOf       string `json:"care_of"`
		POBox        string `json:"po_box"`
		AddressLine1 string `json:"address_line_1"`
		AddressLine2 string `json:"address_line_2"`
		Locality     string `json:"locality"`
		Region       string `json:"region"`
		Country      string `json:"country"`
		PostalCode   string `json:"postal_code"`
	} `json:"registered_office_address"`

	Accounts struct {
		AccountingReferenceDate struct {
			Day   string `json:"day"`
			Month string `json:"month"`
		} `json:"accounting_reference_date"`
		NextDue      string `json:"next_due"`
		LastAccounts struct {
			MadeUpTo string `json:"made_up_to"`
		} `json:"last_accounts"`
	} `json:"accounts"`

	ConfirmationStatement struct {
		NextDue      string `json:"next_due"`
		LastMadeUpTo string `json:"last_made_up_to"`
	} `json:"confirmation_statement"`

	Links struct {
		Self string `json:"self"`
	} `json:"links"`
}

// CompanyProfile fetches the profile for one company; key may be in either
// join or API form. Unknown companies return fetch.ErrNotFound.
func (c *Client) CompanyProfile(ctx context.Context, key string) (record.RegistryRecord, error) {
	var rec record.RegistryRecord
	apiNumber := normalize.APICompanyNumber(key)
	if apiNumber == "" {
		return rec, fmt.Errorf("registry: empty company number")
	}
	var prof companyProfile
	if err := c.getJSON(ctx, "/company/"+apiNumber, &prof); err != nil {
		return rec, err
	}

	rec.EntityKey = normalize.EntityKey(prof.CompanyNumber)
	if rec.EntityKey == "" {
		rec.EntityKey = normalize.EntityKey(apiNumber)
	}
	rec.LegalName = record.StrPtr(prof.CompanyName)
	rec.CompanyType = record.StrPtr(prof.Type)
	rec.CompanyStatus = record.StrPtr(prof.CompanyStatus)
	rec.IncorporationDate = isoDate(prof.DateOfCreation)
	rec.DissolutionDate = isoDate(prof.DateOfCessation)
	rec.SICCodes = prof.SICCodes

	addr := prof.RegisteredOfficeAddress
	rec.RegisteredCareOf = record.StrPtr(addr.CareOf)
	rec.RegisteredPOBox = record.StrPtr(addr.POBox)
	rec.RegisteredAddressLine1 = record.StrPtr(addr.AddressLine1)
	rec.RegisteredAddressLine2 = record.StrPtr(addr.AddressLine2)
	rec.RegisteredPostTown = record.StrPtr(addr.Locality)
	rec.RegisteredCounty = record.StrPtr(addr.Region)
	rec.RegisteredCountry = record.StrPtr(addr.Country)
	rec.RegisteredPostcode = record.StrPtr(addr.PostalCode)

	rec.AccountsRefDay = record.StrPtr(prof.Accounts.AccountingReferenceDate.Day)
	rec.AccountsRefMonth = record.StrPtr(prof.Accounts.AccountingReferenceDate.Month)
	rec.AccountsNextDueDate = isoDate(prof.Accounts.NextDue)
	rec.AccountsLastMadeUpDate = isoDate(prof.Accounts.LastAccounts.MadeUpTo)
	rec.ConfStmtNextDueDate = isoDate(prof.ConfirmationStatement.NextDue)
	rec.ConfStmtLastMadeUpDate = isoDate(prof.ConfirmationStatement.LastMadeUpTo)

	if prof.Links.Self != "" {
		rec.URI = record.StrPtr(defaultAPIBase + prof.Links.Self)
	}
	rec.LastUpdated = record.ISODate(time.Now().UTC())
	return rec, nil
}

// advancedSearchItem carries the few extra fields advanced search exposes
// that the profile resource sometimes omits.
type advancedSearchItem struct {
	CompanyNumber  string   `json:"company_number"`
	CompanyStatus  string   `json:"company_status"`
	CompanyType    string   `json:"company_type"`
	DateOfCreation string   `json:"date_of_creation"`
	SICCodes       []string `json:"sic_codes"`

	RegisteredOfficeAddress struct {
		Locality   string `json:"locality"`
		PostalCode string `json:"postal_code"`
	} `json:"registered_office_address"`
}

// EnrichAdvanced runs an advanced search for the record's legal name and
// copies values from the matching hit into fields the profile left empty.
// Profile values always win; failures are logged and ignored.
func (c *Client) EnrichAdvanced(ctx context.Context, rec *record.RegistryRecord) {
	if rec.LegalName == nil || *rec.LegalName == "" {
		return
	}
	var result struct {
		Items []advancedSearchItem `json:"items"`
	}
	q := url.Values{"company_name_includes": {*rec.LegalName}, "size": {"20"}}
	if err := c.getJSON(ctx, "/advanced-search/companies?"+q.Encode(), &result); err != nil {
		log.Printf("[warn] registry: advanced search for %s failed: %v", rec.EntityKey, err)
		return
	}
	for _, item := range result.Items {
		if normalize.EntityKey(item.CompanyNumber) != rec.EntityKey {
			continue
		}
		if rec.CompanyStatus == nil {
			rec.CompanyStatus = record.StrPtr(item.CompanyStatus)
		}
		if rec.CompanyType == nil {
			rec.CompanyType = record.StrPtr(item.CompanyType)
		}
		if rec.IncorporationDate == nil {
			rec.IncorporationDate = isoDate(item.DateOfCreation)
		}
		if len(rec.SICCodes) == 0 {
			rec.SICCodes = item.SICCodes
		}
		if rec.RegisteredPostTown == nil {
			rec.RegisteredPostTown = record.StrPtr(item.RegisteredOfficeAddress.Locality)
		}
		if rec.RegisteredPostcode == nil {
			rec.RegisteredPostcode = record.StrPtr(item.RegisteredOfficeAddress.PostalCode)
		}
		return
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry: %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
