// Package registry loads company metadata from the two sources that feed the
// registry dataset: the monthly Basic Company Data snapshot (cheap, covers
// nearly everyone) and the point-lookup profile API (fills the gaps).
package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
	"github.com/elerk1505/companies-house-data/pkg/core/normalize"
	"github.com/elerk1505/companies-house-data/pkg/core/record"
)

// snapshotColumns maps export column names onto registry columns. Column
// naming varies by vintage ("RegAddress.PostCode", "regaddress_postcode"),
// so lookups go through a case/punctuation-insensitive matcher.
var snapshotColumns = []struct {
	src    string
	assign func(*record.RegistryRecord, string)
}{
	{"CompanyName", func(r *record.RegistryRecord, v string) { r.LegalName = record.StrPtr(v) }},
	{"CompanyCategory", func(r *record.RegistryRecord, v string) { r.CompanyType = record.StrPtr(v) }},
	{"CompanyStatus", func(r *record.RegistryRecord, v string) { r.CompanyStatus = record.StrPtr(v) }},
	{"CountryOfOrigin", func(r *record.RegistryRecord, v string) { r.CountryOfOrigin = record.StrPtr(v) }},
	{"IncorporationDate", func(r *record.RegistryRecord, v string) { r.IncorporationDate = isoDate(v) }},
	{"DissolutionDate", func(r *record.RegistryRecord, v string) { r.DissolutionDate = isoDate(v) }},
	{"URI", func(r *record.RegistryRecord, v string) { r.URI = record.StrPtr(v) }},
	{"RegAddress.CareOf", func(r *record.RegistryRecord, v string) { r.RegisteredCareOf = record.StrPtr(v) }},
	{"RegAddress.POBox", func(r *record.RegistryRecord, v string) { r.RegisteredPOBox = record.StrPtr(v) }},
	{"RegAddress.AddressLine1", func(r *record.RegistryRecord, v string) { r.RegisteredAddressLine1 = record.StrPtr(v) }},
	{"RegAddress.AddressLine2", func(r *record.RegistryRecord, v string) { r.RegisteredAddressLine2 = record.StrPtr(v) }},
	{"RegAddress.AddressLine3", func(r *record.RegistryRecord, v string) { r.RegisteredAddressLine3 = record.StrPtr(v) }},
	{"RegAddress.AddressLine4", func(r *record.RegistryRecord, v string) { r.RegisteredAddressLine4 = record.StrPtr(v) }},
	{"RegAddress.PostTown", func(r *record.RegistryRecord, v string) { r.RegisteredPostTown = record.StrPtr(v) }},
	{"RegAddress.County", func(r *record.RegistryRecord, v string) { r.RegisteredCounty = record.StrPtr(v) }},
	{"RegAddress.Country", func(r *record.RegistryRecord, v string) { r.RegisteredCountry = record.StrPtr(v) }},
	{"RegAddress.PostCode", func(r *record.RegistryRecord, v string) { r.RegisteredPostcode = record.StrPtr(v) }},
	{"Accounts.AccountRefDay", func(r *record.RegistryRecord, v string) { r.AccountsRefDay = record.StrPtr(v) }},
	{"Accounts.AccountRefMonth", func(r *record.RegistryRecord, v string) { r.AccountsRefMonth = record.StrPtr(v) }},
	{"Accounts.NextDueDate", func(r *record.RegistryRecord, v string) { r.AccountsNextDueDate = isoDate(v) }},
	{"Accounts.LastMadeUpDate", func(r *record.RegistryRecord, v string) { r.AccountsLastMadeUpDate = isoDate(v) }},
	{"Returns.NextDueDate", func(r *record.RegistryRecord, v string) { r.ReturnsNextDueDate = isoDate(v) }},
	{"Returns.LastMadeUpDate", func(r *record.RegistryRecord, v string) { r.ReturnsLastMadeUpDate = isoDate(v) }},
	{"ConfStmtNextDueDate", func(r *record.RegistryRecord, v string) { r.ConfStmtNextDueDate = isoDate(v) }},
	{"ConfStmtLastMadeUpDate", func(r *record.RegistryRecord, v string) { r.ConfStmtLastMadeUpDate = isoDate(v) }},
	{"Mortgages.NumMortCharges", func(r *record.RegistryRecord, v string) { r.MortgagesNumCharges = record.StrPtr(v) }},
	{"Mortgages.NumMortOutstanding", func(r *record.RegistryRecord, v string) { r.MortgagesNumOutstanding = record.StrPtr(v) }},
	{"Mortgages.NumMortPartSatisfied", func(r *record.RegistryRecord, v string) { r.MortgagesNumPartSat = record.StrPtr(v) }},
	{"Mortgages.NumMortSatisfied", func(r *record.RegistryRecord, v string) { r.MortgagesNumSatisfied = record.StrPtr(v) }},
}

var sicColumns = []string{"SICCode.SicText_1", "SICCode.SicText_2", "SICCode.SicText_3", "SICCode.SicText_4"}

var colNameStrip = regexp.MustCompile(`[^A-Za-z0-9]`)

// NormalizeColumnName reduces a header cell to its comparable form: BOM
// removed, punctuation and case folded away.
func NormalizeColumnName(name string) string {
	name = strings.ReplaceAll(name, "\uFEFF", "")
	return strings.ToLower(colNameStrip.ReplaceAllString(name, ""))
}

// LoadSnapshot downloads and decodes the Basic Company Data export for the
// given month, falling back to the previous month when the requested one is
// not published yet. Entity keys are normalized to the digits-only join form.
func LoadSnapshot(ctx context.Context, client *fetch.Client, year int, month time.Month) ([]record.RegistryRecord, error) {
	url := fetch.SnapshotURL(year, month)
	log.Printf("[info] downloading snapshot: %s", url)
	data, err := client.GetBytes(ctx, url)
	if errors.Is(err, fetch.ErrNotFound) {
		prev := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		url = fetch.SnapshotURL(prev.Year(), prev.Month())
		log.Printf("[warn] snapshot not found, trying previous month: %s", url)
		data, err = client.GetBytes(ctx, url)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: download snapshot: %w", err)
	}
	return DecodeSnapshotCSV(bytes.NewReader(data), int64(len(data)))
}

// DecodeSnapshotCSV reads the first CSV member of the snapshot zip and maps
// its rows onto RegistryRecords.
func DecodeSnapshotCSV(r io.ReaderAt, size int64) ([]record.RegistryRecord, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("registry: open snapshot zip: %w", err)
	}
	var csvFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			csvFile = f
			break
		}
	}
	if csvFile == nil {
		return nil, errors.New("registry: no CSV file found in snapshot zip")
	}
	rc, err := csvFile.Open()
	if err != nil {
		return nil, fmt.Errorf("registry: open snapshot csv: %w", err)
	}
	defer rc.Close()
	return decodeCSV(rc)
}

func decodeCSV(r io.Reader) ([]record.RegistryRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("registry: read snapshot header: %w", err)
	}
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[NormalizeColumnName(h)] = i
	}
	col := func(candidate string) (int, bool) {
		i, ok := byName[NormalizeColumnName(candidate)]
		return i, ok
	}

	numberIdx, ok := col("CompanyNumber")
	if !ok {
		return nil, errors.New("registry: snapshot has no CompanyNumber column")
	}

	var out []record.RegistryRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A mangled row should not lose the rest of the export.
			log.Printf("[warn] registry: skipping bad snapshot row: %v", err)
			continue
		}
		cell := func(i int) string {
			if i < 0 || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := record.RegistryRecord{EntityKey: normalize.EntityKey(cell(numberIdx))}
		if rec.EntityKey == "" {
			continue
		}
		for _, c := range snapshotColumns {
			if i, ok := col(c.src); ok {
				if v := cell(i); v != "" {
					c.assign(&rec, v)
				}
			}
		}
		for _, sc := range sicColumns {
			if i, ok := col(sc); ok {
				if v := cell(i); v != "" {
					rec.SICCodes = append(rec.SICCodes, v)
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func isoDate(v string) *string {
	if t, ok := normalize.ParseDate(v); ok {
		return record.ISODate(t)
	}
	return nil
}
