package fetch

import (
	"fmt"
	"regexp"
	"time"
)

// DownloadBase is the Companies House bulk products host.
const DownloadBase = "https://download.companieshouse.gov.uk"

// DailyZipNameRE matches daily accounts archive names, capturing year, month
// and day. It matches anywhere in a string so nested document identities like
// "Accounts_Bulk_Data-2008-03-05.zip::a.html" work too.
var DailyZipNameRE = regexp.MustCompile(`Accounts_Bulk_Data-(\d{4})-(\d{2})-(\d{2})\.zip`)

// DailyURL returns the daily accounts archive URL for a date.
func DailyURL(day time.Time) string {
	return fmt.Sprintf("%s/Accounts_Bulk_Data-%s.zip", DownloadBase, day.Format("2006-01-02"))
}

// MonthlyURLs returns candidate monthly archive URLs in order of likelihood:
// the primary location for recent months, then the archive location.
func MonthlyURLs(year int, month time.Month) []string {
	name := fmt.Sprintf("Accounts_Monthly_Data-%s%d.zip", month.String(), year)
	return []string{
		fmt.Sprintf("%s/%s", DownloadBase, name),
		fmt.Sprintf("%s/archive/%s", DownloadBase, name),
	}
}

// YearBundleURL returns the whole-year bundle URL for 2008/2009, the two
// years published only in that form; "" otherwise.
func YearBundleURL(year int) string {
	if year != 2008 && year != 2009 {
		return ""
	}
	return fmt.Sprintf("%s/archive/Accounts_Monthly_Data-JanuaryToDecember%d.zip", DownloadBase, year)
}

// SnapshotURL returns the Basic Company Data one-file snapshot URL for the
// first of a month.
func SnapshotURL(year int, month time.Month) string {
	return fmt.Sprintf("%s/BasicCompanyDataAsOneFile-%04d-%02d-01.zip", DownloadBase, year, int(month))
}
