package dto

// ImportOptions selects which legacy collections to import. SkipExisting
// keeps re-runs idempotent and defaults to true at the call sites.
type ImportOptions struct {
	Contacts     bool `json:"contacts"`
	Quotes       bool `json:"quotes"`
	Emails       bool `json:"emails"`
	SkipExisting bool `json:"skipExisting"`
}

func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		Contacts:     true,
		Quotes:       true,
		Emails:       true,
		SkipExisting: true,
	}
}

type ImportError struct {
	RecordID string `json:"id"`
	Message  string `json:"message"`
}

type SourceImportStats struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

type ImportResult struct {
	Contacts SourceImportStats `json:"contacts"`
	Quotes   SourceImportStats `json:"quotes"`
	Emails   SourceImportStats `json:"emails"`
}
