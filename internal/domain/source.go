package domain

import "fmt"

// SourceCode identifies a marketplace integration.
type SourceCode string

const (
	SourceOzon SourceCode = "ozon"
	SourceWB   SourceCode = "wb"
)

// AllSources lists the marketplaces the importer knows how to walk.
var AllSources = []SourceCode{SourceOzon, SourceWB}

// ParseSourceCode validates a CLI/config spelling of a source.
func ParseSourceCode(s string) (SourceCode, error) {
	switch SourceCode(s) {
	case SourceOzon, SourceWB:
		return SourceCode(s), nil
	}
	return "", fmt.Errorf("unknown source %q (valid: ozon, wb)", s)
}

// Source is a row of the read-only sources reference table.
type Source struct {
	ID   int64
	Code SourceCode
	Name string
}

// Client is the business account whose data is being imported.
type Client struct {
	ID   int64
	Name string
}

// Attribution is stamped onto every canonical record produced in a run,
// since marketplace payloads do not say which internal account they belong to.
type Attribution struct {
	SourceID int64
	ClientID int64
	Source   SourceCode
}
