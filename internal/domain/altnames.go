package domain

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed altnames.csv
var defaultAltNames []byte

// AltNames maps canonical place names to their short forms. The zero value
// is an empty table. It is never modified after construction.
type AltNames struct {
	names map[string]string
}

// DefaultAltNames returns the built-in table of US state abbreviations and
// territory display names.
func DefaultAltNames() AltNames {
	a, err := LoadAltNames(bytes.NewReader(defaultAltNames))
	if err != nil {
		panic(fmt.Sprintf("domain: embedded alternate names: %v", err))
	}
	return a
}

// LoadAltNamesFile reads an alternate-name table from path.
func LoadAltNamesFile(path string) (AltNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return AltNames{}, err
	}
	defer f.Close()

	a, err := LoadAltNames(f)
	if err != nil {
		return AltNames{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// LoadAltNames reads a two-column CSV table with a "name,alt" header.
func LoadAltNames(r io.Reader) (AltNames, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return AltNames{}, errors.New("alternate names: missing header")
		}
		return AltNames{}, fmt.Errorf("alternate names: %w", err)
	}
	if header[0] != "name" || header[1] != "alt" {
		return AltNames{}, fmt.Errorf("alternate names: unexpected header %q", header)
	}

	names := make(map[string]string)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return AltNames{}, fmt.Errorf("alternate names: %w", err)
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		names[name] = strings.TrimSpace(row[1])
	}
	return AltNames{names: names}, nil
}

// Lookup returns the short form of name.
func (a AltNames) Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := a.names[name]
	return v, ok
}

// Len returns the number of entries.
func (a AltNames) Len() int { return len(a.names) }
