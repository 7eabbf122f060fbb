package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PaperSize is a page size in inches, portrait orientation.
type PaperSize struct {
	Width  float64
	Height float64
}

// paperSizes matches the paper formats the Chromium print pipeline understands.
var paperSizes = map[string]PaperSize{
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
	"ledger":  {17, 11},
	"a0":      {33.1, 46.8},
	"a1":      {23.4, 33.1},
	"a2":      {16.54, 23.4},
	"a3":      {11.7, 16.54},
	"a4":      {8.27, 11.7},
	"a5":      {5.83, 8.27},
	"a6":      {4.13, 5.83},
}

// LookupPaperSize resolves a format keyword such as "A4" or "letter".
func LookupPaperSize(format string) (PaperSize, bool) {
	size, ok := paperSizes[strings.ToLower(strings.TrimSpace(format))]
	return size, ok
}

const pxPerInch = 96.0

// unitsPerInch maps CSS length units to their size in inches.
var unitsPerInch = map[string]float64{
	"px": pxPerInch,
	"in": 1,
	"cm": 2.54,
	"mm": 25.4,
}

// Length is a CSS-style length. Bare numbers are pixels; strings may carry a
// px, in, cm or mm suffix. The zero value means zero.
type Length string

// UnmarshalJSON accepts both JSON numbers and strings.
func (l *Length) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Length(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("length must be a number or string: %w", err)
	}
	*l = Length(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Inches converts the length to inches.
func (l Length) Inches() (float64, error) {
	s := strings.ToLower(strings.TrimSpace(string(l)))
	if s == "" {
		return 0, nil
	}

	per := pxPerInch
	for unit, v := range unitsPerInch {
		if strings.HasSuffix(s, unit) {
			per = v
			s = strings.TrimSpace(strings.TrimSuffix(s, unit))
			break
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q", string(l))
	}
	if n < 0 {
		return 0, fmt.Errorf("negative length %q", string(l))
	}
	return n / per, nil
}

// Margin holds the page margins.
type Margin struct {
	Top    Length `json:"top,omitempty"`
	Right  Length `json:"right,omitempty"`
	Bottom Length `json:"bottom,omitempty"`
	Left   Length `json:"left,omitempty"`
}

// MarginInches is a Margin resolved to inches.
type MarginInches struct {
	Top, Right, Bottom, Left float64
}

// Inches converts every side to inches, failing on the first invalid side.
func (m Margin) Inches() (MarginInches, error) {
	var out MarginInches
	sides := []struct {
		name string
		in   Length
		out  *float64
	}{
		{"top", m.Top, &out.Top},
		{"right", m.Right, &out.Right},
		{"bottom", m.Bottom, &out.Bottom},
		{"left", m.Left, &out.Left},
	}
	for _, side := range sides {
		v, err := side.in.Inches()
		if err != nil {
			return MarginInches{}, fmt.Errorf("margin.%s: %w", side.name, err)
		}
		*side.out = v
	}
	return out, nil
}
