package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal coerces a marketplace amount into a decimal. It accepts plain
// numbers, quoted numbers, and locale-formatted strings such as "1 234,50"
// or "1 234.50". Empty strings are an error.
func ParseDecimal(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if clean == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrNormalization)
	}

	// Whichever of ',' and '.' comes last is the decimal separator; the
	// other one groups thousands.
	comma, dot := strings.LastIndex(clean, ","), strings.LastIndex(clean, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		clean = strings.ReplaceAll(clean, ",", "")
	case comma >= 0:
		if strings.Count(clean, ",") > 1 {
			return decimal.Zero, fmt.Errorf("%w: ambiguous amount %q", ErrNormalization, s)
		}
		clean = strings.Replace(clean, ",", ".", 1)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrNormalization, s, err)
	}
	return d, nil
}

// FlexDecimal decodes JSON numbers and numeric strings into a decimal. The
// marketplaces are inconsistent about quoting amounts.
type FlexDecimal struct {
	decimal.Decimal
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexDecimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Decimal, f.Valid = decimal.Zero, false
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}

	d, err := ParseDecimal(raw)
	if err != nil {
		return err
	}
	f.Decimal, f.Valid = d, true
	return nil
}

// Require returns the value or a normalization error naming the field.
func (f FlexDecimal) Require(field string) (decimal.Decimal, error) {
	if !f.Valid {
		return decimal.Zero, fmt.Errorf("%w: missing %s", ErrNormalization, field)
	}
	return f.Decimal, nil
}
