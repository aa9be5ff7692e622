package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/leapgrid/pkg/value"
)

// ColumnConfig holds optional validation rules for literal writes.
// All fields are optional; a nil config accepts any well-typed value.
type ColumnConfig struct {
	// Min and Max bound number columns (inclusive).
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
	// MaxLength bounds text columns in characters.
	MaxLength *int `json:"max_length,omitempty"`
	// Pattern is a regular expression text values must match.
	Pattern string `json:"pattern,omitempty"`
	// Options is the allowed value list for choice columns.
	Options []string `json:"options,omitempty"`
}

// ParseLiteral converts a raw write value into a typed cell value for a
// column, applying the declared type and the column's validation
// config. Raw values arrive as decoded JSON scalars (string, float64,
// bool, nil) or as strings from the CLI; string input is accepted for
// every type and parsed strictly. A nil raw value clears the cell.
//
// The returned error carries the rejection reason for the caller to
// wrap as a per-write ValidationError.
func ParseLiteral(raw any, typ ColumnType, cfg *ColumnConfig) (value.Value, error) {
	if raw == nil {
		return value.Null(), nil
	}

	switch typ {
	case ColumnTypeText:
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, fmt.Errorf("expected text, got %T", raw)
		}
		if err := validateText(s, cfg); err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil

	case ColumnTypeChoice:
		s, ok := raw.(string)
		if !ok {
			return value.Value{}, fmt.Errorf("expected text, got %T", raw)
		}
		if err := validateChoice(s, cfg); err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil

	case ColumnTypeNumber:
		n, err := rawNumber(raw)
		if err != nil {
			return value.Value{}, err
		}
		if err := validateNumber(n, cfg); err != nil {
			return value.Value{}, err
		}
		return value.Number(n), nil

	case ColumnTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return value.Bool(v), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return value.Bool(true), nil
			case "false":
				return value.Bool(false), nil
			}
			return value.Value{}, fmt.Errorf("%q is not a boolean", v)
		default:
			return value.Value{}, fmt.Errorf("expected boolean, got %T", raw)
		}

	case ColumnTypeDate:
		switch v := raw.(type) {
		case time.Time:
			return value.Date(v), nil
		case string:
			t, err := value.ParseDate(v)
			if err != nil {
				return value.Value{}, fmt.Errorf("%q is not a date", v)
			}
			return value.Date(t), nil
		default:
			return value.Value{}, fmt.Errorf("expected date, got %T", raw)
		}

	default:
		return value.Value{}, fmt.Errorf("unknown column type %q", typ)
	}
}

func rawNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

func validateText(s string, cfg *ColumnConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.MaxLength != nil && utf8.RuneCountInString(s) > *cfg.MaxLength {
		return fmt.Errorf("text exceeds maximum length %d", *cfg.MaxLength)
	}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %v", cfg.Pattern, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("value does not match pattern %q", cfg.Pattern)
		}
	}
	return nil
}

func validateChoice(s string, cfg *ColumnConfig) error {
	if cfg == nil || len(cfg.Options) == 0 {
		return nil
	}
	for _, opt := range cfg.Options {
		if s == opt {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of the allowed options", s)
}

func validateNumber(n float64, cfg *ColumnConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.Min != nil && n < *cfg.Min {
		return fmt.Errorf("value %v is below minimum %v", n, *cfg.Min)
	}
	if cfg.Max != nil && n > *cfg.Max {
		return fmt.Errorf("value %v is above maximum %v", n, *cfg.Max)
	}
	return nil
}
