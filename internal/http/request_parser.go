// Package http serves the JSON API.
//
// This file implements parsing of request bodies and query strings into the
// inputs the services expect. Parse failures are validation errors.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed JSON body")

// DecodeJSON reads a single JSON object from r into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Invalid("body", core.ErrMissingRequiredField)
		}
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return err
		}
		switch {
		case errors.Is(err, core.ErrInvalidAmount):
			return core.Invalid("amount", err)
		case errors.Is(err, core.ErrInvalidDate):
			return core.Invalid("date", err)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return core.Invalid("body", fmt.Errorf("larger than %d bytes", maxErr.Limit))
		}
		return core.Invalid("body", fmt.Errorf("%w: %v", errMalformedBody, err))
	}
	if dec.More() {
		return core.Invalid("body", errMalformedBody)
	}
	return nil
}

// ParseTransactionFilter reads type, category, startDate and endDate.
func ParseTransactionFilter(q url.Values) (ports.TransactionFilter, error) {
	var f ports.TransactionFilter
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		f.Type = core.Flow(v)
		if err := f.Type.Validate(); err != nil {
			return ports.TransactionFilter{}, core.Invalid("type", err)
		}
	}
	f.Category = sanitizeInput(q.Get("category"))

	r, err := ParseDateRange(q)
	if err != nil {
		return ports.TransactionFilter{}, err
	}
	f.Range = r
	return f, nil
}

// ParseDateRange reads the optional startDate and endDate parameters.
func ParseDateRange(q url.Values) (core.DateRange, error) {
	return core.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
}

// ParseMonthParams reads optional month and year parameters. Absent values
// come back as zero so the caller can default them.
func ParseMonthParams(q url.Values) (month, year int, err error) {
	if month, err = optionalInt(q, "month"); err != nil {
		return 0, 0, err
	}
	if year, err = optionalInt(q, "year"); err != nil {
		return 0, 0, err
	}
	return month, year, nil
}

func optionalInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalid(key, fmt.Errorf("not a number: %q", v))
	}
	return n, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
