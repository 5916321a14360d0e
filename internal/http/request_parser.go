// Package http provides the JSON API server and its handlers.
//
// This file holds the helpers that turn query strings and request bodies into
// typed values. Malformed input is reported as errBadRequest; input that is
// well formed but rejected by the domain keeps its core.ErrValidation class.

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
	"time"

	"tally/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

func badRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads exactly one JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if core.IsDomainError(err) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequestf("empty request body")
		}
		return badRequestf("malformed JSON: %v", err)
	}
	if dec.More() {
		return badRequestf("request body must hold a single JSON object")
	}
	return nil
}

// parseDay accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDay(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, badRequestf("missing %s", field)
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequestf("%s must be YYYY-MM-DD or RFC 3339, got %q", field, v)
	}
	return t.UTC(), nil
}

// parseRange reads the from and to query parameters.
func parseRange(q url.Values) (from, to time.Time, err error) {
	if from, err = parseDay("from", q.Get("from")); err != nil {
		return
	}
	to, err = parseDay("to", q.Get("to"))
	return
}

// parseIntParam returns def when the parameter is absent.
func parseIntParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequestf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

// sanitizeInput removes control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
