package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryRequest is one natural-language submission to the query service.
type QueryRequest struct {
	DataSource           string `json:"data_source"`
	Profile              string `json:"profile"`
	NaturalLanguageQuery string `json:"query"`
}

// Validate checks that every field of the request is set.
func (r QueryRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.DataSource) == "":
		return ErrValidation("data source is required")
	case strings.TrimSpace(r.Profile) == "":
		return ErrValidation("profile is required")
	case strings.TrimSpace(r.NaturalLanguageQuery) == "":
		return ErrValidation("query text is required")
	}
	return nil
}

// QueryMeta is the execution metadata attached to a query result.
type QueryMeta struct {
	Profile         string  `json:"profile"`
	Status          string  `json:"status"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	RowCount        *int64  `json:"row_count"`
}

// QueryResult is the service's answer to a QueryRequest. Rows are passed
// through untouched.
type QueryResult struct {
	GeneratedSQL string    `json:"sql"`
	Rows         []Row     `json:"results"`
	Meta         QueryMeta `json:"meta"`
}

// Columns lists the column names in the order the service sent them. Keys
// that only appear in later rows are appended after those of the first row.
func (r *QueryResult) Columns() []string {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var cols []string
	for i := range r.Rows {
		for _, k := range r.Rows[i].keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// Row is a single result row: a mapping from column name to value that
// remembers the order of its columns.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a row from alternating key/value arguments.
func NewRow(kv ...any) Row {
	var r Row
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return r
}

// Set assigns a column value, appending the column if it is new.
func (r *Row) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value of a column.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the row's columns in order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of columns in the row.
func (r Row) Len() int { return len(r.keys) }

// UnmarshalJSON decodes a JSON object while keeping its key order.
func (r *Row) UnmarshalJSON(b []byte) error {
	*r = Row{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("result row: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("result row: expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("result row %q: %w", key, err)
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("result row %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SchemaSnapshot describes the tables of one data source.
type SchemaSnapshot struct {
	DataSource string           `json:"data_source"`
	Tables     []map[string]any `json:"tables"`
}
