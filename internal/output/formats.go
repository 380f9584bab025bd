package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Supported file types.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// ErrUnknownFormat is returned for a file type with no encoder.
var ErrUnknownFormat = errors.New("output: unknown file type")

// Formats lists the supported file types.
var Formats = []string{FormatJSON, FormatCSV, FormatYAML, FormatTOML}

// NormalizeFormat lower-cases a file type and maps "yml" to "yaml". It
// returns ErrUnknownFormat for anything else.
func NormalizeFormat(fileType string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(fileType))
	if f == "yml" {
		f = FormatYAML
	}
	switch f {
	case FormatJSON, FormatCSV, FormatYAML, FormatTOML:
		return f, nil
	}
	return "", fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, fileType, strings.Join(Formats, ", "))
}

// ContentType returns the MIME type for a normalized file type.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	case FormatTOML:
		return "application/toml; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// EncodeOption adjusts encoding.
type EncodeOption func(*encodeOptions)

type encodeOptions struct {
	indent bool
}

// Indent pretty-prints JSON output.
func Indent(on bool) EncodeOption {
	return func(o *encodeOptions) { o.indent = on }
}

// Encode writes rows to w in the given file type.
func Encode(w io.Writer, fileType string, rows []map[string]any, opts ...EncodeOption) error {
	format, err := NormalizeFormat(fileType)
	if err != nil {
		return err
	}
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	switch format {
	case FormatJSON:
		return encodeJSON(w, rows, o.indent)
	case FormatCSV:
		return encodeCSV(w, rows)
	case FormatYAML:
		return encodeYAML(w, rows)
	default:
		return encodeTOML(w, rows)
	}
}

func encodeJSON(w io.Writer, rows []map[string]any, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = sonic.ConfigStd.MarshalIndent(rows, "", "  ")
	} else {
		data, err = sonic.ConfigStd.Marshal(rows)
	}
	if err != nil {
		return fmt.Errorf("JSON encoding error: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// encodeCSV writes one row per result. The header is the sorted union of
// keys; nested values are embedded as JSON.
func encodeCSV(w io.Writer, rows []map[string]any) error {
	headers := columns(rows)
	writer := csv.NewWriter(w)

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("CSV write error: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			cell, err := csvCell(row[h])
			if err != nil {
				return err
			}
			record[i] = cell
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("CSV write error: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func columns(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

func csvCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	default:
		data, err := sonic.ConfigStd.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("CSV encoding error: %w", err)
		}
		return string(data), nil
	}
}

func encodeYAML(w io.Writer, rows []map[string]any) error {
	data, err := yaml.Marshal(rows)
	if err != nil {
		return fmt.Errorf("YAML encoding error: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// encodeTOML writes {results = [...]}. TOML has no null, so nil values are
// dropped.
func encodeTOML(w io.Writer, rows []map[string]any) error {
	clean := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		clean = append(clean, dropNil(row))
	}
	data, err := toml.Marshal(map[string]any{"results": clean})
	if err != nil {
		return fmt.Errorf("TOML encoding error: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func dropNil(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case nil:
			continue
		case []string:
			if val == nil {
				continue
			}
		case []map[string]any:
			children := make([]map[string]any, 0, len(val))
			for _, c := range val {
				children = append(children, dropNil(c))
			}
			v = children
		}
		out[k] = v
	}
	return out
}
