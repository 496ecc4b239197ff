package output

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/pterm/pterm"
)

// TableFormatter formats maps as a two-column key/value table and slices of
// maps as one row per element.
type TableFormatter struct{}

// NewTableFormatter creates a table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Format renders data with pterm.
func (f *TableFormatter) Format(w io.Writer, data any, config *FormatConfig) error {
	if config == nil {
		config = NewFormatConfig()
	}
	if data == nil {
		return fmt.Errorf("cannot format nil data as table")
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("cannot format nil pointer as table")
		}
		v = v.Elem()
	}

	var rows [][]string
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("table maps must have string keys, got %s", v.Type().Key())
		}
		rows = f.mapRows(v, config)
	case reflect.Slice, reflect.Array:
		var err error
		if rows, err = f.sliceRows(v, config); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported data type for table formatting: %s", v.Kind())
	}

	table := pterm.DefaultTable.WithHasHeader(config.ShowHeaders).WithData(rows)
	if config.Colors {
		table = table.WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold))
	} else {
		plain := pterm.NewStyle()
		table = table.WithHeaderStyle(plain).WithStyle(plain).WithSeparatorStyle(plain)
	}

	rendered, err := table.Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = io.WriteString(w, rendered+"\n")
	return err
}

func (f *TableFormatter) mapRows(v reflect.Value, config *FormatConfig) [][]string {
	rows := make([][]string, 0, v.Len()+1)
	if config.ShowHeaders {
		rows = append(rows, []string{"KEY", "VALUE"})
	}
	for _, key := range sortedKeys(v) {
		value := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		rows = append(rows, []string{key, cell(value.Interface(), config.MaxWidth)})
	}
	return rows
}

func (f *TableFormatter) sliceRows(v reflect.Value, config *FormatConfig) ([][]string, error) {
	if v.Len() == 0 {
		return nil, fmt.Errorf("empty slice")
	}

	var columns []string
	for i := 0; i < v.Len(); i++ {
		elem := reflect.Indirect(reflect.ValueOf(v.Index(i).Interface()))
		if elem.Kind() != reflect.Map || elem.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("table rows must be maps with string keys, got %s", elem.Kind())
		}
		if columns == nil {
			columns = sortedKeys(elem)
		}
	}

	rows := make([][]string, 0, v.Len()+1)
	if config.ShowHeaders {
		headers := make([]string, len(columns))
		for i, c := range columns {
			headers[i] = strings.ToUpper(c)
		}
		rows = append(rows, headers)
	}
	for i := 0; i < v.Len(); i++ {
		elem := reflect.Indirect(reflect.ValueOf(v.Index(i).Interface()))
		row := make([]string, len(columns))
		for j, c := range columns {
			value := elem.MapIndex(reflect.ValueOf(c).Convert(elem.Type().Key()))
			if value.IsValid() {
				row[j] = cell(value.Interface(), config.MaxWidth)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func sortedKeys(v reflect.Value) []string {
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, fmt.Sprint(k.Interface()))
	}
	sort.Strings(keys)
	return keys
}

// cell renders one value. Trailing newlines are dropped and long values are
// truncated per line.
func cell(value any, maxWidth int) string {
	var s string
	switch val := value.(type) {
	case nil:
		return ""
	case string:
		s = val
	case map[string]string:
		parts := make([]string, 0, len(val))
		for k, item := range val {
			parts = append(parts, k+"="+item)
		}
		sort.Strings(parts)
		s = strings.Join(parts, "\n")
	default:
		s = fmt.Sprint(val)
	}

	s = strings.TrimRight(s, "\n")
	if maxWidth <= 3 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if r := []rune(line); len(r) > maxWidth {
			lines[i] = string(r[:maxWidth-3]) + "..."
		}
	}
	return strings.Join(lines, "\n")
}
