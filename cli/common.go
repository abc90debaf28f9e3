package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/spf13/cobra"
)

func flagQueryOptions(c *cobra.Command, options *engine.QueryOptions) {
	c.Flags().IntVar(&options.Limit, "limit", 100, "")
	c.Flags().IntVar(&options.Offset, "offset", 0, "")
}

// mapVariables maps variables, given as name and JSON encoded data - e.g. result={"encoding":"text","value":"ok"}.
// If deletion is allowed, an empty value or null deletes a variable.
func mapVariables(variablesV []string, deletionAllowed bool) (map[string]*engine.Data, error) {
	if len(variablesV) == 0 {
		return nil, nil
	}

	variables := make(map[string]*engine.Data, len(variablesV))
	for _, variableV := range variablesV {
		name, dataJson, ok := strings.Cut(variableV, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("variable %q must be formatted as name=data", variableV)
		}

		if dataJson == "" || dataJson == "null" {
			if !deletionAllowed {
				return nil, fmt.Errorf("variable %s: no value defined", name)
			}
			variables[name] = nil
			continue
		}

		var data engine.Data
		if err := json.Unmarshal([]byte(dataJson), &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variable %s: %v", name, err)
		}
		variables[name] = &data
	}

	return variables, nil
}

// printJson prints a value as indented JSON.
func printJson(c *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %v", err)
	}

	c.Println(string(b))
	return nil
}

func printVariables(c *cobra.Command, variables map[string]engine.Data) {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	slices.Sort(names)

	table := newTable([]string{
		"NAME",
		"ENCODING",
		"VALUE",
	})

	for _, name := range names {
		data := variables[name]

		table.addRow([]string{
			name,
			data.Encoding,
			data.Value,
		})
	}

	c.Print(table.format())
}

func formatTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(time.RFC3339)
}

func formatTimeOrNil(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

func newTable(headers []string) table {
	return table{rows: [][]string{headers}}
}

// table formats rows as aligned columns. The header row is followed by an empty row.
type table struct {
	rows [][]string
}

func (t *table) addRow(row []string) {
	t.rows = append(t.rows, row)
}

func (t *table) format() string {
	widths := make([]int, len(t.rows[0]))
	for _, row := range t.rows {
		for i, value := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(value))
		}
	}

	var sb strings.Builder
	for i, row := range t.rows {
		t.formatRow(&sb, widths, row)
		if i == 0 {
			t.formatRow(&sb, widths, make([]string, len(widths)))
		}
	}

	return sb.String()
}

func (t *table) formatRow(sb *strings.Builder, widths []int, row []string) {
	for i, value := range row {
		if i != 0 {
			sb.WriteString("   ")
		}

		sb.WriteString(value)
		sb.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(value)))
	}
	sb.WriteRune('\n')
}
