package sheets

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"financas/internal/store"
)

// parseValues turns the raw Sheets value grid into a Table. The first row is
// the header; cells come back as arbitrary types and are normalized to
// trimmed strings. Fully blank rows are dropped.
func parseValues(values [][]any) store.Table {
	if len(values) == 0 {
		return store.Table{}
	}
	t := store.Table{Header: toStrings(values[0])}
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAnyRow(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// isMissingTab detects the "unable to parse range" error the API returns for
// a tab that does not exist yet. Absence is not an error for Load.
func isMissingTab(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 400 {
		return strings.Contains(strings.ToLower(gerr.Message), "unable to parse range")
	}
	return false
}

func unmarshalToken(data []byte, tok *oauth2.Token) error {
	return json.Unmarshal(data, tok)
}
