// Package sheets implements the Store port against the Google Sheets API.
//
// Each user+kind pair maps to one tab in the configured spreadsheet. Save
// clears the tab and rewrites header plus rows in a single update, which is
// what makes repeated saves idempotent. Loads are cached briefly because a
// full-range read is a network round trip; Save invalidates the cache entry.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"financas/internal/cache"
	"financas/internal/store"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const loadCacheTTL = 5 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesTab   string
	savingsTab    string

	loadCache cache.Cache[store.Table]
}

var _ store.Store = (*Client)(nil)

// NewFromEnv creates a Sheets-backed store using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON / GOOGLE_SERVICE_ACCOUNT_FILE /
// GOOGLE_APPLICATION_CREDENTIALS for service accounts, or
// GOOGLE_OAUTH_CLIENT_FILE + GOOGLE_OAUTH_TOKEN_FILE for user consent
// (token obtained with cmd/oauth-init).
// Optional tab names: SHEETS_EXPENSES_TAB (default "Expenses"),
// SHEETS_SAVINGS_TAB (default "Savings").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	expensesTab := strings.TrimSpace(os.Getenv("SHEETS_EXPENSES_TAB"))
	if expensesTab == "" {
		expensesTab = "Expenses"
	}
	savingsTab := strings.TrimSpace(os.Getenv("SHEETS_SAVINGS_TAB"))
	if savingsTab == "" {
		savingsTab = "Savings"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		expensesTab:   expensesTab,
		savingsTab:    savingsTab,
		loadCache:     cache.NewLRU[store.Table](64, loadCacheTTL),
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if cli, err := oauthHTTPClient(ctx); err != nil {
		return nil, err
	} else if cli != nil {
		slog.InfoContext(ctx, "Using OAuth user credentials for Sheets")
		return gsheet.NewService(ctx, goption.WithHTTPClient(cli))
	}

	credentialsJSON, err := serviceAccountJSON(ctx)
	if err != nil {
		return nil, err
	}
	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// oauthHTTPClient builds a client from an installed-app OAuth token when the
// token bootstrap files are configured; returns (nil, nil) when they are not.
func oauthHTTPClient(ctx context.Context) (*http.Client, error) {
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if clientFile == "" || tokenFile == "" {
		return nil, nil
	}

	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	tok := &oauth2.Token{}
	if err := unmarshalToken(tokenJSON, tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.Client(ctx, tok), nil
}

func serviceAccountJSON(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or the GOOGLE_OAUTH_* pair)")
	}
}

// Save clears the tab for user+kind and rewrites it with header plus rows.
// A tab that does not exist yet (first save for a new user) is created first.
func (c *Client) Save(ctx context.Context, userID string, kind store.Kind, t store.Table) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if !kind.IsValid() {
		return fmt.Errorf("invalid kind: %s", kind)
	}
	tab := c.tabName(userID, kind)

	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tab, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		if !isMissingTab(err) {
			return fmt.Errorf("clear %s: %w", tab, err)
		}
		// A fresh tab is empty; nothing to clear after creating it.
		if err := c.createTab(ctx, tab); err != nil {
			return fmt.Errorf("create tab %s: %w", tab, err)
		}
	}

	values := make([][]any, 0, len(t.Rows)+1)
	values = append(values, toAnyRow(t.Header))
	for _, row := range t.Rows {
		values = append(values, toAnyRow(row))
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}

	c.loadCache.Delete(cacheKey(userID, kind))

	slog.InfoContext(ctx, "Saved table to Google Sheets",
		"tab", tab, "rows", len(t.Rows), "kind", kind.String())
	return nil
}

// Load reads the full tab for user+kind; a missing or blank tab yields an
// empty table, not an error.
func (c *Client) Load(ctx context.Context, userID string, kind store.Kind) (store.Table, error) {
	if c.svc == nil {
		return store.Table{}, errors.New("sheets service not initialized")
	}
	if !kind.IsValid() {
		return store.Table{}, fmt.Errorf("invalid kind: %s", kind)
	}

	key := cacheKey(userID, kind)
	if t, ok := c.loadCache.Get(key); ok {
		slog.DebugContext(ctx, "Sheets load cache hit", "kind", kind.String())
		return t.Clone(), nil
	}

	tab := c.tabName(userID, kind)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab).Context(ctx).Do()
	if err != nil {
		if isMissingTab(err) {
			return store.Table{}, nil
		}
		return store.Table{}, fmt.Errorf("read %s: %w", tab, err)
	}

	t := parseValues(resp.Values)
	c.loadCache.Set(key, t.Clone())
	return t, nil
}

// createTab adds a sheet with the given title to the spreadsheet.
func (c *Client) createTab(ctx context.Context, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Created sheet tab", "tab", title)
	return nil
}

// tabName maps user+kind to a sheet tab. With an empty user the bare tab name
// is used, matching a single-user spreadsheet.
func (c *Client) tabName(userID string, kind store.Kind) string {
	base := c.expensesTab
	if kind == store.KindSavings {
		base = c.savingsTab
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return base
	}
	return userID + " " + base
}

func cacheKey(userID string, kind store.Kind) string {
	return userID + "|" + kind.String()
}
