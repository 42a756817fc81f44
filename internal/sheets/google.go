package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Google appends to one tab per user inside a shared spreadsheet.
type Google struct {
	srv           *sheetsapi.Service
	spreadsheetID string
	logger        *slog.Logger

	mu   sync.Mutex
	tabs map[string]bool
}

func NewGoogle(ctx context.Context, spreadsheetID string, logger *slog.Logger, opts ...option.ClientOption) (*Google, error) {
	srv, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewGoogleWithService(srv, spreadsheetID, logger), nil
}

func NewGoogleWithService(srv *sheetsapi.Service, spreadsheetID string, logger *slog.Logger) *Google {
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{srv: srv, spreadsheetID: spreadsheetID, logger: logger, tabs: map[string]bool{}}
}

func a1(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!A1"
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		vals := make([]interface{}, len(r))
		for j, c := range r {
			vals[j] = c
		}
		out[i] = vals
	}
	return out
}

func (g *Google) AppendRow(ctx context.Context, userID string, row []string) error {
	tab := TabName(userID)
	if err := g.ensureTab(ctx, tab); err != nil {
		return err
	}
	_, err := g.srv.Spreadsheets.Values.Append(g.spreadsheetID, a1(tab), &sheetsapi.ValueRange{Values: toValues([][]string{row})}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

func (g *Google) Rewrite(ctx context.Context, userID string, rows [][]string) error {
	tab := TabName(userID)
	if err := g.ensureTab(ctx, tab); err != nil {
		return err
	}
	if _, err := g.srv.Spreadsheets.Values.Clear(g.spreadsheetID, "'"+strings.ReplaceAll(tab, "'", "''")+"'", &sheetsapi.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tab: %w", err)
	}
	all := append([][]string{Header}, rows...)
	_, err := g.srv.Spreadsheets.Values.Update(g.spreadsheetID, a1(tab), &sheetsapi.ValueRange{Values: toValues(all)}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("rewrite tab: %w", err)
	}
	g.logger.Info("sheets.rewrite", "tab", tab, "rows", len(rows))
	return nil
}

// ensureTab creates the tab with a header row the first time it is needed.
func (g *Google) ensureTab(ctx context.Context, tab string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tabs[tab] {
		return nil
	}
	ss, err := g.srv.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			g.tabs[tab] = true
			return nil
		}
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		AddSheet: &sheetsapi.AddSheetRequest{Properties: &sheetsapi.SheetProperties{Title: tab}},
	}}}
	if _, err := g.srv.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab: %w", err)
	}
	_, err = g.srv.Spreadsheets.Values.Update(g.spreadsheetID, a1(tab), &sheetsapi.ValueRange{Values: toValues([][]string{Header})}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	g.logger.Info("sheets.tab.created", "tab", tab)
	g.tabs[tab] = true
	return nil
}
