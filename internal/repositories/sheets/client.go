// Package sheets stores orders and order items as rows of a Google Sheets spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/loomhouse/api/internal/platform/config"
)

const (
	valueInputRaw          = "RAW"
	valueRenderUnformatted = "UNFORMATTED_VALUE"
)

// Client reads and writes whole tabs of one spreadsheet.
type Client struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
}

// NewClient dials the Sheets API for cfg.SpreadsheetID. Credentials come from cfg.CredentialsJSON
// when set, otherwise from application default credentials.
func NewClient(ctx context.Context, cfg config.SheetsConfig, opts ...option.ClientOption) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	clientOpts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(creds)))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheetsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Client{values: svc.Spreadsheets.Values, spreadsheetID: id}, nil
}

// ReadTab returns every populated row of tab, header included.
func (c *Client) ReadTab(ctx context.Context, tab string) ([][]any, error) {
	resp, err := c.values.Get(c.spreadsheetID, quoteTab(tab)).
		ValueRenderOption(valueRenderUnformatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("read "+tab, err)
	}
	return resp.Values, nil
}

// Probe reads the first cell of tab to prove the spreadsheet is reachable.
func (c *Client) Probe(ctx context.Context, tab string) error {
	_, err := c.values.Get(c.spreadsheetID, quoteTab(tab)+"!A1:A1").Context(ctx).Do()
	return wrapError("probe "+tab, err)
}

// AppendRows adds rows after the last populated row of tab.
func (c *Client) AppendRows(ctx context.Context, tab string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := c.values.Append(c.spreadsheetID, quoteTab(tab), &sheetsapi.ValueRange{Values: rows}).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return wrapError("append "+tab, err)
}

// WriteRow overwrites the 1-based row number of tab starting at column A.
func (c *Client) WriteRow(ctx context.Context, tab string, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d", quoteTab(tab), row)
	_, err := c.values.Update(c.spreadsheetID, rng, &sheetsapi.ValueRange{Values: [][]any{values}}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	return wrapError("write "+tab, err)
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
