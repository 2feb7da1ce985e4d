package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/loomhouse/api/internal/platform/config"
)

// fakeSheets serves the subset of the values API the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	tabs    map[string][][]any
	failGet int
}

func newFakeSheets(t *testing.T) (*fakeSheets, *Client) {
	t.Helper()
	fake := &fakeSheets{tabs: map[string][][]any{}}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), config.SheetsConfig{SpreadsheetID: "sheet-1"},
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return fake, client
}

func (f *fakeSheets) serve(w http.ResponseWriter, r *http.Request) {
	const prefix = "/v4/spreadsheets/sheet-1/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)
	appending := strings.HasSuffix(rng, ":append")
	rng = strings.TrimSuffix(rng, ":append")
	tab, cell, _ := strings.Cut(rng, "!")
	tab = strings.ReplaceAll(strings.Trim(tab, "'"), "''", "'")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet:
		if f.failGet > 0 {
			f.failGet--
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend unavailable"}}`))
			return
		}
		writeJSON(w, map[string]any{"range": rng, "values": f.tabs[tab]})
	case r.Method == http.MethodPost && appending:
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.tabs[tab] = append(f.tabs[tab], body.Values...)
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-1"})
	case r.Method == http.MethodPut:
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		row, err := strconv.Atoi(strings.TrimPrefix(cell, "A"))
		if err != nil || row < 1 || len(body.Values) != 1 {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		for len(f.tabs[tab]) < row {
			f.tabs[tab] = append(f.tabs[tab], []any{})
		}
		f.tabs[tab][row-1] = body.Values[0]
		writeJSON(w, map[string]any{"updatedRows": 1})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (f *fakeSheets) rows(tab string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.tabs[tab]...)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
