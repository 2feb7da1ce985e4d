package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const maxActionBodySize = 1 << 20

var errInvalidParam = errors.New("invalid parameter")

// actionParams holds the merged query string and body of an action request. Body values win.
type actionParams map[string]any

// readActionParams accepts GET query strings, form posts and JSON bodies. Clients that post JSON
// as text/plain are treated as JSON.
func readActionParams(w http.ResponseWriter, r *http.Request) (actionParams, error) {
	params := make(actionParams)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return params, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxActionBodySize)
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxActionBodySize); err != nil {
				return nil, fmt.Errorf("%w: form body: %v", errInvalidParam, err)
			}
		} else if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: form body: %v", errInvalidParam, err)
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errInvalidParam, err)
	}
	if len(body) > maxActionBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", errInvalidParam, maxActionBodySize)
	}
	if strings.TrimSpace(string(body)) == "" {
		return params, nil
	}
	var payload map[string]any
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: json body: %v", errInvalidParam, err)
	}
	for key, value := range payload {
		params[key] = value
	}
	return params, nil
}

func (p actionParams) text(keys ...string) string {
	for _, key := range keys {
		switch v := p[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return v.String()
		case nil:
		default:
			return strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return ""
}

func (p actionParams) has(keys ...string) bool {
	for _, key := range keys {
		if value, ok := p[key]; ok && value != nil {
			if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return true
		}
	}
	return false
}

// object returns a nested object. Form posts carry nested objects as JSON strings.
func (p actionParams) object(key string) (actionParams, bool, error) {
	switch v := p[key].(type) {
	case map[string]any:
		return actionParams(v), true, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, false, nil
		}
		var decoded map[string]any
		decoder := json.NewDecoder(strings.NewReader(v))
		decoder.UseNumber()
		if err := decoder.Decode(&decoded); err != nil {
			return nil, false, fmt.Errorf("%w: %s must be an object", errInvalidParam, key)
		}
		return actionParams(decoded), true, nil
	case nil:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %s must be an object", errInvalidParam, key)
	}
}

func (p actionParams) integer(key string) (int, bool, error) {
	raw := p.text(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false, fmt.Errorf("%w: %s must be an integer", errInvalidParam, key)
		}
		n = int(f)
	}
	return n, true, nil
}

func (p actionParams) flag(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	default:
		switch strings.ToLower(p.text(key)) {
		case "true", "1", "yes", "y", "on":
			return true
		}
	}
	return false
}

// money parses the first present key. A missing key yields nil so callers can tell absent from
// zero.
func (p actionParams) money(keys ...string) (*decimal.Decimal, error) {
	for _, key := range keys {
		if !p.has(key) {
			continue
		}
		raw := strings.NewReplacer("$", "", ",", "").Replace(p.text(key))
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", errInvalidParam, key)
		}
		return &value, nil
	}
	return nil, nil
}
