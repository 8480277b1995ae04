package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/rezervator/internal/model"
)

const backendName = "sheets"

// HTTPClient talks to a remote sheet service over a small REST protocol:
//
//	GET    {base}/sheets/{sheet}/rows        -> {"rows": [[...], ...]}
//	POST   {base}/sheets/{sheet}/rows        <- {"values": [...]}
//	PUT    {base}/sheets/{sheet}/rows/{n}    <- {"values": [...]}
//	DELETE {base}/sheets/{sheet}/rows/{n}
//	PUT    {base}/sheets/{sheet}             <- {"header": [...]}
//
// Requests carry the token as a bearer credential.
type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

// NewHTTPClient returns a client for the service at baseURL.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, &model.ConfigError{Key: "sheets.base_url", Hint: "set the sheet service URL or sheets.workbook"}
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &model.ConfigError{Key: "sheets.base_url", Hint: err.Error()}
	}
	if strings.TrimSpace(token) == "" {
		return nil, &model.ConfigError{Key: "sheets.token", Hint: "set the sheet service access token"}
	}
	return &HTTPClient{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type rowsResponse struct {
	Rows [][]string `json:"rows"`
}

type rowRequest struct {
	Values []string `json:"values"`
}

type sheetRequest struct {
	Header []string `json:"header"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPClient) Rows(ctx context.Context, sheet string) ([][]string, error) {
	var out rowsResponse
	if err := c.do(ctx, http.MethodGet, c.rowsURL(sheet), nil, &out); err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return out.Rows, nil
}

func (c *HTTPClient) Append(ctx context.Context, sheet string, row []string) error {
	if err := c.do(ctx, http.MethodPost, c.rowsURL(sheet), rowRequest{Values: row}, nil); err != nil {
		return fmt.Errorf("appending to sheet %s: %w", sheet, err)
	}
	return nil
}

func (c *HTTPClient) Update(ctx context.Context, sheet string, index int, row []string) error {
	if err := c.do(ctx, http.MethodPut, c.rowURL(sheet, index), rowRequest{Values: row}, nil); err != nil {
		return fmt.Errorf("updating row %d of sheet %s: %w", index, sheet, err)
	}
	return nil
}

func (c *HTTPClient) DeleteRow(ctx context.Context, sheet string, index int) error {
	if err := c.do(ctx, http.MethodDelete, c.rowURL(sheet, index), nil, nil); err != nil {
		return fmt.Errorf("deleting row %d of sheet %s: %w", index, sheet, err)
	}
	return nil
}

func (c *HTTPClient) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	u := c.base + "/sheets/" + url.PathEscape(sheet)
	if err := c.do(ctx, http.MethodPut, u, sheetRequest{Header: header}, nil); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	return nil
}

func (c *HTTPClient) rowsURL(sheet string) string {
	return c.base + "/sheets/" + url.PathEscape(sheet) + "/rows"
}

func (c *HTTPClient) rowURL(sheet string, index int) string {
	return c.rowsURL(sheet) + "/" + strconv.Itoa(index)
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.Unavailable(backendName, "check sheets.base_url and network access", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return statusError(resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(code int, msg string) error {
	se := &StatusError{Code: code, Message: msg}
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSheetNotFound, se)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.Unavailable(backendName, "check sheets.token and its permissions", se)
	case code >= 500:
		return model.Unavailable(backendName, "the sheet service is failing, try again later", se)
	}
	return se
}
