/*
Package source fetches violation snapshots from the external authoritative
source.

PURPOSE:
  Implements violations.Source against a Socrata-style open data endpoint.
  The query carries a result cap, a category filter and a sort order:

    GET {base}?$limit=1000&$where=<category>&$order=hearing_date DESC

FIELD MAPPING:
  The endpoint's column names are configurable (FieldMap) so the same client
  works against renamed datasets. Every value is kept as a string except the
  two money columns, which are passed through to NormalizeAmount.

TIMEOUTS:
  The only timeout is http.Client.Timeout; the sweep adds none of its own.

SEE ALSO:
  - violations/ports.go: Source interface
  - violations/reconcile.go: The only caller
*/
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/warp/violation-sync/violations"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// FieldMap names the source columns for each RawRecord field.
type FieldMap struct {
	ReferenceNumber   string
	Respondent        string
	HearingDate       string
	Status            string
	Plate             string
	BaseFine          string
	AmountDue         string
	ViolationDate     string
	ViolationLocation string
}

// DefaultFieldMap matches the OATH hearings dataset.
var DefaultFieldMap = FieldMap{
	ReferenceNumber:   "ticket_number",
	Respondent:        "respondent_last_name",
	HearingDate:       "hearing_date",
	Status:            "hearing_status",
	Plate:             "respondent_plate",
	BaseFine:          "penalty_imposed",
	AmountDue:         "balance_due",
	ViolationDate:     "violation_date",
	ViolationLocation: "violation_location_house",
}

// Config configures the client.
type Config struct {
	BaseURL  string
	AppToken string
	Timeout  time.Duration
	Fields   FieldMap
}

// Client implements violations.Source over HTTP.
type Client struct {
	baseURL  string
	appToken string
	fields   FieldMap
	http     *http.Client
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("source base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid source base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Fields == (FieldMap{}) {
		cfg.Fields = DefaultFieldMap
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		appToken: cfg.AppToken,
		fields:   cfg.Fields,
		http:     &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Fetch runs one snapshot query.
func (c *Client) Fetch(ctx context.Context, q violations.Query) ([]violations.RawRecord, error) {
	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []map[string]any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode source response: %w", err)
	}

	records := make([]violations.RawRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, c.toRawRecord(row))
	}
	return records, nil
}

func (c *Client) buildURL(q violations.Query) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid source base URL: %w", err)
	}
	params := u.Query()
	if q.Limit > 0 {
		params.Set("$limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		params.Set("$where", q.Category)
	}
	if q.OrderBy != "" {
		order := q.Order
		if order == "" {
			order = violations.SortDescending
		}
		column := q.OrderBy
		if column == violations.DefaultHearingDateCol {
			column = c.fields.HearingDate
		}
		params.Set("$order", column+" "+string(order))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (c *Client) toRawRecord(row map[string]any) violations.RawRecord {
	return violations.RawRecord{
		ReferenceNumber:   stringField(row, c.fields.ReferenceNumber),
		Respondent:        stringField(row, c.fields.Respondent),
		HearingDate:       stringField(row, c.fields.HearingDate),
		Status:            stringField(row, c.fields.Status),
		Plate:             stringField(row, c.fields.Plate),
		BaseFine:          row[c.fields.BaseFine],
		AmountDue:         row[c.fields.AmountDue],
		ViolationDate:     stringField(row, c.fields.ViolationDate),
		ViolationLocation: stringField(row, c.fields.ViolationLocation),
	}
}

func stringField(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
