package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

const errorBodyLimit = 512

// Query selects the location, date range and variables to request.
type Query struct {
	Latitude  float64
	Longitude float64
	StartDate string
	EndDate   string
	Timezone  string
	Daily     []string
	Hourly    []string
}

// Client fetches historical weather from the Open-Meteo archive API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	idle       time.Duration
	query      Query
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo archive client. The timeout limits how long
// any single wait on the server may last; a large response that keeps
// arriving is never cut off.
func NewClient(baseURL string, timeout time.Duration, query Query, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    baseURL,
		idle:       timeout,
		query:      query,
		logger:     logger,
	}
}

// Fetch performs a single request and returns the daily and hourly series as
// tables. Values are kept as decoded: numbers as json.Number, strings, or nil.
func (c *Client) Fetch(ctx context.Context) (daily, hourly tabular.Table, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+c.params().Encode(), nil)
	if err != nil {
		return daily, hourly, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return daily, hourly, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return daily, hourly, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload response
	body := newIdleReader(resp.Body, c.idle, cancel)
	defer body.stop()
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		if body.expired() {
			return daily, hourly, fmt.Errorf("decode response: no data for %s", c.idle)
		}
		return daily, hourly, fmt.Errorf("decode response: %w", err)
	}

	daily, err = seriesTable("daily", payload.Daily, c.query.Daily)
	if err != nil {
		return daily, hourly, err
	}
	hourly, err = seriesTable("hourly", payload.Hourly, c.query.Hourly)
	if err != nil {
		return daily, hourly, err
	}

	c.logger.Info("weather fetched",
		"daily_rows", daily.Len(),
		"hourly_rows", hourly.Len(),
		"elapsed", time.Since(start),
	)
	return daily, hourly, nil
}

func (c *Client) params() url.Values {
	q := c.query
	return url.Values{
		"latitude":   {strconv.FormatFloat(q.Latitude, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(q.Longitude, 'f', -1, 64)},
		"start_date": {q.StartDate},
		"end_date":   {q.EndDate},
		"daily":      {strings.Join(q.Daily, ",")},
		"hourly":     {strings.Join(q.Hourly, ",")},
		"timezone":   {q.Timezone},
	}
}

// Open-Meteo archive response. Each series is a map of column name to values,
// one entry per timestamp.
type response struct {
	Daily  map[string][]any `json:"daily"`
	Hourly map[string][]any `json:"hourly"`
}

// seriesTable orders columns as time, the requested metrics present in the
// response, then any unrequested keys sorted by name.
func seriesTable(name string, series map[string][]any, requested []string) (tabular.Table, error) {
	if series == nil {
		return tabular.Table{}, fmt.Errorf("response has no %s series", name)
	}
	times, ok := series[domain.TimeColumn]
	if !ok {
		return tabular.Table{}, fmt.Errorf("%s series has no %q column", name, domain.TimeColumn)
	}

	columns := []string{domain.TimeColumn}
	seen := map[string]bool{domain.TimeColumn: true}
	for _, m := range requested {
		if _, ok := series[m]; ok && !seen[m] {
			columns = append(columns, m)
			seen[m] = true
		}
	}
	var extras []string
	for k := range series {
		if !seen[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	columns = append(columns, extras...)

	n := len(times)
	for _, col := range columns {
		if got := len(series[col]); got != n {
			return tabular.Table{}, fmt.Errorf("%s series %q has %d values, want %d", name, col, got, n)
		}
	}

	rows := make([][]any, n)
	for i := range rows {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = series[col][i]
		}
		rows[i] = row
	}
	return tabular.Table{Columns: columns, Rows: rows}, nil
}

// idleReader cancels the request when no bytes arrive within the timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() { ir.timer.Stop() }

func (ir *idleReader) expired() bool { return ir.fired.Load() }
