package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/maptime/internal/api"
	"github.com/g960059/maptime/internal/model"
	"github.com/g960059/maptime/internal/security"
)

type Sort string

const (
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

const defaultTimeout = 10 * time.Second

// Options are the pagination and filter parameters of GetDomainValues.
// FromValue is a pagination bound whose inclusiveness is decided by the
// remote service; callers that need strict pagination strip the cursor.
type Options struct {
	Limit     int
	Sort      Sort
	FromValue string
	FromEnd   bool
	// Time restricts results to a "start/end" interval.
	Time string
}

type Query struct {
	Source    model.MultidimSource
	Layer     string
	Dimension string
	Options   Options
	// Spatial is set when the timeline is synced with the map viewport.
	Spatial *model.Viewport
}

type HistogramQuery struct {
	Query
	Range      model.TimeRange
	Resolution time.Duration
}

// Result is the raw domain answer; Values splits it.
type Result struct {
	Domain string
	Size   int
}

func (r Result) Values() []string {
	return SplitValues(r.Domain)
}

// Resolver fetches domain values and histograms. It never retries.
type Resolver interface {
	FetchDomainValues(ctx context.Context, q Query) (Result, error)
	FetchHistogram(ctx context.Context, q HistogramQuery) (model.Histogram, error)
}

// FetchError is returned for transport, HTTP and service failures.
type FetchError struct {
	URL        string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

var ErrPayloadInvalid = errors.New("domain payload invalid")

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := security.RedactMessage(strings.TrimSpace(e.Message))
	switch {
	case e.Err != nil:
		cause := e.Err
		var ue *url.Error
		if errors.As(cause, &ue) {
			// url.Error repeats the unredacted URL.
			cause = ue.Err
		}
		return fmt.Sprintf("fetch %s: %v", security.RedactURL(e.URL), cause)
	case code != "" && message != "":
		return fmt.Sprintf("%s: %s", code, message)
	case code != "":
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, code)
		}
		return code
	case message != "":
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	case e.StatusCode > 0:
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "domain fetch error"
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable tells callers whether retrying could help. The resolver
// itself never retries.
func (e *FetchError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.Err != nil {
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, ErrPayloadInvalid)
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

type Client struct {
	client     *http.Client
	timeout    time.Duration
	preferJSON bool
	logger     *slog.Logger
}

func New() *Client {
	return NewWithClient(&http.Client{})
}

func NewWithClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		client:  client,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.timeout = timeout
	return &clone
}

// WithJSON asks the service for JSON instead of XML.
func (c *Client) WithJSON(preferJSON bool) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.preferJSON = preferJSON
	return &clone
}

func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if c == nil || logger == nil {
		return c
	}
	clone := *c
	clone.logger = logger
	return &clone
}

func (c *Client) FetchDomainValues(ctx context.Context, q Query) (Result, error) {
	params := baseParams(q, "GetDomainValues")
	params.Set("domain", q.Dimension)
	if q.Options.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Options.Limit))
	}
	if q.Options.Sort != "" {
		params.Set("sort", string(q.Options.Sort))
	}
	if q.Options.FromValue != "" {
		params.Set("fromValue", q.Options.FromValue)
	}
	if q.Options.FromEnd {
		params.Set("fromEnd", "true")
	}
	if q.Options.Time != "" {
		params.Set("time", q.Options.Time)
	}
	body, contentType, u, err := c.get(ctx, q.Source.URL, params)
	if err != nil {
		return Result{}, err
	}
	dv, err := decodeDomainValues(body, contentType)
	if err != nil {
		return Result{}, &FetchError{URL: u, Err: err}
	}
	return Result{Domain: strings.TrimSpace(dv.Domain), Size: dv.Size}, nil
}

func (c *Client) FetchHistogram(ctx context.Context, q HistogramQuery) (model.Histogram, error) {
	params := baseParams(q.Query, "GetHistogram")
	params.Set("histogram", q.Dimension)
	if q.Resolution > 0 {
		params.Set("resolution", FormatDuration(q.Resolution))
	}
	if !q.Range.IsZero() {
		params.Set(q.Dimension, FormatInterval(q.Range))
	}
	body, contentType, u, err := c.get(ctx, q.Source.URL, params)
	if err != nil {
		return model.Histogram{}, err
	}
	h, err := decodeHistogram(body, contentType)
	if err != nil {
		return model.Histogram{}, &FetchError{URL: u, Err: err}
	}
	return h, nil
}

func baseParams(q Query, request string) url.Values {
	params := url.Values{}
	params.Set("service", "WMTS")
	params.Set("request", request)
	version := strings.TrimSpace(q.Source.Version)
	if version == "" {
		version = "1.0.0"
	}
	params.Set("version", version)
	params.Set("layer", q.Layer)
	if q.Spatial != nil && !q.Spatial.IsZero() {
		params.Set("bbox", fmt.Sprintf("%g,%g,%g,%g", q.Spatial.MinX, q.Spatial.MinY, q.Spatial.MaxX, q.Spatial.MaxY))
		if q.Spatial.CRS != "" {
			params.Set("crs", q.Spatial.CRS)
		}
	}
	return params
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, string, string, error) {
	base, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || base.Scheme == "" {
		return nil, "", rawURL, &FetchError{URL: rawURL, Err: fmt.Errorf("invalid service url %q", security.RedactURL(rawURL))}
	}
	merged := base.Query()
	for key, values := range params {
		merged[key] = values
	}
	base.RawQuery = merged.Encode()
	u := base.String()

	reqCtx := ctx
	if c.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.timeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", u, &FetchError{URL: u, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	if c.preferJSON {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "application/xml, text/xml;q=0.9, application/json;q=0.8")
	}
	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", u, &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", u, &FetchError{URL: u, Err: err}
	}
	c.logger.Debug("domain request", "request_id", requestID, "request", params.Get("request"), "layer", params.Get("layer"), "status", resp.StatusCode, "elapsed", time.Since(started))
	if resp.StatusCode >= 400 {
		return nil, "", u, decodeFailure(u, resp.StatusCode, payload)
	}
	if exc, ok := decodeException(payload); ok {
		exc.URL = u
		exc.StatusCode = resp.StatusCode
		return nil, "", u, exc
	}
	return payload, resp.Header.Get("Content-Type"), u, nil
}

func decodeFailure(u string, status int, payload []byte) error {
	if exc, ok := decodeException(payload); ok {
		exc.URL = u
		exc.StatusCode = status
		return exc
	}
	var er api.ErrorResponse
	if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
		return &FetchError{URL: u, StatusCode: status, Code: er.Error.Code, Message: er.Error.Message}
	}
	return &FetchError{
		URL:        u,
		StatusCode: status,
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    strings.TrimSpace(string(payload)),
	}
}

func decodeException(payload []byte) (*FetchError, bool) {
	trimmed := bytes.TrimSpace(payload)
	if !bytes.HasPrefix(trimmed, []byte("<")) || !bytes.Contains(trimmed, []byte("ExceptionReport")) {
		return nil, false
	}
	var report api.ExceptionReport
	if err := xml.Unmarshal(trimmed, &report); err != nil || len(report.Exceptions) == 0 {
		return nil, false
	}
	exc := report.Exceptions[0]
	return &FetchError{Code: exc.Code, Message: strings.TrimSpace(exc.Text)}, true
}

func isJSON(payload []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeDomainValues(payload []byte, contentType string) (api.DomainValues, error) {
	if isJSON(payload, contentType) {
		var env api.DomainValuesEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return api.DomainValues{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
		}
		if env.DomainValues == nil {
			return api.DomainValues{}, fmt.Errorf("%w: missing DomainValues", ErrPayloadInvalid)
		}
		return *env.DomainValues, nil
	}
	var dv api.DomainValues
	if err := xml.Unmarshal(payload, &dv); err != nil {
		return api.DomainValues{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return dv, nil
}

func decodeHistogram(payload []byte, contentType string) (model.Histogram, error) {
	var raw api.Histogram
	if isJSON(payload, contentType) {
		var env api.HistogramEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return model.Histogram{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
		}
		if env.Histogram == nil {
			return model.Histogram{}, fmt.Errorf("%w: missing Histogram", ErrPayloadInvalid)
		}
		raw = *env.Histogram
	} else if err := xml.Unmarshal(payload, &raw); err != nil {
		return model.Histogram{}, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return ParseHistogram(raw.Domain, raw.Values)
}

// ParseHistogram decodes a "start/end/resolution" descriptor and its
// comma separated counts.
func ParseHistogram(domain, values string) (model.Histogram, error) {
	h := model.Histogram{Domain: strings.TrimSpace(domain)}
	parts := strings.Split(h.Domain, "/")
	if len(parts) >= 2 {
		start, errS := ParseTime(parts[0])
		end, errE := ParseTime(parts[1])
		if errS != nil || errE != nil {
			return model.Histogram{}, fmt.Errorf("%w: histogram domain %q", ErrPayloadInvalid, domain)
		}
		h.Start, h.End = start, end
	}
	if len(parts) >= 3 {
		h.Resolution = strings.TrimSpace(parts[2])
	}
	for _, v := range SplitValues(values) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return model.Histogram{}, fmt.Errorf("%w: histogram value %q", ErrPayloadInvalid, v)
		}
		h.Values = append(h.Values, n)
	}
	return h, nil
}
