package domain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/g960059/maptime/internal/model"
)

const domainValuesXML = `<?xml version="1.0" encoding="UTF-8"?>
<DomainValues xmlns="http://demo.geo-solutions.it/share/wmts-multidim/wmts_multi_dimensional.xsd" xmlns:ows="http://www.opengis.net/ows/1.1">
  <ows:Identifier>time</ows:Identifier>
  <Limit>2</Limit>
  <Sort>asc</Sort>
  <Domain>2016-09-01T00:00:00.000Z,2016-09-02T00:00:00.000Z</Domain>
  <Size>2</Size>
</DomainValues>`

func TestFetchDomainValuesSendsQueryAndParsesXML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/geoserver/gwc/service/wmts", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		expect := map[string]string{
			"service":   "WMTS",
			"request":   "GetDomainValues",
			"version":   "1.1.0",
			"layer":     "gs:sst",
			"domain":    "time",
			"limit":     "2",
			"sort":      "asc",
			"fromValue": "2016-09-01T00:00:00.000Z",
			"fromEnd":   "true",
			"time":      "2016-09-01T00:00:00.000Z/2016-10-01T00:00:00.000Z",
			"bbox":      "-10,35,20,60",
			"crs":       "EPSG:4326",
			"tiled":     "true",
		}
		for key, want := range expect {
			if got := q.Get(key); got != want {
				t.Fatalf("expected %s=%q, got %q", key, want, got)
			}
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Fatalf("expected request id header")
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, domainValuesXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewWithClient(srv.Client())
	res, err := client.FetchDomainValues(context.Background(), Query{
		Source:    model.MultidimSource{URL: srv.URL + "/geoserver/gwc/service/wmts?tiled=true", Version: "1.1.0"},
		Layer:     "gs:sst",
		Dimension: "time",
		Options: Options{
			Limit:     2,
			Sort:      SortAsc,
			FromValue: "2016-09-01T00:00:00.000Z",
			FromEnd:   true,
			Time:      "2016-09-01T00:00:00.000Z/2016-10-01T00:00:00.000Z",
		},
		Spatial: &model.Viewport{MinX: -10, MinY: 35, MaxX: 20, MaxY: 60, CRS: "EPSG:4326"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	values := res.Values()
	if len(values) != 2 || values[1] != "2016-09-02T00:00:00.000Z" || res.Size != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFetchDomainValuesParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Fatalf("expected json accept header, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"DomainValues":{"Identifier":"time","Domain":"2016-09-01T00:00:00.000Z/2016-09-02T00:00:00.000Z","Size":1}}`)
	}))
	defer srv.Close()

	client := NewWithClient(srv.Client()).WithJSON(true)
	res, err := client.FetchDomainValues(context.Background(), Query{
		Source:    model.MultidimSource{URL: srv.URL},
		Layer:     "l",
		Dimension: "time",
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := ReduceIntervals(res.Values(), model.SnapEnd); len(got) != 1 || got[0] != "2016-09-02T00:00:00.000Z" {
		t.Fatalf("unexpected interval reduction: %v", got)
	}
}

func TestFetchDomainValuesSurfacesExceptionReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `<?xml version="1.0"?><ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/1.1" version="1.1.0"><ows:Exception exceptionCode="LayerNotDefined" locator="layer"><ows:ExceptionText>unknown layer nope</ows:ExceptionText></ows:Exception></ows:ExceptionReport>`)
	}))
	defer srv.Close()

	client := NewWithClient(srv.Client())
	_, err := client.FetchDomainValues(context.Background(), Query{Source: model.MultidimSource{URL: srv.URL}, Layer: "nope", Dimension: "time"})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Code != "LayerNotDefined" || fetchErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected fetch error: %+v", fetchErr)
	}
	if fetchErr.Retryable() {
		t.Fatalf("expected 400 to be non-retryable")
	}
}

func TestFetchDomainValuesServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := NewWithClient(srv.Client()).FetchDomainValues(context.Background(), Query{Source: model.MultidimSource{URL: srv.URL}, Layer: "l", Dimension: "time"})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.Retryable() {
		t.Fatalf("expected retryable fetch error, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP_502") {
		t.Fatalf("expected status code in message, got %v", err)
	}
}

func TestFetchErrorRedactsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "rejected access_token=abc123")
	}))
	_, err := NewWithClient(srv.Client()).FetchDomainValues(context.Background(), Query{
		Source: model.MultidimSource{URL: srv.URL + "/wmts?access_token=abc123"}, Layer: "l", Dimension: "time",
	})
	if err == nil || strings.Contains(err.Error(), "abc123") {
		t.Fatalf("expected redacted service error, got %v", err)
	}

	srv.Close()
	_, err = NewWithClient(nil).FetchDomainValues(context.Background(), Query{
		Source: model.MultidimSource{URL: strings.Replace(srv.URL, "http://", "http://bob:s3cret@", 1) + "/wmts?apikey=k-42"}, Layer: "l", Dimension: "time",
	})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
	if msg := err.Error(); strings.Contains(msg, "s3cret") || strings.Contains(msg, "k-42") {
		t.Fatalf("credentials leaked in %q", msg)
	}
}

func TestFetchDomainValuesInvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"DomainValues":`)
	}))
	defer srv.Close()

	_, err := NewWithClient(srv.Client()).FetchDomainValues(context.Background(), Query{Source: model.MultidimSource{URL: srv.URL}, Layer: "l", Dimension: "time"})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected payload invalid, got %v", err)
	}
}

func TestFetchHistogramParsesBuckets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("request") != "GetHistogram" || q.Get("histogram") != "time" || q.Get("resolution") != "P1D" {
			t.Fatalf("unexpected histogram query: %s", r.URL.RawQuery)
		}
		if q.Get("time") != "2016-09-01T00:00:00.000Z/2016-09-04T00:00:00.000Z" {
			t.Fatalf("unexpected histogram range: %q", q.Get("time"))
		}
		_, _ = io.WriteString(w, `<Histogram xmlns="http://demo.geo-solutions.it/share/wmts-multidim/wmts_multi_dimensional.xsd" xmlns:ows="http://www.opengis.net/ows/1.1"><ows:Identifier>time</ows:Identifier><Domain>2016-09-01T00:00:00.000Z/2016-09-04T00:00:00.000Z/P1D</Domain><Values>3,0,7</Values></Histogram>`)
	}))
	defer srv.Close()

	start := time.Date(2016, 9, 1, 0, 0, 0, 0, time.UTC)
	h, err := NewWithClient(srv.Client()).FetchHistogram(context.Background(), HistogramQuery{
		Query:      Query{Source: model.MultidimSource{URL: srv.URL}, Layer: "l", Dimension: "time"},
		Range:      model.TimeRange{Start: start, End: start.AddDate(0, 0, 3)},
		Resolution: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if len(h.Values) != 3 || h.Values[2] != 7 || h.Resolution != "P1D" || !h.Start.Equal(start) {
		t.Fatalf("unexpected histogram: %+v", h)
	}
}

func TestFetchDomainValuesCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWithClient(srv.Client()).FetchDomainValues(ctx, Query{Source: model.MultidimSource{URL: srv.URL}, Layer: "l", Dimension: "time"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Retryable() {
		t.Fatalf("cancelled fetch must not be retryable")
	}
}
