package domainsvc

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/g960059/maptime/internal/api"
	"github.com/g960059/maptime/internal/domain"
)

const (
	defaultLimit   = 1000
	defaultBuckets = 50
)

// Server answers the WMTS multidimensional GetDomainValues and
// GetHistogram operations from a Catalog.
type Server struct {
	catalog     *Catalog
	logger      *slog.Logger
	buckets     int
	httpSrv     *http.Server
	mu          sync.Mutex
	listener    net.Listener
	shutdown    sync.Once
	shutdownErr error
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistogramBuckets sets the bucket count used when a histogram
// request carries no resolution.
func WithHistogramBuckets(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.buckets = n
		}
	}
}

func NewServer(catalog *Catalog, opts ...Option) *Server {
	mux := http.NewServeMux()
	s := &Server{
		catalog: catalog,
		logger:  slog.Default(),
		buckets: defaultBuckets,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.serviceHandler)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("domain service listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.shutdownErr = errors.Join(errs...)
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// kvp holds request parameters with case-insensitive keys.
type kvp map[string]string

func parseKVP(r *http.Request) kvp {
	out := kvp{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			out[strings.ToLower(key)] = strings.TrimSpace(values[0])
		}
	}
	return out
}

func (p kvp) get(key string) string {
	return p[strings.ToLower(key)]
}

func (s *Server) serviceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeException(w, r, http.StatusMethodNotAllowed, api.ErrOperationUnknown, "", "method not allowed")
		return
	}
	params := parseKVP(r)
	if svc := params.get("service"); svc != "" && !strings.EqualFold(svc, "WMTS") {
		s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "service", "unsupported service "+svc)
		return
	}
	request := params.get("request")
	s.logger.Debug("domain service request", "request", request, "layer", params.get("layer"), "request_id", r.Header.Get("X-Request-Id"))
	switch strings.ToLower(request) {
	case "getdomainvalues":
		s.getDomainValues(w, r, params)
	case "gethistogram":
		s.getHistogram(w, r, params)
	case "":
		s.writeException(w, r, http.StatusBadRequest, api.ErrMissingParameter, "request", "request is required")
	default:
		s.writeException(w, r, http.StatusBadRequest, api.ErrOperationUnknown, "request", "unsupported request "+request)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, params kvp, dimParam string) (string, string, []entry, bool) {
	layer := params.get("layer")
	if layer == "" {
		s.writeException(w, r, http.StatusBadRequest, api.ErrMissingParameter, "layer", "layer is required")
		return "", "", nil, false
	}
	dim := params.get(dimParam)
	if dim == "" {
		s.writeException(w, r, http.StatusBadRequest, api.ErrMissingParameter, dimParam, dimParam+" is required")
		return "", "", nil, false
	}
	if !s.catalog.hasLayer(layer) {
		s.writeException(w, r, http.StatusBadRequest, api.ErrLayerNotFound, "layer", "unknown layer "+layer)
		return "", "", nil, false
	}
	entries, ok := s.catalog.values(layer, dim)
	if !ok {
		s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, dimParam, "unknown dimension "+dim)
		return "", "", nil, false
	}
	return layer, dim, entries, true
}

func (s *Server) getDomainValues(w http.ResponseWriter, r *http.Request, params kvp) {
	layer, dim, entries, ok := s.lookup(w, r, params, "domain")
	if !ok {
		return
	}
	limit := defaultLimit
	if raw := params.get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	sortOrder := strings.ToLower(params.get("sort"))
	switch sortOrder {
	case "":
		sortOrder = string(domain.SortAsc)
	case string(domain.SortAsc), string(domain.SortDesc):
	default:
		s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "sort", "sort must be asc or desc")
		return
	}
	fromEnd := strings.EqualFold(params.get("fromEnd"), "true")
	var from time.Time
	hasFrom := false
	if raw := params.get("fromValue"); raw != "" {
		t, err := domain.ParseTime(raw)
		if err != nil {
			s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "fromValue", err.Error())
			return
		}
		from, hasFrom = t, true
	}
	filter, ok := s.timeFilter(w, r, params.get("time"), "time")
	if !ok {
		return
	}
	bbox, ok := s.parseBBox(w, r, params.get("bbox"))
	if !ok {
		return
	}

	var selected []string
	if s.catalog.intersects(layer, bbox) {
		selected = selectValues(entries, valueQuery{
			limit:   limit,
			desc:    sortOrder == string(domain.SortDesc),
			from:    from,
			hasFrom: hasFrom,
			fromEnd: fromEnd,
			filter:  filter,
		})
	}
	resp := api.DomainValues{
		Identifier: dim,
		Limit:      limit,
		Sort:       sortOrder,
		FromValue:  params.get("fromValue"),
		Domain:     strings.Join(selected, ","),
		Size:       len(selected),
	}
	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, api.DomainValuesEnvelope{DomainValues: &resp})
		return
	}
	s.writeXML(w, http.StatusOK, resp)
}

type valueQuery struct {
	limit   int
	desc    bool
	from    time.Time
	hasFrom bool
	fromEnd bool
	filter  *window
}

type window struct {
	start, end time.Time
}

// selectValues pages through entries. fromValue is inclusive: asc keeps
// values >= from, desc keeps values <= from. fromEnd compares interval
// ends instead of starts.
func selectValues(entries []entry, q valueQuery) []string {
	out := make([]string, 0, min(q.limit, len(entries)))
	keep := func(e entry) bool {
		if q.filter != nil && (e.end.Before(q.filter.start) || e.start.After(q.filter.end)) {
			return false
		}
		if !q.hasFrom {
			return true
		}
		key := e.start
		if q.fromEnd {
			key = e.end
		}
		if q.desc {
			return !key.After(q.from)
		}
		return !key.Before(q.from)
	}
	if q.desc {
		for i := len(entries) - 1; i >= 0 && len(out) < q.limit; i-- {
			if keep(entries[i]) {
				out = append(out, entries[i].raw)
			}
		}
		return out
	}
	for i := 0; i < len(entries) && len(out) < q.limit; i++ {
		if keep(entries[i]) {
			out = append(out, entries[i].raw)
		}
	}
	return out
}

func (s *Server) getHistogram(w http.ResponseWriter, r *http.Request, params kvp) {
	layer, dim, entries, ok := s.lookup(w, r, params, "histogram")
	if !ok {
		return
	}
	filter, ok := s.timeFilter(w, r, params.get(dim), dim)
	if !ok {
		return
	}
	bbox, ok := s.parseBBox(w, r, params.get("bbox"))
	if !ok {
		return
	}
	if !s.catalog.intersects(layer, bbox) {
		entries = nil
	}
	if filter == nil {
		if len(entries) == 0 {
			s.writeException(w, r, http.StatusBadRequest, api.ErrMissingParameter, dim, "empty domain needs an explicit range")
			return
		}
		filter = &window{start: entries[0].start, end: entries[len(entries)-1].end}
	}
	var resolution time.Duration
	if raw := params.get("resolution"); raw != "" {
		d, err := domain.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "resolution", "invalid resolution "+raw)
			return
		}
		resolution = d
	} else {
		resolution = filter.end.Sub(filter.start) / time.Duration(s.buckets)
		if resolution <= 0 {
			resolution = time.Hour
		}
	}
	counts := histogram(entries, *filter, resolution)
	values := make([]string, len(counts))
	for i, c := range counts {
		values[i] = strconv.Itoa(c)
	}
	end := filter.start.Add(time.Duration(len(counts)) * resolution)
	resp := api.Histogram{
		Identifier: dim,
		Domain:     domain.FormatTime(filter.start) + "/" + domain.FormatTime(end) + "/" + domain.FormatDuration(resolution),
		Values:     strings.Join(values, ","),
	}
	if wantsJSON(r) {
		s.writeJSON(w, http.StatusOK, api.HistogramEnvelope{Histogram: &resp})
		return
	}
	s.writeXML(w, http.StatusOK, resp)
}

// histogram counts entry starts into buckets of width res covering win.
func histogram(entries []entry, win window, res time.Duration) []int {
	span := win.end.Sub(win.start)
	n := int(span / res)
	if span%res != 0 || n == 0 {
		n++
	}
	counts := make([]int, n)
	for _, e := range entries {
		if e.start.Before(win.start) || e.start.After(win.end) {
			continue
		}
		idx := int(e.start.Sub(win.start) / res)
		if idx >= n {
			idx = n - 1
		}
		counts[idx]++
	}
	return counts
}

func (s *Server) timeFilter(w http.ResponseWriter, r *http.Request, raw, dim string) (*window, bool) {
	if raw == "" {
		return nil, true
	}
	startRaw, endRaw := domain.IntervalBounds(raw)
	start, errS := domain.ParseTime(startRaw)
	end, errE := domain.ParseTime(endRaw)
	if errS != nil || errE != nil || end.Before(start) {
		s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, dim, "invalid time filter "+raw)
		return nil, false
	}
	return &window{start: start, end: end}, true
}

func (s *Server) parseBBox(w http.ResponseWriter, r *http.Request, raw string) ([]float64, bool) {
	if raw == "" {
		return nil, true
	}
	parts := strings.Split(raw, ",")
	if len(parts) < 4 {
		s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "bbox", "bbox needs minx,miny,maxx,maxy")
		return nil, false
	}
	out := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			s.writeException(w, r, http.StatusBadRequest, api.ErrInvalidParameter, "bbox", "bbox needs numbers")
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("f"), "json") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Accept"))), "application/json")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeXML(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(payload)
}

func (s *Server) writeException(w http.ResponseWriter, r *http.Request, status int, code, locator, msg string) {
	if wantsJSON(r) {
		s.writeJSON(w, status, api.ErrorResponse{Error: api.APIError{Code: code, Message: msg}})
		return
	}
	s.writeXML(w, status, api.ExceptionReport{
		Version:    "1.1.0",
		Exceptions: []api.Exception{{Code: code, Locator: locator, Text: msg}},
	})
}
