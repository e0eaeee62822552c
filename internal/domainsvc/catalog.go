package domainsvc

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/g960059/maptime/internal/domain"
)

// maxSeriesValues bounds generated series so a bad period cannot
// exhaust memory.
const maxSeriesValues = 100000

// Catalog is the set of layers and dimension values a Server answers for.
type Catalog struct {
	Layers []LayerSpec `yaml:"layers"`

	index map[string]map[string][]entry
	bbox  map[string][]float64
}

type LayerSpec struct {
	Name string `yaml:"name"`
	// BBox is minx,miny,maxx,maxy; a layer without one matches every viewport.
	BBox       []float64       `yaml:"bbox,omitempty"`
	Dimensions []DimensionSpec `yaml:"dimensions"`
}

type DimensionSpec struct {
	Name   string       `yaml:"name"`
	Values []string     `yaml:"values,omitempty"`
	Series []SeriesSpec `yaml:"series,omitempty"`
}

// SeriesSpec generates instants from Start to End (inclusive) every Period.
type SeriesSpec struct {
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	Period string `yaml:"period"`
	// Interval turns each instant into "v/v+period".
	Interval bool `yaml:"interval,omitempty"`
}

type entry struct {
	raw        string
	start, end time.Time
}

func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if err := c.Build(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Build validates the catalog and indexes its values. It must be called
// on catalogs assembled in code before they are served.
func (c *Catalog) Build() error {
	c.index = map[string]map[string][]entry{}
	c.bbox = map[string][]float64{}
	var errs []error
	for _, layer := range c.Layers {
		name := strings.TrimSpace(layer.Name)
		if name == "" {
			errs = append(errs, errors.New("layer name is required"))
			continue
		}
		if len(layer.BBox) != 0 && len(layer.BBox) != 4 {
			errs = append(errs, fmt.Errorf("layer %s: bbox needs 4 numbers", name))
		}
		dims := map[string][]entry{}
		for _, dim := range layer.Dimensions {
			entries, err := buildEntries(dim)
			if err != nil {
				errs = append(errs, fmt.Errorf("layer %s dimension %s: %w", name, dim.Name, err))
				continue
			}
			dims[strings.ToLower(strings.TrimSpace(dim.Name))] = entries
		}
		c.index[name] = dims
		if len(layer.BBox) == 4 {
			c.bbox[name] = layer.BBox
		}
	}
	return errors.Join(errs...)
}

func buildEntries(dim DimensionSpec) ([]entry, error) {
	var out []entry
	for _, raw := range dim.Values {
		e, err := parseEntry(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	for _, s := range dim.Series {
		start, err := domain.ParseTime(s.Start)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseTime(s.End)
		if err != nil {
			return nil, err
		}
		period, err := domain.ParseDuration(s.Period)
		if err != nil {
			return nil, err
		}
		if period <= 0 {
			return nil, fmt.Errorf("series period must be positive")
		}
		for v := start; !v.After(end); v = v.Add(period) {
			if len(out) > maxSeriesValues {
				return nil, fmt.Errorf("series produces more than %d values", maxSeriesValues)
			}
			e := entry{raw: domain.FormatTime(v), start: v, end: v}
			if s.Interval {
				e.end = v.Add(period)
				e.raw = domain.FormatTime(v) + "/" + domain.FormatTime(e.end)
			}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out, nil
}

func parseEntry(raw string) (entry, error) {
	raw = strings.TrimSpace(raw)
	startRaw, endRaw := domain.IntervalBounds(raw)
	start, err := domain.ParseTime(startRaw)
	if err != nil {
		return entry{}, err
	}
	end, err := domain.ParseTime(endRaw)
	if err != nil {
		return entry{}, err
	}
	if end.Before(start) {
		return entry{}, fmt.Errorf("interval %q ends before it starts", raw)
	}
	if domain.IsInterval(raw) {
		return entry{raw: domain.FormatTime(start) + "/" + domain.FormatTime(end), start: start, end: end}, nil
	}
	return entry{raw: domain.FormatTime(start), start: start, end: start}, nil
}

func (c *Catalog) hasLayer(layer string) bool {
	_, ok := c.index[layer]
	return ok
}

func (c *Catalog) values(layer, dimension string) ([]entry, bool) {
	dims, ok := c.index[layer]
	if !ok {
		return nil, false
	}
	entries, ok := dims[strings.ToLower(dimension)]
	return entries, ok
}

// intersects reports whether the layer extent overlaps bbox.
func (c *Catalog) intersects(layer string, bbox []float64) bool {
	ext, ok := c.bbox[layer]
	if !ok || len(bbox) != 4 {
		return true
	}
	return bbox[0] <= ext[2] && bbox[2] >= ext[0] && bbox[1] <= ext[3] && bbox[3] >= ext[1]
}
