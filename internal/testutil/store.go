package testutil

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/g960059/maptime/internal/db"
	"github.com/g960059/maptime/internal/domainsvc"
	"github.com/g960059/maptime/internal/model"
)

func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "maptime-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

// DomainLayer seeds one layer of a test domain service.
type DomainLayer struct {
	Name   string
	Values []string
	Series []domainsvc.SeriesSpec
	BBox   []float64
}

// NewDomainService starts a domain service answering for layers and
// returns the source every seeded layer can be queried through.
func NewDomainService(t *testing.T, layers ...DomainLayer) (*httptest.Server, model.MultidimSource) {
	t.Helper()
	catalog := &domainsvc.Catalog{}
	for _, l := range layers {
		catalog.Layers = append(catalog.Layers, domainsvc.LayerSpec{
			Name: l.Name,
			BBox: l.BBox,
			Dimensions: []domainsvc.DimensionSpec{{
				Name:   model.TimeDimension,
				Values: l.Values,
				Series: l.Series,
			}},
		})
	}
	if err := catalog.Build(); err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	srv := httptest.NewServer(domainsvc.NewServer(catalog).Handler())
	t.Cleanup(srv.Close)
	return srv, model.MultidimSource{URL: srv.URL + "/wmts", Version: "1.1.0"}
}

// DailySeries is a P1D series between two ISO timestamps.
func DailySeries(start, end string) []domainsvc.SeriesSpec {
	return []domainsvc.SeriesSpec{{Start: start, End: end, Period: "P1D"}}
}
