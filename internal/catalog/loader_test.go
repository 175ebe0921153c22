package catalog_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/oceanctl/internal/api"
	"github.com/jmgilman/oceanctl/internal/api/apitest"
	"github.com/jmgilman/oceanctl/internal/cache"
	"github.com/jmgilman/oceanctl/internal/catalog"
	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/validate"
)

type fixture struct {
	fake   *apitest.Server
	store  *cache.Store
	loader *catalog.Loader
}

func newFixture(t *testing.T, opts ...catalog.Option) *fixture {
	t.Helper()
	fake := apitest.New()
	t.Cleanup(fake.Close)

	client, err := api.New(fake.URL())
	require.NoError(t, err)

	store := cache.New()
	t.Cleanup(store.Close)

	return &fixture{fake: fake, store: store, loader: catalog.New(store, client, opts...)}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLoader_AddServer(t *testing.T) {
	t.Run("rejects invalid configuration without a request", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)

		list := f.loader.ListServers()
		defer list.Release()
		_, err := list.Wait(ctx)
		require.NoError(t, err)

		m := f.loader.AddServerMutation()
		_, err = m.Execute(ctx, model.ServerConfig{BaseURL: "ex.org/thredds"})

		verr, ok := validate.AsValidation(err)
		require.True(t, ok, "expected a validation error, got %v", err)
		assert.True(t, verr.Has("name"))
		assert.True(t, verr.Has("baseUrl"))
		assert.Equal(t, api.KindValidation, api.KindOf(err))
		assert.Equal(t, cache.StatusError, m.Status())

		assert.Zero(t, f.fake.Count(http.MethodPost, "thredds/servers"))
		assert.Equal(t, 1, f.fake.Count(http.MethodGet, "thredds/servers"))
	})

	t.Run("invalidates the server list", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)

		list := f.loader.ListServers()
		defer list.Release()
		servers, err := list.Wait(ctx)
		require.NoError(t, err)
		assert.Empty(t, servers)

		srv, err := f.loader.AddServer(ctx, model.ServerConfig{Name: "NOAA", BaseURL: "http://ex.org/thredds"})
		require.NoError(t, err)
		assert.NotEmpty(t, srv.ID)

		servers, err = list.Wait(ctx)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, srv.ID, servers[0].ID)
		assert.Equal(t, 2, f.fake.Count(http.MethodGet, "thredds/servers"))
	})

	t.Run("server failure leaves the list untouched", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		f.fake.Fail(http.MethodPost, "thredds/servers", http.StatusInternalServerError, "database unavailable")

		list := f.loader.ListServers()
		defer list.Release()
		_, err := list.Wait(ctx)
		require.NoError(t, err)

		_, err = f.loader.AddServer(ctx, model.ServerConfig{Name: "NOAA", BaseURL: "http://ex.org/thredds"})
		require.Error(t, err)
		assert.Equal(t, api.KindServer, api.KindOf(err))
		assert.Contains(t, err.Error(), "database unavailable")

		assert.Equal(t, 1, f.fake.Count(http.MethodGet, "thredds/servers"))
		assert.Equal(t, cache.StatusSuccess, list.Status())
	})
}

func TestLoader_ReplaceAndRemove(t *testing.T) {
	t.Run("replace invalidates the server's catalogs", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})
		f.fake.SetCatalog(srv.ID, "", model.Node{Name: "x", Path: "x", IsDirectory: true})

		root := f.loader.Expand(srv.ID, "")
		defer root.Release()
		_, err := root.Wait(ctx)
		require.NoError(t, err)

		updated, err := f.loader.ReplaceServer(ctx, srv.ID, model.ServerConfig{Name: "B", BaseURL: "http://b.example/thredds"})
		require.NoError(t, err)
		assert.Equal(t, "B", updated.Name)

		_, err = root.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, f.fake.Count(http.MethodGet, "thredds/catalog"))
	})

	t.Run("replace validates locally", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.loader.ReplaceServer(waitCtx(t), "1", model.ServerConfig{Name: "A", BaseURL: "/relative"})
		assert.ErrorIs(t, err, validate.ErrValidation)
		assert.Empty(t, f.fake.Requests())
	})

	t.Run("remove invalidates subscribed catalogs", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})
		f.fake.SetCatalog(srv.ID, "", model.Node{Name: "x.nc", Path: "x.nc"})

		root := f.loader.Expand(srv.ID, "")
		defer root.Release()
		_, err := root.Wait(ctx)
		require.NoError(t, err)

		require.NoError(t, f.loader.RemoveServer(ctx, srv.ID))

		_, err = root.Wait(ctx)
		require.Error(t, err)
		assert.Equal(t, api.KindNotFound, api.KindOf(err))

		nodes, ok := root.Data()
		assert.True(t, ok, "previous data is kept after a failed refetch")
		assert.Len(t, nodes, 1)
	})

	t.Run("remove of unknown server fails", func(t *testing.T) {
		f := newFixture(t)
		err := f.loader.RemoveServer(waitCtx(t), "missing")
		assert.ErrorIs(t, err, api.ErrNotFound)
	})
}

func TestLoader_Expand(t *testing.T) {
	t.Run("fetches each distinct path once", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})
		f.fake.SetCatalog(srv.ID, "", model.Node{Name: "subdir", Path: "subdir", IsDirectory: true})
		f.fake.SetCatalog(srv.ID, "subdir", model.Node{Name: "a.nc", Path: "subdir/a.nc"})

		for _, path := range []string{"", "subdir", "/subdir/", ""} {
			h := f.loader.Expand(srv.ID, path)
			_, err := h.Wait(ctx)
			h.Release()
			require.NoError(t, err, path)
		}

		assert.Equal(t, 2, f.fake.Count(http.MethodGet, "thredds/catalog"))
		assert.Equal(t, 1, f.fake.Count(http.MethodGet, "thredds/catalog?path=&server_id="+srv.ID))
		assert.Equal(t, 1, f.fake.Count(http.MethodGet, "thredds/catalog?path=subdir&server_id="+srv.ID))
	})

	t.Run("refresh makes released catalogs stale", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})
		f.fake.SetCatalog(srv.ID, "")

		h := f.loader.Expand(srv.ID, "")
		_, err := h.Wait(ctx)
		require.NoError(t, err)
		h.Release()

		assert.Zero(t, f.loader.Refresh(srv.ID))
		assert.Equal(t, 1, f.fake.Count(http.MethodGet, "thredds/catalog"))

		h = f.loader.Expand(srv.ID, "")
		defer h.Release()
		_, err = h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, f.fake.Count(http.MethodGet, "thredds/catalog"))
	})

	t.Run("empty directory is success", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})
		f.fake.SetCatalog(srv.ID, "")

		h := f.loader.Expand(srv.ID, "")
		defer h.Release()
		nodes, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Empty(t, nodes)
		assert.Equal(t, cache.StatusSuccess, h.Status())
	})

	t.Run("unknown path is a not found error", func(t *testing.T) {
		f := newFixture(t)
		ctx := waitCtx(t)
		srv := f.fake.AddServer(model.Server{Name: "A", BaseURL: "http://a.example/thredds"})

		h := f.loader.Expand(srv.ID, "nowhere")
		defer h.Release()
		_, err := h.Wait(ctx)
		assert.ErrorIs(t, err, api.ErrNotFound)
		assert.Equal(t, cache.StatusError, h.Status())
	})
}

func TestLoader_Datasets(t *testing.T) {
	f := newFixture(t)
	ctx := waitCtx(t)
	f.fake.AddDataset(model.Dataset{ID: "noaa-sst", Name: "NOAA SST", FileFormat: "netcdf", Variables: []string{"sst"}})

	list := f.loader.ListDatasets()
	defer list.Release()
	datasets, err := list.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 1)

	one := f.loader.Dataset("noaa-sst")
	defer one.Release()
	ds, err := one.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NOAA SST", ds.Name)

	missing := f.loader.Dataset("nope")
	defer missing.Release()
	_, err = missing.Wait(ctx)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestEndToEnd_NOAA(t *testing.T) {
	f := newFixture(t)
	ctx := waitCtx(t)

	srv, err := f.loader.AddServer(ctx, model.ServerConfig{Name: "NOAA", BaseURL: "http://ex.org/thredds"})
	require.NoError(t, err)

	f.fake.SetCatalog(srv.ID, "",
		model.Node{Name: "ocean", Path: "ocean", IsDirectory: true},
		model.Node{Name: "readme.nc", Path: "readme.nc"},
	)
	f.fake.SetMetadata(srv.ID, "readme.nc", model.DatasetMetadata{
		Format:    "NetCDF",
		Variables: []model.Variable{{Name: "temperature", Units: "degC"}, {Name: "salinity"}},
	})

	list := f.loader.ListServers()
	defer list.Release()
	servers, err := list.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "NOAA", servers[0].Name)
	assert.NotEmpty(t, servers[0].ID)

	browser := catalog.NewBrowser(f.loader)
	defer browser.Close()
	root := browser.SelectServer(servers[0].ID)
	nodes, err := root.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	sel, err := browser.Select(ctx, nodes[1])
	require.NoError(t, err)
	require.NotNil(t, sel.Metadata)
	assert.Equal(t, []string{"temperature", "salinity"}, sel.Metadata.VariableNames())
}
