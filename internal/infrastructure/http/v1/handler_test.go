package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raedjah1/bopmaps-cache/internal/cache"
	"github.com/raedjah1/bopmaps-cache/internal/coordinator"
	"github.com/raedjah1/bopmaps-cache/internal/decoder"
	"github.com/raedjah1/bopmaps-cache/internal/fetcher"
	"github.com/raedjah1/bopmaps-cache/internal/infrastructure/http/v1/handler"
	"github.com/raedjah1/bopmaps-cache/internal/region"
	"github.com/raedjah1/bopmaps-cache/internal/store"
	"github.com/raedjah1/bopmaps-cache/pkg/logger"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".png") {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("tile-bytes"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"layers":[]}`))
	}))
	t.Cleanup(upstream.Close)

	l := logger.NewNop()

	disk, err := cache.NewDisk(t.TempDir(), 0, time.Hour, l)
	require.NoError(t, err)
	tiered := cache.NewTiered(cache.NewMemory(50, 100, time.Hour), nil, disk, l)

	st, err := store.New(filepath.Join(t.TempDir(), "regions.db"), l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pool := decoder.NewPool(1, l)
	t.Cleanup(pool.Close)

	f := fetcher.New(fetcher.Config{
		TileURL:       upstream.URL,
		DataURL:       upstream.URL,
		Timeout:       5 * time.Second,
		MaxConcurrent: 4,
		MaxRetries:    1,
	}, pool, l)

	coord := coordinator.New(coordinator.Config{MinFetchInterval: time.Nanosecond}, tiered, st, f, l)
	t.Cleanup(coord.Close)

	dl := region.New(region.Config{SubTileKm: 10, MaxSizeBytes: 1 << 20}, coord, st, l)

	h := handler.NewHandler(validator.New(), coord, dl, st)
	return NewRouter(h, l, false), st
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bopmaps-cache")
}

func TestTileEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/tile/10/511/340", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "tile-bytes", w.Body.String())
}

func TestTileEndpointValidation(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/tile/10/abc/340", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// In range values only: zoom 3 has 8 tiles per axis.
	w = doRequest(router, http.MethodGet, "/api/v1/tile/3/999/0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDataEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	path := "/api/v1/data?type=roads&min_lat=40.0&min_lon=-74.1&max_lat=40.2&max_lon=-73.9&zoom=12"
	w := doRequest(router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Type  string `json:"type"`
			Found bool   `json:"found"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "roads", resp.Data.Type)
	assert.True(t, resp.Data.Found)
}

func TestDataEndpointRejectsBadType(t *testing.T) {
	router, _ := setupTestRouter(t)

	path := "/api/v1/data?type=nonsense&min_lat=40.0&min_lon=-74.1&max_lat=40.2&max_lon=-73.9&zoom=12"
	w := doRequest(router, http.MethodGet, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Tiles go through the tile endpoint, not the data one.
	path = "/api/v1/data?type=tile&min_lat=40.0&min_lon=-74.1&max_lat=40.2&max_lon=-73.9&zoom=12"
	w = doRequest(router, http.MethodGet, path, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreAndExistsEndpoints(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"type":"pois","min_lat":40.0,"min_lon":-74.1,"max_lat":40.2,"max_lon":-73.9,"zoom":12,"payload":{"layers":[]}}`
	w := doRequest(router, http.MethodPost, "/api/v1/data", body)
	require.Equal(t, http.StatusOK, w.Code)

	path := "/api/v1/data/exists?type=pois&min_lat=40.0&min_lon=-74.1&max_lat=40.2&max_lon=-73.9&zoom=12"
	w = doRequest(router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"exists":true`)
}

func TestPrefetchEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `{"min_lat":40.0,"min_lon":-74.1,"max_lat":40.2,"max_lon":-73.9,"data_types":["roads","tile"],"min_zoom":12,"max_zoom":14,"priority":"high"}`
	w := doRequest(router, http.MethodPost, "/api/v1/prefetch", body)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// Bounds are required.
	w = doRequest(router, http.MethodPost, "/api/v1/prefetch", `{"min_zoom":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// max_zoom below min_zoom is rejected.
	w = doRequest(router, http.MethodPost, "/api/v1/prefetch",
		`{"min_lat":40.0,"min_lon":-74.1,"max_lat":40.2,"max_lon":-73.9,"min_zoom":14,"max_zoom":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown layer names are rejected.
	w = doRequest(router, http.MethodPost, "/api/v1/prefetch",
		`{"min_lat":40.0,"min_lon":-74.1,"max_lat":40.2,"max_lon":-73.9,"data_types":["rivers"],"min_zoom":12,"max_zoom":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegionEndpoints(t *testing.T) {
	router, st := setupTestRouter(t)

	body := `{"name":"downtown","center_lat":40.0,"center_lon":-74.0,"radius_km":2,"zoom_levels":[9]}`
	w := doRequest(router, http.MethodPost, "/api/v1/regions?wait=true", body)
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		Data struct {
			Region store.Region `json:"region"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Data.Region.ID
	require.NotEmpty(t, id)
	assert.Equal(t, store.StatusDownloaded, created.Data.Region.Status)

	w = doRequest(router, http.MethodGet, "/api/v1/regions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "downtown")

	w = doRequest(router, http.MethodGet, "/api/v1/regions/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/regions/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, ok := st.GetRegion(id)
	assert.False(t, ok)

	w = doRequest(router, http.MethodGet, "/api/v1/regions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegionValidation(t *testing.T) {
	router, _ := setupTestRouter(t)

	// Missing both bounds and center.
	w := doRequest(router, http.MethodPost, "/api/v1/regions?wait=true", `{"name":"nowhere"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing name.
	w = doRequest(router, http.MethodPost, "/api/v1/regions?wait=true",
		`{"center_lat":40.0,"center_lon":-74.0,"radius_km":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegionRejectedWhenTooLarge(t *testing.T) {
	router, st := setupTestRouter(t)

	body := `{"name":"the continent","center_lat":40.0,"center_lon":-74.0,"radius_km":100,"zoom_levels":[17]}`
	w := doRequest(router, http.MethodPost, "/api/v1/regions?wait=true", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, st.GetRegions())
}

func TestCacheStatsAndClear(t *testing.T) {
	router, _ := setupTestRouter(t)

	// Generate one request so the stats are not empty.
	doRequest(router, http.MethodGet, "/api/v1/tile/10/1/2", "")

	w := doRequest(router, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requests":1`)

	w = doRequest(router, http.MethodPost, "/api/v1/cache/clear", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/cache/clear", `{"type":"nonsense"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cache_hits_total")
}

func TestUnknownRoute(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, fmt.Sprintf("/api/v1/unknown/%d", 1), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
