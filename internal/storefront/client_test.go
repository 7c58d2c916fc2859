package storefront

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoder-lab/gamevault/internal/config"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		appID := r.URL.Query().Get("appids")
		fmt.Fprintf(w, `{"%s":{"success":true,"data":{
			"name":"Test Game",
			"is_free":false,
			"header_image":"https://example.com/header.jpg",
			"price_overview":{"final":1999,"initial":1999,"discount_percent":0},
			"genres":[{"description":"Action"}],
			"platforms":{"windows":true,"mac":false,"linux":false},
			"developers":["Dev Co"],
			"publishers":["Pub Co"],
			"release_date":{"date":"2023-01-15"},
			"supported_languages":"English"
		}}}`, appID)
	})
	mux.HandleFunc("/app/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>no capsule here</html>`)
	})
	mux.HandleFunc("/appreviews/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query_summary":{"review_score_desc":"Very Positive"}}`)
	})
	return httptest.NewServer(mux)
}

func testRegions() map[string]config.Region {
	return map[string]config.Region{
		"JP": {SteamCC: "jp", ITADCountry: "JP", Currency: "JPY"},
		"US": {SteamCC: "us", ITADCountry: "US", Currency: "USD"},
	}
}

func newTestClient(srv *httptest.Server) *Client {
	c := New(srv.Client(), testRegions())
	c.baseURL = srv.URL
	return c
}

func TestClient_GetBasicInfo(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := newTestClient(srv)

	info, err := c.GetBasicInfo(context.Background(), "620", "JP")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Test Game", info.Title)
	assert.Equal(t, []string{"Action"}, info.Genres)
	assert.Equal(t, "2023-01-15", info.ReleaseDate)
	assert.True(t, info.Prices["JP"].Known)
	assert.Equal(t, 20, info.Prices["JP"].Price)
}

func TestClient_GetBasicInfo_UnknownRegion(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := newTestClient(srv)

	_, err := c.GetBasicInfo(context.Background(), "620", "ZZ")
	assert.Error(t, err)
}

func TestClient_GetGameInfo_FullFetch(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	c := newTestClient(srv)

	info, err := c.GetGameInfo(context.Background(), "620", []string{"JP", "US"})
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Test Game", info.Title)
	assert.Equal(t, "Very Positive", info.ReviewScore)
	assert.Equal(t, "https://example.com/header.jpg", info.ImageURL)
	assert.True(t, info.Prices["JP"].Known)
	assert.True(t, info.Prices["US"].Known)
}

func TestClient_GetGameInfo_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"999":{"success":false}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	info, err := c.GetGameInfo(context.Background(), "999", []string{"JP"})
	require.NoError(t, err)
	assert.Nil(t, info)
}
