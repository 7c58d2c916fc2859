package pricehistory

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

func testRegions() map[string]config.Region {
	return map[string]config.Region{
		"JP": {SteamCC: "jp", ITADCountry: "JP", Currency: "JPY"},
		"US": {SteamCC: "us", ITADCountry: "US", Currency: "USD"},
	}
}

func newTestClient(srv *httptest.Server) *Client {
	c := New(srv.Client(), "test-key")
	c.baseURL = srv.URL
	return c
}

func TestLookupID_Found(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/lookup/v1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"found":true,"game":{"id":"018d937f-58fd-7225-ba95-dfad5f4fb3dd"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	id, err := c.LookupID(context.Background(), "620")
	require.NoError(t, err)
	assert.Equal(t, "018d937f-58fd-7225-ba95-dfad5f4fb3dd", id)
}

func TestLookupID_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/lookup/v1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"found":false}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	id, err := c.LookupID(context.Background(), "999999")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestBatchDeals_SingleRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/prices/v3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"aaa","deals":[{"shop":{"id":61},"price":{"amount":700,"currency":"JPY"},"regular":{"amount":1000,"currency":"JPY"},"cut":30,"storeLow":{"amount":500,"currency":"JPY"}}]},
			{"id":"bbb","deals":[{"shop":{"id":99},"price":{"amount":100,"currency":"JPY"},"cut":0}]},
			{"id":"ccc","deals":[]}
		]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	deals, err := c.BatchDeals(context.Background(), []string{"aaa", "bbb", "ccc"}, "JP", testRegions(), 0)
	require.NoError(t, err)

	require.NotNil(t, deals["aaa"])
	assert.Equal(t, 700, deals["aaa"].Price)
	assert.Equal(t, 1000, deals["aaa"].Regular)
	assert.Equal(t, 30, deals["aaa"].Cut)
	require.NotNil(t, deals["aaa"].StoreLow)
	assert.Equal(t, 500, *deals["aaa"].StoreLow)

	assert.Nil(t, deals["bbb"]) // non-Steam shop ignored
	assert.Nil(t, deals["ccc"]) // no deals
}

func TestBatchDeals_CurrencyMismatchIsNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/prices/v3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"aaa","deals":[{"shop":{"id":61},"price":{"amount":500,"currency":"USD"},"cut":0}]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	deals, err := c.BatchDeals(context.Background(), []string{"aaa"}, "JP", testRegions(), 0)
	require.NoError(t, err)
	require.NotNil(t, deals["aaa"])
	assert.Equal(t, 500, deals["aaa"].Price)
}

func TestBatchDeals_ChunksAboveChunkSize(t *testing.T) {
	var requestCount int
	mux := http.NewServeMux()
	mux.HandleFunc("/games/prices/v3", func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		fmt.Fprint(w, `[{"id":"x","deals":[]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	_, err := c.BatchDeals(context.Background(), ids, "JP", testRegions(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, requestCount) // chunks of 2,2,1
}

func TestBatchDeals_FailedChunkMarksIdsUnresolved(t *testing.T) {
	var call int
	mux := http.NewServeMux()
	mux.HandleFunc("/games/prices/v3", func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"id":"ok","deals":[{"shop":{"id":61},"price":{"amount":100,"currency":"JPY"},"cut":0}]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	deals, err := c.BatchDeals(context.Background(), []string{"bad1", "bad2", "ok"}, "JP", testRegions(), 2)
	require.NoError(t, err)
	assert.Nil(t, deals["bad1"])
	assert.Nil(t, deals["bad2"])
	require.NotNil(t, deals["ok"])
	assert.Equal(t, 100, deals["ok"].Price)
}

func TestGetHistoricalLow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/prices/v3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"aaa","deals":[{"shop":{"id":61},"storeLow":{"amount":321,"currency":"JPY"}}]}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	low, err := c.GetHistoricalLow(context.Background(), "aaa", "JP", testRegions())
	require.NoError(t, err)
	require.NotNil(t, low)
	assert.Equal(t, 321, *low)
}

func TestFetchTags_TruncatesToThree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/games/info/v2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tags":["roguelike","action","indie","bullet-hell"]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv)

	tags, err := c.FetchTags(context.Background(), "aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{"roguelike", "action", "indie"}, tags)
}
