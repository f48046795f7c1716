package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newDesk(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method, rec.path, rec.query = r.Method, r.URL.Path, r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			_ = json.Unmarshal(b, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStocksAdd(t *testing.T) {
	srv, rec := newDesk(t, http.StatusOK, `{"status":200,"message":"OK","data":{"symbol":"AAPL","added":true}}`)
	out, err := run(t, srv.URL, "stocks", "add", "aapl")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/stocks/add", rec.path)
	assert.Equal(t, "aapl", rec.body["symbol"])
	assert.Contains(t, out, `"added": true`)
}

func TestAnalysisPath(t *testing.T) {
	srv, rec := newDesk(t, http.StatusOK, `{"status":200,"message":"OK","data":[]}`)
	_, err := run(t, srv.URL, "analysis", "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "/api/analysis/MSFT", rec.path)
}

func TestTradingHistoryQuery(t *testing.T) {
	srv, rec := newDesk(t, http.StatusOK, `{"status":200,"message":"OK","data":[]}`)
	_, err := run(t, srv.URL, "trading", "history", "--symbol", "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "/api/trading/history", rec.path)
	assert.Equal(t, "symbol=NVDA", rec.query)
}

func TestAccountCreate(t *testing.T) {
	srv, rec := newDesk(t, http.StatusCreated, `{"status":201,"message":"Created","data":{"user_id":"ada","account_id":"paper_ada_1"}}`)
	out, err := run(t, srv.URL, "account", "create", "ada")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/api/account/create", rec.path)
	assert.Equal(t, "ada", rec.body["user_id"])
	assert.Equal(t, "paper", rec.body["account_type"])
	assert.NotContains(t, rec.body, "account_id")
	assert.Contains(t, out, "paper_ada_1")
}

func TestAccountPaths(t *testing.T) {
	cases := []struct {
		args  []string
		path  string
		query string
	}{
		{[]string{"account", "get", "ada"}, "/api/account/ada", ""},
		{[]string{"account", "status", "ada"}, "/api/account/ada/status", ""},
		{[]string{"account", "trades", "ada", "--symbol", "AAPL"}, "/api/account/ada/trades", "symbol=AAPL"},
		{[]string{"departments", "AAPL"}, "/api/departments/AAPL", ""},
		{[]string{"config", "current"}, "/api/config/current", ""},
	}
	for _, tc := range cases {
		srv, rec := newDesk(t, http.StatusOK, `{"status":200,"message":"OK","data":{}}`)
		_, err := run(t, srv.URL, tc.args...)
		require.NoError(t, err, tc.args)
		assert.Equal(t, http.MethodGet, rec.method, tc.args)
		assert.Equal(t, tc.path, rec.path, tc.args)
		assert.Equal(t, tc.query, rec.query, tc.args)
	}
}

func TestReloadBody(t *testing.T) {
	srv, rec := newDesk(t, http.StatusOK, `{"status":200,"message":"OK"}`)
	out, err := run(t, srv.URL, "system", "reload", "--provider", "heuristic", "--stage", "expert=http")
	require.NoError(t, err)
	assert.Equal(t, "heuristic", rec.body["default"])
	assert.Equal(t, map[string]any{"expert": "http"}, rec.body["stages"])
	assert.Equal(t, "ok\n", out)

	_, err = run(t, srv.URL, "system", "reload", "--stage", "expert")
	assert.ErrorContains(t, err, "stage=provider")
}

func TestServerErrorMessages(t *testing.T) {
	srv, _ := newDesk(t, http.StatusNotFound,
		`{"status":404,"message":"Not Found","data":[{"code":"ERR_NOT_FOUND","message":"symbol TSLA not active"}]}`)
	_, err := run(t, srv.URL, "stocks", "remove", "TSLA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404: symbol TSLA not active")
}

func TestQueryHelpers(t *testing.T) {
	assert.Equal(t, map[string][]string{"a": {"1"}}, query("a", "1", "b", ""))
	m, err := parsePairs([]string{"macro=heuristic", " expert = http "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"macro": "heuristic", "expert": "http"}, m)
}
