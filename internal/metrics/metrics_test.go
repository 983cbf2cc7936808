package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PriceFallback.WithLabelValues("uniswap-v3").Inc()
	m.CacheLookups.WithLabelValues("hit").Add(2)

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("expected 2 cache hits, got %v", got)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{
		`chainlens_pricing_price_fallback_total{pool_type="uniswap-v3"} 1`,
		`chainlens_cache_cache_lookups_total{result="hit"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNopIsIndependent(t *testing.T) {
	a, b := Nop(), Nop()
	a.RPCClientsCreated.WithLabelValues("eth-mainnet").Inc()
	if got := testutil.ToFloat64(b.RPCClientsCreated.WithLabelValues("eth-mainnet")); got != 0 {
		t.Fatalf("expected separate registries, got %v", got)
	}
}
