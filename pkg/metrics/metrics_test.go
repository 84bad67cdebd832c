package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter_AddAndCollect(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := r.NewCounter("test_total", "A test counter.")

	if err := c.Inc(); err != nil {
		t.Fatalf("Inc: %v", err)
	}
	if err := c.Add(4); err != nil {
		t.Fatalf("Add: %v", err)
	}

	samples := c.Collect()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].Value != 5 {
		t.Errorf("value = %v, want 5", samples[0].Value)
	}
}

func TestCounter_RejectsNegative(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := r.NewCounter("neg_total", "")
	if err := c.Add(-1); err == nil {
		t.Error("expected error for negative add")
	}
}

func TestCounter_LabelMismatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := r.NewCounter("labelled_total", "", "path")
	if _, err := c.WithLabels(); err == nil {
		t.Error("expected label count mismatch")
	}
	if _, err := c.WithLabels("/health", "GET"); err == nil {
		t.Error("expected label count mismatch")
	}
}

func TestCounter_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := r.NewCounter("concurrent_total", "", "worker")

	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			vec, err := c.WithLabels("w")
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 100; j++ {
				_ = vec.Inc()
			}
		}()
	}
	wg.Wait()

	samples := c.Collect()
	if len(samples) != 1 || samples[0].Value != n*100 {
		t.Errorf("samples = %+v, want single series with %d", samples, n*100)
	}
}

func TestGauge_SetIncDec(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	g := r.NewGauge("test_gauge", "")
	_ = g.Set(10)
	_ = g.Inc()
	_ = g.Dec()
	_ = g.Dec()

	samples := g.Collect()
	if len(samples) != 1 || samples[0].Value != 9 {
		t.Errorf("samples = %+v, want 9", samples)
	}
}

func TestHistogram_ObserveBuckets(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h := r.NewHistogram("test_hist", "", []float64{1, 5})
	_ = h.Observe(0.5)
	_ = h.Observe(3)
	_ = h.Observe(100)

	samples := h.Collect()
	// 3 buckets (1, 5, +Inf) + sum + count.
	if len(samples) != 5 {
		t.Fatalf("got %d samples, want 5", len(samples))
	}

	byLE := map[string]float64{}
	var sum, count float64
	for _, s := range samples {
		switch {
		case strings.HasSuffix(s.Name, "_bucket"):
			byLE[s.Labels["le"]] = s.Value
		case strings.HasSuffix(s.Name, "_sum"):
			sum = s.Value
		case strings.HasSuffix(s.Name, "_count"):
			count = s.Value
		}
	}

	if byLE["1"] != 1 || byLE["5"] != 2 || byLE["+Inf"] != 3 {
		t.Errorf("bucket counts = %v", byLE)
	}
	if sum != 103.5 || count != 3 {
		t.Errorf("sum = %v count = %v", sum, count)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.NewCounter("dup_total", "")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.NewCounter("dup_total", "")
}

func TestRegistry_HandlerExposition(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c := r.NewCounter("exp_total", "Exposed counter.", "path")
	vec, _ := c.WithLabels(`/a"b`)
	_ = vec.Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	out := string(body)
	if !strings.Contains(out, "# TYPE exp_total counter") {
		t.Errorf("missing TYPE line: %q", out)
	}
	if !strings.Contains(out, `exp_total{path="/a\"b"} 1`) {
		t.Errorf("missing escaped sample: %q", out)
	}
}

func TestNewSet_RegistersDefaults(t *testing.T) {
	t.Parallel()

	set := NewSet()
	if set.RequestsTotal == nil || set.WSConnections == nil || set.RequestDuration == nil {
		t.Fatal("incomplete metric set")
	}

	vec, err := set.RequestsTotal.WithLabels("/health", "GET")
	if err != nil {
		t.Fatalf("WithLabels: %v", err)
	}
	if err := vec.Inc(); err != nil {
		t.Fatalf("Inc: %v", err)
	}
}
