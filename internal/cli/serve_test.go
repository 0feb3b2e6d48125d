package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matzehuels/dataflow/pkg/config"
	"github.com/matzehuels/dataflow/pkg/evaluator"
	"github.com/matzehuels/dataflow/pkg/network"
)

type fixture struct {
	svc *services
	net *network.Network
	ev  *evaluator.Evaluator
}

// newFixture builds and fully evaluates the test pipeline.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	w := newWorkspace(t, "file")
	cfg, err := config.Load(w.config)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := newServices(cfg, newLogger(io.Discard, LogInfo))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.close)

	net, err := svc.loadNetwork(w.pipeline)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := svc.evaluator(net)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ev.Close)
	if _, err := runToCompletion(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	return &fixture{svc: svc, net: net, ev: ev}
}

func (f *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newInspector(f.net, f.ev, f.svc.metrics, f.svc.logger).routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestInspector_Network(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)

	code, body := do(t, http.MethodGet, srv.URL+"/network")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var got networkJSON
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Processors) != 7 || len(got.Connections) != 6 {
		t.Fatalf("got %d processors, %d connections", len(got.Processors), len(got.Connections))
	}
	for _, p := range got.Processors {
		if p.State != "valid" {
			t.Errorf("%s state = %s, want valid", p.ID, p.State)
		}
	}
	if got.Processors[0].ID != "Blur" || got.Processors[0].Type != "Blur" {
		t.Errorf("first processor = %+v, want Blur sorted first", got.Processors[0])
	}
}

func TestInspector_InvalidateAndEvaluate(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)

	code, _ := do(t, http.MethodPost, srv.URL+"/processors/Histogram/invalidate")
	if code != http.StatusAccepted {
		t.Fatalf("invalidate status = %d", code)
	}
	if n, _ := f.net.Processor("Histogram"); n.State() != network.Invalid {
		t.Fatalf("Histogram state = %v, want invalid", n.State())
	}

	code, body := do(t, http.MethodPost, srv.URL+"/evaluate")
	if code != http.StatusOK {
		t.Fatalf("evaluate status = %d: %s", code, body)
	}
	var res resultJSON
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatal(err)
	}
	// New histogram data invalidates Stats, which runs later in the same pass.
	if res.Processed != 2 {
		t.Errorf("processed = %d, want 2 (Histogram and Stats)", res.Processed)
	}

	code, body = do(t, http.MethodPost, srv.URL+"/processors/Nope/invalidate")
	if code != http.StatusNotFound || !strings.Contains(body, `"NOT_FOUND"`) {
		t.Errorf("unknown processor: %d %s", code, body)
	}
}

func TestInspector_Graph(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)

	code, body := do(t, http.MethodGet, srv.URL+"/network.dot")
	if code != http.StatusOK || !strings.HasPrefix(body, "digraph network {") {
		t.Errorf("dot: %d %.40s", code, body)
	}
	code, body = do(t, http.MethodGet, srv.URL+"/network.svg")
	if code != http.StatusOK || !strings.Contains(body, "<svg") {
		t.Errorf("svg: %d %.40s", code, body)
	}
}

func TestInspector_Metrics(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)

	do(t, http.MethodGet, srv.URL+"/healthz")
	do(t, http.MethodPost, srv.URL+"/processors/Stats/invalidate")

	code, body := do(t, http.MethodGet, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, want := range []string{
		`dataflow_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`dataflow_http_requests_total{method="POST",route="/processors/{id}/invalidate",status="202"} 1`,
		`dataflow_processors{state="invalid"} 1`,
		`dataflow_processors{state="valid"} 6`,
		"dataflow_evaluations_total",
		"dataflow_conversions_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestInspector_Version(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t)

	code, body := do(t, http.MethodGet, srv.URL+"/version")
	if code != http.StatusOK || !strings.Contains(body, `"go_version"`) {
		t.Errorf("version: %d %s", code, body)
	}
}
