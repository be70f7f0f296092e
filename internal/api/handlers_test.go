package api

import (
	"bytes"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"lta/internal/analysis"
	"lta/internal/config"
	"lta/internal/models"
	"lta/internal/state"

	"github.com/go-chi/chi/v5"
)

const export = `,,Sample,s1,s2,s3,s4
,,Phenotype,experimental,control,experimental,control
,,Tissue,liver,liver,brain,brain
,,Mode,pos,pos,pos,pos
PC 34:1,PC,760.6,1,1,1,1
PC 36:4,PC,782.6,1,0,1,0
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.BootReps = 10
	h := NewHandler(analysis.NewCSVService(cfg.Levels), state.New(), cfg, nil, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, srv *httptest.Server, name, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(body))
	mw.Close()
	resp, err := http.Post(srv.URL+"/api/datasets", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, v interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, want int, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("%s: status %d, want %d", resp.Request.URL.Path, resp.StatusCode, want)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, http.StatusOK, nil)
}

func TestRunLifecycle(t *testing.T) {
	srv := newServer(t)

	var up models.UploadResponse
	decode(t, upload(t, srv, "liver.csv", export), http.StatusCreated, &up)
	if up.Entities != 2 || up.Samples != 4 || !reflect.DeepEqual(up.Modes, []string{"pos"}) {
		t.Fatalf("upload = %+v", up)
	}

	resp, err := http.Get(srv.URL + "/api/datasets")
	if err != nil {
		t.Fatal(err)
	}
	var datasets []models.DatasetStatus
	decode(t, resp, http.StatusOK, &datasets)
	if len(datasets) != 1 || datasets[0].DatasetID != up.DatasetID {
		t.Fatalf("datasets = %+v", datasets)
	}

	var run models.RunResponse
	decode(t, postJSON(t, srv, "/api/runs", models.RunRequest{DatasetIDs: []string{up.DatasetID}}), http.StatusCreated, &run)
	if run.Similarities != 3 || run.Persisted {
		t.Fatalf("run = %+v", run)
	}
	if run.Classes[0].Class != "a" || run.Classes[0].Members["pos"] != 2 {
		t.Fatalf("classes = %+v", run.Classes)
	}

	resp, err = http.Get(srv.URL + "/api/runs/" + run.RunID + "/classes/a")
	if err != nil {
		t.Fatal(err)
	}
	var tables []models.ClassTableResponse
	decode(t, resp, http.StatusOK, &tables)
	if len(tables) != 1 || !reflect.DeepEqual(tables[0].Present, [][]bool{{true, true}, {true, false}}) {
		t.Fatalf("tables = %+v", tables)
	}

	resp, err = http.Get(srv.URL + "/api/runs/" + run.RunID + "/similarity?class=bc")
	if err != nil {
		t.Fatal(err)
	}
	var sims []models.SimilarityResult
	decode(t, resp, http.StatusOK, &sims)
	if len(sims) != 1 || sims[0].Key != "BRAIN_LIVER_pos" || sims[0].PValue != 1 {
		t.Fatalf("similarities = %+v", sims)
	}

	resp, err = http.Get(srv.URL + "/api/runs/" + run.RunID + "/enfc")
	if err != nil {
		t.Fatal(err)
	}
	var fcs []json.RawMessage
	decode(t, resp, http.StatusOK, &fcs)
	if len(fcs) != 4 {
		t.Fatalf("got %d fold changes, want 4", len(fcs))
	}

	for _, path := range []string{"/api/runs/nope", "/api/runs/" + run.RunID + "/classes/z"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		decode(t, resp, http.StatusNotFound, nil)
	}
}

func TestRunErrors(t *testing.T) {
	srv := newServer(t)
	decode(t, postJSON(t, srv, "/api/runs", models.RunRequest{}), http.StatusBadRequest, nil)
	decode(t, postJSON(t, srv, "/api/runs", models.RunRequest{DatasetIDs: []string{"missing"}}), http.StatusNotFound, nil)

	var up models.UploadResponse
	decode(t, upload(t, srv, "liver.csv", export), http.StatusCreated, &up)
	bad := 1.5
	decode(t, postJSON(t, srv, "/api/runs", models.RunRequest{DatasetIDs: []string{up.DatasetID}, Threshold: &bad}),
		http.StatusBadRequest, nil)

	decode(t, upload(t, srv, "liver.txt", export), http.StatusBadRequest, nil)
	decode(t, upload(t, srv, "bad.csv", strings.Replace(export, "782.6,1", "782.6,x", 1)), http.StatusBadRequest, nil)

	resp, err := http.Get(srv.URL + "/api/runs/history")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, http.StatusServiceUnavailable, nil)
}

func TestSimilarity(t *testing.T) {
	srv := newServer(t)

	var got models.SimilarityResponse
	req := models.SimilarityRequest{X: []bool{true, true, true}, Y: []bool{true, false, true}}
	decode(t, postJSON(t, srv, "/api/similarity", req), http.StatusOK, &got)
	if got.PValue != 1 || got.Degenerate != "all 1s" || math.Abs(got.Distance+got.Similarity-1) > 1e-12 {
		t.Fatalf("response = %+v", got)
	}

	req = models.SimilarityRequest{X: []bool{true}, Y: []bool{true, false}}
	decode(t, postJSON(t, srv, "/api/similarity", req), http.StatusBadRequest, nil)

	req = models.SimilarityRequest{X: []bool{true, false}, Y: []bool{false, true}, BootReps: -1}
	decode(t, postJSON(t, srv, "/api/similarity", req), http.StatusBadRequest, nil)

	for _, body := range []string{
		`{"x": [1, 0], "y": [true, false]}`,
		`{"x": [[true], [false]], "y": [true, false]}`,
		`{"x": true, "y": [true]}`,
	} {
		resp, err := http.Post(srv.URL+"/api/similarity", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		decode(t, resp, http.StatusBadRequest, nil)
	}
}

func TestSimilarityUndefined(t *testing.T) {
	srv := newServer(t)
	zero := 0.0
	req := models.SimilarityRequest{X: []bool{false, false}, Y: []bool{false, false}, PX: &zero, PY: &zero}
	var got map[string]interface{}
	decode(t, postJSON(t, srv, "/api/similarity", req), http.StatusOK, &got)
	if got["j_sim"] != nil || got["j_dist"] != nil {
		t.Fatalf("undefined similarity encoded as %v, %v", got["j_sim"], got["j_dist"])
	}
	if got["p_val"] != 1.0 || got["degenerate"] != "all 0s" {
		t.Fatalf("response = %v", got)
	}
}

func TestCluster(t *testing.T) {
	srv := newServer(t)
	var up models.UploadResponse
	decode(t, upload(t, srv, "liver.csv", export), http.StatusCreated, &up)

	var got models.ClusterResponse
	req := models.ClusterRequest{DatasetID: up.DatasetID, Mode: "pos", Clusters: 2, Linkage: "average"}
	decode(t, postJSON(t, srv, "/api/cluster", req), http.StatusOK, &got)
	if !reflect.DeepEqual(got.Samples, []string{"s1", "s2", "s3", "s4"}) || !reflect.DeepEqual(got.Labels, []int{0, 1, 0, 1}) {
		t.Fatalf("cluster = %+v", got)
	}

	req.Linkage = "centroid"
	decode(t, postJSON(t, srv, "/api/cluster", req), http.StatusBadRequest, nil)
	req.Linkage, req.Mode = "average", "neg"
	decode(t, postJSON(t, srv, "/api/cluster", req), http.StatusNotFound, nil)
}
