package server_test

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nasa-jpl/qhylab/server"
	"goji.io"
	"goji.io/pat"
)

func ExampleSubMuxSanitize() {
	fmt.Println(server.SubMuxSanitize("qhy/"), server.SubMuxSanitize(""))
	// Output: /qhy /
}

func TestHumanPayloadJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	server.HumanPayload{T: types.Float64, Float: 1.5}.EncodeAndRespond(w, r)
	f := server.FloatT{}
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 1.5 {
		t.Errorf("expected 1.5 got %f", f.F64)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json got %s", ct)
	}
}

func TestHumanPayloadText(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", "text/plain")
	server.HumanPayload{T: types.String, String: "Idle"}.EncodeAndRespond(w, r)
	if body := w.Body.String(); body != "Idle" {
		t.Errorf("expected Idle got %q", body)
	}
}

func TestRouteTableBind(t *testing.T) {
	rt := server.RouteTable{}
	rt[pat.Get("/state")] = func(w http.ResponseWriter, r *http.Request) {
		server.HumanPayload{T: types.String, String: "Idle"}.EncodeAndRespond(w, r)
	}
	rt[pat.Post("/cancel")] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	mux := goji.NewMux()
	rt.Bind(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/route-list", nil))
	var routes []string
	if err := json.NewDecoder(w.Body).Decode(&routes); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"GET /state", "POST /cancel"}, routes); diff != "" {
		t.Errorf("routes differ (-want +got):\n%s", diff)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cancel", nil))
	if w.Code == http.StatusOK {
		t.Errorf("expected GET on a POST route to fail")
	}
}
