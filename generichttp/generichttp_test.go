package generichttp_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nasa-jpl/qhylab/generichttp"
)

var errBusy = errors.New("busy")

func init() {
	generichttp.RegisterStatus(errBusy, http.StatusConflict)
}

func TestSetFloat(t *testing.T) {
	var got float64
	h := generichttp.SetFloat(func(f float64) error {
		got = f
		return nil
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"f64": 2.5}`)))
	if w.Code != http.StatusOK || got != 2.5 {
		t.Errorf("expected 200 and 2.5, got %d and %f", w.Code, got)
	}
}

func TestSetFloatBadBody(t *testing.T) {
	h := generichttp.SetFloat(func(f float64) error { return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"f64": "x"`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
}

func TestRegisteredStatus(t *testing.T) {
	h := generichttp.GetInt(func() (int, error) { return 0, errBusy })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 got %d", w.Code)
	}
	if s := generichttp.StatusOf(errors.New("other")); s != http.StatusInternalServerError {
		t.Errorf("expected unregistered errors to be 500, got %d", s)
	}
}

func TestGetString(t *testing.T) {
	h := generichttp.GetString(func() (string, error) { return "Idle", nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	expected := `{"str":"Idle"}`
	if body := strings.TrimSpace(w.Body.String()); body != expected {
		t.Errorf("expected %s got %s", expected, body)
	}
}
