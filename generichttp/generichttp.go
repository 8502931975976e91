// Package generichttp adapts getter and setter functions of devices into HTTP
// handlers that speak the server package's JSON payloads
package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"sync"

	"github.com/nasa-jpl/qhylab/server"
)

type statusRule struct {
	target error
	code   int
}

var (
	statusMu    sync.RWMutex
	statusRules []statusRule
)

// RegisterStatus makes Error reply with code for any error matching target
// under errors.Is.  Rules are tried in the order they were registered.
func RegisterStatus(target error, code int) {
	statusMu.Lock()
	defer statusMu.Unlock()
	statusRules = append(statusRules, statusRule{target, code})
}

// StatusOf returns the HTTP status registered for err, or 500
func StatusOf(err error) int {
	statusMu.RLock()
	defer statusMu.RUnlock()
	for _, rule := range statusRules {
		if errors.Is(err, rule.target) {
			return rule.code
		}
	}
	return http.StatusInternalServerError
}

// Error replies with err's message and the status from StatusOf
func Error(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusOf(err))
}

// decode reads a JSON body into v, replying 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// finish replies 200, or the error
func finish(w http.ResponseWriter, err error) {
	if err != nil {
		Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		server.HumanPayload{T: types.Float64, Float: f}.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		if decode(w, r, &f) {
			finish(w, fcn(f.F64))
		}
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		server.HumanPayload{T: types.Int, Int: i}.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := server.IntT{}
		if decode(w, r, &i) {
			finish(w, fcn(i.Int))
		}
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		server.HumanPayload{T: types.String, String: s}.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := server.StrT{}
		if decode(w, r, &s) {
			finish(w, fcn(s.Str))
		}
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		server.HumanPayload{T: types.Bool, Bool: b}.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		if decode(w, r, &b) {
			finish(w, fcn(b.Bool))
		}
	}
}

// GetJSON calls fcn and returns its result encoded as JSON
func GetJSON(fcn func() (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(v)
	}
}

// Do calls fcn on a POST with no body
func Do(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		finish(w, fcn())
	}
}
