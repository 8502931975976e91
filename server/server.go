// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"sort"
	"strings"

	"goji.io"
	"goji.io/pat"
)

// BoolT is a struct with a single bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// FloatT is a struct with a single float64 field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload is a struct containing the basic types a device may work
// with.  T selects which field is sent.
type HumanPayload struct {
	// T is the type of the payload, one of types.Bool, Float64, Int, String
	T types.BasicKind

	Bool   bool
	Float  float64
	Int    int
	String string
}

// EncodeAndRespond writes the payload to w.  The body is JSON in the shape of
// BoolT, FloatT, IntT or StrT, or the bare value as text if the request
// asks for text/plain.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var (
		obj  interface{}
		text string
	)
	switch hp.T {
	case types.Bool:
		obj, text = BoolT{hp.Bool}, fmt.Sprint(hp.Bool)
	case types.Float64:
		obj, text = FloatT{hp.Float}, fmt.Sprint(hp.Float)
	case types.Int:
		obj, text = IntT{hp.Int}, fmt.Sprint(hp.Int)
	case types.String:
		obj, text = StrT{hp.String}, hp.String
	default:
		fstr := fmt.Sprintf("payload type %v not encodable", hp.T)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, text)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		log.Printf("error encoding payload to json %q\n", err)
	}
}

// RouteTable maps goji patterns to handlers
type RouteTable map[*pat.Pattern]http.HandlerFunc

// Endpoints lists the routes in a RouteTable as "METHOD /path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for p := range rt {
		for m := range p.HTTPMethods() {
			if m == http.MethodHead {
				continue
			}
			routes = append(routes, m+" "+p.String())
		}
	}
	sort.Strings(routes)
	return routes
}

// Bind binds the routes to mux, along with GET /route-list which lists them
func (rt RouteTable) Bind(mux *goji.Mux) {
	for p, fn := range rt {
		mux.HandleFunc(p, fn)
	}
	mux.HandleFunc(pat.Get("/route-list"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(rt.Endpoints())
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			log.Println(fstr)
		}
	})
}

// HTTPer is an object which holds a RouteTable that others may add routes to
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize makes a mount point of the form /str out of str, or "/" if
// str is empty
func SubMuxSanitize(str string) string {
	str = strings.Trim(str, "/")
	return "/" + str
}
