package main

import (
	"net/http"
	"slices"
)

type route struct {
	pattern string
	handler http.HandlerFunc
}

// Router serves the traffic observation and control endpoints:
//
//	/api/frame      latest frame (GET)
//	/api/stats      statistics of the latest frame (GET)
//	/api/control    pause, resume, step, cancel, reset, block (POST)
//	/api/scenarios  predefined scenarios (GET)
//	/ws             frame and event stream, accepts control messages
type Router struct {
	mux    *http.ServeMux
	routes []string
}

// NewRouter registers the routes of server.
func NewRouter(server *WebServer) *Router {
	r := &Router{mux: http.NewServeMux()}
	for _, rt := range server.routes() {
		r.mux.HandleFunc(rt.pattern, rt.handler)
		r.routes = append(r.routes, rt.pattern)
	}
	return r
}

// Routes lists the registered patterns in registration order.
func (r *Router) Routes() []string { return slices.Clone(r.routes) }

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r == nil || r.mux == nil {
		http.NotFound(w, req)
		return
	}
	r.mux.ServeHTTP(w, req)
}
