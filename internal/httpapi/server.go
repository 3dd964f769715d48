// Package httpapi is the gateway's HTTP surface: send endpoints, provider
// webhooks, the campaign grid, health probes and metrics.
package httpapi

import "github.com/gorilla/mux"

type Server struct {
	Mux *mux.Router
}

func New() *Server {
	return &Server{Mux: mux.NewRouter()}
}
