package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer wraps the router in an *http.Server. The write timeout leaves
// room for a full intent retry sequence.
func NewServer(port uint16, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
