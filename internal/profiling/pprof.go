// Package profiling exposes the standard pprof endpoints on a side port.
package profiling

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
)

// StartPprofServer starts the pprof server when ENABLE_PROFILING=true.
// It binds to localhost only; profiles are not for external consumption.
func StartPprofServer() {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	port := os.Getenv("PPROF_PORT")
	if port == "" {
		port = "6060"
	}
	addr := "localhost:" + port

	go func() {
		log.Printf("Starting pprof server on http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()
}
