package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// PyroscopeProfiler holds the running continuous profiler, if any.
type PyroscopeProfiler struct {
	profiler *pyroscope.Profiler
}

// StartPyroscope starts continuous profiling when
// ENABLE_CONTINUOUS_PROFILING=true. Server address and environment tag come
// from PYROSCOPE_SERVER_URL and PYROSCOPE_ENVIRONMENT. Returns nil when
// disabled.
func StartPyroscope(serviceName string) (*PyroscopeProfiler, error) {
	if os.Getenv("ENABLE_CONTINUOUS_PROFILING") != "true" {
		return nil, nil
	}

	serverURL := os.Getenv("PYROSCOPE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://pyroscope:4040"
	}

	environment := os.Getenv("PYROSCOPE_ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: fmt.Sprintf("leadlink.%s", serviceName),
		ServerAddress:   serverURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": environment,
			"hostname":    hostname,
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}

	return &PyroscopeProfiler{profiler: profiler}, nil
}

// Stop flushes and stops the profiler. Safe on a nil receiver.
func (p *PyroscopeProfiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}
