// Package prometheus serves the collected metrics on a separate port.
package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/KiloProjects/arena/internal/config"
	"github.com/KiloProjects/arena/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled = config.GenFlag[bool]("integrations.prometheus.enabled", false, "Enable Prometheus metrics")
	port    = config.GenFlag[int]("integrations.prometheus.port", 8071, "Prometheus metrics port")
)

func Enabled() bool {
	return enabled.Value()
}

func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Service returns the supervised metrics server.
func Service() *service.HTTP {
	return service.NewHTTP("prometheus", &http.Server{
		Addr:              fmt.Sprintf(":%d", port.Value()),
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}, 5*time.Second)
}
