package settlement

import "github.com/prometheus/client_golang/prometheus"

func RouteCounter(path Path) prometheus.Counter {
	return routeTotal.WithLabelValues(string(path))
}
