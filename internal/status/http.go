// Package status exposes the daemon's routing table and next-hop
// lookup over HTTP (SPEC_FULL.md §4), replacing the original C
// implementation's printf-based print_routing_table debug dump with a
// JSON endpoint in the teacher's handler-construction idiom
// (internal/config/api.go's NewUpdateHandler).
package status

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ripdaemon/ripd/internal/engine"
)

// Engine is the subset of *engine.Engine this package depends on.
type Engine interface {
	GetNextHop(ip uint32) (outgoingInterface uint32, nextHop uint32)
	Routes() []engine.RouteView
}

// NewMux builds the daemon's introspection HTTP surface: GET /routes
// dumps the table, GET /nexthop?ip=a.b.c.d resolves a single query, and
// /metrics serves the Prometheus exposition format.
func NewMux(eng Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Routes())
	})
	mux.HandleFunc("/nexthop", func(w http.ResponseWriter, r *http.Request) {
		ipStr := r.URL.Query().Get("ip")
		ip, err := parseIPv4(ipStr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		iface, nextHop := eng.GetNextHop(ip)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"outgoing_interface": iface,
			"next_hop":           ipv4String(nextHop),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func parseIPv4(s string) (uint32, error) {
	var a, b, c, d uint32
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return 0, fmt.Errorf("status: invalid ip %q", s)
	}
	if a > 255 || b > 255 || c > 255 || d > 255 {
		return 0, fmt.Errorf("status: invalid ip %q", s)
	}
	return a<<24 | b<<16 | c<<8 | d, nil
}

func ipv4String(v uint32) string {
	if v == 0xFFFFFFFF {
		return strconv.Itoa(-1)
	}
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
