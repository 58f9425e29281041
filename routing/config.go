// Package routing turns the gateway route settings into forwarding routes and
// clusters and serves them through a reverse proxy.
package routing

import (
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/errors"
)

// MetadataRouteName holds the route key on every built route.
const MetadataRouteName = "RouteName"

const defaultDestination = "default"

// Match selects the requests of a route.
type Match struct {
	// Path is the configured pattern, e.g. /api/orders/{**rest}.
	Path string
}

// Route is one forwarding rule.
type Route struct {
	ID        string
	ClusterID string
	Match     Match
	Metadata  map[string]string
}

// Destination is one backend address of a cluster.
type Destination struct {
	Address string
}

// Cluster is the set of backends a route forwards to. Built clusters hold a
// single "default" destination.
type Cluster struct {
	ID           string
	Destinations map[string]Destination
}

// Config is the forwarding configuration built from the gateway settings.
type Config struct {
	Routes   []Route
	Clusters map[string]Cluster
}

// Build creates one route and one cluster for every route that has a path
// match. Routes without a path match are skipped. A path match without a base
// URL is a configuration error.
func Build(routing config.RoutingSettings) (*Config, error) {
	cfg := &Config{Clusters: make(map[string]Cluster)}

	for _, key := range routing.RouteKeys() {
		settings := routing.Routes[key]
		if settings.PathMatch == "" {
			continue
		}
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("%w: route %q has a path match but no baseUrl", errors.ErrInvalidRouteConfig, key)
		}
		if u, err := url.Parse(settings.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%w: route %q has an invalid baseUrl %q", errors.ErrInvalidRouteConfig, key, settings.BaseURL)
		}

		clusterID := key + "-cluster"
		cfg.Routes = append(cfg.Routes, Route{
			ID:        key,
			ClusterID: clusterID,
			Match:     Match{Path: settings.PathMatch},
			Metadata:  map[string]string{MetadataRouteName: key},
		})
		cfg.Clusters[clusterID] = Cluster{
			ID:           clusterID,
			Destinations: map[string]Destination{defaultDestination: {Address: settings.BaseURL}},
		}
	}
	return cfg, nil
}
