/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package version resolves the version of the running binary and exposes it as a metric.
package version

import (
	"debug/buildinfo"
	"regexp"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ModulePath is the path of the service module.
const ModulePath = "github.com/acronis/go-ratelimitd"

const develVersion = "v0.0.0"

// Version may be set at build time (-ldflags "-X github.com/acronis/go-ratelimitd/internal/version.Version=v1.2.3").
var Version string

var (
	resolved     string
	resolvedOnce sync.Once
)

// Get returns the version of the service.
func Get() string {
	resolvedOnce.Do(func() {
		resolved = Version
		if resolved != "" {
			return
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			resolved = extractModuleVersion(bi, ModulePath)
		}
		if resolved == "" || resolved == "(devel)" {
			resolved = develVersion
		}
	})
	return resolved
}

// extractModuleVersion returns the version of the module from the build info.
// The module may be the main one or a dependency, with or without a major version suffix.
func extractModuleVersion(bi *buildinfo.BuildInfo, modPath string) string {
	if bi == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modPath) + `(/v[0-9]+)?$`)
	if re.MatchString(bi.Main.Path) {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}

// NewBuildInfoCollector returns a gauge that is always 1 and carries the service and Go versions as labels.
func NewBuildInfoCollector(namespace string) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "A metric with a constant '1' value labeled by the version of the service and Go.",
		ConstLabels: prometheus.Labels{"version": Get(), "goversion": runtime.Version()},
	}, func() float64 { return 1 })
}
