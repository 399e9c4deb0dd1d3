// Package resolver converts Emby container paths into host paths and CDN
// URLs through a multi-stage prefix mapping pipeline.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/mapping"
)

// Status tags the outcome of a resolution attempt. None of these conditions
// surface as errors; the caller branches on the tag.
type Status string

// Resolution outcomes.
const (
	// StatusSkipped: the source path matched a blacklist prefix and was
	// never resolved.
	StatusSkipped Status = "skipped"
	// StatusResolved: a host path and CDN URL were both derived.
	StatusResolved Status = "resolved"
	// StatusAborted: the path led to a strm file that was missing,
	// unreadable or empty; nothing past that point can be trusted.
	StatusAborted Status = "aborted"
	// StatusUnresolved: a host path was derived but no CDN rule and no
	// smart-match keyword produced a URL.
	StatusUnresolved Status = "unresolved"
)

// Result is the outcome of resolving one source path.
type Result struct {
	Status   Status
	EmbyPath string
	HostPath string
	CDNURL   string
	// Degraded is set when the container mapping stage had no matching
	// rule and the original path was carried forward unchanged.
	Degraded bool
	// Warning describes the degraded or aborted condition for logging.
	Warning string
}

const strmExt = ".strm"

// Resolver runs the path resolution pipeline. It is stateless and safe for
// concurrent use.
type Resolver struct {
	container mapping.Table
	strm      mapping.Table
	cdn       mapping.Table
	blacklist []string
	smart     config.SmartMatchConfig
	readFile  func(string) ([]byte, error)
}

// New builds a Resolver from the configured mapping tables.
func New(mappings config.MappingsConfig, blacklist []string, smart config.SmartMatchConfig) *Resolver {
	return &Resolver{
		container: mapping.NewTable(toRules(mappings.Container)),
		strm:      mapping.NewTable(toRules(mappings.StrmContent)),
		cdn:       mapping.NewTable(toRules(mappings.CDN)),
		blacklist: blacklist,
		smart:     smart,
		readFile:  os.ReadFile,
	}
}

func toRules(rules []config.MappingRule) []mapping.Rule {
	out := make([]mapping.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, mapping.Rule{Source: r.Source, Target: r.Target})
	}
	return out
}

// Resolve runs the pipeline on one source path:
// blacklist check, container-to-host mapping, strm indirection, optional
// strm-content mapping, host-to-CDN mapping with smart-match fallback.
func (r *Resolver) Resolve(embyPath string) Result {
	res := Result{EmbyPath: embyPath}

	// Stage 1: blacklist.
	for _, prefix := range r.blacklist {
		if prefix != "" && strings.HasPrefix(embyPath, prefix) {
			res.Status = StatusSkipped
			res.Warning = fmt.Sprintf("path matches blacklist prefix %s", prefix)
			return res
		}
	}

	// Stage 2: container path to host path. A missing rule degrades
	// rather than fails; the original path is carried forward.
	hostPath, ok := r.container.Resolve(embyPath)
	if !ok {
		hostPath = embyPath
		res.Degraded = true
		res.Warning = "no container mapping rule matched; using source path as host path"
	}

	// Stage 3: strm indirection. The file content is the real path; if it
	// cannot be read there is nothing trustworthy to continue with.
	if strings.EqualFold(filepath.Ext(hostPath), strmExt) {
		content, err := r.readFile(hostPath)
		if err != nil {
			res.Status = StatusAborted
			res.Warning = fmt.Sprintf("strm file unreadable: %v", err)
			return res
		}
		realPath := strings.TrimSpace(string(content))
		if realPath == "" {
			res.Status = StatusAborted
			res.Warning = fmt.Sprintf("strm file %s is empty", hostPath)
			return res
		}

		// Stage 4: optional strm-content mapping; pass-through when no
		// rule matches.
		if mapped, ok := r.strm.Resolve(realPath); ok {
			hostPath = mapped
		} else {
			hostPath = realPath
		}
	}

	res.HostPath = hostPath

	// Stage 5: host path to CDN URL, falling back to smart matching.
	if url, ok := r.cdn.Resolve(hostPath); ok {
		res.Status = StatusResolved
		res.CDNURL = url
		return res
	}

	if r.smart.Enabled {
		if url, ok := r.smartMatch(hostPath); ok {
			res.Status = StatusResolved
			res.CDNURL = url
			return res
		}
	}

	res.Status = StatusUnresolved
	return res
}

// smartMatch scans the host path for the first configured keyword appearing
// as a whole path segment, in keyword priority order, and appends everything
// from that keyword onward to the CDN base URL.
func (r *Resolver) smartMatch(hostPath string) (string, bool) {
	segments := strings.Split(hostPath, "/")
	base := r.smart.CDNBase
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	for _, keyword := range r.smart.Keywords {
		if keyword == "" {
			continue
		}
		for i, segment := range segments {
			if segment == keyword {
				return base + strings.Join(segments[i:], "/"), true
			}
		}
	}
	return "", false
}
