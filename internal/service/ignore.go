package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/target/pulse/config"
	"github.com/target/pulse/internal/domain/model"
)

// Ignore reasons, used as metric tags.
const (
	IgnoreReasonDisabled  = "disabled"
	IgnoreReasonNamespace = "namespace"
	IgnoreReasonJob       = "job"
	IgnoreReasonQueue     = "queue"
	IgnoreReasonRoute     = "route"
	IgnoreReasonAsset     = "asset"
	IgnoreReasonHealth    = "health"
)

var (
	assetPathRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|svg|css|js|ico|woff2?|ttf|eot|map)$`)

	assetPrefixes = []string{"/assets/", "/packs/", "/static/", "/__webpack_hmr", "/sockjs-node/", "/favicon"}

	healthPaths = map[string]struct{}{
		"/health": {}, "/health_check": {}, "/healthz": {}, "/readyz": {}, "/livez": {},
		"/status": {}, "/ping": {}, "/up": {},
	}
)

// IgnoreMatcher decides which units of work the collector skips.
type IgnoreMatcher struct {
	enabled       bool
	trackJobs     bool
	trackRequests bool
	trackAssets   bool
	namespace     string
	mountPath     string
	jobs          []model.Pattern
	queues        []model.Pattern
	routes        []model.Pattern
}

// NewIgnoreMatcher compiles the ignore lists in cfg.
func NewIgnoreMatcher(cfg config.TrackingConfig) (*IgnoreMatcher, error) {
	jobs, err := model.ParsePatterns(cfg.IgnoredJobs)
	if err != nil {
		return nil, fmt.Errorf("ignored jobs: %w", err)
	}
	queues, err := model.ParsePatterns(cfg.IgnoredQueues)
	if err != nil {
		return nil, fmt.Errorf("ignored queues: %w", err)
	}
	routes, err := model.ParsePatterns(cfg.IgnoredRoutes)
	if err != nil {
		return nil, fmt.Errorf("ignored routes: %w", err)
	}
	mount := strings.TrimRight(cfg.MountPath, "/")
	return &IgnoreMatcher{
		enabled:       cfg.Enabled,
		trackJobs:     cfg.TrackJobs,
		trackRequests: cfg.TrackRequests,
		trackAssets:   cfg.TrackAssets,
		namespace:     cfg.OwnNamespace,
		mountPath:     mount,
		jobs:          jobs,
		queues:        queues,
		routes:        routes,
	}, nil
}

// IgnoreJob reports whether a job run should execute untracked, and why.
func (m *IgnoreMatcher) IgnoreJob(name, queue string) (bool, string) {
	if m == nil {
		return false, ""
	}
	switch {
	case !m.enabled || !m.trackJobs:
		return true, IgnoreReasonDisabled
	case m.namespace != "" && strings.HasPrefix(name, m.namespace):
		return true, IgnoreReasonNamespace
	case model.MatchAny(m.jobs, name):
		return true, IgnoreReasonJob
	case model.MatchAny(m.queues, queue):
		return true, IgnoreReasonQueue
	}
	return false, ""
}

// IgnoreRequest reports whether a request should be served untracked, and why.
// Route patterns are matched against both the path and "METHOD path".
func (m *IgnoreMatcher) IgnoreRequest(method, path string) (bool, string) {
	if m == nil {
		return false, ""
	}
	switch {
	case !m.enabled || !m.trackRequests:
		return true, IgnoreReasonDisabled
	case m.mountPath != "" && m.mountPath != "/" && (path == m.mountPath || strings.HasPrefix(path, m.mountPath+"/")):
		return true, IgnoreReasonNamespace
	case isHealthPath(path):
		return true, IgnoreReasonHealth
	case !m.trackAssets && isAssetPath(path):
		return true, IgnoreReasonAsset
	case model.MatchAny(m.routes, path), model.MatchAny(m.routes, method+" "+path):
		return true, IgnoreReasonRoute
	}
	return false, ""
}

func isHealthPath(path string) bool {
	_, ok := healthPaths[strings.TrimRight(path, "/")]
	return ok
}

func isAssetPath(path string) bool {
	if assetPathRe.MatchString(path) {
		return true
	}
	for _, p := range assetPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return strings.Contains(path, "/assets/")
}
