package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// SortDirAsc represents ascending sort direction.
	SortDirAsc = "asc"
	// SortDirDesc represents descending sort direction.
	SortDirDesc = "desc"

	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// ParseLimitOffset parses common pagination params and clamps to sane bounds.
// Values above maxLimit are clamped to maxLimit.
func ParseLimitOffset(r *http.Request, defLimit, maxLimit int) (int, int) {
	if maxLimit < 1 {
		maxLimit = 1
	}

	lim := parseIntQuery(r, "limit", defLimit)
	off := parseIntQuery(r, "offset", 0)
	if lim < 1 {
		lim = 1
	}
	if lim > maxLimit {
		lim = maxLimit
	}
	if off < 0 {
		off = 0
	}
	return lim, off
}

// ParseSortParam reads the sort field and direction. Both "?sort=field:dir" and
// "?sort=field&dir=dir" are accepted. The direction is lower-cased and passed through
// unvalidated so the service can reject it.
func ParseSortParam(q url.Values, sortKey, dirKey string) (string, string) {
	field := strings.TrimSpace(q.Get(sortKey))
	dir := strings.ToLower(strings.TrimSpace(q.Get(dirKey)))
	if f, d, ok := strings.Cut(field, ":"); ok {
		field = strings.TrimSpace(f)
		dir = strings.ToLower(strings.TrimSpace(d))
	}
	return field, dir
}

// optionalQuery returns a pointer to a trimmed query value, or nil when it is blank.
func optionalQuery(q url.Values, key string) *string {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

// pathID parses a positive int64 path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
