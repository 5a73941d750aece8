// Package database builds parameterized list queries with sanitized identifiers.
package database

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"
	Custom             ConditionType = "CUSTOM"

	unset = -1
)

// Condition is one predicate of a WHERE clause.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
	raw   string
}

// WhereCond compares a column with a bound value. Use WhereRawCond for custom SQL.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // custom conditions must carry raw SQL via WhereRawCond.
		panic("Use WhereRawCond for Custom type")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond embeds raw SQL whose $n placeholders refer to params in order.
// The SQL itself is not sanitized.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{Type: Custom, raw: rawQuery, Value: params}
}

// ListQueryOptions describes a SELECT over a single table.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []string
	OrderDir   string
	Limit      int
	Offset     int
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{Table: table, Limit: unset, Offset: unset}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy sets the ordering columns and direction. Later columns break ties.
func WithOrderBy(direction string, columns ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = columns
		o.OrderDir = direction
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly turns the query into a COUNT(*).
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// SortColumn returns requested when it is in allowed, else fallback.
// Sort fields coming from request parameters must pass through here.
func SortColumn(requested string, allowed []string, fallback string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if slices.Contains(allowed, requested) {
		return requested
	}
	return fallback
}

// SortDirection normalizes a direction to "ASC" or "DESC", defaulting to fallback.
func SortDirection(requested, fallback string) string {
	switch d := strings.ToUpper(strings.TrimSpace(requested)); d {
	case "ASC", "DESC":
		return d
	default:
		return fallback
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// BuildListQuery renders options into SQL and its positional arguments.
//
//	q, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithColumns("id", "name"),
//		WithCondition(WhereCond("queue_name", Equal, "default")),
//		WithOrderBy("DESC", "avg_duration", "id"),
//		WithLimit(50),
//	))
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}

	var q strings.Builder
	switch {
	case o.CountOnly:
		q.WriteString("SELECT COUNT(*)")
	case len(o.Columns) == 0:
		q.WriteString("SELECT *")
	default:
		cols := make([]string, len(o.Columns))
		for i, c := range o.Columns {
			cols[i] = sanitizeIdentifier(c)
		}
		q.WriteString("SELECT " + strings.Join(cols, ", "))
	}
	q.WriteString(" FROM " + sanitizeIdentifier(o.Table))

	where, args, next := buildWhereClause(o.Conditions, 1)
	if where != "" {
		q.WriteString(" " + where)
	}
	if o.CountOnly {
		return q.String(), args
	}

	if len(o.OrderBy) > 0 {
		cols := make([]string, len(o.OrderBy))
		dir := SortDirection(o.OrderDir, "")
		for i, c := range o.OrderBy {
			cols[i] = sanitizeIdentifier(c)
			if dir != "" {
				cols[i] += " " + dir
			}
		}
		q.WriteString(" ORDER BY " + strings.Join(cols, ", "))
	}
	if o.Limit != unset {
		q.WriteString(fmt.Sprintf(" LIMIT $%d", next))
		args = append(args, o.Limit)
		next++
	}
	if o.Offset != unset {
		q.WriteString(fmt.Sprintf(" OFFSET $%d", next))
		args = append(args, o.Offset)
	}
	return q.String(), args
}

func buildWhereClause(conds []Condition, start int) (string, []any, int) {
	parts := make([]string, 0, len(conds))
	args := []any{}
	next := start
	for _, c := range conds {
		sqlPart, condArgs, n := renderCondition(c, next)
		if sqlPart == "" {
			continue
		}
		parts = append(parts, sqlPart)
		args = append(args, condArgs...)
		next = n
	}
	if len(parts) == 0 {
		return "", args, next
	}
	return "WHERE " + strings.Join(parts, " AND "), args, next
}

func renderCondition(c Condition, next int) (string, []any, int) {
	switch c.Type {
	case Custom:
		return renderRaw(c, next)
	case In:
		return renderIn(c, next)
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
		if c.Field == "" {
			return "", nil, next
		}
		return fmt.Sprintf("%s %s $%d", sanitizeIdentifier(c.Field), c.Type, next), []any{c.Value}, next + 1
	}
	return "", nil, next
}

func renderIn(c Condition, next int) (string, []any, int) {
	rv := reflect.ValueOf(c.Value)
	if c.Field == "" || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, next
	}
	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = "$" + strconv.Itoa(next)
		args[i] = rv.Index(i).Interface()
		next++
	}
	return fmt.Sprintf("%s IN (%s)", sanitizeIdentifier(c.Field), strings.Join(placeholders, ", ")), args, next
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// renderRaw renumbers $n placeholders in raw SQL to follow the preceding conditions.
func renderRaw(c Condition, next int) (string, []any, int) {
	if c.raw == "" {
		return "", nil, next
	}
	params, _ := c.Value.([]any)
	var args []any
	mapped := make(map[int]int)
	out := placeholderRe.ReplaceAllStringFunc(c.raw, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		if _, ok := mapped[n]; !ok {
			mapped[n] = next
			args = append(args, params[n-1])
			next++
		}
		return "$" + strconv.Itoa(mapped[n])
	})
	return "(" + out + ")", args, next
}
