package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name     string
		opts     *ListQueryOptions
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "select all",
			opts:     NewListQueryOptions("jobs"),
			wantSQL:  `SELECT * FROM "jobs"`,
			wantArgs: []any{},
		},
		{
			name: "columns conditions order and pagination",
			opts: NewListQueryOptions("jobs",
				WithColumns("id", "name"),
				WithCondition(WhereCond("queue_name", Equal, "default")),
				WithCondition(WhereRawCond("tags @> jsonb_build_array($1::text)", "critical")),
				WithOrderBy("desc", "avg_duration", "id"),
				WithLimit(25),
				WithOffset(50),
			),
			wantSQL: `SELECT "id", "name" FROM "jobs" WHERE "queue_name" = $1 AND (tags @> jsonb_build_array($2::text))` +
				` ORDER BY "avg_duration" DESC, "id" DESC LIMIT $3 OFFSET $4`,
			wantArgs: []any{"default", "critical", 25, 50},
		},
		{
			name: "in list and range",
			opts: NewListQueryOptions("summaries",
				WithCondition(WhereCond("summarizable_id", In, []int64{1, 2})),
				WithCondition(WhereCond("period_start", GreaterThanOrEqual, "a")),
				WithCondition(WhereCond("period_start", LessThan, "b")),
			),
			wantSQL:  `SELECT * FROM "summaries" WHERE "summarizable_id" IN ($1, $2) AND "period_start" >= $3 AND "period_start" < $4`,
			wantArgs: []any{int64(1), int64(2), "a", "b"},
		},
		{
			name: "empty in list is skipped",
			opts: NewListQueryOptions("jobs",
				WithCondition(WhereCond("id", In, []int64{})),
				WithLimit(0),
			),
			wantSQL:  `SELECT * FROM "jobs" LIMIT $1`,
			wantArgs: []any{0},
		},
		{
			name: "count only ignores pagination",
			opts: NewListQueryOptions("jobs",
				WithCountOnly(),
				WithCondition(WhereCond("queue_name", Equal, "mailers")),
				WithLimit(10),
			),
			wantSQL:  `SELECT COUNT(*) FROM "jobs" WHERE "queue_name" = $1`,
			wantArgs: []any{"mailers"},
		},
		{
			name: "identifiers are quoted",
			opts: NewListQueryOptions("jobs",
				WithColumns(`name"; DROP TABLE jobs; --`),
			),
			wantSQL:  `SELECT "name""; DROP TABLE jobs; --" FROM "jobs"`,
			wantArgs: []any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, gotArgs := BuildListQuery(tt.opts)
			assert.Equal(t, tt.wantSQL, gotSQL)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}

func TestBuildListQuery_Nil(t *testing.T) {
	q, args := BuildListQuery(nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}

func TestSortColumn(t *testing.T) {
	allowed := []string{"name", "avg_duration"}
	assert.Equal(t, "avg_duration", SortColumn(" AVG_DURATION ", allowed, "name"))
	assert.Equal(t, "name", SortColumn("id; drop table", allowed, "name"))
	assert.Equal(t, "name", SortColumn("", allowed, "name"))
}

func TestSortDirection(t *testing.T) {
	assert.Equal(t, "DESC", SortDirection("desc", "ASC"))
	assert.Equal(t, "ASC", SortDirection("sideways", "ASC"))
}

func TestWhereCondPanicsOnCustom(t *testing.T) {
	assert.Panics(t, func() { WhereCond("x", Custom, 1) })
}
