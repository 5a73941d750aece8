package data

import "database/sql"

// Repos bundles the Postgres repositories backing one pulse database.
type Repos struct {
	Jobs       *JobRepo
	Runs       *JobRunRepo
	Routes     *RouteRepo
	Requests   *RequestRepo
	Operations *OperationRepo
	Queries    *QueryRepo
	Aggregates *AggregateRepo
	Summaries  *SummaryRepo
	Retention  *RetentionRepo
}

// NewRepos wires every repository to db.
func NewRepos(db *sql.DB, cfg RepoConfig) *Repos {
	return &Repos{
		Jobs:       NewJobRepo(db, cfg),
		Runs:       NewJobRunRepo(db, cfg),
		Routes:     NewRouteRepo(db, cfg),
		Requests:   NewRequestRepo(db, cfg),
		Operations: NewOperationRepo(db),
		Queries:    NewQueryRepo(db),
		Aggregates: NewAggregateRepo(db, cfg),
		Summaries:  NewSummaryRepo(db, cfg),
		Retention:  NewRetentionRepo(db),
	}
}
