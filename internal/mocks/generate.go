// Package mocks provides mock implementations for testing the pulse telemetry services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().FindOrCreate(gomock.Any(), "ReportJob", "default").Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// FindOrCreate, GetByID, List, SetTags, CountCreated, CountCreatedByDay
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/pulse/internal/core JobRepository

// Generate mock for JobRunRepository interface from internal/core package.
// This creates MockJobRunRepository with methods for all JobRunRepository interface methods:
// Create, Complete, GetByRunID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_run_repository_mock.go github.com/target/pulse/internal/core JobRunRepository

// Generate mock for RouteRepository interface from internal/core package.
// This creates MockRouteRepository with methods for all RouteRepository interface methods:
// FindOrCreate, GetByID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=route_repository_mock.go github.com/target/pulse/internal/core RouteRepository

// Generate mock for RequestRepository interface from internal/core package.
// This creates MockRequestRepository with methods for all RequestRepository interface methods:
// Create, Complete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=request_repository_mock.go github.com/target/pulse/internal/core RequestRepository

// Generate mock for OperationRepository interface from internal/core package.
// This creates MockOperationRepository with methods for all OperationRepository interface methods:
// Insert
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=operation_repository_mock.go github.com/target/pulse/internal/core OperationRepository

// Generate mock for QueryRepository interface from internal/core package.
// This creates MockQueryRepository with methods for all QueryRepository interface methods:
// FindOrCreate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=query_repository_mock.go github.com/target/pulse/internal/core QueryRepository

// Generate mock for AggregateRepository interface from internal/core package.
// This creates MockAggregateRepository with methods for all AggregateRepository interface methods:
// Accumulate
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=aggregate_repository_mock.go github.com/target/pulse/internal/core AggregateRepository

// Generate mock for SummaryRepository interface from internal/core package.
// This creates MockSummaryRepository with methods for all SummaryRepository interface methods:
// Upsert, List, CompletedRuns
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=summary_repository_mock.go github.com/target/pulse/internal/core SummaryRepository

// Generate mock for RetentionRepository interface from internal/core package.
// This creates MockRetentionRepository with methods for all RetentionRepository interface methods:
// DeleteOlderThan, TrimToLimit
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=retention_repository_mock.go github.com/target/pulse/internal/core RetentionRepository

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete, SetIfNotExists, CompareAndDelete, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/pulse/internal/core CacheRepository
