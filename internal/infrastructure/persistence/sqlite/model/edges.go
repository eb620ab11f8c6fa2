package model

// RequirementCoverage asserts a test exercises a requirement.
type RequirementCoverage struct {
	RequirementID uint64 `gorm:"column:requirement_id;not null;primaryKey"`
	TestID        uint64 `gorm:"column:test_id;not null;primaryKey"`
	CoverageType  string `gorm:"column:coverage_type;type:text;not null"`
}

func (RequirementCoverage) TableName() string {
	return "requirement_coverage"
}

// EndpointDependency is a directed edge; source and target may belong to
// different applications.
type EndpointDependency struct {
	SourceEndpointID uint64 `gorm:"column:source_endpoint_id;not null;primaryKey"`
	TargetEndpointID uint64 `gorm:"column:target_endpoint_id;not null;primaryKey"`
	DependencyType   string `gorm:"column:dependency_type;type:text;not null"`
}

func (EndpointDependency) TableName() string {
	return "endpoint_dependencies"
}

// TestHitsEndpoint records which endpoints a test exercises; used only by
// impact traversal.
type TestHitsEndpoint struct {
	TestID     uint64 `gorm:"column:test_id;not null;primaryKey"`
	EndpointID uint64 `gorm:"column:endpoint_id;not null;primaryKey"`
}

func (TestHitsEndpoint) TableName() string {
	return "test_hits_endpoints"
}
