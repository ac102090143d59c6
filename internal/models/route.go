package models

import (
	"fmt"
	"math"
	"strings"
)

// Category is the task category assigned to a question by the classifier.
type Category string

const (
	CategoryMath      Category = "MATH"
	CategoryReading   Category = "READING"
	CategoryRetrieval Category = "RETRIEVAL"
	CategorySafety    Category = "SAFETY"
)

// ParseCategory accepts a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MATH", "STEM":
		return CategoryMath, true
	case "READING", "READING_COMPREHENSION":
		return CategoryReading, true
	case "RETRIEVAL", "RAG", "KNOWLEDGE":
		return CategoryRetrieval, true
	case "SAFETY", "SAFETY_REFUSAL":
		return CategorySafety, true
	}
	return "", false
}

// Domain is a coarse topic label used to select retrieval parameters and category filters.
type Domain string

const (
	DomainLaw              Domain = "LAW"
	DomainHistory          Domain = "HISTORY"
	DomainGeography        Domain = "GEOGRAPHY"
	DomainCulture          Domain = "CULTURE"
	DomainPolitics         Domain = "POLITICS"
	DomainGeneralKnowledge Domain = "GENERAL_KNOWLEDGE"
)

// Domains lists every domain value.
var Domains = []Domain{
	DomainLaw, DomainHistory, DomainGeography, DomainCulture, DomainPolitics, DomainGeneralKnowledge,
}

var domainAliases = map[string]Domain{
	"LAW":               DomainLaw,
	"PHAP_LUAT":         DomainLaw,
	"PHÁP LUẬT":         DomainLaw,
	"PHÁP_LUẬT":         DomainLaw,
	"HISTORY":           DomainHistory,
	"LỊCH SỬ":           DomainHistory,
	"LICH_SU":           DomainHistory,
	"GEOGRAPHY":         DomainGeography,
	"ĐỊA LÝ":            DomainGeography,
	"DIA_LY":            DomainGeography,
	"CULTURE":           DomainCulture,
	"VĂN HÓA":           DomainCulture,
	"VAN_HOA":           DomainCulture,
	"POLITICS":          DomainPolitics,
	"CHÍNH TRỊ":         DomainPolitics,
	"CHINH_TRI":         DomainPolitics,
	"GENERAL_KNOWLEDGE": DomainGeneralKnowledge,
	"GENERAL":           DomainGeneralKnowledge,
	"KIẾN THỨC CHUNG":   DomainGeneralKnowledge,
}

// ParseDomain accepts enum names case-insensitively as well as Vietnamese labels.
func ParseDomain(s string) (Domain, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if d, ok := domainAliases[key]; ok {
		return d, true
	}
	if d, ok := domainAliases[strings.ReplaceAll(key, " ", "_")]; ok {
		return d, true
	}
	return "", false
}

// QueryRoute is the classifier's decision for one question.
type QueryRoute struct {
	Category           Category `json:"category"`
	Domain             Domain   `json:"domain,omitempty"`
	TemporalConstraint *int     `json:"temporal_constraint,omitempty"`
	KeyEntities        []string `json:"key_entities,omitempty"`
}

// DefaultRoute is used when classification fails: retrieval without a category filter.
func DefaultRoute() QueryRoute {
	return QueryRoute{Category: CategoryRetrieval, Domain: DomainGeneralKnowledge}
}

// RetrievalConfig holds domain-tuned retrieval parameters. UseTemporalFilter enables the
// TemporalBoost multiplier; the year filter itself applies in every domain.
type RetrievalConfig struct {
	TopK              int     `json:"top_k" yaml:"top_k"`
	SparseWeight      float64 `json:"sparse_weight" yaml:"sparse_weight"`
	DenseWeight       float64 `json:"dense_weight" yaml:"dense_weight"`
	UseTemporalFilter bool    `json:"use_temporal_filter" yaml:"use_temporal_filter"`
	TemporalBoost     float64 `json:"temporal_boost" yaml:"temporal_boost"`
}

// WeightTolerance is the allowed deviation of SparseWeight+DenseWeight from 1.
const WeightTolerance = 1e-6

// Validate checks that weights are non-negative and sum to 1 within tolerance.
func (c RetrievalConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.SparseWeight < 0 || c.DenseWeight < 0 {
		return fmt.Errorf("weights must be non-negative (sparse=%v, dense=%v)", c.SparseWeight, c.DenseWeight)
	}
	if math.Abs(c.SparseWeight+c.DenseWeight-1.0) > WeightTolerance {
		return fmt.Errorf("sparse_weight + dense_weight must equal 1.0, got %v", c.SparseWeight+c.DenseWeight)
	}
	return nil
}

// SafetyCheckResult is the outcome of the semantic firewall for one query embedding.
type SafetyCheckResult struct {
	IsSafe          bool    `json:"is_safe"`
	SimilarityScore float64 `json:"similarity_score"`
	MatchedQuery    string  `json:"matched_query,omitempty"`
}
