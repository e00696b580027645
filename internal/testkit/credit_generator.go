package testkit

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"goamcc/adapters/excel"
)

// Credit table columns, label last
var CreditColumns = []string{"age", "employment", "housing", "savings", "purpose", "decision"}

// Credit decision classes; sorted, "rejected" encodes as label 1
const (
	Approved = "approved"
	Rejected = "rejected"
)

// CreditGeneratorConfig configures the credit applicant generator
type CreditGeneratorConfig struct {
	ApplicantCount int     `json:"applicant_count"`
	NoiseRate      float64 `json:"noise_rate"`
	Seed           int64   `json:"seed"`
}

// DefaultCreditConfig returns sensible defaults for credit data generation
func DefaultCreditConfig() CreditGeneratorConfig {
	return CreditGeneratorConfig{
		ApplicantCount: 400,
		NoiseRate:      0.02,
		Seed:           42,
	}
}

// CreditDataGenerator generates applicants whose decision depends on
// employment, savings and housing. Age and purpose carry no signal.
type CreditDataGenerator struct {
	config CreditGeneratorConfig
	rng    *rand.Rand
}

// NewCreditDataGenerator creates a new credit data generator
func NewCreditDataGenerator(config CreditGeneratorConfig) *CreditDataGenerator {
	return &CreditDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// GenerateTable returns the applicants as a table with a header row
func (g *CreditDataGenerator) GenerateTable() *excel.Table {
	table := &excel.Table{Headers: append([]string(nil), CreditColumns...)}
	for i := 0; i < g.config.ApplicantCount; i++ {
		table.Rows = append(table.Rows, g.applicant())
	}
	return table
}

func (g *CreditDataGenerator) applicant() []string {
	employment := pick(g.rng, "unemployed", "part-time", "full-time")
	housing := pick(g.rng, "rent", "own", "free")
	savings := pick(g.rng, "none", "low", "high")
	purpose := pick(g.rng, "car", "education", "business")
	age := 18 + g.rng.Intn(53)

	decision := Approved
	if RejectionRule(employment, housing, savings) {
		decision = Rejected
	}
	if g.rng.Float64() < g.config.NoiseRate {
		decision = flip(decision)
	}
	return []string{fmt.Sprint(age), employment, housing, savings, purpose, decision}
}

// RejectionRule is the noiseless decision the generator labels with
func RejectionRule(employment, housing, savings string) bool {
	return employment == "unemployed" || (savings == "none" && housing == "rent")
}

// WriteCSV writes the generated table to dir/name and returns the path
func (g *CreditDataGenerator) WriteCSV(dir, name string) (string, error) {
	table := g.GenerateTable()
	path := filepath.Join(dir, name)
	if err := excel.NewReportWriter(path).Write(table.Headers, table.Rows); err != nil {
		return "", err
	}
	return path, nil
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func flip(decision string) string {
	if decision == Approved {
		return Rejected
	}
	return Approved
}
