package extract

import (
	"context"
	"fmt"
	"math/rand"
)

// MockExtractor serves a fixed record set in mock mode and refuses live
// mode. Assessment environments run entirely on mock extractors.
type MockExtractor struct {
	id      string
	name    string
	tables  []Table
	records []Record
}

// NewMockExtractor creates an extractor over a fixed record set.
func NewMockExtractor(id, name string, tables []Table, records []Record) *MockExtractor {
	return &MockExtractor{id: id, name: name, tables: tables, records: records}
}

// ID returns the extractor identifier.
func (e *MockExtractor) ID() string { return e.id }

// Name returns the human-readable label.
func (e *MockExtractor) Name() string { return e.name }

// Tables lists the declared source tables.
func (e *MockExtractor) Tables() []Table { return e.tables }

// Extract returns the fixed record set in mock mode. Live mode is refused
// with a coded error.
func (e *MockExtractor) Extract(ctx context.Context, mode Mode) ([]Record, error) {
	if mode == ModeLive {
		return nil, liveNotSupported(e.id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Record, len(e.records))
	copy(out, e.records)
	return out, nil
}

// NewCustomerMasterMock builds the sample customer master extractor with n
// generated customers. Generation is seeded, so repeated assessment runs see
// identical data.
func NewCustomerMasterMock(n int, seed int64) *MockExtractor {
	rng := rand.New(rand.NewSource(seed))

	countries := []string{"DE", "US", "GB", "FR", "NL", "SE"}
	groups := []string{"Z001", "Z002", "Z003"}

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%06d", i+1)
		records = append(records, Record{
			Key:   id,
			Table: "KNA1",
			Fields: map[string]interface{}{
				"KUNNR": id,
				"NAME1": fmt.Sprintf("Customer %s", id),
				"LAND1": countries[rng.Intn(len(countries))],
				"KTOKD": groups[rng.Intn(len(groups))],
				"LOEVM": "",
			},
		})
	}

	return NewMockExtractor("customer_master", "Customer Master", []Table{
		{Name: "KNA1", Description: "General customer data", Critical: true},
		{Name: "KNB1", Description: "Company code data", Critical: true},
		{Name: "KNVV", Description: "Sales area data", Critical: false},
	}, records)
}

// NewMaterialMasterMock builds the sample material master extractor.
func NewMaterialMasterMock(n int, seed int64) *MockExtractor {
	rng := rand.New(rand.NewSource(seed))

	types := []string{"FERT", "ROH", "HALB"}
	units := []string{"EA", "KG", "L"}

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("MAT-%05d", i+1)
		records = append(records, Record{
			Key:   id,
			Table: "MARA",
			Fields: map[string]interface{}{
				"MATNR": id,
				"MTART": types[rng.Intn(len(types))],
				"MEINS": units[rng.Intn(len(units))],
				"BRGEW": fmt.Sprintf("%.3f", rng.Float64()*100),
			},
		})
	}

	return NewMockExtractor("material_master", "Material Master", []Table{
		{Name: "MARA", Description: "General material data", Critical: true},
		{Name: "MARC", Description: "Plant data", Critical: true},
		{Name: "MBEW", Description: "Material valuation", Critical: false},
	}, records)
}

// RegisterBuiltins loads the sample extractors into a registry.
func RegisterBuiltins(r *Registry) {
	r.Register(NewCustomerMasterMock(100, 1))
	r.Register(NewMaterialMasterMock(100, 2))
}
