package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
)

type memoryMappings struct {
	rows    map[string]models.PlantNameMapping
	failOn  string
	counted bool
}

func (m *memoryMappings) UpsertMapping(_ context.Context, mapping *models.PlantNameMapping) error {
	if mapping.PlantUUID == m.failOn {
		return errors.New("boom")
	}
	if existing, ok := m.rows[mapping.PlantUUID]; ok && mapping.Description == nil {
		mapping.Description = existing.Description
	}
	m.rows[mapping.PlantUUID] = *mapping
	return nil
}

func (m *memoryMappings) CountMappings(context.Context) (int, error) {
	m.counted = true
	return len(m.rows), nil
}

func TestPlantNames_AreValidAndUnique(t *testing.T) {
	if len(PlantNames) != 13 {
		t.Fatalf("len(PlantNames) = %d, want 13", len(PlantNames))
	}
	seen := make(map[string]bool)
	for _, p := range PlantNames {
		if _, err := uuid.Parse(p.UUID); err != nil {
			t.Errorf("invalid uuid %q: %v", p.UUID, err)
		}
		if seen[p.UUID] {
			t.Errorf("duplicate uuid %q", p.UUID)
		}
		seen[p.UUID] = true
		if p.Name == "" {
			t.Errorf("empty name for %q", p.UUID)
		}
	}
}

func TestPlantNameMappings_UpsertsAndCounts(t *testing.T) {
	desc := "kept"
	store := &memoryMappings{rows: map[string]models.PlantNameMapping{
		"96f19ddd-d0b9-4a61-a22a-a81afdc6e9db": {PlantUUID: "96f19ddd-d0b9-4a61-a22a-a81afdc6e9db", DisplayName: "Old", Description: &desc},
		"extra":                                {PlantUUID: "extra", DisplayName: "Extra", IsActive: false},
	}}

	total, err := PlantNameMappings(context.Background(), store)
	if err != nil {
		t.Fatalf("PlantNameMappings: %v", err)
	}
	if total != 14 {
		t.Errorf("total = %d, want 14", total)
	}
	grinda := store.rows["96f19ddd-d0b9-4a61-a22a-a81afdc6e9db"]
	if grinda.DisplayName != "Grinda Plant" || !grinda.IsActive {
		t.Errorf("grinda = %+v, want active Grinda Plant", grinda)
	}
	if grinda.Description == nil || *grinda.Description != "kept" {
		t.Errorf("description was not kept: %v", grinda.Description)
	}
}

func TestPlantNameMappings_StopsOnError(t *testing.T) {
	store := &memoryMappings{rows: map[string]models.PlantNameMapping{}, failOn: PlantNames[2].UUID}

	if _, err := PlantNameMappings(context.Background(), store); err == nil {
		t.Fatal("expected error")
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(store.rows))
	}
	if store.counted {
		t.Error("CountMappings should not run after a failed upsert")
	}
}
