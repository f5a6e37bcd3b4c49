package importer

import (
	"errors"
	"fmt"

	"github.com/rpattn/stockflow/internal/domain"
)

// ErrUnsupportedEntityType is returned when an import targets an entity type
// the engine has no processing configuration for.
var ErrUnsupportedEntityType = errors.New("unsupported entity type")

// EntityConfig carries the per-entity-type processing rules.
type EntityConfig struct {
	Type            domain.EntityType
	MaxRecords      int
	RequiredColumns []string
	// CriticalColumns lists fields whose errors always block the import.
	CriticalColumns []string
	// MinConfidence gates automatic application of corrections (0-100).
	MinConfidence int
	// Defaults substitute missing values when no format correction applies.
	Defaults map[string]string
}

var entityConfigs = map[domain.EntityType]EntityConfig{
	domain.EntityTypeProduct: {
		Type:            domain.EntityTypeProduct,
		MaxRecords:      50000,
		RequiredColumns: []string{"name", "price"},
		CriticalColumns: []string{"name", "price", "stock"},
		MinConfidence:   80,
		Defaults: map[string]string{
			"category":  "general",
			"stock":     "0",
			"min_stock": "0",
			"unit":      "unit",
		},
	},
	domain.EntityTypeSupplier: {
		Type:            domain.EntityTypeSupplier,
		MaxRecords:      20000,
		RequiredColumns: []string{"name"},
		CriticalColumns: []string{"name", "email"},
		MinConfidence:   75,
		Defaults: map[string]string{
			"address": "",
		},
	},
	domain.EntityTypeMovement: {
		Type:            domain.EntityTypeMovement,
		MaxRecords:      100000,
		RequiredColumns: []string{"product", "type", "quantity"},
		CriticalColumns: []string{"product", "type", "quantity"},
		MinConfidence:   85,
		Defaults: map[string]string{
			"reason": "import",
		},
	},
}

// ConfigFor returns the processing configuration for an entity type.
func ConfigFor(entityType domain.EntityType) (EntityConfig, error) {
	cfg, ok := entityConfigs[entityType]
	if !ok {
		return EntityConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, entityType)
	}
	return cfg, nil
}

// IsCriticalColumn reports whether errors on the column always block imports.
func (c EntityConfig) IsCriticalColumn(column string) bool {
	for _, critical := range c.CriticalColumns {
		if critical == column {
			return true
		}
	}
	return false
}
