package importer

import (
	"context"
	"fmt"

	"github.com/rpattn/stockflow/internal/domain"
	"github.com/rpattn/stockflow/internal/repository"

	"github.com/google/uuid"
)

// NewRepositoryLoader builds the ReferenceLoader backing the validation
// cache from the product and supplier repositories.
func NewRepositoryLoader(products repository.ProductRepository, suppliers repository.SupplierRepository) ReferenceLoader {
	return func(ctx context.Context, tenantID uuid.UUID, kind domain.EntityType) ([]Reference, error) {
		switch kind {
		case domain.EntityTypeProduct:
			items, err := products.List(ctx, tenantID)
			if err != nil {
				return nil, fmt.Errorf("failed to list products for tenant %s: %w", tenantID, err)
			}
			refs := make([]Reference, len(items))
			for i, item := range items {
				refs[i] = Reference{ID: item.ID, Name: item.Name, Code: item.Code}
			}
			return refs, nil
		case domain.EntityTypeSupplier:
			items, err := suppliers.List(ctx, tenantID)
			if err != nil {
				return nil, fmt.Errorf("failed to list suppliers for tenant %s: %w", tenantID, err)
			}
			refs := make([]Reference, len(items))
			for i, item := range items {
				refs[i] = Reference{ID: item.ID, Name: item.Name}
			}
			return refs, nil
		default:
			return nil, fmt.Errorf("no reference loader for entity type %q", kind)
		}
	}
}
