package inventory

import (
	"github.com/erazemk/rezervator/internal/catalog"
	"github.com/erazemk/rezervator/internal/model"
)

// validateItem checks an item spec and returns the schema of its category, if
// the category has one.
func (r *Repository) validateItem(spec model.ItemSpec) (catalog.Schema, bool, error) {
	switch {
	case spec.Name == "":
		return catalog.Schema{}, false, model.Invalid("name", "is required")
	case spec.Category == "":
		return catalog.Schema{}, false, model.Invalid("category", "is required")
	case spec.TotalQuantity < 1:
		return catalog.Schema{}, false, model.Invalid("total_quantity", "must be at least 1, got %d", spec.TotalQuantity)
	}
	if err := validateLocation(spec.City, spec.Region); err != nil {
		return catalog.Schema{}, false, err
	}

	schema, ok := r.schema(spec.Category)
	if !ok {
		if len(spec.Attributes) > 0 {
			return catalog.Schema{}, false, model.Invalid("attributes", "category %s has no attribute schema", spec.Category)
		}
		return catalog.Schema{}, false, nil
	}
	if err := schema.Validate(spec.Attributes); err != nil {
		return catalog.Schema{}, false, err
	}
	if schema.SingleUnit && spec.TotalQuantity != 1 {
		return catalog.Schema{}, false, model.Invalid("total_quantity", "must be 1 for category %s, got %d", schema.Category, spec.TotalQuantity)
	}
	return schema, true, nil
}

func validateCommitment(spec model.CommitmentSpec) error {
	switch {
	case spec.ItemID == "":
		return model.Invalid("item_id", "is required")
	case spec.Quantity < 1:
		return model.Invalid("quantity", "must be at least 1, got %d", spec.Quantity)
	case spec.StartDate.IsZero():
		return model.Invalid("start_date", "is required")
	case spec.EndDate.IsZero():
		return model.Invalid("end_date", "is required")
	case spec.EndDate.Before(spec.StartDate):
		return model.Invalid("end_date", "%s is before start %s", spec.EndDate, spec.StartDate)
	}
	return validateLocation(spec.City, spec.Region)
}

func validateLocation(city, region string) error {
	switch {
	case city == "":
		return model.Invalid("city", "is required")
	case region == "":
		return model.Invalid("region_code", "is required")
	case !model.ValidRegion(region):
		return model.Invalid("region_code", "%q is not a known region code", region)
	}
	return nil
}
