package normalize

import "github.com/easycrawl/catalog-service/internal/catalog"

// Extraction is everything the normalizer reads from one title
type Extraction struct {
	CleanedTitle string
	Brand        string
	Model        string // standardized
	ModelRule    ModelRule
	Color        string
	Storage      string
	RAM          string
}

// Extract runs the full pipeline on title. The model is standardized for the
// extracted brand.
func (n *Normalizer) Extract(title string) Extraction {
	ex := Extraction{
		CleanedTitle: n.CleanTitle(title),
		Brand:        n.ExtractBrand(title),
		Color:        n.ExtractColor(title),
		Storage:      n.ExtractStorageInfo(title),
		RAM:          n.ExtractRamInfo(title),
	}
	model, rule := n.ExtractModelDetailed(title, ex.Brand)
	ex.Model = n.StandardizeModelName(ex.Brand, model)
	ex.ModelRule = rule
	return ex
}

// Data converts the extraction into its persisted diagnostic form
func (ex Extraction) Data() catalog.ExtractedData {
	return catalog.ExtractedData{
		CleanedTitle: ex.CleanedTitle,
		Brand:        ex.Brand,
		Model:        ex.Model,
		ModelRule:    ex.ModelRule.String(),
		Color:        ex.Color,
		Storage:      ex.Storage,
		RAM:          ex.RAM,
	}
}
