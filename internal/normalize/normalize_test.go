package normalize

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycrawl/catalog-service/internal/registry"
)

func testNormalizer() *Normalizer {
	entries := []registry.Entry{
		{Type: registry.TypeBrand, Key: "Samsung", Enabled: true},
		{Type: registry.TypeBrand, Key: "Apple", Enabled: true},
		{Type: registry.TypeBrand, Key: "Xiaomi", Enabled: true},
		{Type: registry.TypeBrand, Key: "Redmi", Enabled: true},
		{Type: registry.TypeBrand, Key: "LG", Enabled: true},
		{Type: registry.TypeBrand, Key: "OnePlus", Enabled: true},
		{Type: registry.TypeBrand, Key: "HP", Enabled: true},
		{Type: registry.TypeBrand, Key: "Ultra", Enabled: true},
		{Type: registry.TypeBrand, Key: "Končar", Enabled: true},
		{Type: registry.TypeCommonWord, Key: "akcija", Enabled: true},
		{Type: registry.TypeCommonWord, Key: "novo", Enabled: true},
		{Type: registry.TypeCommonWord, Key: "besplatna dostava", Enabled: true},
		{Type: registry.TypeColor, Key: "black", Enabled: true},
		{Type: registry.TypeColor, Key: "blue", Enabled: true},
		{Type: registry.TypeColor, Key: "crni", Enabled: true},
		{Type: registry.TypeStoragePattern, Key: `(\d+\s?gb)`, Enabled: true},
		{Type: registry.TypeStoragePattern, Key: `(\d+\s?tb)`, Enabled: true},
	}
	return New(registry.NewSnapshot(entries, zerolog.Nop()))
}

func TestCleanTitle(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"brackets and hashtags", "Samsung Galaxy S21 (2021) [NEW] 128GB #promo Phantom Black!", "samsung galaxy s21 128gb phantom black"},
		{"nested brackets", "Kabel (USB (tip C)) 1m", "kabel 1m"},
		{"common words", "AKCIJA Novo Končar usisivač", "koncar usisivac"},
		{"multi word common phrase", "LG TV besplatna dostava", "lg tv"},
		{"keeps plus and hyphen", "Xiaomi 13T 12+256GB  Wi-Fi", "xiaomi 13t 12+256gb wi-fi"},
		{"punctuation becomes space", "Apple/iPhone,14", "apple iphone 14"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.CleanTitle(tt.input))
		})
	}
}

func TestCleanTitleIdempotent(t *testing.T) {
	n := testNormalizer()
	titles := []string{
		"Samsung Galaxy S21 (2021) [NEW] 128GB #promo Phantom Black!",
		"akcija akcija novo",
		"AKCIJA (novo) besplatna   dostava Apple",
		"İstanbul ÇAY #1 {x}",
		"  --  ++ ",
		"Xiaomi Redmi Note 12 Pro+ 8+256GB",
	}
	for _, title := range titles {
		once := n.CleanTitle(title)
		assert.Equal(t, once, n.CleanTitle(once), title)
	}
}

func TestExtractBrand(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single brand", "Samsung Galaxy S21 128GB Phantom Black", "Samsung"},
		{"no brand", "Galaxy S21 128GB", ""},
		{"earliest wins", "Maska za Samsung Galaxy i Apple iPhone", "Samsung"},
		{"earliest of parent and sub brand", "Xiaomi Redmi Note 12", "Xiaomi"},
		{"modifier after text is not a brand", "Samsung Galaxy S21 Ultra", "Samsung"},
		{"modifier at start is a brand", "Ultra punjač Samsung kompatibilan", "Ultra"},
		{"lone modifier match", "Punjač ultra brzi", "Ultra"},
		{"diacritics folded for matching", "KONCAR usisivač", "Končar"},
		{"acronym keeps casing", "LG OLED55C3 televizor", "LG"},
		{"camel case keeps casing", "oneplus 11 5G 256GB", "OnePlus"},
		{"acronym in mixed title", "hp LaserJet M110w", "HP"},
		{"word boundary", "Algoritam knjiga", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.ExtractBrand(tt.input))
		})
	}
}

func TestExtractBrandOnlyFromRegistry(t *testing.T) {
	n := testNormalizer()
	titles := []string{
		"Huawei P30 Pro",
		"Samsung Galaxy S21",
		"Pro Max futrola",
		"LG OLED55C3",
		"Random noname product 2000",
	}
	for _, title := range titles {
		brand := n.ExtractBrand(title)
		if brand == "" {
			continue
		}
		assert.True(t, n.Snapshot().IsBrand(brand), "%q yielded unknown brand %q", title, brand)
		assert.Equal(t, strings.ToUpper(brand[:1]), brand[:1], "brand is capitalized")
	}
}

func TestExtractModel(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name     string
		title    string
		brand    string
		expected string
		rule     ModelRule
	}{
		{"model number", "Samsung Galaxy S21 128GB Phantom Black", "Samsung", "S21", RuleModelNumber},
		{"model number absorbs tier", "Samsung S21 Ultra 256GB", "Samsung", "S21 ultra", RuleModelNumber},
		{"number with tier", "Apple iPhone 14 Pro 128GB", "Apple", "iPhone 14 pro", RuleNumeric},
		{"iphone generation without brand", "iPhone 13 mini 128GB", "", "iPhone 13 mini", RuleNumeric},
		{"bare number of another brand", "Xiaomi 13 Lite 8+256GB", "Xiaomi", "13 lite", RuleNumeric},
		{"digits then letters", "Xiaomi 13T 12+256GB", "Xiaomi", "13t", RuleModelNumber},
		{"spaced storage and ram", "Samsung Galaxy A54 8 GB RAM 128 GB", "Samsung", "A54", RuleModelNumber},
		{"letters hyphen alnum", "LG X-T30 zvučnik", "LG", "X-t30", RuleModelNumber},
		{"fallback tokens skip colors", "Samsung pametni sat crni", "Samsung", "Pametni", RuleTokens},
		{"fallback up to three tokens", "Samsung pametni sat za trcanje", "Samsung", "Pametni sat za", RuleTokens},
		{"first raw token", "Samsung black", "Samsung", "Black", RuleFirstToken},
		{"brand only", "Samsung", "Samsung", "", RuleNone},
		{"no brand given", "Galaxy S21", "", "S21", RuleModelNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, rule := n.ExtractModelDetailed(tt.title, tt.brand)
			assert.Equal(t, tt.expected, model)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestExtractModelNeverReturnsBrand(t *testing.T) {
	n := testNormalizer()
	titles := []string{
		"Samsung",
		"Samsung Samsung",
		"Samsung Galaxy S21",
		"Apple iPhone 14",
		"LG black",
		"Xiaomi 8+128GB black",
		"Ultra ultra kabel",
	}
	for _, title := range titles {
		brand := n.ExtractBrand(title)
		require.NotEmpty(t, brand, title)
		model := n.ExtractModel(title, brand)
		assert.False(t, strings.EqualFold(model, brand), "%q: model %q equals brand", title, model)
	}
}

func TestModelRuleLowConfidence(t *testing.T) {
	assert.False(t, RuleModelNumber.LowConfidence())
	assert.False(t, RuleNumeric.LowConfidence())
	assert.True(t, RuleTokens.LowConfidence())
	assert.True(t, RuleFirstToken.LowConfidence())
	assert.True(t, RuleNone.LowConfidence())
}

func TestExtractColor(t *testing.T) {
	n := testNormalizer()
	assert.Equal(t, "black", n.ExtractColor("Samsung Galaxy S21 Phantom BLACK"))
	assert.Equal(t, "blue", n.ExtractColor("Xiaomi 13T Blue"))
	assert.Equal(t, "", n.ExtractColor("Samsung Galaxy S21 Blackened"))
	assert.Equal(t, "", n.ExtractColor(""))
}

func TestExtractStorageInfo(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"Samsung Galaxy S21 128GB", "128GB"},
		{"Samsung Galaxy S21 128 GB", "128GB"},
		{"Xiaomi 13T 12+256GB", "256GB"},
		{"Xiaomi 13T 8 + 128 gb", "128GB"},
		{"Samsung A54 8GB RAM 128GB", "128GB"},
		{"Vanjski disk 1 TB", "1TB"},
		{"Samsung Galaxy S21", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.ExtractStorageInfo(tt.input))
		})
	}
}

func TestExtractRamInfo(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		input    string
		expected string
	}{
		{"Xiaomi 13T 12+256GB", "12GB"},
		{"Samsung A54 8GB RAM 128GB", "8GB"},
		{"Samsung A54 8 GB RAM", "8GB"},
		{"Samsung A54 RAM 6GB", "6GB"},
		{"Samsung Galaxy S21 128GB", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.ExtractRamInfo(tt.input))
		})
	}
}

func TestStandardizeModelName(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		brand    string
		model    string
		expected string
	}{
		{"Samsung", "Galaxy S21", "S21"},
		{"Samsung", "s 21 ultra", "S21 Ultra"},
		{"Samsung", "galaxy a54", "A54"},
		{"Samsung", "S21 Ultra", "S21 Ultra"},
		{"Apple", "iphone14promax", "iPhone 14 Pro Max"},
		{"Apple", "iPhone14 Pro", "iPhone 14 Pro"},
		{"Apple", "14 pro", "14 Pro"},
		{"Apple", "iPhone 14 pro", "iPhone 14 Pro"},
		{"Xiaomi", "redmi note 12 pro plus", "Redmi note 12 Pro Plus"},
		{"LG", "oled - 55", "Oled-55"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.brand+"/"+tt.model, func(t *testing.T) {
			got := n.StandardizeModelName(tt.brand, tt.model)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, n.StandardizeModelName(tt.brand, got), "standardization is stable")
		})
	}
}

func TestExtractIphoneSpellings(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		title string
		model string
	}{
		{"Apple iPhone 14 Pro 128GB", "iPhone 14 Pro"},
		{"Apple iPhone14 Pro 128GB", "iPhone 14 Pro"},
		{"Apple iPhone14Pro 128GB", "iPhone 14 Pro"},
		{"APPLE IPHONE 14 PRO 128GB crni", "iPhone 14 Pro"},
		{"Apple iPhone 14 Pro Max 256GB", "iPhone 14 Pro Max"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			ex := n.Extract(tt.title)
			assert.Equal(t, "Apple", ex.Brand)
			assert.Equal(t, tt.model, ex.Model)
		})
	}
}

func TestCalculateTitleSimilarity(t *testing.T) {
	n := testNormalizer()

	assert.Equal(t, 1.0, n.CalculateTitleSimilarity("Samsung Galaxy S21", "Samsung Galaxy S21"))
	assert.Equal(t, 1.0, n.CalculateTitleSimilarity("SAMSUNG galaxy s21!", "samsung Galaxy S21"))
	assert.InDelta(t, 2.0/3.0, n.CalculateTitleSimilarity("Samsung Galaxy S21", "Samsung S21"), 1e-9)
	assert.Equal(t, 0.0, n.CalculateTitleSimilarity("Samsung", "Apple"))
	assert.Equal(t, 0.0, n.CalculateTitleSimilarity("", ""))
	assert.Equal(t, 1.0, n.CalculateTitleSimilarity("akcija", "akcija"), "identical titles that clean to nothing")
}

func TestCalculateTitleSimilaritySymmetric(t *testing.T) {
	n := testNormalizer()
	pairs := [][2]string{
		{"Samsung Galaxy S21 128GB", "Samsung S21 Ultra 256GB"},
		{"Apple iPhone 14 Pro", "iPhone 14"},
		{"", "Samsung"},
		{"LG OLED55C3", "LG OLED65C3 televizor"},
	}
	for _, p := range pairs {
		assert.Equal(t, n.CalculateTitleSimilarity(p[0], p[1]), n.CalculateTitleSimilarity(p[1], p[0]), "%v", p)
	}
}

func TestExtract(t *testing.T) {
	n := testNormalizer()

	ex := n.Extract("Samsung Galaxy S21 128GB Phantom Black")
	assert.Equal(t, "samsung galaxy s21 128gb phantom black", ex.CleanedTitle)
	assert.Equal(t, "Samsung", ex.Brand)
	assert.Equal(t, "S21", ex.Model)
	assert.Equal(t, RuleModelNumber, ex.ModelRule)
	assert.Equal(t, "black", ex.Color)
	assert.Equal(t, "128GB", ex.Storage)
	assert.Empty(t, ex.RAM)

	ultra := n.Extract("Samsung S21 Ultra 256GB")
	assert.Equal(t, "S21 Ultra", ultra.Model)
	assert.Equal(t, "256GB", ultra.Storage)

	data := ultra.Data()
	assert.Equal(t, "model-number", data.ModelRule)
	assert.Equal(t, "Samsung", data.Brand)
}

func TestNilSnapshot(t *testing.T) {
	n := New(nil)
	assert.Equal(t, "", n.ExtractBrand("Samsung Galaxy"))
	assert.Equal(t, "samsung galaxy", n.CleanTitle("Samsung Galaxy"))
}
