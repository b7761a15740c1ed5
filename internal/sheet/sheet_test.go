package sheet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "12.99", want: "12.99"},
		{input: "12,99", want: "12.99"},
		{input: "1.299,00", want: "1299"},
		{input: "1 299,00 KM", want: "1299"},
		{input: "€1,299.00", want: "1299"},
		{input: "45,5 kn", want: "45.5"},
		{input: "19.999", want: "20"},
		{input: "", wantErr: true},
		{input: "KM", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestParseOptionalPrice(t *testing.T) {
	got, err := ParseOptionalPrice("  ")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	got, err = ParseOptionalPrice("9,90")
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, "9.9", got.Decimal.String())

	_, err = ParseOptionalPrice("n/a")
	assert.Error(t, err)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{name: "comma", content: "title,price\nPhone,10\n", want: ','},
		{name: "semicolon with decimal commas", content: "title;price\nPhone;10,50\nCase;2,00\n", want: ';'},
		{name: "tab", content: "title\tprice\nPhone\t10\n", want: '\t'},
		{name: "single column", content: "title\nPhone\n", want: ','},
		{name: "empty", content: "\n\n", want: ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDelimiter(tt.content))
		})
	}
}

func TestDecode(t *testing.T) {
	// "Čaj šećer" in Windows-1250
	cp1250 := []byte{0xC8, 'a', 'j', ' ', 0x9A, 'e', 0xE6, 'e', 'r'}

	assert.Equal(t, EncodingWindows1250, DetectEncoding(cp1250))
	got, err := Decode(cp1250, DetectEncoding(cp1250))
	require.NoError(t, err)
	assert.Equal(t, "Čaj šećer", got)

	// "š" is 0xB9 in ISO-8859-2
	got, err = Decode([]byte{0xB9, 'a'}, EncodingISO88592)
	require.NoError(t, err)
	assert.Equal(t, "ša", got)

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Čaj")...)
	assert.Equal(t, EncodingUTF8, DetectEncoding(withBOM))
	got, err = Decode(withBOM, EncodingWindows1250)
	require.NoError(t, err)
	assert.Equal(t, "Čaj", got, "valid UTF-8 is never decoded twice")
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "brands.csv", want: FormatCSV},
		{name: "export.TXT", want: FormatCSV},
		{name: "/tmp/registry.xlsx", want: FormatXLSX},
		{name: "macro.xlsm", want: FormatXLSX},
		{name: "old.xls", wantErr: true},
		{name: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV(t *testing.T) {
	data := []byte("Naziv;Cijena;Old Price\n\"Samsung Galaxy S21\";1.299,00;\n;;\nApple iPhone 13;999,00;1.099,00\n")

	table, err := ReadCSV(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Naziv", "Cijena", "Old Price"}, table.Headers)
	require.Len(t, table.Rows, 2, "blank rows are skipped")

	cols := table.Columns("naziv", "cijena", "old_price", "missing")
	assert.Equal(t, map[string]int{"naziv": 0, "cijena": 1, "old_price": 2}, cols)
	assert.Equal(t, "Samsung Galaxy S21", Value(table.Rows[0], cols, "naziv"))
	assert.Equal(t, "", Value(table.Rows[0], cols, "old_price"))
	assert.Equal(t, "1.099,00", Value(table.Rows[1], cols, "old_price"))
	assert.Equal(t, "", Value(table.Rows[1], cols, "missing"))
}

func TestColumnsFoldDiacritics(t *testing.T) {
	table := &Table{Headers: []string{" Šifra ", "Količina"}}
	assert.Equal(t, map[string]int{"sifra": 0, "kolicina": 1}, table.Columns("sifra", "kolicina"))
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"type", "key", "value", "enabled"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Brand", "Samsung", "", "true"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"Color", "crna", "black", "false"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := Read(buf.Bytes(), FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []string{"type", "key", "value", "enabled"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "crna", table.Rows[1][1])

	_, err = ReadXLSX(buf.Bytes(), "Missing")
	assert.Error(t, err)

	_, err = Read(buf.Bytes(), Format("ods"))
	assert.Error(t, err)
}
