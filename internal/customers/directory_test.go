package customers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "\ufeffRA Tel;Bestellnummer;product_name;order_status;shipping_tracking\n" +
	"+49 30 1234567;100234;Kaffeemaschine;versendet;DHL-0001\n" +
	"0176-9876543;100235;Wasserkocher;in Bearbeitung;\n"

func TestLookup(t *testing.T) {
	d, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	tests := []struct {
		name  string
		phone string
		found bool
		order string
	}{
		{"国际格式", "+49301234567", true, "100234"},
		{"仅末七位", "1234567", true, "100234"},
		{"带分隔符", "+49 176 987 6543", true, "100235"},
		{"不存在", "+49 89 5555555", false, ""},
		{"号码过短", "123", false, ""},
		{"空号码", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := d.Lookup(tt.phone)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.order, rec.Order)
		})
	}
}

func TestInstructions(t *testing.T) {
	d, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	rec, ok := d.Lookup("01769876543")
	require.True(t, ok)

	got := rec.Instructions("Basis")
	assert.True(t, strings.HasPrefix(got, "Basis\n\n"))
	assert.Contains(t, got, "Produkt: Wasserkocher")
	assert.Contains(t, got, "Trackingnummer: nicht gefunden")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("Name;Bestellnummer\nA;1\n"))
	assert.ErrorIs(t, err, ErrMissingPhoneColumn)

	_, err = Parse(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kunden.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	var nilDir *Directory
	_, ok := nilDir.Lookup("+49301234567")
	assert.False(t, ok)
}
