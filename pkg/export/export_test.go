package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Fall 2024 schedule",
		Headers: []string{"date", "cycle", "period"},
		Rows: []map[string]string{
			{"date": "2024-09-03", "cycle": "Day 1", "period": "Period 1"},
			{"date": "2024-09-03", "cycle": "Day 1", "period": "Period, 2"},
		},
	}
}

func TestCSVExporterQuotes(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "date,cycle,period\n2024-09-03,Day 1,Period 1\n2024-09-03,Day 1,\"Period, 2\"\n", string(out))
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"course", "note"},
		Rows: []map[string]string{
			{"course": "=HYPERLINK(\"http://x\")", "note": "@SUM(A1)"},
			{"course": "MCV4U", "note": "-"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "course,note\n\"'=HYPERLINK(\"\"http://x\"\")\",'@SUM(A1)\nMCV4U,'-\n", string(out))
}

func TestPDFExporterProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, "pdf", r.Extension())

	r, err = ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "csv", r.Extension())

	_, err = ForFormat("xlsx")
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}
