package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterUsesSemicolonByDefault(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"trigram", "reason"},
		Rows:    []map[string]string{{"trigram": "ABC", "reason": "Aucune demande éligible."}},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Equal(t, "trigram;reason", lines[0])
	require.Equal(t, "ABC;Aucune demande éligible.", lines[1])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(WithDelimiter(',')).Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRendersDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Headers: []string{"Trigramme", "Normale"},
		Rows:    []map[string]string{{"Trigramme": "ABC", "Normale": "2024-06-03 / 5"}},
	}, "Attribution automatique")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), "%PDF"))
}
