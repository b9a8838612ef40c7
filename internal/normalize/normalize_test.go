package normalize

import (
	"testing"

	"offers-harvester/internal/config"
)

func TestText(t *testing.T) {
	full := NewNormalizer(config.NormalizeConfig{
		TrimNBSP:       true,
		CollapseSpaces: true,
		StripMarkup:    true,
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Save € 4.00 now", "Save € 4.00 now"},
		{"nbsp char", "Save\u00A0€\u00A04.00", "Save € 4.00"},
		{"entities", "Save&nbsp;&euro;&nbsp;4.00", "Save € 4.00"},
		{"markup", "<b>Save</b> € 4.00 <script>alert(1)</script>", "Save € 4.00"},
		{"whitespace", "  Red   \n Wine  ", "Red Wine"},
		{"ampersand", "Salt & Pepper", "Salt & Pepper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := full.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextRespectsConfig(t *testing.T) {
	bare := NewNormalizer(config.NormalizeConfig{})

	input := " <b>A</b>   B "
	if got := bare.Text(input); got != "<b>A</b>   B" {
		t.Errorf("Text(%q) = %q, want only trimming", input, got)
	}
}
