package cmd

import (
	"testing"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "https://www.googleapis.com/auth/calendar.readonly",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly"},
		},
		{
			name:     "multiple values",
			input:    "https://www.googleapis.com/auth/calendar.readonly,https://www.googleapis.com/auth/calendar.events",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "values with spaces around comma",
			input:    "https://www.googleapis.com/auth/calendar.readonly, https://www.googleapis.com/auth/calendar.events",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  https://www.googleapis.com/auth/calendar.readonly  ,  https://www.googleapis.com/auth/calendar.events  ",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "trailing comma",
			input:    "https://www.googleapis.com/auth/calendar.readonly,https://www.googleapis.com/auth/calendar.events,",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "leading comma",
			input:    ",https://www.googleapis.com/auth/calendar.readonly,https://www.googleapis.com/auth/calendar.events",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "https://www.googleapis.com/auth/calendar.readonly,,https://www.googleapis.com/auth/calendar.events",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly", "https://www.googleapis.com/auth/calendar.events"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: []string{},
		},
		{
			name:     "single value with surrounding whitespace",
			input:    "  https://www.googleapis.com/auth/calendar.readonly  ",
			expected: []string{"https://www.googleapis.com/auth/calendar.readonly"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			// Handle nil vs empty slice comparison
			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

func TestResolveMetricsEnabled(t *testing.T) {
	tests := []struct {
		name        string
		flagValue   bool
		flagChanged bool
		envValue    string
		want        bool
	}{
		{
			name:      "default with no env",
			flagValue: true,
			want:      true,
		},
		{
			name:      "env false disables the default",
			flagValue: true,
			envValue:  "false",
			want:      false,
		},
		{
			name:      "env true keeps metrics on",
			flagValue: true,
			envValue:  "true",
			want:      true,
		},
		{
			name:        "explicit flag wins over env",
			flagValue:   true,
			flagChanged: true,
			envValue:    "false",
			want:        true,
		},
		{
			name:        "explicit disable wins over env",
			flagValue:   false,
			flagChanged: true,
			envValue:    "true",
			want:        false,
		},
		{
			name:      "unparseable env keeps the flag value",
			flagValue: true,
			envValue:  "yes please",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveMetricsEnabled(tt.flagValue, tt.flagChanged, tt.envValue)
			if got != tt.want {
				t.Errorf("resolveMetricsEnabled(%v, %v, %q) = %v, want %v",
					tt.flagValue, tt.flagChanged, tt.envValue, got, tt.want)
			}
		})
	}
}
