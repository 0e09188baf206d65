package dispatch

import (
	"reflect"
	"testing"
)

func TestResolveVariables(t *testing.T) {
	tests := []struct {
		name     string
		vars     []string
		contact  map[string]string
		mappings map[string]string
		defaults map[string]string
		expected map[string]string
	}{
		{
			name:     "mapping beats default beats direct column",
			vars:     []string{"empresa"},
			contact:  map[string]string{"empresa": "CSV_VAL"},
			mappings: map[string]string{"empresa": "empresa"},
			defaults: map[string]string{"empresa": "DEFAULT_VAL"},
			expected: map[string]string{"1": "CSV_VAL"},
		},
		{
			name:     "default fills in when no mapping and no column",
			vars:     []string{"nombre", "empresa"},
			contact:  map[string]string{"nombre": "Ana"},
			mappings: map[string]string{},
			defaults: map[string]string{"empresa": "ACME"},
			expected: map[string]string{"1": "Ana", "2": "ACME"},
		},
		{
			name:     "mapping to another column",
			vars:     []string{"nombre"},
			contact:  map[string]string{"first_name": "Luisa", "nombre": "ignored"},
			mappings: map[string]string{"nombre": "first_name"},
			defaults: map[string]string{},
			expected: map[string]string{"1": "Luisa"},
		},
		{
			name:     "mapped column absent resolves to empty string",
			vars:     []string{"nombre"},
			contact:  map[string]string{"nombre": "Ana"},
			mappings: map[string]string{"nombre": "no_such_column"},
			defaults: map[string]string{"nombre": "never used"},
			expected: map[string]string{"1": ""},
		},
		{
			name:     "unresolvable variable becomes empty string, never missing",
			vars:     []string{"hora"},
			contact:  map[string]string{"nombre": "Ana"},
			mappings: map[string]string{},
			defaults: map[string]string{},
			expected: map[string]string{"1": ""},
		},
		{
			name:     "duplicate variable names resolve independently per position",
			vars:     []string{"nombre", "nombre"},
			contact:  map[string]string{"nombre": "Ana"},
			mappings: map[string]string{},
			defaults: map[string]string{},
			expected: map[string]string{"1": "Ana", "2": "Ana"},
		},
		{
			name:     "no variables yields empty map",
			vars:     nil,
			contact:  map[string]string{"nombre": "Ana"},
			mappings: map[string]string{},
			defaults: map[string]string{},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveVariables(tt.vars, tt.contact, tt.mappings, tt.defaults)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ResolveVariables() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolveVariablesDeterminism(t *testing.T) {
	vars := []string{"empresa", "nombre", "hora"}
	contact := map[string]string{"nombre": "Ana", "Hora": "10:00 AM"}
	mappings := map[string]string{"hora": "Hora"}
	defaults := map[string]string{"empresa": "ACME"}

	first := ResolveVariables(vars, contact, mappings, defaults)
	for i := 0; i < 100; i++ {
		again := ResolveVariables(vars, contact, mappings, defaults)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("resolution is not deterministic: %v vs %v", first, again)
		}
	}
}
