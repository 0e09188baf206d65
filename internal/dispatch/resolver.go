package dispatch

import "strconv"

// ResolveVariables builds the positional variable map the gateway expects:
// keys "1".."n" follow the 1-based position of each name in names.
//
// Per variable, first match wins:
//  1. mappings[name] names a CSV column, use the contact's value for it
//  2. a non-empty default value
//  3. the variable name itself as a CSV column
//  4. empty string (the gateway requires a string per position)
//
// Duplicate names resolve independently at each position.
func ResolveVariables(names []string, contact, mappings, defaults map[string]string) map[string]string {
	resolved := make(map[string]string, len(names))
	for i, name := range names {
		var value string
		if column, ok := mappings[name]; ok && column != "" {
			value = contact[column]
		} else if def := defaults[name]; def != "" {
			value = def
		} else {
			value = contact[name]
		}
		resolved[strconv.Itoa(i+1)] = value
	}
	return resolved
}
