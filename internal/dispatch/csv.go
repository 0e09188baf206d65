package dispatch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
)

// phoneColumns are the header names recognized as the phone-bearing column,
// checked in order. Matching is case-sensitive on purpose: these are the
// exact conventions the client exports use.
var phoneColumns = []string{"telefono", "phone", "Phone", "celular"}

var ErrNoContacts = errors.New("csv has no valid contacts")

// Contact is one CSV data row. Fields holds every column keyed by header
// name, so any column is addressable as a variable-mapping target.
type Contact struct {
	Phone  string
	Fields map[string]string
}

// ParseContacts reads a comma-delimited CSV with a header row and returns the
// rows that carry a non-empty phone. Rows without a phone are skipped, not
// errors.
func ParseContacts(data []byte) ([]Contact, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrNoContacts
	}

	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var contacts []Contact
	for _, row := range records[1:] {
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = strings.TrimSpace(row[i])
			}
		}

		phone := ""
		for _, col := range phoneColumns {
			if v := fields[col]; v != "" {
				phone = v
				break
			}
		}
		if phone == "" {
			continue
		}

		contacts = append(contacts, Contact{Phone: phone, Fields: fields})
	}

	if len(contacts) == 0 {
		return nil, ErrNoContacts
	}
	return contacts, nil
}
