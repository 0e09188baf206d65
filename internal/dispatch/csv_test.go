package dispatch

import (
	"encoding/csv"
	"errors"
	"testing"
)

func TestParseContacts(t *testing.T) {
	raw := "nombre,telefono,Hora\n" +
		"Ana,+573000000000,10:00 AM\n" +
		"SinTelefono,,11:00 AM\n" +
		"Luis,+573000000001,12:00 PM\n"

	contacts, err := ParseContacts([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 valid contacts, got %d", len(contacts))
	}
	if contacts[0].Phone != "+573000000000" || contacts[1].Phone != "+573000000001" {
		t.Errorf("unexpected phones: %q, %q", contacts[0].Phone, contacts[1].Phone)
	}
	if contacts[0].Fields["Hora"] != "10:00 AM" {
		t.Errorf("columns must stay addressable by header name, got %v", contacts[0].Fields)
	}
}

func TestParseContactsPhoneColumns(t *testing.T) {
	tests := []struct {
		name   string
		header string
		valid  bool
	}{
		{"telefono", "nombre,telefono", true},
		{"phone", "nombre,phone", true},
		{"Phone capitalized", "nombre,Phone", true},
		{"celular", "nombre,celular", true},
		{"TELEFONO is not recognized", "nombre,TELEFONO", false},
		{"no phone column at all", "nombre,empresa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.header + "\nAna,+573000000000\n"
			contacts, err := ParseContacts([]byte(data))
			if tt.valid {
				if err != nil || len(contacts) != 1 {
					t.Errorf("expected 1 contact, got %d (err=%v)", len(contacts), err)
				}
			} else if !errors.Is(err, ErrNoContacts) {
				t.Errorf("expected ErrNoContacts, got %v", err)
			}
		})
	}
}

func TestParseContactsEmptyAndHeaderOnly(t *testing.T) {
	if _, err := ParseContacts([]byte("")); !errors.Is(err, ErrNoContacts) {
		t.Errorf("empty file: expected ErrNoContacts, got %v", err)
	}
	if _, err := ParseContacts([]byte("nombre,telefono\n")); !errors.Is(err, ErrNoContacts) {
		t.Errorf("header only: expected ErrNoContacts, got %v", err)
	}
}

func TestParseContactsRaggedRows(t *testing.T) {
	raw := "nombre,telefono,Hora\nAna,+573000000000\n"
	contacts, err := ParseContacts([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 {
		t.Fatalf("short rows should still parse, got %d contacts", len(contacts))
	}
	if _, ok := contacts[0].Fields["Hora"]; ok {
		t.Error("missing trailing column should not be present in fields")
	}
}

func TestParseContactsMalformed(t *testing.T) {
	// an unterminated quote is a structural error, not an empty file
	raw := "nombre,telefono\n\"Ana,+573000000000\n"

	_, err := ParseContacts([]byte(raw))
	if err == nil {
		t.Fatal("expected error for malformed csv")
	}
	var parseErr *csv.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("error %v is not a *csv.ParseError, callers cannot map it to a client error", err)
	}
	if errors.Is(err, ErrNoContacts) {
		t.Error("malformed csv must not be reported as an empty contact list")
	}
}
