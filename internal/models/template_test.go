package models

import (
	"testing"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestResolveContentSid(t *testing.T) {
	tests := []struct {
		name     string
		template Template
		want     string
	}{
		{
			name:     "content sid wins",
			template: Template{ContentSid: strPtr("HXaaa"), TwilioSid: strPtr("HXbbb"), TemplateSid: strPtr("HXccc")},
			want:     "HXaaa",
		},
		{
			name:     "twilio sid next",
			template: Template{TwilioSid: strPtr("HXbbb"), TemplateSid: strPtr("HXccc")},
			want:     "HXbbb",
		},
		{
			name:     "template sid last",
			template: Template{TemplateSid: strPtr("HXccc")},
			want:     "HXccc",
		},
		{
			name:     "empty strings are skipped",
			template: Template{ContentSid: strPtr(""), TwilioSid: strPtr("HXbbb")},
			want:     "HXbbb",
		},
		{
			name:     "no sid at all",
			template: Template{},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.template.ResolveContentSid(); got != tt.want {
				t.Errorf("ResolveContentSid() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccessibleBy(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	private := Template{UserID: &owner}
	if !private.AccessibleBy(owner) {
		t.Error("owner should access own template")
	}
	if private.AccessibleBy(other) {
		t.Error("private template should not be accessible to others")
	}

	public := Template{UserID: &owner, IsPublic: true}
	if !public.AccessibleBy(other) {
		t.Error("public template should be accessible to anyone")
	}

	global := Template{}
	if !global.AccessibleBy(other) {
		t.Error("template without owner should be accessible")
	}
}
