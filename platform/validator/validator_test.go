package validator

import "testing"

type sample struct {
	Channel string `validate:"required,channel"`
	Name    string `validate:"required,max=5"`
}

func TestRegisterEnumAndFields(t *testing.T) {
	v := New()
	if err := v.RegisterEnum("channel", "EMAIL", "WHATSAPP"); err != nil {
		t.Fatalf("RegisterEnum() error = %v", err)
	}

	if err := v.Struct(sample{Channel: "EMAIL", Name: "ok"}); err != nil {
		t.Fatalf("expected valid sample, got %v", err)
	}

	err := v.Struct(sample{Channel: "SMS", Name: "too long"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := Fields(err)
	if fields["channel"] != "channel" || fields["name"] != "max" {
		t.Fatalf("unexpected field errors: %v", fields)
	}
}
