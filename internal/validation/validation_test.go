package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@shop.example.com", "user+tag@domain.io"}
	for _, s := range valid {
		if !IsValidEmail(s) {
			t.Errorf("IsValidEmail(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "no-at-sign", "a@b", "two@@b.co", "spaces in@b.co"}
	for _, s := range invalid {
		if IsValidEmail(s) {
			t.Errorf("IsValidEmail(%q) = true, want false", s)
		}
	}
}

func TestIsSupportedCurrency(t *testing.T) {
	if !IsSupportedCurrency("USD") || !IsSupportedCurrency("cad") {
		t.Error("usd and cad should be supported regardless of case")
	}
	if IsSupportedCurrency("jpy") || IsSupportedCurrency("") {
		t.Error("jpy and empty should not be supported")
	}
}

func TestIsValidUUID(t *testing.T) {
	if !IsValidUUID("4f5e6d7c-1a2b-4c3d-8e9f-0a1b2c3d4e5f") {
		t.Error("canonical UUID should be valid")
	}
	if IsValidUUID("not-a-uuid") || IsValidUUID("") {
		t.Error("malformed strings should be invalid")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	errs := Validate(
		Required("orderId", ""),
		ValidEmail("email", "nope"),
		ValidCurrency("currency", "jpy"),
	)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	if errs[0].Field != "orderId" {
		t.Errorf("first error field = %s", errs[0].Field)
	}
}

func TestValidateEmptyOptionalFieldsPass(t *testing.T) {
	errs := Validate(
		ValidEmail("email", ""),
		ValidCurrency("currency", ""),
		ValidUUID("orderId", ""),
	)
	if len(errs) != 0 {
		t.Errorf("optional empty fields should pass, got %v", errs)
	}
}

func TestPositiveAmount(t *testing.T) {
	if err := PositiveAmount("amount", 29.99)(); err != nil {
		t.Errorf("29.99 should pass: %v", err)
	}
	if err := PositiveAmount("amount", 0)(); err == nil {
		t.Error("zero should fail")
	}
	if err := PositiveAmount("amount", -5)(); err == nil {
		t.Error("negative should fail")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hi\x00there  ", 100); got != "hithere" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("got %q", got)
	}
}
