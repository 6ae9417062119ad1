package signing

import "testing"

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	path := "submissions/u1/medical/cert.pdf"
	sig := s.Sign(path, 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate(path, "1700000000", sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("submissions/u2/medical/cert.pdf", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong path")
	}
	if s.Validate(path, "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate(path, "not-a-number", sig) {
		t.Fatalf("expected validation to fail for malformed expiry")
	}
}
