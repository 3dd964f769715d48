package phone

import "testing"

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("+55 (92) 99988-7766"); got != "5592999887766" {
		t.Fatalf("expected digits, got %q", got)
	}
	if got := DigitsOnly("abc"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("92999887766", "55"); got != "+5592999887766" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeE164("+5592999887766", "55"); got != "+5592999887766" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeE164("005592999887766", "55"); got != "+5592999887766" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeE164("", "55"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestMatchExactAndSuffix(t *testing.T) {
	if !Match("5592999887766", "5592999887766") {
		t.Fatalf("exact digits should match")
	}
	if !Match("+55 92 99988-7766", "92999887766") {
		t.Fatalf("suffix-10 should match")
	}
	if Match("5592999887766", "5592111122233") {
		t.Fatalf("different numbers should not match")
	}
	if Match("", "5592999887766") {
		t.Fatalf("empty side should not match")
	}
}

// The WhatsApp channels disagree on the mobile ninth digit; both directions
// must resolve to the same contact.
func TestMatchNinthDigit(t *testing.T) {
	with := "5592999887766"  // 55 + 92 + 9 + 99887766
	without := "559299887766" // ninth digit dropped
	if !Match(with, without) {
		t.Fatalf("13-digit vs 12-digit BR forms should match")
	}
	if !Match(without, with) {
		t.Fatalf("match must be symmetric")
	}
	if !Match("92999887766", "559299887766") {
		t.Fatalf("bare 11-digit form should match stripped full form")
	}
}

func TestMatchSymmetricReflexive(t *testing.T) {
	nums := []string{"5592999887766", "92999887766", "+55 92 9988-7766", "11987654321"}
	for _, n := range nums {
		if !Match(n, n) {
			t.Fatalf("match not reflexive for %q", n)
		}
		for _, m := range nums {
			if Match(n, m) != Match(m, n) {
				t.Fatalf("match not symmetric for %q / %q", n, m)
			}
		}
	}
}

// R1: a number always matches its own E.164 form.
func TestMatchRoundTrip(t *testing.T) {
	for _, n := range []string{"92999887766", "5592999887766", "(92) 99988-7766", "11 2345-6789"} {
		if !Match(DigitsOnly(n), NormalizeE164(n, "55")) {
			t.Fatalf("round trip failed for %q", n)
		}
	}
}

func TestLast11(t *testing.T) {
	if got := Last11("5592999887766"); got != "92999887766" {
		t.Fatalf("got %q", got)
	}
	if got := Last11("99887766"); got != "99887766" {
		t.Fatalf("got %q", got)
	}
}
