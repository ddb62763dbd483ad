package domain

import "testing"

func TestAccount_Validate(t *testing.T) {
	a := &Account{AccountID: "acc-1", Email: "a@x.com", Region: "서울특별시"}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestAccount_Validate_MissingAccountID(t *testing.T) {
	a := &Account{Email: "a@x.com"}
	if err := a.Validate(); err == nil {
		t.Fatal("Validate should fail without account id")
	}
}

func TestAccount_Validate_MissingEmail(t *testing.T) {
	a := &Account{AccountID: "acc-1"}
	if err := a.Validate(); err == nil {
		t.Fatal("Validate should fail without email")
	}
}

func TestAccount_Validate_UnknownRegion(t *testing.T) {
	a := &Account{AccountID: "acc-1", Email: "a@x.com", Region: "평양직할시"}
	if err := a.Validate(); err == nil {
		t.Fatal("Validate should fail for unknown region")
	}
}

func TestAccount_Validate_EmptyRegionAllowed(t *testing.T) {
	// A reconstructed fallback profile has no region.
	a := &Account{AccountID: "acc-1", Email: "a@x.com"}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidRegion(t *testing.T) {
	if !ValidRegion("대전광역시") {
		t.Error("대전광역시 should be valid")
	}
	if ValidRegion("") {
		t.Error("empty region should not be valid")
	}
	if ValidRegion("Seoul") {
		t.Error("non-listed region should not be valid")
	}
}

func TestDefaultDisplayName(t *testing.T) {
	testCases := []struct {
		email string
		want  string
	}{
		{"ava@example.com", "ava"},
		{"a.b+c@example.com", "a.b+c"},
		{"noat", "noat"},
		{"@leading", "@leading"},
	}
	for _, tc := range testCases {
		if got := DefaultDisplayName(tc.email); got != tc.want {
			t.Errorf("DefaultDisplayName(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
