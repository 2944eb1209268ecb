package pagination

import "testing"

func TestClampPageSize(t *testing.T) {
	cfg := PageSizeConfig{Default: 20, Max: 100}
	tests := []struct {
		in   int32
		want int
	}{
		{0, 20},
		{-5, 20},
		{7, 7},
		{500, 100},
	}
	for _, tc := range tests {
		if got := ClampPageSize(tc.in, cfg); got != tc.want {
			t.Fatalf("ClampPageSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := ClampPageSize(0, PageSizeConfig{}); got != 1 {
		t.Fatalf("ClampPageSize with empty config = %d, want 1", got)
	}
}

func TestNormalizeOrderBy(t *testing.T) {
	cfg := OrderByConfig{Default: "created_at desc", Allowed: []string{"created_at desc", "price asc"}}

	got, err := NormalizeOrderBy("", cfg)
	if err != nil || got != "created_at desc" {
		t.Fatalf("default order = %q, %v", got, err)
	}
	got, err = NormalizeOrderBy("  price   asc ", cfg)
	if err != nil || got != "price asc" {
		t.Fatalf("collapsed order = %q, %v", got, err)
	}
	if _, err := NormalizeOrderBy("level desc", cfg); err == nil {
		t.Fatal("expected error for unknown order")
	}
}

func TestOffsetTokenRoundTrip(t *testing.T) {
	if token := EncodeOffsetToken(0); token != "" {
		t.Fatalf("zero offset token = %q, want empty", token)
	}
	token := EncodeOffsetToken(40)
	offset, err := DecodeOffsetToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if offset != 40 {
		t.Fatalf("offset = %d, want 40", offset)
	}
}

func TestDecodeOffsetTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "bm9wZQ", EncodeOffsetToken(3) + "x"} {
		if _, err := DecodeOffsetToken(token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}
