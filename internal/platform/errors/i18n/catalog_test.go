package i18n

import "testing"

func TestGetCatalogResolvesLocales(t *testing.T) {
	tests := map[string]string{
		"":        BaseLocale,
		"en-US":   BaseLocale,
		"en-GB":   BaseLocale,
		"pt-BR":   "pt-BR",
		"pt":      "pt-BR",
		" pt-BR ": "pt-BR",
		"ja-JP":   BaseLocale,
		"!!":      BaseLocale,
	}
	for requested, want := range tests {
		if got := GetCatalog(requested).Locale(); got != want {
			t.Fatalf("GetCatalog(%q) = %q, want %q", requested, got, want)
		}
	}
}

func TestFormatFillsPlaceholders(t *testing.T) {
	en := GetCatalog("en-US")
	if got := en.Format(CodeCooldownActive, map[string]string{"Until": "2026-03-02T12:00:00Z"}); got != "This cat was traded recently and can be listed again after 2026-03-02T12:00:00Z." {
		t.Fatalf("cooldown message = %q", got)
	}
	pt := GetCatalog("pt-BR")
	if got := pt.Format(CodeWrongState, map[string]string{"Status": "cancelada"}); got != "Esta oferta está cancelada e não pode ser alterada." {
		t.Fatalf("wrong state message = %q", got)
	}
}

func TestFormatFallbacks(t *testing.T) {
	c := NewCatalog("test", map[Code]string{
		"greet":  "hello {{.Name}}",
		"broken": "{{ if .Name }}",
	})
	if got := c.Format("missing", nil); got != "missing" {
		t.Fatalf("unknown code = %q", got)
	}
	if got := c.Format("greet", nil); got != "hello <no value>" {
		t.Fatalf("missing metadata = %q", got)
	}
	if got := c.Format("broken", map[string]string{"Name": "x"}); got != "{{ if .Name }}" {
		t.Fatalf("unparseable template = %q", got)
	}
}

func TestRegisterCatalogAddsMatchableLocale(t *testing.T) {
	fr := NewCatalog("", map[Code]string{CodeInternal: "Une erreur est survenue."})
	RegisterCatalog("fr-FR", fr)
	if got := GetCatalog("fr-CA"); got != fr {
		t.Fatalf("fr-CA resolved to %q", got.Locale())
	}
	if got := GetCatalog("fr-FR").Format(CodeInternal, nil); got != "Une erreur est survenue." {
		t.Fatalf("message = %q", got)
	}
}
