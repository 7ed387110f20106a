package pipeline

import "testing"

func TestExtractTagComplete(t *testing.T) {
	call, start, end, found := ExtractTag(`before [GREP term="password reset"] after`)
	if !found {
		t.Fatal("expected a complete tag to be found")
	}
	if call.Name != ToolGrep || call.Args["term"] != "password reset" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if start != len("before ") || end != len(`before [GREP term="password reset"]`) {
		t.Fatalf("unexpected tag bounds: %d %d", start, end)
	}
}

func TestExtractTagNoneFound(t *testing.T) {
	_, _, _, found := ExtractTag("just plain text, no tags here")
	if found {
		t.Fatal("expected no tag to be found")
	}
}

func TestExtractTagMalformedPassesThrough(t *testing.T) {
	_, _, _, found := ExtractTag(`[GREP term=foo]`) // unquoted value, not matched
	if found {
		t.Fatal("malformed tag must not be treated as complete")
	}
}

func TestHasUnterminatedTagDetectsOpenBracket(t *testing.T) {
	if !HasUnterminatedTag(`some text [GREP term="pass`) {
		t.Fatal("expected an in-progress tag to be detected as unterminated")
	}
	if HasUnterminatedTag(`some text [GREP term="pass"]`) {
		t.Fatal("a completed tag should not be reported as unterminated")
	}
	if HasUnterminatedTag(`plain text with a stray [ bracket and no tool name`) {
		t.Fatal("a bracket that can't start a known tool tag should not force buffering")
	}
}

func TestValidateReadOnlySelectRejectsScopeColumns(t *testing.T) {
	if err := validateReadOnlySelect(`SELECT count(*) FROM document_chunks WHERE tenant_id = 'x'`); err == nil {
		t.Fatal("expected rejection of a query referencing tenant_id")
	}
}

func TestValidateReadOnlySelectRejectsNonSelect(t *testing.T) {
	if err := validateReadOnlySelect(`DELETE FROM document_chunks`); err == nil {
		t.Fatal("expected rejection of a non-SELECT statement")
	}
}

func TestValidateReadOnlySelectAcceptsPlainSelect(t *testing.T) {
	if err := validateReadOnlySelect(`SELECT category, count(*) FROM document_chunks GROUP BY category`); err != nil {
		t.Fatalf("expected a plain aggregate SELECT to validate, got %v", err)
	}
}
