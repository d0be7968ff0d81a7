package schema

import "testing"

const chatSchemaV1 = `{
  "type": "object",
  "properties": {
    "chat": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "text"],
        "properties": {
          "type": {"type": "string"},
          "text": {"type": "string"}
        }
      }
    }
  },
  "required": ["chat"]
}`

func TestPutGetList(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Put("chat.v1", []byte(chatSchemaV1)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, err := r.Get("chat.v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty schema body")
	}

	ids, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != "chat.v1" {
		t.Fatalf("List = %v", ids)
	}
}

func TestValidateEmptySchemaIDAlwaysValid(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Validate("", []byte(`{"anything": true}`)); err != nil {
		t.Fatalf("Validate with empty schema_id: %v", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Put("chat.v1", []byte(chatSchemaV1)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	payload := []byte(`{"chat":[{"type":"assistant"}]}`)
	if err := r.Validate("chat.v1", payload); err == nil {
		t.Fatal("expected validation error for missing required text field")
	}
}

func TestValidateAcceptsConformingDocument(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Put("chat.v1", []byte(chatSchemaV1)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	payload := []byte(`{"chat":[{"type":"assistant","text":"hi"}]}`)
	if err := r.Validate("chat.v1", payload); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateUnknownSchemaIDIsBadInput(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Validate("does-not-exist", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown schema_id")
	}
}

func TestPutInvalidatesCachedValidator(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Put("s", []byte(`{"type":"object","required":["a"]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Validate("s", []byte(`{}`)); err == nil {
		t.Fatal("expected validation error before replacing schema")
	}

	if err := r.Put("s", []byte(`{"type":"object"}`)); err != nil {
		t.Fatalf("Put (replace): %v", err)
	}
	if err := r.Validate("s", []byte(`{}`)); err != nil {
		t.Fatalf("Validate after replace: %v", err)
	}
}
