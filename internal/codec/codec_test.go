package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/avila-roffe/agents-catalog/internal/models"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    models.Header
		body string
	}{
		{
			name: "all fields",
			h: models.Header{
				ID:              "jarvis",
				Title:           "Jarvis",
				Kind:            "agent",
				Tags:            models.StringList{"homelab", "kubernetes"},
				Project:         "home-lab",
				Version:         "2.1.0",
				Description:     "Cluster operations assistant",
				LLMProvider:     "anthropic",
				SuggestedModels: models.StringList{"claude-sonnet", "claude-haiku"},
			},
			body: "You are Jarvis.\n\nHelp with cluster operations.",
		},
		{
			name: "required fields only",
			h: models.Header{
				ID:          "minimal",
				Title:       "Minimal",
				Kind:        "agent",
				Tags:        models.StringList{"x"},
				Version:     "1.0.0",
				Description: "Smallest valid agent",
			},
			body: "Do the minimum.",
		},
		{
			name: "body with markdown structure",
			h: models.Header{
				ID:          "writer",
				Title:       "Writer",
				Kind:        "agent",
				Tags:        models.StringList{"writing"},
				Version:     "1.0.0",
				Description: "Writes things",
			},
			body: "# Role\n\nWrite well.\n\n## Constraints\n\n- be brief\n- be clear",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.h, tt.body)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			h, body, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode failed: %v\nencoded:\n%s", err, raw)
			}
			if !reflect.DeepEqual(h, tt.h) {
				t.Errorf("header round trip mismatch:\ngot  %+v\nwant %+v", h, tt.h)
			}
			if body != tt.body {
				t.Errorf("body round trip mismatch:\ngot  %q\nwant %q", body, tt.body)
			}
		})
	}
}

func TestEncodeCanonicalOrder(t *testing.T) {
	h := models.Header{
		ID:          "ordered",
		Title:       "Ordered",
		Kind:        "agent",
		Tags:        models.StringList{"a"},
		Project:     "p",
		Version:     "1.0.0",
		Description: "field order check",
		LLMProvider: "openai",
	}
	raw, err := Encode(h, "body")
	if err != nil {
		t.Fatal(err)
	}
	order := []string{"id:", "title:", "kind:", "tags:", "project:", "version:", "description:", "llm_provider:"}
	last := -1
	for _, key := range order {
		i := strings.Index(raw, key)
		if i < 0 {
			t.Fatalf("encoded document missing %q:\n%s", key, raw)
		}
		if i < last {
			t.Errorf("field %q out of canonical order:\n%s", key, raw)
		}
		last = i
	}
	if strings.Contains(raw, "suggested_models") {
		t.Errorf("unset optional field serialized:\n%s", raw)
	}
}

func TestEncodeEmptyTagsFlowStyle(t *testing.T) {
	h := models.Header{ID: "x", Title: "X", Kind: "agent", Version: "1.0.0", Description: "d"}
	raw, err := Encode(h, "body")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, "tags: []") {
		t.Errorf("empty tags must serialize as a flow-style list:\n%s", raw)
	}
	got, _, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", got.Tags)
	}
}

func TestEncodeNormalizesBodySeparation(t *testing.T) {
	h := models.Header{ID: "x", Title: "X", Kind: "agent", Version: "1.0.0", Description: "d"}
	raw, err := Encode(h, "\n\n\nbody text\n\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, "---\n\nbody text\n") {
		t.Errorf("body must be separated by exactly one blank line:\n%q", raw)
	}
	_, body, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if body != "body text" {
		t.Errorf("body = %q, want %q", body, "body text")
	}
}

func TestDecodeScalarListFields(t *testing.T) {
	raw := "---\n" +
		"id: single\n" +
		"title: Single\n" +
		"kind: agent\n" +
		"tags: solo\n" +
		"version: 1.0.0\n" +
		"description: scalar list coercion\n" +
		"suggested_models: claude-sonnet\n" +
		"---\n\nbody\n"
	h, _, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(h.Tags, models.StringList{"solo"}) {
		t.Errorf("Tags = %v, want one-element list", h.Tags)
	}
	if !reflect.DeepEqual(h.SuggestedModels, models.StringList{"claude-sonnet"}) {
		t.Errorf("SuggestedModels = %v, want one-element list", h.SuggestedModels)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
	}{
		{
			name: "no header at all",
			raw:  "just a plain markdown file\n",
			kind: KindMissingHeader,
		},
		{
			name: "unclosed header block",
			raw:  "---\ntitle: Oops\n",
			kind: KindMissingHeader,
		},
		{
			name: "header is not a mapping",
			raw:  "---\n- just\n- a\n- list\n---\n\nbody\n",
			kind: KindMalformedHeader,
		},
		{
			name: "invalid yaml syntax",
			raw:  "---\ntitle: [unterminated\n---\n\nbody\n",
			kind: KindMalformedHeader,
		},
		{
			name: "missing description",
			raw:  "---\ntitle: T\nversion: 1.0.0\n---\n\nbody\n",
			kind: KindMissingRequiredField,
		},
		{
			name: "missing version",
			raw:  "---\ntitle: T\ndescription: D\n---\n\nbody\n",
			kind: KindMissingRequiredField,
		},
		{
			name: "two-segment version",
			raw:  "---\ntitle: T\ndescription: D\nversion: 1.0\n---\n\nbody\n",
			kind: KindInvalidVersion,
		},
		{
			name: "non-numeric version",
			raw:  "---\ntitle: T\ndescription: D\nversion: a.b.c\n---\n\nbody\n",
			kind: KindInvalidVersion,
		},
		{
			name: "negative version segment",
			raw:  "---\ntitle: T\ndescription: D\nversion: 1.-2.0\n---\n\nbody\n",
			kind: KindInvalidVersion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.raw)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("Decode error = %v, want *DecodeError", err)
			}
			if decodeErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", decodeErr.Kind, tt.kind)
			}
		})
	}
}

func TestDecodeErrorToAPIError(t *testing.T) {
	_, _, err := Decode("no header here")
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatal("expected *DecodeError")
	}
	apiErr := decodeErr.ToAPIError("ops/broken.md")
	if apiErr.Code() != models.ErrDecodeFailed {
		t.Errorf("Code = %s, want %s", apiErr.Code(), models.ErrDecodeFailed)
	}
	if apiErr.Details()["path"] != "ops/broken.md" {
		t.Errorf("Details path = %v", apiErr.Details()["path"])
	}
	if apiErr.Details()["kind"] != string(KindMissingHeader) {
		t.Errorf("Details kind = %v", apiErr.Details()["kind"])
	}
}
