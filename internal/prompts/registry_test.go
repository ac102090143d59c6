package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsRender(t *testing.T) {
	r := NewRegistry()
	for _, name := range []Name{Classification, Safety, Math, Reading, RAG, RAGWithContext} {
		system, user, err := r.Render(name, Data{Question: "Câu hỏi: X?", Context: "[1] ngữ cảnh"})
		if err != nil {
			t.Fatalf("Render(%s): %v", name, err)
		}
		if system == "" {
			t.Errorf("%s: empty system prompt", name)
		}
		if !strings.Contains(user, "Câu hỏi: X?") {
			t.Errorf("%s: user prompt missing question: %q", name, user)
		}
	}

	_, user, _ := r.Render(RAGWithContext, Data{Question: "q", Context: "[1] ngữ cảnh"})
	if !strings.Contains(user, "[1] ngữ cảnh") {
		t.Errorf("context not rendered: %q", user)
	}
}

func TestRenderUnknown(t *testing.T) {
	_, _, err := NewRegistry().Render("nope", Data{})
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegisterBadTemplate(t *testing.T) {
	if err := NewRegistry().Register("x", Prompt{User: "{{.Question"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := `math:
  system: "custom math system"
custom:
  system: "s"
  user: "Q={{.Question}}"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	_, defaultUser, _ := r.Render(Math, Data{Question: "q"})
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	system, user, err := r.Render(Math, Data{Question: "q"})
	if err != nil {
		t.Fatal(err)
	}
	if system != "custom math system" {
		t.Errorf("system = %q", system)
	}
	if user != defaultUser {
		t.Errorf("user template should be kept when override omits it:\n%q\n%q", user, defaultUser)
	}

	_, user, err = r.Render("custom", Data{Question: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if user != "Q=abc" {
		t.Errorf("custom user = %q", user)
	}

	names := r.Names()
	if len(names) != 7 {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if err := NewRegistry().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
