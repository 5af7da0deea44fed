package topics

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse_TrimsAndSkipsBlanks(t *testing.T) {
	s, err := Parse([]byte("  robotics  \n\n# comment\ngo\nrobotics\n\t\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"robotics", "go"}
	if got := s.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List = %v, want %v", got, want)
	}
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "topics.txt")
	if err := os.WriteFile(p, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 2 || !s.Contains("b") {
		t.Errorf("unexpected set: %v", s.List())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDetect(t *testing.T) {
	s := New("robotics", "Go", "ai", "vision")
	tests := []struct {
		name       string
		text       string
		existing   []string
		ignoreCase bool
		want       []string
	}{
		{"source order", "vision and robotics", nil, false, []string{"robotics", "vision"}},
		{"substring", "I said hello to the aim", nil, false, []string{"ai"}},
		{"skip existing", "robotics vision", []string{"robotics"}, false, []string{"vision"}},
		{"case sensitive miss", "go is fun", nil, false, nil},
		{"ignore case hit", "go is fun", nil, true, []string{"Go"}},
		{"nothing", "nothing to see here", nil, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Detect(tt.text, tt.existing, tt.ignoreCase)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect = %v, want %v", got, tt.want)
			}
		})
	}
}
