package ignore

import "testing"

func TestMatch(t *testing.T) {
	for _, tc := range []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{name: "suffix glob at root", patterns: []string{"*.log"}, path: "app.log", want: true},
		{name: "suffix glob in subdir", patterns: []string{"*.log"}, path: "logs/app.log", want: true},
		{name: "suffix glob no match", patterns: []string{"*.log"}, path: "app.txt", want: false},
		{name: "dir glob direct child", patterns: []string{"temp/*"}, path: "temp/scratch.txt", want: true},
		{name: "dir glob nested parent", patterns: []string{"temp/*"}, path: "build/temp/scratch.txt", want: true},
		{name: "dir glob deeper child", patterns: []string{"temp/*"}, path: "temp/sub/scratch.txt", want: false},
		{name: "exact name", patterns: []string{"secrets.yaml"}, path: "config/secrets.yaml", want: true},
		{name: "exact name no match", patterns: []string{"secrets.yaml"}, path: "config/secrets.yml", want: false},
		{name: "second pattern matches", patterns: []string{"*.tmp", "*.log"}, path: "app.log", want: true},
		{name: "question mark", patterns: []string{"file?.txt"}, path: "file1.txt", want: true},
		{name: "empty pattern set", patterns: nil, path: "anything.txt", want: false},
		{name: "blank patterns dropped", patterns: []string{"", "  "}, path: "anything.txt", want: false},
		{name: "pattern longer than path", patterns: []string{"a/b/c.txt"}, path: "c.txt", want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.patterns)
			if err != nil {
				t.Fatalf("New(%v): %v", tc.patterns, err)
			}
			if got := m.Match(tc.path); got != tc.want {
				t.Errorf("Match(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestNewInvalidPattern(t *testing.T) {
	if _, err := New([]string{"[unterminated"}); err == nil {
		t.Fatal("New should reject an invalid glob pattern")
	}
}

func TestParse(t *testing.T) {
	m, err := Parse("*.log, temp/*")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("app.log") {
		t.Error("Parse should compile the first comma-separated pattern")
	}
	if !m.Match("temp/file.txt") {
		t.Error("Parse should trim spaces around patterns")
	}
	if m.Match("app.txt") {
		t.Error("unrelated path should not match")
	}
}

func TestParseEmpty(t *testing.T) {
	m, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if m.Match("anything") {
		t.Error("empty pattern list should ignore nothing")
	}
}
