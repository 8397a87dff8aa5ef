package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reviewloop/pkg/models"
)

const simplePatch = `@@ -10,3 +10,5 @@ func main() {
 	a := 1
+	b := 2
+	c := 3
+	d := 4
-	old := 0
 	fmt.Println(a)
`

func TestParseSimpleHunk(t *testing.T) {
	p := NewParser()
	hunks := p.ParseFile("main.go", simplePatch)

	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}
	h := hunks[0]
	if h.FilePath != "main.go" {
		t.Errorf("file path = %q, want main.go", h.FilePath)
	}
	if h.OldStart != 10 || h.OldCount != 3 || h.NewStart != 10 || h.NewCount != 5 {
		t.Errorf("header = -%d,%d +%d,%d, want -10,3 +10,5", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	}
	if len(h.Added) != 3 || len(h.Removed) != 1 || len(h.Context) != 2 {
		t.Errorf("lines = %d+/%d-/%d ctx, want 3/1/2", len(h.Added), len(h.Removed), len(h.Context))
	}
	if h.Added[0].Number != 11 || h.Added[0].Text != "\tb := 2" {
		t.Errorf("first added = %+v, want line 11 %q", h.Added[0], "\tb := 2")
	}
}

func TestParseMultiFile(t *testing.T) {
	patch := `diff --git a/a.go b/a.go
index 123..456 100644
--- a/a.go
+++ b/a.go
@@ -1,2 +1,3 @@
 package a
+var x = 1
 var y = 2
diff --git a/b.py b/b.py
index 789..abc 100644
--- a/b.py
+++ b/b.py
@@ -5,2 +5,2 @@
-def old_name():
+def new_name():
 	pass
`
	p := NewParser()
	hunks := p.Parse(patch)

	if len(hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(hunks))
	}
	if hunks[0].FilePath != "a.go" || hunks[1].FilePath != "b.py" {
		t.Errorf("file order = %q, %q; want a.go, b.py", hunks[0].FilePath, hunks[1].FilePath)
	}
	if len(hunks[1].Added) != 1 || hunks[1].Added[0].Text != "def new_name():" {
		t.Errorf("second hunk added = %+v", hunks[1].Added)
	}
}

func TestParseMalformed(t *testing.T) {
	p := NewParser()
	for _, input := range []string{
		"",
		"not a diff at all",
		"@@ broken header @@\n+x",
		"random\ntext\nwith\nnewlines",
	} {
		if got := p.Parse(input); len(got) != 0 {
			t.Errorf("Parse(%q) = %d hunks, want 0", input, len(got))
		}
	}
}

func TestParseZeroContextHunk(t *testing.T) {
	patch := "@@ -1,0 +1,2 @@\n+first\n+second\n"
	p := NewParser()
	hunks := p.Parse(patch)

	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}
	if len(hunks[0].Added) != 2 || len(hunks[0].Context) != 0 {
		t.Errorf("lines = %d+/%d ctx, want 2/0", len(hunks[0].Added), len(hunks[0].Context))
	}
}

func TestParseNoNewlineMarker(t *testing.T) {
	patch := "@@ -1,1 +1,1 @@\n-old\n\\ No newline at end of file\n+new\n\\ No newline at end of file\n"
	p := NewParser()
	hunks := p.Parse(patch)

	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}
	h := hunks[0]
	if len(h.Added) != 1 || len(h.Removed) != 1 {
		t.Errorf("lines = %d+/%d-, want 1/1", len(h.Added), len(h.Removed))
	}
}

func TestParseOmittedCounts(t *testing.T) {
	// "@@ -3 +3 @@" means one line on each side.
	patch := "@@ -3 +3 @@\n-a\n+b\n"
	p := NewParser()
	hunks := p.Parse(patch)

	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}
	if hunks[0].OldCount != 1 || hunks[0].NewCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", hunks[0].OldCount, hunks[0].NewCount)
	}
}

func TestSummarize(t *testing.T) {
	p := NewParser()
	hunks := []models.Hunk{
		{FilePath: "a.go", Added: make([]models.Line, 3), Removed: make([]models.Line, 1)},
		{FilePath: "a.go", Added: make([]models.Line, 2)},
		{FilePath: "b.go", Removed: make([]models.Line, 4)},
	}

	got := p.Summarize(hunks)
	want := models.ChangeSummary{TotalAdded: 5, TotalRemoved: 5, FilesChanged: 2, NetChange: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	p := NewParser()
	got := p.Summarize(nil)
	want := models.ChangeSummary{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSymbols(t *testing.T) {
	p := NewParser()
	hunks := []models.Hunk{
		{
			FilePath: "service.go",
			Added: []models.Line{
				{Number: 1, Text: "func NewService(cfg *Config) *Service {"},
				{Number: 10, Text: "func (s *Service) Run(ctx context.Context) error {"},
				{Number: 20, Text: "\tx := compute()"},
			},
			Removed: []models.Line{
				{Number: 5, Text: "func deletedHelper() {"},
			},
		},
		{
			FilePath: "worker.py",
			Added: []models.Line{
				{Number: 3, Text: "def process_job(job):"},
			},
		},
		{
			FilePath: "README.md",
			Added: []models.Line{
				{Number: 1, Text: "def not_really_code():"},
			},
		},
	}

	got := p.ExtractSymbols(hunks)
	want := map[string][]string{
		"service.go": {"NewService", "Run"},
		"worker.py":  {"process_job"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractSymbols mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSymbolsDeduplicates(t *testing.T) {
	p := NewParser()
	hunks := []models.Hunk{
		{FilePath: "a.go", Added: []models.Line{{Number: 1, Text: "func Helper() {"}}},
		{FilePath: "a.go", Context: []models.Line{{Number: 9, Text: "func Helper() {"}}},
	}

	got := p.ExtractSymbols(hunks)
	if len(got["a.go"]) != 1 {
		t.Errorf("symbols = %v, want one Helper entry", got["a.go"])
	}
}

func TestExtensionCounts(t *testing.T) {
	p := NewParser()
	hunks := []models.Hunk{
		{FilePath: "a.go"},
		{FilePath: "b.go"},
		{FilePath: "c.py"},
		{FilePath: "Makefile"},
	}

	got := p.ExtensionCounts(hunks)
	want := map[string]int{"go": 2, "py": 1, "no_extension": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtensionCounts mismatch (-want +got):\n%s", diff)
	}
}
