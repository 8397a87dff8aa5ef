package diff

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewloop/pkg/models"
)

// Parser parses unified diff output into structured hunks.
type Parser struct{}

// NewParser creates a new diff parser.
func NewParser() *Parser {
	return &Parser{}
}

var (
	// @@ -old_start[,old_count] +new_start[,new_count] @@
	hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	diffGitRe    = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
)

// Parse parses unified diff text into ordered hunks. The input may span
// multiple files; per-file and per-hunk ordering is preserved. Malformed
// input never produces an error: the failure is logged and an empty slice
// is returned, because a broken patch must not abort a review.
func (p *Parser) Parse(patchText string) []models.Hunk {
	if patchText == "" {
		return nil
	}

	var hunks []models.Hunk
	var currentFile string

	lines := strings.Split(patchText, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := diffGitRe.FindStringSubmatch(line); m != nil {
			currentFile = m[2]
			continue
		}
		if strings.HasPrefix(line, "+++ ") {
			path := strings.TrimPrefix(strings.TrimPrefix(line, "+++ "), "b/")
			if path != "/dev/null" {
				currentFile = path
			}
			continue
		}

		m := hunkHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		hunk := models.Hunk{
			FilePath: currentFile,
			OldStart: atoiDefault(m[1], 1),
			OldCount: atoiDefault(m[2], 1),
			NewStart: atoiDefault(m[3], 1),
			NewCount: atoiDefault(m[4], 1),
		}

		consumed := p.classifyLines(&hunk, lines[i+1:])
		i += consumed

		hunks = append(hunks, hunk)
	}

	if len(hunks) == 0 {
		log.Warn().
			Int("bytes", len(patchText)).
			Msg("No hunks found in patch text, treating as recoverable parse failure")
	}

	return hunks
}

// ParseFile parses a per-file patch (e.g. the patch field the GitHub API
// returns, which has no diff --git header) and stamps every hunk with the
// given file path.
func (p *Parser) ParseFile(filePath, patchText string) []models.Hunk {
	hunks := p.Parse(patchText)
	for i := range hunks {
		if hunks[i].FilePath == "" {
			hunks[i].FilePath = filePath
		}
	}
	return hunks
}

// classifyLines walks the body lines of one hunk, classifying each into
// added/removed/context with its line number, and returns how many input
// lines it consumed.
func (p *Parser) classifyLines(hunk *models.Hunk, body []string) int {
	oldLine := hunk.OldStart
	newLine := hunk.NewStart

	for i, line := range body {
		switch {
		case strings.HasPrefix(line, "+"):
			hunk.Added = append(hunk.Added, models.Line{Number: newLine, Text: line[1:]})
			newLine++
		case strings.HasPrefix(line, "-"):
			hunk.Removed = append(hunk.Removed, models.Line{Number: oldLine, Text: line[1:]})
			oldLine++
		case strings.HasPrefix(line, " "):
			hunk.Context = append(hunk.Context, models.Line{Number: newLine, Text: line[1:]})
			oldLine++
			newLine++
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file" markers carry no content.
			continue
		case line == "" && i == len(body)-1:
			// Trailing newline artifact from strings.Split.
			return i
		default:
			// Next file section or hunk header ends this hunk.
			return i
		}

		// The header counts say how many lines each side of the hunk holds;
		// once both sides are satisfied the hunk body is over. Hunks with
		// lying counts fall through to the terminator cases above.
		if len(hunk.Removed)+len(hunk.Context) >= hunk.OldCount &&
			len(hunk.Added)+len(hunk.Context) >= hunk.NewCount {
			return i + 1
		}
	}
	return len(body)
}

// Summarize computes aggregate statistics for a set of hunks. Pure function.
func (p *Parser) Summarize(hunks []models.Hunk) models.ChangeSummary {
	summary := models.ChangeSummary{}
	files := make(map[string]struct{})

	for _, hunk := range hunks {
		summary.TotalAdded += len(hunk.Added)
		summary.TotalRemoved += len(hunk.Removed)
		files[hunk.FilePath] = struct{}{}
	}

	summary.FilesChanged = len(files)
	summary.NetChange = summary.TotalAdded - summary.TotalRemoved
	return summary
}

// Per-language patterns for best-effort symbol extraction.
var symbolPatterns = map[string]*regexp.Regexp{
	"go":   regexp.MustCompile(`^\s*func\s+(?:\(\w+\s+\*?[\w\.\[\]]+\)\s+)?(\w+)\s*\(`),
	"py":   regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`),
	"js":   regexp.MustCompile(`^\s*(?:function\s+(\w+)|const\s+(\w+)\s*=\s*(?:async\s*)?\()`),
	"ts":   regexp.MustCompile(`^\s*(?:function\s+(\w+)|const\s+(\w+)\s*=\s*(?:async\s*)?\()`),
	"java": regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?[\w<>\[\]]+\s+(\w+)\s*\(`),
}

// ExtractSymbols finds function/method names defined in added and context
// lines, keyed by file path. Removed lines are skipped since those symbols
// no longer exist in the result. Files whose extension has no pattern are
// omitted; that is a degrade-gracefully policy, not an error.
func (p *Parser) ExtractSymbols(hunks []models.Hunk) map[string][]string {
	result := make(map[string][]string)
	seen := make(map[string]map[string]struct{})

	for _, hunk := range hunks {
		pattern, ok := symbolPatterns[fileExtension(hunk.FilePath)]
		if !ok {
			continue
		}

		candidates := make([]models.Line, 0, len(hunk.Added)+len(hunk.Context))
		candidates = append(candidates, hunk.Added...)
		candidates = append(candidates, hunk.Context...)

		for _, line := range candidates {
			m := pattern.FindStringSubmatch(line.Text)
			if m == nil {
				continue
			}
			name := firstGroup(m)
			if name == "" {
				continue
			}
			if seen[hunk.FilePath] == nil {
				seen[hunk.FilePath] = make(map[string]struct{})
			}
			if _, dup := seen[hunk.FilePath][name]; dup {
				continue
			}
			seen[hunk.FilePath][name] = struct{}{}
			result[hunk.FilePath] = append(result[hunk.FilePath], name)
		}
	}

	return result
}

// ExtensionCounts returns how many hunks touch files of each extension.
// Files without an extension are counted under "no_extension".
func (p *Parser) ExtensionCounts(hunks []models.Hunk) map[string]int {
	counts := make(map[string]int)
	for _, hunk := range hunks {
		ext := fileExtension(hunk.FilePath)
		if ext == "" {
			ext = "no_extension"
		}
		counts[ext]++
	}
	return counts
}

func fileExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return path[idx+1:]
}

func firstGroup(matches []string) string {
	for _, g := range matches[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
