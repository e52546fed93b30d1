package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/mediagrid/internal/index"
	"github.com/JohnDeved/mediagrid/internal/util"
)

// searchKinds are the kind filters the index view cycles through.
var searchKinds = []string{"", "image", "video"}

// searchModel is the index tab: a query box over the metadata cache and
// the state of a running background index.
type searchModel struct {
	input     textinput.Model
	results   []index.Record
	lastQuery string
	kind      int
	searching bool
	err       error

	// cursor and offset index into results; rows is the number of result
	// lines the last render had room for.
	cursor, offset int
	height, rows   int

	indexing  bool
	indexRoot string
	startedAt time.Time
	progress  index.Progress
}

func newSearchModel() searchModel {
	in := textinput.New()
	in.Prompt = "Query: "
	in.PromptStyle = promptStyle
	in.Placeholder = "file or folder name"
	in.CharLimit = 200
	in.Width = 48
	return searchModel{input: in, height: 20}
}

func (s *searchModel) kindFilter() string { return searchKinds[s.kind] }

func (s *searchModel) cycleKind() string {
	s.kind = (s.kind + 1) % len(searchKinds)
	return s.kindFilter()
}

func (s *searchModel) page() int {
	if s.rows > 0 {
		return s.rows
	}
	return max(s.height, 1)
}

// scroll clamps the cursor to the results and moves the window so the
// cursor stays visible.
func (s *searchModel) scroll() {
	n := len(s.results)
	if n == 0 {
		s.cursor, s.offset = 0, 0
		return
	}
	page := s.page()
	s.cursor = min(max(s.cursor, 0), n-1)
	switch {
	case s.cursor < s.offset:
		s.offset = s.cursor
	case s.cursor >= s.offset+page:
		s.offset = s.cursor - page + 1
	}
	s.offset = min(max(s.offset, 0), max(n-page, 0))
}

func (s *searchModel) setResults(query string, results []index.Record) {
	s.lastQuery, s.results = query, results
	s.cursor, s.offset = 0, 0
	s.searching, s.err = false, nil
}

func (s *searchModel) setError(err error) {
	s.searching, s.err = false, err
}

func (s *searchModel) startIndexing(root string) {
	s.indexing, s.indexRoot = true, root
	s.startedAt = time.Now()
	s.progress = index.Progress{}
	s.err = nil
}

func (s *searchModel) finishIndexing(err error) {
	s.indexing, s.err = false, err
}

func (s *searchModel) selected() *index.Record {
	s.scroll()
	if len(s.results) == 0 {
		return nil
	}
	return &s.results[s.cursor]
}

func (s *searchModel) moveUp()   { s.step(-1) }
func (s *searchModel) moveDown() { s.step(1) }

func (s *searchModel) step(d int) {
	next := s.cursor + d
	if next < 0 || next >= len(s.results) {
		return
	}
	s.cursor = next
	s.scroll()
}

func (s *searchModel) pageUp()   { s.jump(-s.page()) }
func (s *searchModel) pageDown() { s.jump(s.page()) }

func (s *searchModel) jump(d int) {
	s.cursor += d
	s.offset += d
	s.scroll()
}

func (s *searchModel) header(width int, spin string) []string {
	kind := s.kindFilter()
	if kind == "" {
		kind = "all"
	}
	lines := []string{
		padToWidth(s.input.View(), width),
		helpStyle.Render("  kind: " + kind),
		"",
	}
	if !s.indexing {
		return lines
	}
	p := s.progress
	elapsed := time.Since(s.startedAt).Round(time.Second)
	return append(lines,
		helpStyle.Render(fmt.Sprintf("  %s indexing %s for %s", spin, util.TruncatePath(s.indexRoot, max(20, width-30)), elapsed)),
		helpStyle.Render("    "+util.TruncatePath(p.CurrentPath, max(20, width-6))),
		helpStyle.Render(fmt.Sprintf("  %s folders, %s files, %s probed, %s skipped, %s errors",
			util.FormatCount(p.Folders), util.FormatCount(p.Files), util.FormatCount(p.Probed),
			util.FormatCount(p.Skipped), util.FormatCount(p.Errors))),
		"",
	)
}

func (s *searchModel) view(width int, spin string) string {
	lines := s.header(width, spin)

	var note string
	switch {
	case s.searching:
		note = fmt.Sprintf("  %s searching", spin)
	case s.err != nil:
		note = errorStyle.Render(fmt.Sprintf("  Error: %v", s.err))
	case len(s.results) == 0 && s.lastQuery != "":
		note = helpStyle.Render(fmt.Sprintf("  nothing cached matches %q", s.lastQuery))
	case len(s.results) == 0:
		note = helpStyle.Render("  Press / to query the cache, u to index the current folder tree.")
	}
	if note != "" {
		lines = append(lines, note)
		return joinPadded(lines, width)
	}

	lines = append(lines, helpStyle.Render(fmt.Sprintf("  %d matches", len(s.results))), "")
	footer := 0
	if len(s.results) > s.page() {
		footer = 1
	}
	s.rows = max(s.height-len(lines)-footer, 1)
	s.scroll()

	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 12)
	for i, r := range s.results[s.offset:min(s.offset+s.rows, len(s.results))] {
		lines = append(lines, renderRecordRow(r, rowWidth, s.offset+i == s.cursor))
	}
	if len(s.results) > s.rows {
		lines = append(lines, helpStyle.Render(fmt.Sprintf("  %d of %d", s.cursor+1, len(s.results))))
	}
	return joinPadded(lines, width)
}

// renderRecordRow draws one search result: extension label, name, size,
// shape and containing folder.
func renderRecordRow(r index.Record, rowWidth int, isSelected bool) string {
	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(r.Name), "."))
	shape := "unprobed"
	if r.Probed() {
		shape = fmt.Sprintf("%dx%d %s", r.Width, r.Height, r.Bucket)
	}
	nameWidth := max(12, rowWidth/2-8)
	folderWidth := max(10, rowWidth-nameWidth-40)
	cells := []string{
		extLabelStyle(ext).Render(fmt.Sprintf(" %-4s ", ext)),
		fileStyle.Render(util.PadRight(r.Name, nameWidth)),
		sizeStyle.Render(util.FormatBytes(r.Size)),
		helpStyle.Render(util.PadRight(shape, 16)),
		dirStyle.Render(util.TruncatePath(r.Folder, folderWidth)),
	}
	line := padToWidth(" "+strings.Join(cells, " "), rowWidth)
	if isSelected {
		return selectedStyle.Render(line)
	}
	return normalStyle.Render(line)
}

func joinPadded(lines []string, width int) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(padToWidth(l, width))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// padToWidth right-pads s with spaces to width display cells.
func padToWidth(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
