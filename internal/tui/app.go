package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/JohnDeved/mediagrid/internal/config"
	"github.com/JohnDeved/mediagrid/internal/decoder"
	"github.com/JohnDeved/mediagrid/internal/index"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/power"
	"github.com/JohnDeved/mediagrid/internal/probe"
	"github.com/JohnDeved/mediagrid/internal/util"
)

// Tab is one of the top-level views.
type Tab int

const (
	TabBrowse Tab = iota
	TabIndex
	TabDecodes
)

// Rows above the grid: title, tabs, separator, breadcrumb, filter line.
const gridTop = 5

// statusTTL is how long a transient status message stays up.
const statusTTL = 3 * time.Second

type entriesMsg struct {
	dir     string
	entries []media.Entry
	records map[string]index.Record
	focus   string
	visit   bool
	err     error
}

type folderChangedMsg struct {
	dir string
	w   *media.Watcher
}

type statusClearMsg struct{ id int }

type resizeMsg struct{ gen int }

type searchResultsMsg struct {
	query   string
	results []index.Record
	err     error
}

type indexProgressMsg struct{ p index.Progress }

type indexDoneMsg struct {
	progress index.Progress
	err      error
}

type jobsChangedMsg struct{}

// opDoneMsg reports a file operation. Rescan reloads the current folder
// and moves the cursor to focus.
type opDoneMsg struct {
	status string
	err    error
	rescan bool
	focus  string
}

// promptKind is the modal prompt shown over the grid.
type promptKind int

const (
	promptNone promptKind = iota
	promptRename
	promptDelete
)

// sender forwards messages from worker goroutines into the program.
// Send blocks until Update receives, so it always runs on its own goroutine.
type sender struct{ p *tea.Program }

func (s *sender) send(msg tea.Msg) {
	if s.p != nil {
		go s.p.Send(msg)
	}
}

// Model is the root Bubble Tea model holding the three views.
type Model struct {
	cfg    *config.Config
	db     *index.DB
	prober *probe.Prober
	dec    *decoder.Manager
	log    *slog.Logger
	out    *sender

	activeTab   Tab
	browser     *browser
	search      searchModel
	decodes     decodesModel
	spinner     spinner.Model
	width       int
	height      int
	sized       bool
	resizeGen   int
	showHelp    bool
	helpOffset  int
	statusMsg   string
	statusID    int
	quitConfirm bool
	prompt      promptKind
	input       textinput.Model
	indexCancel context.CancelFunc
	startPath   string
}

// NewModel creates the TUI model. A nil db disables the metadata cache.
func NewModel(cfg *config.Config, db *index.DB, startPath string, log *slog.Logger) Model {
	if log == nil {
		log = slog.Default()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot

	ti := textinput.New()
	ti.CharLimit = 255
	ti.Prompt = "Rename to: "
	ti.PromptStyle = promptStyle

	pr := probe.New(cfg.FFProbePath, log)
	dec := decoder.NewManager(pr, cfg.DecodeWorkers, log)
	out := &sender{}
	dec.SetOnChange(func() { out.send(jobsChangedMsg{}) })
	dec.SetOnDone(func(j *decoder.Job) { out.send(decodeDoneMsg{job: j}) })

	return Model{
		cfg:       cfg,
		db:        db,
		prober:    pr,
		dec:       dec,
		log:       log,
		out:       out,
		activeTab: TabBrowse,
		browser:   newBrowser(cfg, db, dec, log),
		search:    newSearchModel(),
		decodes:   newDecodesModel(),
		spinner:   s,
		input:     ti,
		startPath: resolveStart(cfg, startPath),
	}
}

// resolveStart picks the explicit path, then the remembered folder, then
// the working directory.
func resolveStart(cfg *config.Config, path string) string {
	if path != "" {
		return path
	}
	if cfg.RememberLastFolder && cfg.LastFolder != "" {
		if st, err := os.Stat(cfg.LastFolder); err == nil && st.IsDir() {
			return cfg.LastFolder
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func (m Model) Init() tea.Cmd {
	m.browser.loading = true
	return tea.Batch(
		m.spinner.Tick,
		m.loadDirectory(m.startPath, "", true),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	next, cmd := m.update(msg)
	return next, tea.Batch(cmd, next.browser.takeCmds())
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	b := m.browser
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.search.height = m.height - 6
		m.decodes.height = m.height - 10
		if !m.sized {
			m.sized = true
			b.resize(m.width, m.gridHeight())
			return m, nil
		}
		m.resizeGen++
		gen := m.resizeGen
		return m, tea.Tick(time.Duration(m.cfg.ResizeDebounceMs)*time.Millisecond, func(time.Time) tea.Msg {
			return resizeMsg{gen: gen}
		})

	case resizeMsg:
		if msg.gen == m.resizeGen {
			b.resize(m.width, m.gridHeight())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.BlurMsg:
		b.dispatch(lifecycle.Suspend{})
		return m, nil

	case tea.FocusMsg:
		b.dispatch(lifecycle.Resume{})
		return m, nil

	case lifecycleMsg:
		b.dispatch(msg.ev)
		return m, nil

	case decodeDoneMsg:
		return m, b.onDecoded(msg.job)

	case jobsChangedMsg:
		if m.activeTab == TabDecodes {
			m.decodes.setJobs(m.dec.Jobs())
		}
		return m, nil

	case entriesMsg:
		return m.handleEntries(msg)

	case folderChangedMsg:
		if msg.w != b.watcher || msg.dir != b.dir {
			return m, nil
		}
		return m, tea.Batch(m.loadDirectory(b.dir, "", false), waitForChange(msg.w, msg.dir))

	case opDoneMsg:
		if msg.err != nil {
			m.log.Warn("file operation failed", "err", msg.err)
			return m, m.setStatus(msg.err.Error())
		}
		cmd := m.setStatus(msg.status)
		if msg.rescan {
			cmd = tea.Batch(cmd, m.loadDirectory(b.dir, msg.focus, false))
		}
		return m, cmd

	case searchResultsMsg:
		if msg.err != nil {
			m.search.setError(msg.err)
			return m, nil
		}
		m.search.setResults(msg.query, msg.results)
		return m, nil

	case indexProgressMsg:
		if m.search.indexing {
			m.search.progress = msg.p
		}
		return m, nil

	case indexDoneMsg:
		m.indexCancel = nil
		m.quitConfirm = false
		err := msg.err
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		m.search.finishIndexing(err)
		m.search.progress = msg.progress
		if err != nil {
			m.log.Warn("indexing failed", "err", err)
			return m, m.setStatus("Indexing failed: " + err.Error())
		}
		status := m.setStatus(fmt.Sprintf("Indexed %s files (%s probed, %s errors)",
			util.FormatCount(msg.progress.Files), util.FormatCount(msg.progress.Probed), util.FormatCount(msg.progress.Errors)))
		return m, tea.Batch(status, m.loadDirectory(b.dir, "", false))

	case statusClearMsg:
		if msg.id == m.statusID {
			m.statusMsg = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch {
	case m.activeTab == TabIndex:
		m.search.input, cmd = m.search.input.Update(msg)
	case m.prompt == promptRename:
		m.input, cmd = m.input.Update(msg)
	case b.filter.Focused():
		b.filter, cmd = b.filter.Update(msg)
	}
	return m, cmd
}

func (m Model) gridHeight() int {
	// Grid rows plus the separator and status bar below it.
	return max(m.height-gridTop-2, 1)
}

func (m Model) handleEntries(msg entriesMsg) (Model, tea.Cmd) {
	b := m.browser
	if msg.err != nil {
		b.loading = false
		if b.dir == "" {
			b.err = msg.err
		}
		m.log.Warn("scan failed", "dir", msg.dir, "err", msg.err)
		return m, m.setStatus("Cannot open folder: " + msg.err.Error())
	}
	changed := msg.dir != b.dir
	b.setEntries(msg.dir, msg.entries, msg.records)
	if msg.visit {
		b.history.Visit(msg.dir)
	}
	m.cfg.LastFolder = msg.dir
	if msg.focus != "" {
		b.focus(msg.focus)
	}
	if changed {
		return m, b.watch(msg.dir)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	key := msg.String()
	b := m.browser
	inputFocused := (m.activeTab == TabIndex && m.search.input.Focused()) ||
		(m.activeTab == TabBrowse && (b.filter.Focused() || m.prompt != promptNone))

	if m.showHelp {
		switch key {
		case "?", "esc":
			m.showHelp = false
			m.helpOffset = 0
			return m, nil
		case "up", "k":
			m.helpOffset = max(m.helpOffset-1, 0)
			return m, nil
		case "down", "j":
			m.helpOffset++
			return m, nil
		case "pgup", "ctrl+u":
			m.helpOffset = max(m.helpOffset-8, 0)
			return m, nil
		case "pgdown", "ctrl+d":
			m.helpOffset += 8
			return m, nil
		case "home", "g":
			m.helpOffset = 0
			return m, nil
		}
	}

	if key == "ctrl+c" || (key == "q" && !inputFocused) {
		if m.quitConfirm || m.indexCancel == nil {
			return m.quit()
		}
		m.quitConfirm = true
		return m, m.setStatus("Indexing in progress. Press q again to stop it and quit, or Esc to stay")
	}

	if m.quitConfirm && key == "esc" {
		m.quitConfirm = false
		return m, m.setStatus("Quit canceled")
	}

	if !inputFocused {
		switch key {
		case "?":
			m.showHelp = !m.showHelp
			m.helpOffset = 0
			return m, nil
		case "1":
			return m.switchTab(TabBrowse), nil
		case "2":
			return m.switchTab(TabIndex), nil
		case "3":
			return m.switchTab(TabDecodes), nil
		case "tab":
			return m.switchTab((m.activeTab + 1) % 3), nil
		case "shift+tab":
			return m.switchTab((m.activeTab + 2) % 3), nil
		case "z":
			return m, m.toggleSuspend()
		}
	}

	switch m.activeTab {
	case TabBrowse:
		return m.handleBrowseKey(key, msg)
	case TabIndex:
		return m.handleSearchKey(key, msg)
	case TabDecodes:
		return m.handleDecodesKey(key)
	}
	return m, nil
}

func (m Model) switchTab(t Tab) Model {
	m.activeTab = t
	m.search.input.Blur()
	switch t {
	case TabIndex:
		m.search.input.Focus()
	case TabDecodes:
		m.decodes.setJobs(m.dec.Jobs())
	}
	return m
}

func (m Model) quit() (Model, tea.Cmd) {
	if m.indexCancel != nil {
		m.indexCancel()
	}
	m.browser.close()
	return m, tea.Quit
}

// toggleSuspend drives the power gate by hand.
func (m *Model) toggleSuspend() tea.Cmd {
	b := m.browser
	if b.mgr.PowerState() == power.Active {
		b.dispatch(lifecycle.Suspend{})
		return m.setStatus("Media suspended")
	}
	b.dispatch(lifecycle.Resume{})
	return m.setStatus("Media resumed")
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	b := m.browser
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		if m.showHelp {
			m.helpOffset = max(m.helpOffset-1, 0)
			return m, nil
		}
		switch m.activeTab {
		case TabBrowse:
			b.scrollBy(-3 * b.cellH)
		case TabIndex:
			m.search.moveUp()
		case TabDecodes:
			m.decodes.moveUp()
		}
	case tea.MouseButtonWheelDown:
		if m.showHelp {
			m.helpOffset++
			return m, nil
		}
		switch m.activeTab {
		case TabBrowse:
			b.scrollBy(3 * b.cellH)
		case TabIndex:
			m.search.moveDown()
		case TabDecodes:
			m.decodes.moveDown()
		}
	case tea.MouseButtonLeft:
		if msg.Action != tea.MouseActionPress || m.activeTab != TabBrowse || m.showHelp {
			return m, nil
		}
		b.clickAt(msg.X, msg.Y-gridTop)
	}
	return m, nil
}

func (m Model) handleBrowseKey(key string, msg tea.KeyMsg) (Model, tea.Cmd) {
	b := m.browser

	switch m.prompt {
	case promptRename:
		switch key {
		case "enter":
			m.prompt = promptNone
			m.input.Blur()
			sel := b.selected()
			name := strings.TrimSpace(m.input.Value())
			if sel == nil || name == "" || name == sel.Name {
				return m, nil
			}
			return m, renameCmd(sel.Path, name)
		case "esc":
			m.prompt = promptNone
			m.input.Blur()
			return m, m.setStatus("Rename canceled")
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	case promptDelete:
		m.prompt = promptNone
		switch key {
		case "y", "Y", "enter":
			if sel := b.selected(); sel != nil {
				return m, deleteCmd(sel.Path)
			}
			return m, nil
		default:
			return m, m.setStatus("Delete canceled")
		}
	}

	if b.filter.Focused() {
		switch key {
		case "esc", "enter":
			b.filter.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			b.filter, cmd = b.filter.Update(msg)
			b.setSearch(b.filter.Value())
			return m, cmd
		}
	}

	switch key {
	case "up", "k":
		b.moveVertical(-1)
	case "down", "j":
		b.moveVertical(1)
	case "left", "h":
		b.move(-1)
	case "right", "l":
		b.move(1)
	case "pgup", "ctrl+u":
		b.pageUp()
	case "pgdown", "ctrl+d":
		b.pageDown()
	case "home", "g":
		b.home()
	case "end", "G":
		b.end()

	case "enter":
		sel := b.selected()
		if sel == nil {
			return m, nil
		}
		if sel.Kind == media.KindFolder {
			b.loading = true
			return m, m.loadDirectory(sel.Path, "", true)
		}
		return m, fileOpCmd("Opened "+sel.Name, sel.Path, media.OpenDefault)

	case "backspace":
		parent := media.Parent(b.dir)
		if parent == "" {
			return m, m.setStatus("Already at the filesystem root")
		}
		return m, m.loadDirectory(parent, b.dir, true)

	case "[", "alt+left":
		if dir, ok := b.history.Back(); ok {
			return m, m.loadDirectory(dir, "", false)
		}
	case "]", "alt+right":
		if dir, ok := b.history.Forward(); ok {
			return m, m.loadDirectory(dir, "", false)
		}

	case "/":
		b.filter.Focus()
		return m, textinput.Blink

	case "esc":
		if b.criteria.Search != "" {
			b.filter.SetValue("")
			b.setSearch("")
		}

	case "f":
		return m, m.setStatus("Filter: " + b.cycleFilter().String())
	case "s":
		return m, m.setStatus("Sort by " + b.toggleSort().String())
	case "o":
		return m, m.setStatus("Order: " + b.toggleOrder().String())
	case "m":
		return m, m.setStatus("Layout: " + b.toggleLayout().String())
	case ".":
		return m, m.loadDirectory(b.dir, "", false)

	case "r":
		if sel := b.selected(); sel != nil && sel.Kind != media.KindFolder {
			m.prompt = promptRename
			m.input.SetValue(sel.Name)
			m.input.CursorEnd()
			m.input.Focus()
			return m, textinput.Blink
		}
	case "D", "delete":
		if sel := b.selected(); sel != nil && sel.Kind != media.KindFolder {
			m.prompt = promptDelete
			return m, m.setStatus(fmt.Sprintf("Delete %s? Press y to confirm", sel.Name))
		}
	case "e":
		if sel := b.selected(); sel != nil {
			return m, fileOpCmd("Revealed "+sel.Name, sel.Path, media.Reveal)
		}
	case "O":
		if sel := b.selected(); sel != nil && sel.Kind != media.KindFolder {
			return m, fileOpCmd("Opened "+sel.Name, sel.Path, media.OpenWith)
		}
	case "y":
		if sel := b.selected(); sel != nil {
			return m, copyCmd("path", sel.Path)
		}
	case "Y":
		if sel := b.selected(); sel != nil {
			return m, copyCmd("name", sel.Name)
		}
	}

	return m, nil
}

func (m Model) handleSearchKey(key string, msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.search.input.Focused() {
		switch key {
		case "enter":
			query := strings.TrimSpace(m.search.input.Value())
			if query == "" {
				return m, nil
			}
			m.search.searching = true
			m.search.input.Blur()
			return m, m.performSearch(query, m.search.kindFilter())
		case "esc":
			m.search.input.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.search.input, cmd = m.search.input.Update(msg)
			return m, cmd
		}
	}

	switch key {
	case "up", "k":
		m.search.moveUp()
	case "down", "j":
		m.search.moveDown()
	case "pgup", "ctrl+u":
		m.search.pageUp()
	case "pgdown", "ctrl+d":
		m.search.pageDown()
	case "i", "/", "esc":
		m.search.input.Focus()
		return m, textinput.Blink
	case "f":
		kind := m.search.cycleKind()
		if kind == "" {
			kind = "all"
		}
		cmd := m.setStatus("Kind: " + kind)
		if q := strings.TrimSpace(m.search.input.Value()); q != "" {
			m.search.searching = true
			cmd = tea.Batch(cmd, m.performSearch(q, m.search.kindFilter()))
		}
		return m, cmd
	case "enter", "b", "o":
		if sel := m.search.selected(); sel != nil {
			m = m.switchTab(TabBrowse)
			m.browser.loading = true
			return m, tea.Batch(m.setStatus("Opened result location"), m.loadDirectory(sel.Folder, sel.Path, true))
		}
	case "u":
		return m.startIndex()
	case "x":
		if m.indexCancel != nil {
			m.indexCancel()
			return m, m.setStatus("Stopping indexer...")
		}
	}
	return m, nil
}

func (m Model) handleDecodesKey(key string) (Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.decodes.moveUp()
	case "down", "j":
		m.decodes.moveDown()
	case "pgup", "ctrl+u":
		m.decodes.pageUp()
	case "pgdown", "ctrl+d":
		m.decodes.pageDown()
	case "c":
		if sel := m.decodes.selected(); sel != nil {
			if m.dec.Cancel(sel.Token) {
				m.browser.cancelled(sel.Token)
				return m, m.setStatus("Cancelled: " + filepath.Base(sel.Path))
			}
			return m, m.setStatus("Selected decode already finished")
		}
	case "r":
		m.decodes.setJobs(m.dec.Jobs())
	case "x":
		if n := m.dec.ClearFinished(); n > 0 {
			m.decodes.setJobs(m.dec.Jobs())
			return m, m.setStatus(fmt.Sprintf("Cleared %d finished decodes", n))
		}
		return m, m.setStatus("No finished decodes to clear")
	case "esc":
		m.decodes.cursor = 0
		m.decodes.offset = 0
	}
	return m, nil
}

// startIndex indexes the current folder tree in the background.
func (m Model) startIndex() (Model, tea.Cmd) {
	if m.db == nil {
		return m, m.setStatus("Metadata cache unavailable")
	}
	if m.indexCancel != nil {
		return m, m.setStatus("Indexing already running")
	}
	root := m.browser.dir
	ctx, cancel := context.WithCancel(context.Background())
	m.indexCancel = cancel
	m.search.startIndexing(root)

	ix := index.NewIndexer(m.db, m.prober, m.log)
	ix.SetWorkers(m.cfg.IndexWorkers)
	ix.SetRate(m.cfg.ProbeRate)
	throttle := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	out := m.out
	ix.SetProgressCallback(func(p index.Progress) {
		if throttle.Allow() {
			out.send(indexProgressMsg{p: p})
		}
	})
	return m, func() tea.Msg {
		_, err := ix.IndexTree(ctx, root)
		return indexDoneMsg{progress: ix.Progress(), err: err}
	}
}

// Commands

func (m Model) loadDirectory(dir, focus string, visit bool) tea.Cmd {
	db, log := m.db, m.log
	return func() tea.Msg {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return entriesMsg{dir: dir, err: err}
		}
		entries, err := media.Scan(context.Background(), abs)
		if err != nil {
			return entriesMsg{dir: abs, err: err}
		}
		var records map[string]index.Record
		if db != nil {
			if records, err = db.Lookup(abs); err != nil {
				log.Warn("reading metadata cache failed", "dir", abs, "err", err)
			}
		}
		return entriesMsg{dir: abs, entries: entries, records: records, focus: focus, visit: visit}
	}
}

func (m Model) performSearch(query, kind string) tea.Cmd {
	db := m.db
	return func() tea.Msg {
		if db == nil {
			return searchResultsMsg{query: query, err: errors.New("metadata cache unavailable")}
		}
		results, err := db.Search(query, kind, 200)
		return searchResultsMsg{query: query, results: results, err: err}
	}
}

// watch replaces the folder watcher.
func (b *browser) watch(dir string) tea.Cmd {
	if b.watcher != nil {
		b.watcher.Close()
		b.watcher = nil
	}
	w, err := media.Watch(dir, 300*time.Millisecond)
	if err != nil {
		b.log.Debug("folder watch unavailable", "dir", dir, "err", err)
		return nil
	}
	b.watcher = w
	return waitForChange(w, dir)
}

func waitForChange(w *media.Watcher, dir string) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-w.C; !ok {
			return nil
		}
		return folderChangedMsg{dir: dir, w: w}
	}
}

func renameCmd(path, name string) tea.Cmd {
	return func() tea.Msg {
		np, err := media.Rename(path, name)
		if err != nil {
			return opDoneMsg{err: fmt.Errorf("rename failed: %w", err)}
		}
		return opDoneMsg{status: "Renamed to " + filepath.Base(np), rescan: true, focus: np}
	}
}

func deleteCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if err := media.Delete(path); err != nil {
			return opDoneMsg{err: fmt.Errorf("delete failed: %w", err)}
		}
		return opDoneMsg{status: "Deleted " + filepath.Base(path), rescan: true}
	}
}

func fileOpCmd(status, path string, op func(string) error) tea.Cmd {
	return func() tea.Msg {
		if err := op(path); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: status}
	}
}

func copyCmd(what, text string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return opDoneMsg{err: fmt.Errorf("copy failed: %w", err)}
		}
		return opDoneMsg{status: "Copied " + what}
	}
}

var tabOrder = [...]Tab{TabBrowse, TabIndex, TabDecodes}

func (t Tab) String() string {
	switch t {
	case TabBrowse:
		return "Browse"
	case TabIndex:
		return "Index"
	case TabDecodes:
		return "Decodes"
	}
	return "?"
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	rule := strings.Repeat("─", m.width)

	body := m.helpView(m.height - 6)
	if !m.showHelp {
		switch m.activeTab {
		case TabBrowse:
			body = m.browser.view(m.width, m.spinner.View())
		case TabIndex:
			body = m.search.view(m.width, m.spinner.View())
		case TabDecodes:
			body = m.decodes.view(m.width, m.browser.summary())
		}
	}

	status := m.statusMsg
	switch {
	case m.prompt == promptRename:
		status = m.input.View()
	case status == "":
		status = m.defaultStatus()
	}

	return strings.Join([]string{
		titleStyle.Render("  mediagrid  "),
		m.tabBar(),
		rule,
		body,
		rule,
		statusBarStyle.Width(m.width).Render(status),
	}, "\n")
}

// tabBar renders the view tabs followed by the live element count and any
// retry, power or indexing markers.
func (m Model) tabBar() string {
	parts := make([]string, 0, len(tabOrder)+4)
	for i, t := range tabOrder {
		style := tabInactiveStyle
		if t == m.activeTab {
			style = tabActiveStyle
		}
		parts = append(parts, style.Render(fmt.Sprintf(" %d %s ", i+1, t)))
	}
	mgr := m.browser.mgr
	parts = append(parts, badgeStyle.Render(fmt.Sprintf("%d live", mgr.Tally().Total)))
	if n := mgr.Retry().Len(); n > 0 {
		parts = append(parts, helpStyle.Render(fmt.Sprintf("[%d waiting]", n)))
	}
	if mgr.PowerState() == power.Suspended {
		parts = append(parts, suspendedStyle.Render("[suspended]"))
	}
	if m.indexCancel != nil {
		parts = append(parts, successStyle.Render("[indexing]"))
	}
	return strings.Join(parts, " ")
}

func (m Model) defaultStatus() string {
	switch m.activeTab {
	case TabBrowse:
		sel := m.browser.selected()
		if sel == nil {
			return "backspace:up  [/]:back/forward  /:filter  f:kind  m:layout  ?:help"
		}
		parts := []string{sel.Name}
		if sel.Kind != media.KindFolder {
			parts = append(parts, util.FormatBytes(sel.Size))
		}
		parts = append(parts, util.FormatTime(sel.ModTime))
		if info, ok := m.browser.mgr.Info(sel.Path); ok && info.Classified && sel.Kind != media.KindFolder {
			parts = append(parts, info.Bucket.Name)
			if sel.Kind == media.KindVideo {
				parts = append(parts, "audio "+info.Audio.String())
			}
		}
		return strings.Join(parts, "  ·  ") + "    ?:help"
	case TabIndex:
		return "/:focus search  j/k:navigate  Enter:open folder  f:kind  u:index current folder  x:stop  ?:help"
	case TabDecodes:
		return "j/k:navigate  c:cancel decode  x:clear finished  r:refresh  z:suspend/resume  ?:help"
	}
	return ""
}

// keyHelp lists the bindings shown by the help overlay, grouped by view.
var keyHelp = []struct {
	group string
	keys  [][2]string
}{
	{"Global", [][2]string{
		{"Tab / 1-3", "switch views"},
		{"Shift+Tab", "previous view"},
		{"z", "suspend or resume media"},
		{"?", "toggle help"},
		{"q / Ctrl+C", "quit"},
	}},
	{"Browse", [][2]string{
		{"Arrows / hjkl", "move between cards"},
		{"Enter", "open folder or file"},
		{"Backspace", "parent folder"},
		{"[ / ]", "history back / forward"},
		{"/", "filter by name"},
		{"f", "cycle all, video, image, audio"},
		{"s / o", "sort by name or date / flip order"},
		{"m", "masonry or grid layout"},
		{"r / D", "rename / delete file"},
		{"e / O", "reveal in file manager / open with"},
		{"y / Y", "copy path / name"},
		{".", "rescan folder"},
		{"g / G", "top / bottom"},
		{"PgUp / PgDn", "scroll a page"},
	}},
	{"Index", [][2]string{
		{"/ or i", "focus the query box"},
		{"Enter", "run query, or open the result's folder"},
		{"f", "cycle kind filter"},
		{"u / x", "index current folder tree / stop"},
	}},
	{"Decodes", [][2]string{
		{"c", "cancel selected decode"},
		{"x", "clear finished"},
		{"r", "refresh list"},
	}},
}

func (m Model) helpView(maxLines int) string {
	lines := []string{"  Keys", ""}
	for _, g := range keyHelp {
		lines = append(lines, "  "+g.group)
		for _, k := range g.keys {
			lines = append(lines, fmt.Sprintf("    %-15s %s", k[0], k[1]))
		}
		lines = append(lines, "")
	}
	lines = append(lines, "  j/k, PgUp/PgDn or the wheel scroll; ? or Esc closes.")

	maxLines = max(maxLines, 6)
	last := max(len(lines)-maxLines, 0)
	top := min(max(m.helpOffset, 0), last)
	shown := lines[top:min(top+maxLines, len(lines))]
	if last > 0 {
		shown = append(shown, fmt.Sprintf("  (%d/%d)", top+1, last+1))
	}
	return helpStyle.Render(strings.Join(shown, "\n"))
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusID++
	id := m.statusID
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return statusClearMsg{id} })
}

// Run starts the TUI and saves the browsing preferences on exit.
func Run(cfg *config.Config, db *index.DB, startPath string, log *slog.Logger) error {
	m := NewModel(cfg, db, startPath, log)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithReportFocus())
	m.out.p = p

	_, err := p.Run()
	m.browser.close()

	if !cfg.RememberLastFolder {
		cfg.LastFolder = ""
	}
	if serr := cfg.Save(); serr != nil {
		m.log.Warn("saving config failed", "err", serr)
	}
	return err
}
