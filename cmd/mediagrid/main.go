package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/config"
	"github.com/JohnDeved/mediagrid/internal/index"
	"github.com/JohnDeved/mediagrid/internal/layout"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
	"github.com/JohnDeved/mediagrid/internal/projection"
	"github.com/JohnDeved/mediagrid/internal/sim"
	"github.com/JohnDeved/mediagrid/internal/tui"
	"github.com/JohnDeved/mediagrid/internal/util"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	rootCmd := &cobra.Command{
		Use:   "mediagrid [path]",
		Short: "A terminal media browser with a virtualized card grid",
		Long: `mediagrid - Browse local folders of images and videos as a masonry grid
of cards. Only cards near the viewport hold decoded media, so folders with
thousands of files stay responsive.`,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	}
	addListFlags(rootCmd)

	browseCmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "Launch the TUI at a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTUI,
	}
	addListFlags(browseCmd)

	listCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List the folders and media files of a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
	addListFlags(listCmd)

	layoutCmd := &cobra.Command{
		Use:   "layout [path]",
		Short: "Print the card layout of a folder for a container width",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLayout,
	}
	layoutCmd.Flags().Float64("width", 1280, "Container width in pixels")
	layoutCmd.Flags().String("mode", "", "Layout mode: masonry or grid (default from config)")
	addOutputFlags(layoutCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate [path]",
		Short: "Run the media lifecycle headless over a scripted scroll",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulate,
	}
	simulateCmd.Flags().Float64("width", 1280, "Viewport width in pixels")
	simulateCmd.Flags().Float64("height", 800, "Viewport height in pixels")
	simulateCmd.Flags().Float64("step", 120, "Scroll distance per frame in pixels")
	simulateCmd.Flags().Int("fail-every", 0, "Fail the first decode of every Nth card (0 = never)")
	simulateCmd.Flags().Int("synthetic", 0, "Simulate N synthetic cards instead of scanning a folder")
	addOutputFlags(simulateCmd)

	indexCmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Probe a folder tree and cache media metadata",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIndex,
	}
	indexCmd.Flags().Int("workers", 0, "Parallel probes (default from config)")
	indexCmd.Flags().Bool("force", false, "Probe files even when the cached record is fresh")
	indexCmd.Flags().Float64("rate", 0, "Maximum probes per second (default from config, 0 = unlimited)")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the metadata cache by file or folder name",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().String("kind", "", "Only image or video results")
	searchCmd.Flags().Int("limit", 50, "Maximum number of results")
	addOutputFlags(searchCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show metadata cache statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	addOutputFlags(statsCmd)

	renameCmd := &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a media file in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			np, err := media.Rename(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(np)
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return media.Delete(args[0])
		},
	}

	revealCmd := &cobra.Command{
		Use:   "reveal <path>",
		Short: "Show a file in the platform file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return media.Reveal(args[0])
		},
	}

	openCmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open a file with its default application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if with, _ := cmd.Flags().GetBool("with"); with {
				return media.OpenWith(args[0])
			}
			return media.OpenDefault(args[0])
		},
	}
	openCmd.Flags().Bool("with", false, "Show the \"open with\" chooser")

	drivesCmd := &cobra.Command{
		Use:   "drives",
		Short: "List filesystem roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, d := range media.Drives() {
				fmt.Println(d)
			}
			return nil
		},
	}

	rootCmd.AddCommand(browseCmd, listCmd, layoutCmd, simulateCmd, indexCmd, searchCmd, statsCmd,
		renameCmd, rmCmd, revealCmd, openCmd, drivesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Output JSON")
	cmd.Flags().Bool("yaml", false, "Output YAML")
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("plain", false, "List entries in plain text instead of launching the TUI")
	cmd.Flags().String("filter", "all", "Filter: all, video, image or audio")
	cmd.Flags().String("sort", "", "Sort: name or date (default from config)")
	cmd.Flags().String("order", "", "Order: asc or desc (default from config)")
	cmd.Flags().String("search", "", "Case-insensitive name filter")
	cmd.Flags().Int("limit", 0, "Limit number of entries (0 = unlimited)")
	cmd.Flags().Bool("name-only", false, "Only print names")
	addOutputFlags(cmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	plainMode, _ := cmd.Flags().GetBool("plain")
	jsonMode, _ := cmd.Flags().GetBool("json")
	yamlMode, _ := cmd.Flags().GetBool("yaml")
	if plainMode || jsonMode || yamlMode || !isInteractiveTerminal() {
		return runList(cmd, args)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFile, err := tea.LogToFile(config.LogPath(), "")
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	// The cache is optional; the browser works without it.
	db, err := index.OpenDB(config.DBPath())
	if err != nil {
		log.Warn("metadata cache unavailable", "path", config.DBPath(), "err", err)
		db = nil
	}
	if db != nil {
		defer db.Close()
	}

	startPath := ""
	if len(args) > 0 {
		startPath = args[0]
	}
	return tui.Run(cfg, db, startPath, log)
}

type entryOut struct {
	Name     string     `json:"name" yaml:"name"`
	Path     string     `json:"path" yaml:"path"`
	Kind     string     `json:"kind" yaml:"kind"`
	Size     int64      `json:"size" yaml:"size"`
	Modified *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
	Bucket   string     `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Audio    string     `json:"audio,omitempty" yaml:"audio,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return err
	}

	criteria, err := listCriteria(cmd, cfg)
	if err != nil {
		return err
	}

	entries, err := media.Scan(cmd.Context(), dir)
	if err != nil {
		return err
	}
	records := cachedRecords(dir)
	audio := func(path string) media.Audio {
		if r, ok := records[path]; ok && r.Probed() {
			return r.Audio
		}
		return media.AudioUnknown
	}
	entries = projection.Project(entries, criteria, audio)

	limit, _ := cmd.Flags().GetInt("limit")
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	nameOnly, _ := cmd.Flags().GetBool("name-only")
	if wantsStructured(cmd) {
		out := struct {
			Path    string     `json:"path" yaml:"path"`
			Count   int        `json:"count" yaml:"count"`
			Entries []entryOut `json:"entries" yaml:"entries"`
		}{Path: dir, Count: len(entries)}
		out.Entries = make([]entryOut, 0, len(entries))
		for _, e := range entries {
			eo := entryOut{Name: e.Name, Path: e.Path, Kind: e.Kind.String(), Size: e.Size, Modified: e.ModTime}
			if r, ok := records[e.Path]; ok && r.Probed() {
				eo.Bucket = r.Bucket
				if e.Kind == media.KindVideo {
					eo.Audio = r.Audio.String()
				}
			}
			out.Entries = append(out.Entries, eo)
		}
		return writeStructured(cmd, out)
	}

	fmt.Println(dir)
	for _, e := range entries {
		if nameOnly {
			if e.Kind == media.KindFolder {
				fmt.Printf("%s/\n", e.Name)
			} else {
				fmt.Println(e.Name)
			}
			continue
		}
		kind := "D"
		size := "-"
		switch e.Kind {
		case media.KindImage:
			kind, size = "I", util.FormatBytes(e.Size)
		case media.KindVideo:
			kind, size = "V", util.FormatBytes(e.Size)
		}
		bucket := "-"
		if r, ok := records[e.Path]; ok && r.Probed() {
			bucket = r.Bucket
		}
		fmt.Printf("%s\t%-10s\t%-16s\t%-5s\t%s\n", kind, size, util.FormatTime(e.ModTime), bucket, e.Name)
	}
	return nil
}

func listCriteria(cmd *cobra.Command, cfg *config.Config) (projection.Criteria, error) {
	c := projection.Criteria{Locale: projection.DefaultLocale()}
	var err error

	filter, _ := cmd.Flags().GetString("filter")
	if c.Filter, err = projection.ParseFilter(filter); err != nil {
		return c, err
	}
	sortType, _ := cmd.Flags().GetString("sort")
	if sortType == "" {
		sortType = cfg.SortType
	}
	if c.Sort, err = projection.ParseSortType(sortType); err != nil {
		return c, err
	}
	order, _ := cmd.Flags().GetString("order")
	if order == "" {
		order = cfg.SortOrder
	}
	if c.Order, err = projection.ParseOrder(order); err != nil {
		return c, err
	}
	c.Search, _ = cmd.Flags().GetString("search")
	return c, nil
}

// cachedRecords returns the cache entries for dir, or nil when the cache
// cannot be opened.
func cachedRecords(dir string) map[string]index.Record {
	db, err := index.OpenDB(config.DBPath())
	if err != nil {
		slog.Debug("metadata cache unavailable", "err", err)
		return nil
	}
	defer db.Close()
	records, err := db.Lookup(dir)
	if err != nil {
		slog.Warn("reading metadata cache failed", "dir", dir, "err", err)
		return nil
	}
	return records
}

func runLayout(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := media.Scan(cmd.Context(), dir)
	if err != nil {
		return err
	}

	modeName, _ := cmd.Flags().GetString("mode")
	if modeName == "" {
		modeName = cfg.LayoutMode
	}
	mode, err := layout.ParseMode(modeName)
	if err != nil {
		return err
	}
	width, _ := cmd.Flags().GetFloat64("width")

	records := cachedRecords(mustAbs(dir))
	items := make([]layout.Item, 0, len(entries))
	for _, e := range entries {
		it := layout.Item{ID: e.Name, Folder: e.Kind == media.KindFolder}
		if r, ok := records[e.Path]; ok && r.Probed() {
			if b, ok := aspect.Lookup(r.Bucket); ok {
				it.Ratio = b.Ratio
			}
		}
		items = append(items, it)
	}
	engine := &layout.Engine{Mode: mode, Options: cfg.Layout()}
	res := engine.Layout(items, width)

	if wantsStructured(cmd) {
		out := struct {
			Mode string `json:"mode" yaml:"mode"`
			layout.Result `yaml:",inline"`
		}{Mode: mode.String(), Result: res}
		return writeStructured(cmd, out)
	}

	fmt.Printf("mode=%s columns=%d column_width=%.1f content_height=%.1f\n",
		mode, res.Columns, res.ColumnWidth, res.ContentHeight)
	for _, p := range res.Placements {
		fmt.Printf("%d\t%7.1f\t%7.1f\t%6.1f\t%6.1f\t%s\n", p.Column, p.Rect.X, p.Rect.Y, p.Rect.W, p.Rect.H, p.ID)
	}
	return nil
}

func mustAbs(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var entries []media.Entry
	if n, _ := cmd.Flags().GetInt("synthetic"); n > 0 {
		entries = syntheticEntries(n)
	} else {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		entries, err = media.Scan(cmd.Context(), dir)
		if err != nil {
			return err
		}
	}

	sc := sim.DefaultScenario()
	sc.Width, _ = cmd.Flags().GetFloat64("width")
	sc.Height, _ = cmd.Flags().GetFloat64("height")
	sc.Step, _ = cmd.Flags().GetFloat64("step")
	sc.FailRate, _ = cmd.Flags().GetInt("fail-every")
	if sc.Step <= 0 {
		return fmt.Errorf("--step must be positive")
	}

	report := sim.Run(entries, cfg.Lifecycle(), sc, sim.Options{Layout: cfg.Layout(), Logger: slog.Default()})

	if wantsStructured(cmd) {
		if err := writeStructured(cmd, report); err != nil {
			return err
		}
	} else {
		lc := cfg.Lifecycle()
		fmt.Printf("Cards:          %d\n", report.Cards)
		fmt.Printf("Content height: %.0fpx\n", report.ContentHeight)
		fmt.Printf("Events:         %d\n", report.Events)
		fmt.Printf("Elements:       %d created, %d released, %d live\n", report.Created, report.Released, report.Live)
		fmt.Printf("Peak:           %d videos (cap %d), %d images (cap %d), %d total (cap %d)\n",
			report.Peak.Videos, lc.MaxVideos, report.Peak.Images, lc.MaxImages, report.Peak.Total, lc.MaxTotal)
		fmt.Printf("Retry queue:    %d\n", report.RetryQueued)
		fmt.Printf("GC requests:    %d\n", report.GCs)
		if len(report.Violations) == 0 {
			fmt.Println("Invariants:     ok")
		} else {
			fmt.Printf("Invariants:     %d violations\n", len(report.Violations))
			for _, v := range report.Violations {
				fmt.Println("  -", v)
			}
		}
	}
	if len(report.Violations) > 0 {
		return fmt.Errorf("%d invariant violations", len(report.Violations))
	}
	return nil
}

// syntheticEntries alternates videos and images.
func syntheticEntries(n int) []media.Entry {
	out := make([]media.Entry, 0, n)
	for i := range n {
		name := fmt.Sprintf("clip-%05d.mp4", i)
		kind := media.KindVideo
		if i%2 == 1 {
			name = fmt.Sprintf("photo-%05d.jpg", i)
			kind = media.KindImage
		}
		path := filepath.Join("/synthetic", name)
		out = append(out, media.Entry{Name: name, Path: path, Kind: kind, URL: media.FileURL(path)})
	}
	return out
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}

	db, err := index.OpenDB(config.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.IndexWorkers
	}
	rate, _ := cmd.Flags().GetFloat64("rate")
	if !cmd.Flags().Changed("rate") {
		rate = cfg.ProbeRate
	}
	force, _ := cmd.Flags().GetBool("force")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := slog.Default()
	ix := index.NewIndexer(db, probe.New(cfg.FFProbePath, log), log)
	ix.SetWorkers(workers)
	ix.SetRate(rate)
	ix.SetForce(force)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		ix.SetProgressCallback(func(p index.Progress) {
			fmt.Fprintf(os.Stderr, "\r  Indexing: %-50s  [folders: %d  files: %d  probed: %d  errors: %d]",
				util.TruncatePath(p.CurrentPath, 50), p.Folders, p.Files, p.Probed, p.Errors)
		})
	}

	fmt.Fprintf(os.Stderr, "Indexing %s\n", root)
	start := time.Now()
	scanID, err := ix.IndexTree(ctx, root)
	p := ix.Progress()
	if err != nil {
		return fmt.Errorf("indexing %s: %w", root, err)
	}
	fmt.Fprintf(os.Stderr, "\n\nDone in %s. %s folders, %s files (%s probed, %s fresh, %s errors). Scan %s\n",
		time.Since(start).Round(time.Millisecond),
		util.FormatCount(p.Folders), util.FormatCount(p.Files), util.FormatCount(p.Probed),
		util.FormatCount(p.Skipped), util.FormatCount(p.Errors), scanID)
	return nil
}

type recordOut struct {
	index.Record `yaml:",inline"`
	Kind         string `json:"kind" yaml:"kind"`
	Audio        string `json:"audio,omitempty" yaml:"audio,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	kind, _ := cmd.Flags().GetString("kind")
	if kind != "" {
		k, err := media.ParseKind(kind)
		if err != nil || !k.IsMedia() {
			return fmt.Errorf("--kind must be image or video")
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := index.OpenDB(config.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	results, err := db.Search(query, kind, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if wantsStructured(cmd) {
		out := struct {
			Query   string      `json:"query" yaml:"query"`
			Kind    string      `json:"kind,omitempty" yaml:"kind,omitempty"`
			Count   int         `json:"count" yaml:"count"`
			Results []recordOut `json:"results" yaml:"results"`
		}{Query: query, Kind: kind, Count: len(results), Results: make([]recordOut, 0, len(results))}
		for _, r := range results {
			ro := recordOut{Record: r, Kind: r.Kind.String()}
			if r.Kind == media.KindVideo {
				ro.Audio = r.Audio.String()
			}
			out.Results = append(out.Results, ro)
		}
		return writeStructured(cmd, out)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		fmt.Println("Tip: Run 'mediagrid index <folder>' to fill the metadata cache first.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%-50s  %-5s  %-10s  %s\n", r.Name, r.Kind, util.FormatBytes(r.Size), r.Folder)
	}
	fmt.Fprintf(os.Stderr, "\n%d results found.\n", len(results))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := index.OpenDB(config.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		return err
	}

	if wantsStructured(cmd) {
		out := struct {
			index.Stats `yaml:",inline"`
			Database    string `json:"database" yaml:"database"`
		}{Stats: stats, Database: config.DBPath()}
		return writeStructured(cmd, out)
	}

	fmt.Printf("Metadata Cache:\n")
	fmt.Printf("  Files:    %d (%d images, %d videos, %d with audio)\n", stats.Files, stats.Images, stats.Videos, stats.Audio)
	fmt.Printf("  Unprobed: %d\n", stats.Unprobed)
	fmt.Printf("  Folders:  %d\n", stats.Folders)
	fmt.Printf("  Scans:    %d\n", stats.Scans)
	if s := stats.Last; s != nil {
		finished := "running or interrupted"
		if s.FinishedAt != nil {
			finished = util.FormatTime(s.FinishedAt)
		}
		fmt.Printf("  Last:     %s (%s, %d files, %d errors)\n", s.Root, finished, s.Files, s.Errors)
	}
	fmt.Printf("  Database: %s\n", config.DBPath())
	return nil
}

func wantsStructured(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	y, _ := cmd.Flags().GetBool("yaml")
	return j || y
}

func writeStructured(cmd *cobra.Command, v any) error {
	if y, _ := cmd.Flags().GetBool("yaml"); y {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
