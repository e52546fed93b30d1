package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JohnDeved/mediagrid/internal/media"
)

// DB wraps the SQLite metadata cache.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the SQLite database at the given path.
func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		files INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		folder TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		mtime INTEGER DEFAULT 0,
		fingerprint TEXT NOT NULL,
		width INTEGER DEFAULT 0,
		height INTEGER DEFAULT 0,
		bucket TEXT DEFAULT '',
		audio INTEGER DEFAULT 0,
		probed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_media_folder ON media(folder);
	CREATE INDEX IF NOT EXISTS idx_media_kind ON media(kind);

	CREATE VIRTUAL TABLE IF NOT EXISTS media_fts USING fts5(
		name,
		folder,
		content=media,
		content_rowid=id,
		tokenize='unicode61 remove_diacritics 2'
	);

	CREATE TRIGGER IF NOT EXISTS media_ai AFTER INSERT ON media BEGIN
		INSERT INTO media_fts(rowid, name, folder) VALUES (new.id, new.name, new.folder);
	END;

	CREATE TRIGGER IF NOT EXISTS media_ad AFTER DELETE ON media BEGIN
		INSERT INTO media_fts(media_fts, rowid, name, folder) VALUES('delete', old.id, old.name, old.folder);
	END;

	CREATE TRIGGER IF NOT EXISTS media_au AFTER UPDATE ON media BEGIN
		INSERT INTO media_fts(media_fts, rowid, name, folder) VALUES('delete', old.id, old.name, old.folder);
		INSERT INTO media_fts(media_fts, rowid, name, folder) VALUES (new.id, new.name, new.folder);
	END;
	`
	_, err := db.Exec(schema)
	return err
}

// Record is the cached metadata of one media file. A zero ProbedAt means
// the file was seen but its probe failed.
type Record struct {
	Path        string      `json:"path" yaml:"path"`
	Folder      string      `json:"folder" yaml:"folder"`
	Name        string      `json:"name" yaml:"name"`
	Kind        media.Kind  `json:"-" yaml:"-"`
	Size        int64       `json:"size" yaml:"size"`
	MTime       int64       `json:"mtime" yaml:"mtime"`
	Fingerprint string      `json:"fingerprint" yaml:"fingerprint"`
	Width       int         `json:"width" yaml:"width"`
	Height      int         `json:"height" yaml:"height"`
	Bucket      string      `json:"bucket" yaml:"bucket"`
	Audio       media.Audio `json:"-" yaml:"-"`
	ProbedAt    time.Time   `json:"probed_at" yaml:"probed_at"`
}

// Probed reports whether the record carries probe results.
func (r Record) Probed() bool {
	return !r.ProbedAt.IsZero()
}

// Fingerprint identifies a file version by path, size and modification time.
func Fingerprint(path string, size, mtime int64) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s\x00%d\x00%d", path, size, mtime)))
}

// RecordFor builds a record for a scanned entry without probe results.
func RecordFor(e media.Entry) Record {
	mtime := e.MTimeMillis()
	return Record{
		Path:        e.Path,
		Folder:      filepath.Dir(e.Path),
		Name:        e.Name,
		Kind:        e.Kind,
		Size:        e.Size,
		MTime:       mtime,
		Fingerprint: Fingerprint(e.Path, e.Size, mtime),
	}
}

// sanitizeFTS5Query quotes each word so user input cannot form FTS5
// syntax. Words are ANDed.
func sanitizeFTS5Query(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	strip := strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "{", "", "}", "", "^", "", "*", "")
	var quoted []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, `""`)
		w = strip.Replace(w)
		if w == "" {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " ")
}

const upsertSQL = `
	INSERT INTO media (path, folder, name, kind, size, mtime, fingerprint, width, height, bucket, audio, probed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		folder=excluded.folder, name=excluded.name, kind=excluded.kind,
		size=excluded.size, mtime=excluded.mtime, fingerprint=excluded.fingerprint,
		width=excluded.width, height=excluded.height, bucket=excluded.bucket,
		audio=excluded.audio, probed_at=excluded.probed_at`

func upsertArgs(r Record) []any {
	var probed sql.NullTime
	if r.Probed() {
		probed = sql.NullTime{Time: r.ProbedAt.UTC(), Valid: true}
	}
	return []any{
		r.Path, r.Folder, r.Name, r.Kind.String(), r.Size, r.MTime, r.Fingerprint,
		r.Width, r.Height, r.Bucket, int(r.Audio), probed,
	}
}

// Upsert inserts or replaces a record.
func (d *DB) Upsert(r Record) error {
	_, err := d.db.Exec(upsertSQL, upsertArgs(r)...)
	return err
}

// UpsertBatch upserts records in a single transaction.
func (d *DB) UpsertBatch(records []Record) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(upsertArgs(r)...); err != nil {
			return fmt.Errorf("upserting %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

const selectCols = `path, folder, name, kind, size, mtime, fingerprint, width, height, bucket, audio, probed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var r Record
	var kind string
	var audio int
	var probed sql.NullTime
	if err := s.Scan(&r.Path, &r.Folder, &r.Name, &kind, &r.Size, &r.MTime, &r.Fingerprint,
		&r.Width, &r.Height, &r.Bucket, &audio, &probed); err != nil {
		return r, err
	}
	r.Kind, _ = media.ParseKind(kind)
	r.Audio = media.Audio(audio)
	if probed.Valid {
		r.ProbedAt = probed.Time
	}
	return r, nil
}

// Get returns the record for path.
func (d *DB) Get(path string) (Record, bool, error) {
	row := d.db.QueryRow("SELECT "+selectCols+" FROM media WHERE path = ?", path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Lookup returns the records of one folder keyed by path.
func (d *DB) Lookup(folder string) (map[string]Record, error) {
	rows, err := d.db.Query("SELECT "+selectCols+" FROM media WHERE folder = ?", folder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[r.Path] = r
	}
	return out, rows.Err()
}

// IsFresh reports whether path has a probed record for this size and
// modification time.
func (d *DB) IsFresh(path string, size, mtime int64) (bool, error) {
	var fp string
	var probed sql.NullTime
	err := d.db.QueryRow("SELECT fingerprint, probed_at FROM media WHERE path = ?", path).Scan(&fp, &probed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return probed.Valid && fp == Fingerprint(path, size, mtime), nil
}

// Search runs a full-text search over file and folder names. A non-empty
// kind restricts results to "image" or "video".
func (d *DB) Search(query, kind string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	sanitized := sanitizeFTS5Query(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := d.db.Query(`
		SELECT m.path, m.folder, m.name, m.kind, m.size, m.mtime, m.fingerprint,
		       m.width, m.height, m.bucket, m.audio, m.probed_at
		FROM media_fts fts
		JOIN media m ON m.id = fts.rowid
		WHERE media_fts MATCH ?
		  AND (? = '' OR m.kind = ?)
		ORDER BY rank
		LIMIT ?
	`, sanitized, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Prune deletes the records of folder whose paths are not in keep.
func (d *DB) Prune(folder string, keep []string) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT path FROM media WHERE folder = ?", folder)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		live[p] = struct{}{}
	}
	var gone []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := live[p]; !ok {
			gone = append(gone, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var n int64
	for _, p := range gone {
		res, err := tx.Exec("DELETE FROM media WHERE path = ?", p)
		if err != nil {
			return 0, err
		}
		c, _ := res.RowsAffected()
		n += c
	}
	return n, tx.Commit()
}

// Scan is one indexing run.
type Scan struct {
	ID         string     `json:"id" yaml:"id"`
	Root       string     `json:"root" yaml:"root"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Files      int64      `json:"files" yaml:"files"`
	Errors     int64      `json:"errors" yaml:"errors"`
}

// BeginScan records the start of an indexing run and returns its id.
func (d *DB) BeginScan(root string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	_, err = d.db.Exec("INSERT INTO scans (id, root, started_at) VALUES (?, ?, ?)", id.String(), root, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FinishScan closes an indexing run.
func (d *DB) FinishScan(id string, files, errs int64) error {
	_, err := d.db.Exec("UPDATE scans SET finished_at = ?, files = ?, errors = ? WHERE id = ?",
		time.Now().UTC(), files, errs, id)
	return err
}

// LastScan returns the most recent run, if any. Version 7 ids sort by
// creation time.
func (d *DB) LastScan() (*Scan, error) {
	var s Scan
	var finished sql.NullTime
	err := d.db.QueryRow("SELECT id, root, started_at, finished_at, files, errors FROM scans ORDER BY id DESC LIMIT 1").
		Scan(&s.ID, &s.Root, &s.StartedAt, &finished, &s.Files, &s.Errors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		s.FinishedAt = &finished.Time
	}
	return &s, nil
}

// Stats summarizes the index.
type Stats struct {
	Files    int   `json:"files" yaml:"files"`
	Images   int   `json:"images" yaml:"images"`
	Videos   int   `json:"videos" yaml:"videos"`
	Audio    int   `json:"videos_with_audio" yaml:"videos_with_audio"`
	Unprobed int   `json:"unprobed" yaml:"unprobed"`
	Folders  int   `json:"folders" yaml:"folders"`
	Scans    int   `json:"scans" yaml:"scans"`
	Last     *Scan `json:"last_scan,omitempty" yaml:"last_scan,omitempty"`
}

// GetStats returns statistics about the index.
func (d *DB) GetStats() (Stats, error) {
	var s Stats
	queries := []struct {
		q    string
		dest *int
	}{
		{"SELECT COUNT(*) FROM media", &s.Files},
		{"SELECT COUNT(*) FROM media WHERE kind = 'image'", &s.Images},
		{"SELECT COUNT(*) FROM media WHERE kind = 'video'", &s.Videos},
		{fmt.Sprintf("SELECT COUNT(*) FROM media WHERE kind = 'video' AND audio = %d", int(media.AudioPresent)), &s.Audio},
		{"SELECT COUNT(*) FROM media WHERE probed_at IS NULL", &s.Unprobed},
		{"SELECT COUNT(DISTINCT folder) FROM media", &s.Folders},
		{"SELECT COUNT(*) FROM scans", &s.Scans},
	}
	for _, q := range queries {
		if err := d.db.QueryRow(q.q).Scan(q.dest); err != nil {
			return s, err
		}
	}
	last, err := d.LastScan()
	if err != nil {
		return s, err
	}
	s.Last = last
	return s, nil
}
