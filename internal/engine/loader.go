package engine

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"trackstats/internal/models"
)

// Format selects the fixture decoder.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatArrow Format = "arrow"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatAuto, FormatCSV, FormatJSON, FormatArrow:
		return f, nil
	case "":
		return FormatAuto, nil
	}
	return "", errors.Newf("unknown format %q", s)
}

// DefaultMaxRows is the row guard applied when none is configured.
const DefaultMaxRows = 5_000_000

type options struct {
	format  Format
	maxRows int
	workers int
	source  string
}

// Option configures Load and LoadFile.
type Option func(*options)

// WithMaxRows sets the row guard; 0 disables it.
func WithMaxRows(n int) Option { return func(o *options) { o.maxRows = n } }

// WithWorkers sets the number of coercion workers; 0 means NumCPU.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithFormat forces a fixture format instead of guessing from the extension.
func WithFormat(f Format) Option { return func(o *options) { o.format = f } }

// WithSource names the input in errors and logs.
func WithSource(name string) Option { return func(o *options) { o.source = name } }

func buildOptions(opts []Option) options {
	o := options{format: FormatAuto, maxRows: DefaultMaxRows, source: "records"}
	for _, fn := range opts {
		fn(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}
	return o
}

// --- 1. IN-MEMORY LOAD ---

// Load validates rows and builds an immutable column store. On any invalid
// row it fails without exposing a partial table.
func Load(rows []models.Track, opts ...Option) (*ColumnStore, error) {
	o := buildOptions(opts)
	start := time.Now()

	if o.maxRows > 0 && len(rows) > o.maxRows {
		return nil, &DatasetTooLargeError{Rows: len(rows), Limit: o.maxRows}
	}
	for i := range rows {
		if col, err := validate(&rows[i]); err != nil {
			return nil, &MalformedRecordError{Source: o.source, Row: i + 1, Column: string(col), Err: err}
		}
	}

	// Allocate Store ONCE
	n := len(rows)
	store := &ColumnStore{
		LoadID:           uuid.New(),
		Source:           o.source,
		ArtistIDs:        make([]int32, n),
		TrackIDs:         make([]int32, n),
		AlbumIDs:         make([]int32, n),
		TitleIDs:         make([]int32, n),
		ChannelIDs:       make([]int32, n),
		AlbumTypes:       make([]models.AlbumType, n),
		MostPlayedOn:     make([]models.Platform, n),
		Danceability:     make([]float64, n),
		Energy:           make([]float64, n),
		Loudness:         make([]float64, n),
		Speechiness:      make([]float64, n),
		Acousticness:     make([]float64, n),
		Instrumentalness: make([]float64, n),
		Liveness:         make([]float64, n),
		Valence:          make([]float64, n),
		Tempo:            make([]float64, n),
		DurationMin:      make([]float64, n),
		EnergyLiveness:   make([]float64, n),
		Views:            make([]int64, n),
		Likes:            make([]int64, n),
		Comments:         make([]int64, n),
		Streams:          make([]int64, n),
		Licensed:         make([]bool, n),
		OfficialVideo:    make([]bool, n),
	}

	artists, tracks, albums := newDict(), newDict(), newDict()
	titles, channels := newDict(), newDict()

	for i := range rows {
		t := &rows[i]
		store.ArtistIDs[i] = artists.id(t.Artist)
		store.TrackIDs[i] = tracks.id(t.Track)
		store.AlbumIDs[i] = albums.id(t.Album)
		store.TitleIDs[i] = titles.id(t.Title)
		store.ChannelIDs[i] = channels.id(t.Channel)

		store.AlbumTypes[i] = t.AlbumType
		store.MostPlayedOn[i] = t.MostPlayedOn
		store.Danceability[i] = t.Danceability
		store.Energy[i] = t.Energy
		store.Loudness[i] = t.Loudness
		store.Speechiness[i] = t.Speechiness
		store.Acousticness[i] = t.Acousticness
		store.Instrumentalness[i] = t.Instrumentalness
		store.Liveness[i] = t.Liveness
		store.Valence[i] = t.Valence
		store.Tempo[i] = t.Tempo
		store.DurationMin[i] = t.DurationMin
		store.EnergyLiveness[i] = t.EnergyLiveness
		store.Views[i] = t.Views
		store.Likes[i] = t.Likes
		store.Comments[i] = t.Comments
		store.Streams[i] = t.Stream
		store.Licensed[i] = t.Licensed
		store.OfficialVideo[i] = t.OfficialVideo
	}

	store.ArtistDict = artists.list
	store.TrackDict = tracks.list
	store.AlbumDict = albums.list
	store.TitleDict = titles.list
	store.ChannelDict = channels.list

	log.Infof("Load complete. Source: %s. Rows: %d. Artists: %d. Time: %v",
		o.source, n, len(store.ArtistDict), time.Since(start))
	return store, nil
}

// dictionary assigns dense ids to strings in first-appearance order.
type dictionary struct {
	ids  map[string]int32
	list []string
}

func newDict() *dictionary { return &dictionary{ids: make(map[string]int32)} }

func (d *dictionary) id(s string) int32 {
	if id, ok := d.ids[s]; ok {
		return id
	}
	id := int32(len(d.list))
	d.list = append(d.list, s)
	d.ids[s] = id
	return id
}

// --- 2. FIXTURE FILES ---

// rawTable is a decoded fixture before type coercion. Every row is aligned
// with header.
type rawTable struct {
	header []string
	rows   [][]string
}

// LoadFile reads a CSV, JSON or Arrow IPC fixture and loads it.
func LoadFile(path string, opts ...Option) (*ColumnStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open fixture")
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Infof("Loading %s (%s)...", path, humanize.Bytes(uint64(fi.Size())))
	}

	o := buildOptions(opts)
	format := o.format
	if format == FormatAuto {
		format = formatFromPath(path)
	}
	return LoadReader(f, append(opts, WithFormat(format), WithSource(path))...)
}

func formatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".arrow", ".arrows", ".ipc":
		return FormatArrow
	}
	return FormatCSV
}

// LoadReader decodes a fixture stream and loads it. FormatAuto means CSV.
func LoadReader(r io.Reader, opts ...Option) (*ColumnStore, error) {
	o := buildOptions(opts)
	start := time.Now()

	var (
		raw *rawTable
		err error
	)
	// Readers stop as soon as the row guard trips.
	switch o.format {
	case FormatJSON:
		raw, err = readJSON(r, o.source, o.maxRows)
	case FormatArrow:
		raw, err = readArrow(r, o.source, o.maxRows)
	default:
		raw, err = readCSV(r, o.source, o.maxRows)
	}
	if err != nil {
		return nil, err
	}

	rows, err := coerce(raw, o)
	if err != nil {
		return nil, err
	}
	log.Debugf("Decoded %d %s rows in %v", len(rows), o.format, time.Since(start))
	return Load(rows, opts...)
}

// tooMany reports whether n rows exceed the guard; 0 disables it.
func tooMany(n, maxRows int) bool { return maxRows > 0 && n > maxRows }

func readCSV(r io.Reader, source string, maxRows int) (*rawTable, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MalformedRecordError{Source: source, Err: errors.New("empty input, no header")}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", source)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &rawTable{header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &MalformedRecordError{Source: source, Row: pe.StartLine - 1, Err: pe.Err}
			}
			return nil, errors.Wrapf(err, "read %s", source)
		}
		t.rows = append(t.rows, rec)
		if tooMany(len(t.rows), maxRows) {
			return nil, &DatasetTooLargeError{Rows: len(t.rows), Limit: maxRows, Partial: true}
		}
	}
	return t, nil
}

// readJSON decodes an array of objects one element at a time. Keys are
// matched like CSV headers.
func readJSON(r io.Reader, source string, maxRows int) (*rawTable, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	malformed := func(row int, err error) error {
		return &MalformedRecordError{Source: source, Row: row, Err: errors.Wrap(err, "decode json")}
	}
	if tok, err := dec.Token(); err != nil {
		return nil, malformed(0, err)
	} else if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, malformed(0, errors.Newf("expected an array, got %v", tok))
	}

	cols := Columns()
	t := &rawTable{header: make([]string, len(cols))}
	for i, c := range cols {
		t.header[i] = string(c)
	}
	for dec.More() {
		i := len(t.rows)
		if tooMany(i+1, maxRows) {
			return nil, &DatasetTooLargeError{Rows: i + 1, Limit: maxRows, Partial: true}
		}
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, malformed(i+1, err)
		}
		byNorm := make(map[string]any, len(rec))
		for k, v := range rec {
			byNorm[normalizeName(k)] = v
		}
		row := make([]string, len(cols))
		for j, c := range cols {
			v, ok := byNorm[normalizeName(string(c))]
			if !ok {
				return nil, &MalformedRecordError{Source: source, Row: i + 1, Column: string(c), Err: errors.New("missing field")}
			}
			row[j] = jsonText(v)
		}
		t.rows = append(t.rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(len(t.rows), err)
	}
	return t, nil
}

func jsonText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	// Nested values cannot be coerced; keep something readable for the error.
	b, _ := json.Marshal(v)
	return string(b)
}

// mapHeader resolves header names to schema columns. Unknown headers are
// ignored; missing or duplicated schema columns are errors.
func mapHeader(source string, header []string) ([]Column, error) {
	cols := make([]Column, len(header))
	seen := make(map[Column]bool, len(schema))
	for i, h := range header {
		c, ok := columnsByNorm[normalizeName(h)]
		if !ok {
			continue
		}
		if seen[c] {
			return nil, &MalformedRecordError{Source: source, Column: h, Err: errors.New("duplicate column")}
		}
		seen[c] = true
		cols[i] = c
	}
	for _, c := range Columns() {
		if !seen[c] {
			return nil, &MalformedRecordError{Source: source, Column: string(c), Err: errors.New("missing column")}
		}
	}
	return cols, nil
}

// coerce converts raw text rows into tracks on parallel workers. Each worker
// owns a contiguous chunk; the reported error is the earliest bad row.
func coerce(raw *rawTable, o options) ([]models.Track, error) {
	cols, err := mapHeader(o.source, raw.header)
	if err != nil {
		return nil, err
	}

	out := make([]models.Track, len(raw.rows))
	numWorkers := o.workers
	if numWorkers > len(raw.rows) {
		numWorkers = len(raw.rows)
	}
	if numWorkers == 0 {
		return out, nil
	}
	chunkSize := (len(raw.rows) + numWorkers - 1) / numWorkers
	chunkErrs := make([]error, numWorkers)

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, len(raw.rows))
		if start >= end {
			break
		}
		w := w
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := coerceRow(&out[i], cols, raw.rows[i]); err != nil {
					err.Source, err.Row = o.source, i+1
					chunkErrs[w] = err
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, e := range chunkErrs {
			if e != nil {
				return nil, e
			}
		}
		return nil, err
	}
	return out, nil
}

func coerceRow(t *models.Track, cols []Column, rec []string) *MalformedRecordError {
	if len(rec) != len(cols) {
		return &MalformedRecordError{Err: errors.Newf("expected %d fields, got %d", len(cols), len(rec))}
	}
	for i, c := range cols {
		if c == "" {
			continue
		}
		if err := setField(t, c, rec[i]); err != nil {
			return &MalformedRecordError{Column: string(c), Value: rec[i], Err: err}
		}
	}
	return nil
}
