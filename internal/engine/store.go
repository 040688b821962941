package engine

import (
	"sync"

	"github.com/google/uuid"

	"trackstats/internal/models"
)

// ColumnStore holds the loaded tracks in Struct-of-Arrays format.
// Columns are never written after Load; only the index map changes.
type ColumnStore struct {
	LoadID uuid.UUID
	Source string

	// Dictionary Encoded IDs (0..N) and Dictionaries (ID -> String)
	ArtistIDs  []int32
	TrackIDs   []int32
	AlbumIDs   []int32
	TitleIDs   []int32
	ChannelIDs []int32

	ArtistDict  []string
	TrackDict   []string
	AlbumDict   []string
	TitleDict   []string
	ChannelDict []string

	// Enums
	AlbumTypes   []models.AlbumType
	MostPlayedOn []models.Platform

	// Audio features
	Danceability     []float64
	Energy           []float64
	Loudness         []float64
	Speechiness      []float64
	Acousticness     []float64
	Instrumentalness []float64
	Liveness         []float64
	Valence          []float64
	Tempo            []float64
	DurationMin      []float64
	EnergyLiveness   []float64

	// Engagement
	Views    []int64
	Likes    []int64
	Comments []int64
	Streams  []int64

	Licensed      []bool
	OfficialVideo []bool

	mu      sync.RWMutex
	indexes map[Column]*Index
}

// Len returns the number of loaded rows.
func (s *ColumnStore) Len() int { return len(s.ArtistIDs) }

// dict returns the id column and dictionary backing a string column.
func (s *ColumnStore) dict(c Column) ([]int32, []string, bool) {
	switch c {
	case ColArtist:
		return s.ArtistIDs, s.ArtistDict, true
	case ColTrack:
		return s.TrackIDs, s.TrackDict, true
	case ColAlbum:
		return s.AlbumIDs, s.AlbumDict, true
	case ColTitle:
		return s.TitleIDs, s.TitleDict, true
	case ColChannel:
		return s.ChannelIDs, s.ChannelDict, true
	}
	return nil, nil, false
}

// All returns a frame over every row in load order.
func (s *ColumnStore) All() Frame {
	rows := make([]int32, s.Len())
	for i := range rows {
		rows[i] = int32(i)
	}
	return Frame{store: s, rows: rows}
}

// Scan is a full sequential scan returning matching rows in load order.
func (s *ColumnStore) Scan(pred func(Row) bool) []models.Track {
	return s.All().Filter(pred).Tracks()
}

// Row is a cursor on one stored row.
type Row struct {
	s *ColumnStore
	i int32
}

// Pos is the row's load position.
func (r Row) Pos() int { return int(r.i) }

func (r Row) Artist() string { return r.s.ArtistDict[r.s.ArtistIDs[r.i]] }
func (r Row) TrackName() string { return r.s.TrackDict[r.s.TrackIDs[r.i]] }
func (r Row) Album() string { return r.s.AlbumDict[r.s.AlbumIDs[r.i]] }
func (r Row) Title() string { return r.s.TitleDict[r.s.TitleIDs[r.i]] }
func (r Row) Channel() string { return r.s.ChannelDict[r.s.ChannelIDs[r.i]] }
func (r Row) ArtistID() int32 { return r.s.ArtistIDs[r.i] }
func (r Row) TrackID() int32 { return r.s.TrackIDs[r.i] }
func (r Row) AlbumID() int32 { return r.s.AlbumIDs[r.i] }
func (r Row) Danceability() float64 { return r.s.Danceability[r.i] }
func (r Row) Energy() float64 { return r.s.Energy[r.i] }
func (r Row) Liveness() float64 { return r.s.Liveness[r.i] }
func (r Row) Views() int64 { return r.s.Views[r.i] }
func (r Row) Likes() int64 { return r.s.Likes[r.i] }
func (r Row) Comments() int64 { return r.s.Comments[r.i] }
func (r Row) Stream() int64 { return r.s.Streams[r.i] }
func (r Row) Licensed() bool { return r.s.Licensed[r.i] }
func (r Row) OfficialVideo() bool { return r.s.OfficialVideo[r.i] }

func (r Row) AlbumType() models.AlbumType { return r.s.AlbumTypes[r.i] }
func (r Row) MostPlayedOn() models.Platform { return r.s.MostPlayedOn[r.i] }

// Value returns the typed value of column c. The dynamic types match what
// parseKey produces, so results can be compared against index keys.
func (r Row) Value(c Column) any {
	s, i := r.s, r.i
	switch c {
	case ColArtist:
		return r.Artist()
	case ColTrack:
		return r.TrackName()
	case ColAlbum:
		return r.Album()
	case ColTitle:
		return r.Title()
	case ColChannel:
		return r.Channel()
	case ColAlbumType:
		return s.AlbumTypes[i]
	case ColMostPlayedOn:
		return s.MostPlayedOn[i]
	case ColDanceability:
		return s.Danceability[i]
	case ColEnergy:
		return s.Energy[i]
	case ColLoudness:
		return s.Loudness[i]
	case ColSpeechiness:
		return s.Speechiness[i]
	case ColAcousticness:
		return s.Acousticness[i]
	case ColInstrumentalness:
		return s.Instrumentalness[i]
	case ColLiveness:
		return s.Liveness[i]
	case ColValence:
		return s.Valence[i]
	case ColTempo:
		return s.Tempo[i]
	case ColDurationMin:
		return s.DurationMin[i]
	case ColEnergyLiveness:
		return s.EnergyLiveness[i]
	case ColViews:
		return s.Views[i]
	case ColLikes:
		return s.Likes[i]
	case ColComments:
		return s.Comments[i]
	case ColStream:
		return s.Streams[i]
	case ColLicensed:
		return s.Licensed[i]
	case ColOfficialVideo:
		return s.OfficialVideo[i]
	}
	return nil
}

// numeric returns a numeric column value as float64 for range comparisons.
func (r Row) numeric(c Column) float64 {
	switch v := r.Value(c).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Track materializes the row.
func (r Row) Track() models.Track {
	s, i := r.s, r.i
	return models.Track{
		Artist:           r.Artist(),
		Track:            r.TrackName(),
		Album:            r.Album(),
		AlbumType:        s.AlbumTypes[i],
		Danceability:     s.Danceability[i],
		Energy:           s.Energy[i],
		Loudness:         s.Loudness[i],
		Speechiness:      s.Speechiness[i],
		Acousticness:     s.Acousticness[i],
		Instrumentalness: s.Instrumentalness[i],
		Liveness:         s.Liveness[i],
		Valence:          s.Valence[i],
		Tempo:            s.Tempo[i],
		DurationMin:      s.DurationMin[i],
		Title:            r.Title(),
		Channel:          r.Channel(),
		Views:            s.Views[i],
		Likes:            s.Likes[i],
		Comments:         s.Comments[i],
		Stream:           s.Streams[i],
		Licensed:         s.Licensed[i],
		OfficialVideo:    s.OfficialVideo[i],
		MostPlayedOn:     s.MostPlayedOn[i],
		EnergyLiveness:   s.EnergyLiveness[i],
	}
}

// Frame is a read-only selection of rows over a store, kept in load order.
type Frame struct {
	store *ColumnStore
	rows  []int32
}

// FrameOf builds a frame from rows of one store, e.g. a GroupBy bucket.
func FrameOf(rows []Row) Frame {
	if len(rows) == 0 {
		return Frame{}
	}
	f := Frame{store: rows[0].s, rows: make([]int32, len(rows))}
	for k, r := range rows {
		f.rows[k] = r.i
	}
	return f
}

// Store returns the backing store.
func (f Frame) Store() *ColumnStore { return f.store }

func (f Frame) Len() int { return len(f.rows) }

func (f Frame) Row(k int) Row { return Row{s: f.store, i: f.rows[k]} }

// Each calls fn for every row in order.
func (f Frame) Each(fn func(Row)) {
	for _, i := range f.rows {
		fn(Row{s: f.store, i: i})
	}
}

// Filter returns the rows of f satisfying pred.
func (f Frame) Filter(pred func(Row) bool) Frame {
	out := make([]int32, 0, len(f.rows)/4)
	for _, i := range f.rows {
		if pred(Row{s: f.store, i: i}) {
			out = append(out, i)
		}
	}
	return Frame{store: f.store, rows: out}
}

// Tracks materializes every row of f.
func (f Frame) Tracks() []models.Track {
	out := make([]models.Track, len(f.rows))
	for k, i := range f.rows {
		out[k] = Row{s: f.store, i: i}.Track()
	}
	return out
}

// Equals returns a predicate matching rows whose column c equals key.
func Equals(c Column, key any) func(Row) bool {
	return func(r Row) bool { return r.Value(c) == key }
}

// GreaterThan returns a predicate matching rows whose numeric column c is
// strictly greater than lower.
func GreaterThan(c Column, lower float64) func(Row) bool {
	return func(r Row) bool { return r.numeric(c) > lower }
}
