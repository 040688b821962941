package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"trackstats/internal/models"
)

// Column names one field of the track schema. Values are the canonical
// snake_case names used by the reference DDL.
type Column string

const (
	ColArtist           Column = "artist"
	ColTrack            Column = "track"
	ColAlbum            Column = "album"
	ColAlbumType        Column = "album_type"
	ColDanceability     Column = "danceability"
	ColEnergy           Column = "energy"
	ColLoudness         Column = "loudness"
	ColSpeechiness      Column = "speechiness"
	ColAcousticness     Column = "acousticness"
	ColInstrumentalness Column = "instrumentalness"
	ColLiveness         Column = "liveness"
	ColValence          Column = "valence"
	ColTempo            Column = "tempo"
	ColDurationMin      Column = "duration_min"
	ColTitle            Column = "title"
	ColChannel          Column = "channel"
	ColViews            Column = "views"
	ColLikes            Column = "likes"
	ColComments         Column = "comments"
	ColLicensed         Column = "licensed"
	ColOfficialVideo    Column = "official_video"
	ColStream           Column = "stream"
	ColEnergyLiveness   Column = "energy_liveness"
	ColMostPlayedOn     Column = "most_played_on"
)

// Kind is the storage class of a column.
type Kind uint8

const (
	KindString Kind = iota // dictionary encoded
	KindEnum
	KindFloat
	KindCount
	KindBool
)

// Numeric reports whether values of this kind can be range indexed.
func (k Kind) Numeric() bool { return k == KindFloat || k == KindCount }

// schema lists every column in DDL order.
var schema = []struct {
	col  Column
	kind Kind
}{
	{ColArtist, KindString},
	{ColTrack, KindString},
	{ColAlbum, KindString},
	{ColAlbumType, KindEnum},
	{ColDanceability, KindFloat},
	{ColEnergy, KindFloat},
	{ColLoudness, KindFloat},
	{ColSpeechiness, KindFloat},
	{ColAcousticness, KindFloat},
	{ColInstrumentalness, KindFloat},
	{ColLiveness, KindFloat},
	{ColValence, KindFloat},
	{ColTempo, KindFloat},
	{ColDurationMin, KindFloat},
	{ColTitle, KindString},
	{ColChannel, KindString},
	{ColViews, KindCount},
	{ColLikes, KindCount},
	{ColComments, KindCount},
	{ColLicensed, KindBool},
	{ColOfficialVideo, KindBool},
	{ColStream, KindCount},
	{ColEnergyLiveness, KindFloat},
	{ColMostPlayedOn, KindEnum},
}

var (
	columnKinds   = make(map[Column]Kind, len(schema))
	columnsByNorm = make(map[string]Column, len(schema))
)

func init() {
	for _, c := range schema {
		columnKinds[c.col] = c.kind
		columnsByNorm[normalizeName(string(c.col))] = c.col
	}
}

// Columns returns all schema columns in DDL order.
func Columns() []Column {
	out := make([]Column, len(schema))
	for i, c := range schema {
		out[i] = c.col
	}
	return out
}

// Kind returns the storage class of c.
func (c Column) Kind() Kind { return columnKinds[c] }

// normalizeName folds a header name so that "Most_PlayedOn", "most_played_on"
// and "mostplayedon" compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case '_', ' ', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseColumn resolves a user or header supplied column name.
func ParseColumn(name string) (Column, error) {
	if c, ok := columnsByNorm[normalizeName(name)]; ok {
		return c, nil
	}
	return "", errors.Wrapf(ErrUnknownColumn, "%q", name)
}

// --- coercion ---

func parseBool(s string) (bool, error) {
	switch t := strings.TrimSpace(s); {
	case strings.EqualFold(t, "true"):
		return true, nil
	case strings.EqualFold(t, "false"):
		return false, nil
	}
	return false, errors.Newf("not a boolean")
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Newf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Newf("not a finite number")
	}
	return f, nil
}

// parseCount accepts integers and integral floats ("693555221.0"); the
// reference DDL stores views as FLOAT.
func parseCount(s string) (int64, error) {
	t := strings.TrimSpace(s)
	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(t, 64)
		if ferr != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f <= math.MinInt64 {
			return 0, errors.Newf("not an integer")
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, errors.Newf("negative count")
	}
	return n, nil
}

// parseKey converts raw text into the comparable value Row.Value returns
// for c, so that index keys and scan predicates agree.
func parseKey(c Column, raw string) (any, error) {
	switch c {
	case ColAlbumType:
		return models.ParseAlbumType(raw)
	case ColMostPlayedOn:
		return models.ParsePlatform(raw)
	}
	switch c.Kind() {
	case KindFloat:
		return parseFloat(raw)
	case KindCount:
		return parseCount(raw)
	case KindBool:
		return parseBool(raw)
	case KindString:
		return raw, nil
	}
	return nil, errors.Wrapf(ErrUnknownColumn, "%q", string(c))
}

// setField coerces raw into the field of t named by c.
func setField(t *models.Track, c Column, raw string) error {
	var err error
	switch c {
	case ColArtist:
		t.Artist = raw
	case ColTrack:
		t.Track = raw
	case ColAlbum:
		t.Album = raw
	case ColTitle:
		t.Title = raw
	case ColChannel:
		t.Channel = raw
	case ColAlbumType:
		t.AlbumType, err = models.ParseAlbumType(raw)
	case ColMostPlayedOn:
		t.MostPlayedOn, err = models.ParsePlatform(raw)
	case ColDanceability:
		t.Danceability, err = parseFloat(raw)
	case ColEnergy:
		t.Energy, err = parseFloat(raw)
	case ColLoudness:
		t.Loudness, err = parseFloat(raw)
	case ColSpeechiness:
		t.Speechiness, err = parseFloat(raw)
	case ColAcousticness:
		t.Acousticness, err = parseFloat(raw)
	case ColInstrumentalness:
		t.Instrumentalness, err = parseFloat(raw)
	case ColLiveness:
		t.Liveness, err = parseFloat(raw)
	case ColValence:
		t.Valence, err = parseFloat(raw)
	case ColTempo:
		t.Tempo, err = parseFloat(raw)
	case ColDurationMin:
		t.DurationMin, err = parseFloat(raw)
	case ColEnergyLiveness:
		t.EnergyLiveness, err = parseFloat(raw)
	case ColViews:
		t.Views, err = parseCount(raw)
	case ColLikes:
		t.Likes, err = parseCount(raw)
	case ColComments:
		t.Comments, err = parseCount(raw)
	case ColStream:
		t.Stream, err = parseCount(raw)
	case ColLicensed:
		t.Licensed, err = parseBool(raw)
	case ColOfficialVideo:
		t.OfficialVideo, err = parseBool(raw)
	default:
		err = ErrUnknownColumn
	}
	return err
}

// validate checks the invariants Load enforces on records that did not pass
// through text coercion.
func validate(t *models.Track) (Column, error) {
	switch {
	case !t.AlbumType.Valid():
		return ColAlbumType, errors.Newf("album type out of domain")
	case !t.MostPlayedOn.Valid():
		return ColMostPlayedOn, errors.Newf("platform out of domain")
	case t.Views < 0:
		return ColViews, errors.Newf("negative count")
	case t.Likes < 0:
		return ColLikes, errors.Newf("negative count")
	case t.Comments < 0:
		return ColComments, errors.Newf("negative count")
	case t.Stream < 0:
		return ColStream, errors.Newf("negative count")
	}
	return "", nil
}
