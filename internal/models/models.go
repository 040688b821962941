package models

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// AlbumType is the release format a track was published on.
type AlbumType uint8

const (
	AlbumTypeSingle AlbumType = iota
	AlbumTypeAlbum
	AlbumTypeCompilation
)

var albumTypeNames = [...]string{"single", "album", "compilation"}

func (a AlbumType) String() string {
	if int(a) < len(albumTypeNames) {
		return albumTypeNames[a]
	}
	return fmt.Sprintf("AlbumType(%d)", uint8(a))
}

// Valid reports whether a is one of the enumerated album types.
func (a AlbumType) Valid() bool { return int(a) < len(albumTypeNames) }

// ParseAlbumType accepts the enumerated names case-insensitively.
func ParseAlbumType(s string) (AlbumType, error) {
	for i, name := range albumTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return AlbumType(i), nil
		}
	}
	return 0, errors.Newf("unknown album type %q", s)
}

func (a AlbumType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AlbumType) UnmarshalText(b []byte) error {
	v, err := ParseAlbumType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Platform is where a track was played the most.
type Platform uint8

const (
	PlatformSpotify Platform = iota
	PlatformYoutube
)

var platformNames = [...]string{"Spotify", "Youtube"}

func (p Platform) String() string {
	if int(p) < len(platformNames) {
		return platformNames[p]
	}
	return fmt.Sprintf("Platform(%d)", uint8(p))
}

func (p Platform) Valid() bool { return int(p) < len(platformNames) }

// ParsePlatform accepts "Spotify" or "Youtube" in any letter case.
func ParsePlatform(s string) (Platform, error) {
	for i, name := range platformNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Platform(i), nil
		}
	}
	return 0, errors.Newf("unknown platform %q", s)
}

func (p Platform) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Platform) UnmarshalText(b []byte) error {
	v, err := ParsePlatform(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Track is one row of the denormalized dataset.
type Track struct {
	Artist    string    `json:"artist"`
	Track     string    `json:"track"`
	Album     string    `json:"album"`
	AlbumType AlbumType `json:"album_type"`

	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	DurationMin      float64 `json:"duration_min"`

	Title   string `json:"title"`
	Channel string `json:"channel"`

	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	Stream   int64 `json:"stream"`

	Licensed      bool `json:"licensed"`
	OfficialVideo bool `json:"official_video"`

	MostPlayedOn   Platform `json:"most_played_on"`
	EnergyLiveness float64  `json:"energy_liveness"`
}

// Result is the output grid of one catalog query.
type Result struct {
	QueryID int      `json:"query_id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of result rows.
func (r Result) Len() int { return len(r.Rows) }
