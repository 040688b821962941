package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"

	"trackstats/internal/models"
)

// Generate returns n synthetic tracks. The same seed always yields the same
// rows, which keeps timing experiments reproducible.
func Generate(n int, seed uint64) []models.Track {
	rng := rand.New(rand.NewSource(seed))

	numArtists := max(1, n/10)
	numAlbums := max(1, n/4)
	out := make([]models.Track, n)
	for i := range out {
		artist := rng.Intn(numArtists)
		album := rng.Intn(numAlbums)
		energy := rng.Float64()
		liveness := rng.Float64()
		platform := models.PlatformSpotify
		if rng.Intn(4) == 0 {
			platform = models.PlatformYoutube
		}
		views := rng.Int63n(2_000_000_000)
		out[i] = models.Track{
			Artist:           fmt.Sprintf("Artist %04d", artist),
			Track:            fmt.Sprintf("Track %06d", rng.Intn(max(1, n/2))),
			Album:            fmt.Sprintf("Album %05d", album),
			AlbumType:        models.AlbumType(rng.Intn(3)),
			Danceability:     rng.Float64(),
			Energy:           energy,
			Loudness:         -rng.Float64() * 30,
			Speechiness:      rng.Float64() * 0.5,
			Acousticness:     rng.Float64(),
			Instrumentalness: rng.Float64() * 0.3,
			Liveness:         liveness,
			Valence:          rng.Float64(),
			Tempo:            60 + rng.Float64()*140,
			DurationMin:      1.5 + rng.Float64()*5,
			Title:            fmt.Sprintf("Video %06d", i),
			Channel:          fmt.Sprintf("Channel %04d", artist),
			Views:            views,
			Likes:            views / (20 + rng.Int63n(80)),
			Comments:         rng.Int63n(200_000),
			Stream:           rng.Int63n(3_000_000_000),
			Licensed:         rng.Intn(3) > 0,
			OfficialVideo:    rng.Intn(4) > 0,
			MostPlayedOn:     platform,
			EnergyLiveness:   energy / max(liveness, 0.01),
		}
	}
	return out
}

// LoadGenerated loads n synthetic tracks. The row guard is checked before
// any track is built.
func LoadGenerated(n int, seed uint64, opts ...Option) (*ColumnStore, error) {
	o := buildOptions(opts)
	if n < 0 {
		return nil, errors.Newf("generate: negative row count %d", n)
	}
	if tooMany(n, o.maxRows) {
		return nil, &DatasetTooLargeError{Rows: n, Limit: o.maxRows}
	}
	return Load(Generate(n, seed), append([]Option{WithSource("generated")}, opts...)...)
}
