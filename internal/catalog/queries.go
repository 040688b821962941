package catalog

import (
	"strconv"

	"trackstats/internal/engine"
	"trackstats/internal/models"
)

func build(p Params) []*Query {
	return []*Query{
		{
			ID:          1,
			Name:        "streams-over-threshold",
			Description: "Tracks streamed more than " + strconv.FormatInt(p.StreamThreshold, 10) + " times",
			Columns:     []string{"track", "stream"},
			Access:      &Access{Column: engine.ColStream, Op: OpGt, Value: strconv.FormatInt(p.StreamThreshold, 10)},
			run:         streamsOver(p.StreamThreshold),
		},
		{
			ID:          2,
			Name:        "albums-by-artist",
			Description: "Distinct albums with their artist, sorted by album",
			Columns:     []string{"album", "artist"},
			run:         albumsByArtist,
		},
		{
			ID:          3,
			Name:        "licensed-comments",
			Description: "Total comments on licensed tracks",
			Columns:     []string{"total_comments"},
			Access:      &Access{Column: engine.ColLicensed, Op: OpEq, Value: "true"},
			run:         licensedComments,
		},
		{
			ID:          4,
			Name:        "singles",
			Description: "Tracks released as singles",
			Columns:     []string{"artist", "track", "album", "album_type"},
			Access:      &Access{Column: engine.ColAlbumType, Op: OpEq, Value: models.AlbumTypeSingle.String()},
			run:         singles,
		},
		{
			ID:          5,
			Name:        "tracks-per-artist",
			Description: "Number of tracks per artist, fewest first",
			Columns:     []string{"artist", "track_count"},
			run:         tracksPerArtist,
		},
		{
			ID:          6,
			Name:        "album-danceability",
			Description: "Average danceability per album, highest first",
			Columns:     []string{"album", "avg_danceability"},
			run:         albumDanceability,
		},
		{
			ID:          7,
			Name:        "top-energy",
			Description: "Top " + strconv.Itoa(p.TopEnergy) + " tracks by maximum energy",
			Columns:     []string{"track", "max_energy"},
			run:         topEnergy(p.TopEnergy),
		},
		{
			ID:          8,
			Name:        "official-video-engagement",
			Description: "Views and likes per track for official videos, most viewed first",
			Columns:     []string{"track", "total_views", "total_likes"},
			Access:      &Access{Column: engine.ColOfficialVideo, Op: OpEq, Value: "true"},
			run:         officialVideoEngagement,
		},
		{
			ID:          9,
			Name:        "album-track-views",
			Description: "Total views per album and track, most viewed first",
			Columns:     []string{"album", "track", "total_views"},
			run:         albumTrackViews,
		},
		{
			ID:          10,
			Name:        "spotify-over-youtube",
			Description: "Tracks streamed more on Spotify than on Youtube, with some Youtube streams",
			Columns:     []string{"track", "youtube", "spotify"},
			run:         spotifyOverYoutube,
		},
		{
			ID:          11,
			Name:        "top-tracks-per-artist",
			Description: "Top " + strconv.Itoa(p.TopPerArtist) + " tracks per artist by views, dense ranked",
			Columns:     []string{"artist", "track", "total_views", "rank"},
			run:         topTracksPerArtist(p.TopPerArtist),
		},
		{
			ID:          12,
			Name:        "above-average-liveness",
			Description: "Tracks whose liveness exceeds the average liveness",
			Columns:     []string{"track", "liveness"},
			run:         aboveAverageLiveness,
		},
		{
			ID:          13,
			Name:        "album-energy-range",
			Description: "Spread between the most and least energetic track per album",
			Columns:     []string{"album", "energy_range"},
			run:         albumEnergyRange,
		},
	}
}

// rowsOf collects the rows of f for the slice based aggregates.
func rowsOf(f engine.Frame) []engine.Row {
	out := make([]engine.Row, 0, f.Len())
	f.Each(func(r engine.Row) { out = append(out, r) })
	return out
}

func streamsOver(threshold int64) func(engine.Frame) ([][]any, error) {
	return func(f engine.Frame) ([][]any, error) {
		var out [][]any
		f.Each(func(r engine.Row) {
			if r.Stream() > threshold {
				out = append(out, []any{r.TrackName(), r.Stream()})
			}
		})
		return out, nil
	}
}

func albumsByArtist(f engine.Frame) ([][]any, error) {
	type pair struct{ album, artist string }
	pairs := engine.Distinct(f, func(r engine.Row) pair { return pair{r.Album(), r.Artist()} })
	engine.SortStable(pairs, func(a, b pair) bool {
		if a.album != b.album {
			return a.album < b.album
		}
		return a.artist < b.artist
	})

	out := make([][]any, len(pairs))
	for i, p := range pairs {
		out[i] = []any{p.album, p.artist}
	}
	return out, nil
}

func licensedComments(f engine.Frame) ([][]any, error) {
	licensed := f.Filter(engine.Row.Licensed)
	if licensed.Len() == 0 {
		return nil, &engine.EmptyDatasetError{Op: "sum(comments) where licensed"}
	}
	total := engine.Sum(rowsOf(licensed), engine.Row.Comments)
	return [][]any{{total}}, nil
}

func singles(f engine.Frame) ([][]any, error) {
	var out [][]any
	f.Each(func(r engine.Row) {
		if r.AlbumType() == models.AlbumTypeSingle {
			out = append(out, []any{r.Artist(), r.TrackName(), r.Album(), r.AlbumType().String()})
		}
	})
	return out, nil
}

func tracksPerArtist(f engine.Frame) ([][]any, error) {
	counts, err := engine.CountByDict(f, engine.ColArtist)
	if err != nil {
		return nil, err
	}
	engine.SortStable(counts, func(a, b engine.DictCount) bool { return a.Count < b.Count })

	out := make([][]any, len(counts))
	for i, c := range counts {
		out[i] = []any{c.Value, c.Count}
	}
	return out, nil
}

func albumDanceability(f engine.Frame) ([][]any, error) {
	type avg struct {
		album string
		value float64
	}
	groups := engine.GroupBy(f, engine.Row.Album)
	avgs := make([]avg, len(groups))
	for i, g := range groups {
		v, err := engine.Avg("avg(danceability)", g.Rows, engine.Row.Danceability)
		if err != nil {
			return nil, err
		}
		avgs[i] = avg{g.Key, v}
	}
	engine.SortStable(avgs, func(a, b avg) bool { return a.value > b.value })

	out := make([][]any, len(avgs))
	for i, a := range avgs {
		out[i] = []any{a.album, a.value}
	}
	return out, nil
}

func topEnergy(n int) func(engine.Frame) ([][]any, error) {
	return func(f engine.Frame) ([][]any, error) {
		type peak struct {
			track  string
			energy float64
		}
		groups := engine.GroupBy(f, engine.Row.TrackName)
		peaks := make([]peak, len(groups))
		for i, g := range groups {
			peaks[i] = peak{g.Key, engine.Max(g.Rows, engine.Row.Energy)}
		}
		engine.SortStable(peaks, func(a, b peak) bool { return a.energy > b.energy })

		var out [][]any
		for _, p := range engine.Limit(peaks, n) {
			out = append(out, []any{p.track, p.energy})
		}
		return out, nil
	}
}

func officialVideoEngagement(f engine.Frame) ([][]any, error) {
	type totals struct {
		track        string
		views, likes int64
	}
	groups := engine.GroupBy(f.Filter(engine.Row.OfficialVideo), engine.Row.TrackName)
	sums := make([]totals, len(groups))
	for i, g := range groups {
		sums[i] = totals{g.Key, engine.Sum(g.Rows, engine.Row.Views), engine.Sum(g.Rows, engine.Row.Likes)}
	}
	engine.SortStable(sums, func(a, b totals) bool { return a.views > b.views })

	out := make([][]any, len(sums))
	for i, s := range sums {
		out[i] = []any{s.track, s.views, s.likes}
	}
	return out, nil
}

func albumTrackViews(f engine.Frame) ([][]any, error) {
	type key struct{ album, track string }
	type total struct {
		key
		views int64
	}
	groups := engine.GroupBy(f, func(r engine.Row) key { return key{r.Album(), r.TrackName()} })
	sums := make([]total, len(groups))
	for i, g := range groups {
		sums[i] = total{g.Key, engine.Sum(g.Rows, engine.Row.Views)}
	}
	engine.SortStable(sums, func(a, b total) bool { return a.views > b.views })

	out := make([][]any, len(sums))
	for i, s := range sums {
		out[i] = []any{s.album, s.track, s.views}
	}
	return out, nil
}

func spotifyOverYoutube(f engine.Frame) ([][]any, error) {
	var out [][]any
	for _, g := range engine.GroupBy(f, engine.Row.TrackName) {
		var youtube, spotify int64
		for _, r := range g.Rows {
			switch r.MostPlayedOn() {
			case models.PlatformYoutube:
				youtube += r.Stream()
			case models.PlatformSpotify:
				spotify += r.Stream()
			}
		}
		if spotify > youtube && youtube != 0 {
			out = append(out, []any{g.Key, youtube, spotify})
		}
	}
	return out, nil
}

func topTracksPerArtist(n int) func(engine.Frame) ([][]any, error) {
	return func(f engine.Frame) ([][]any, error) {
		type ranked struct {
			track string
			views int64
		}
		byArtist := engine.GroupBy(f, engine.Row.Artist)
		engine.SortStable(byArtist, func(a, b engine.Group[string]) bool { return a.Key < b.Key })

		var out [][]any
		for _, artist := range byArtist {
			tracks := engine.GroupBy(engine.FrameOf(artist.Rows), engine.Row.TrackName)
			totals := make([]ranked, len(tracks))
			for i, g := range tracks {
				totals[i] = ranked{g.Key, engine.Sum(g.Rows, engine.Row.Views)}
			}
			engine.SortStable(totals, func(a, b ranked) bool { return a.views > b.views })

			ranks := engine.DenseRank(totals, func(r ranked) int64 { return r.views })
			for i, t := range totals {
				if ranks[i] > n {
					break
				}
				out = append(out, []any{artist.Key, t.track, t.views, ranks[i]})
			}
		}
		return out, nil
	}
}

func aboveAverageLiveness(f engine.Frame) ([][]any, error) {
	avg, err := engine.Avg("avg(liveness)", rowsOf(f), engine.Row.Liveness)
	if err != nil {
		return nil, err
	}
	var out [][]any
	f.Each(func(r engine.Row) {
		if r.Liveness() > avg {
			out = append(out, []any{r.TrackName(), r.Liveness()})
		}
	})
	return out, nil
}

func albumEnergyRange(f engine.Frame) ([][]any, error) {
	type spread struct {
		album string
		value float64
	}
	groups := engine.GroupBy(f, engine.Row.Album)
	spreads := make([]spread, len(groups))
	for i, g := range groups {
		spreads[i] = spread{g.Key, engine.Max(g.Rows, engine.Row.Energy) - engine.Min(g.Rows, engine.Row.Energy)}
	}
	engine.SortStable(spreads, func(a, b spread) bool { return a.value > b.value })

	out := make([][]any, len(spreads))
	for i, s := range spreads {
		out[i] = []any{s.album, s.value}
	}
	return out, nil
}
