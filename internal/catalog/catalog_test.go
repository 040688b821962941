package catalog

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"trackstats/internal/engine"
	"trackstats/internal/metrics"
	"trackstats/internal/models"
)

type mod func(*models.Track)

func track(artist, name string, mods ...mod) models.Track {
	t := models.Track{
		Artist:       artist,
		Track:        name,
		Album:        artist + " LP",
		AlbumType:    models.AlbumTypeAlbum,
		MostPlayedOn: models.PlatformSpotify,
	}
	for _, m := range mods {
		m(&t)
	}
	return t
}

func views(n int64) mod { return func(t *models.Track) { t.Views = n } }
func stream(n int64) mod { return func(t *models.Track) { t.Stream = n } }
func on(p models.Platform) mod { return func(t *models.Track) { t.MostPlayedOn = p } }
func album(name string) mod { return func(t *models.Track) { t.Album = name } }
func energy(v float64) mod { return func(t *models.Track) { t.Energy = v } }
func liveness(v float64) mod { return func(t *models.Track) { t.Liveness = v } }
func kind(a models.AlbumType) mod { return func(t *models.Track) { t.AlbumType = a } }
func licensed(comments int64) mod { return func(t *models.Track) { t.Licensed = true; t.Comments = comments } }
func officialVideo(v, likes int64) mod {
	return func(t *models.Track) { t.OfficialVideo = true; t.Views = v; t.Likes = likes }
}

func load(t *testing.T, rows ...models.Track) engine.Frame {
	t.Helper()
	s, err := engine.Load(rows)
	require.NoError(t, err)
	return s.All()
}

func run(t *testing.T, id int, f engine.Frame) [][]any {
	t.Helper()
	res, err := New(DefaultParams()).Run(id, f)
	require.NoError(t, err)
	require.Equal(t, id, res.QueryID)
	return res.Rows
}

func TestCatalog_Lookup(t *testing.T) {
	c := New(DefaultParams())
	require.Len(t, c.All(), 13)
	for i, q := range c.All() {
		require.Equal(t, i+1, q.ID)
		require.NotEmpty(t, q.Name)
		require.NotEmpty(t, q.Columns)

		got, err := c.Get(q.ID)
		require.NoError(t, err)
		require.Same(t, q, got)
	}

	_, err := c.Get(0)
	require.Error(t, err)
	_, err = c.Get(14)
	require.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.TopEnergy = 0
	require.Error(t, p.Validate())

	p = DefaultParams()
	p.StreamThreshold = -1
	require.Error(t, p.Validate())
}

func TestQuery1_StreamsOverThreshold(t *testing.T) {
	f := load(t,
		track("A", "exactly", stream(1_000_000_000)),
		track("A", "above", stream(1_000_000_001)),
		track("B", "below", stream(10)),
	)
	require.Equal(t, [][]any{{"above", int64(1_000_000_001)}}, run(t, 1, f))

	p := DefaultParams()
	p.StreamThreshold = 5
	res, err := New(p).Run(1, f)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
}

func TestQuery2_SortedAndStable(t *testing.T) {
	f := load(t,
		track("Zed", "1", album("B")),
		track("Amy", "2", album("B")),
		track("Zed", "3", album("A")),
		track("Zed", "4", album("B")),
	)
	want := [][]any{{"A", "Zed"}, {"B", "Amy"}, {"B", "Zed"}}
	require.Equal(t, want, run(t, 2, f))
	require.Equal(t, run(t, 2, f), run(t, 2, f))
}

func TestQuery3_LicensedComments(t *testing.T) {
	f := load(t,
		track("A", "1", licensed(10)),
		track("A", "2", func(t *models.Track) { t.Comments = 1000 }),
		track("B", "3", licensed(5)),
	)
	require.Equal(t, [][]any{{int64(15)}}, run(t, 3, f))

	_, err := New(DefaultParams()).Run(3, load(t, track("A", "1")))
	var empty *engine.EmptyDatasetError
	require.ErrorAs(t, err, &empty)
}

func TestEmptyTable(t *testing.T) {
	c := New(DefaultParams())

	frames := map[string]engine.Frame{
		"loaded":  load(t),
		"zero":    {},
		"no rows": engine.FrameOf(nil),
	}
	for name, f := range frames {
		t.Run(name, func(t *testing.T) {
			for _, q := range c.All() {
				res, err := c.Run(q.ID, f)
				switch q.ID {
				case 3, 12:
					var empty *engine.EmptyDatasetError
					require.ErrorAs(t, err, &empty, "query %d", q.ID)
					require.Contains(t, err.Error(), q.Name)
					require.True(t, engine.IsRecoverable(err))
				default:
					require.NoError(t, err, "query %d", q.ID)
					require.NotNil(t, res.Rows)
					require.Empty(t, res.Rows, "query %d", q.ID)
				}
			}
		})
	}
}

func TestQuery4_Singles(t *testing.T) {
	f := load(t,
		track("A", "1", kind(models.AlbumTypeSingle), album("1 - Single")),
		track("A", "2"),
		track("B", "3", kind(models.AlbumTypeCompilation)),
	)
	require.Equal(t, [][]any{{"A", "1", "1 - Single", "single"}}, run(t, 4, f))
}

func TestQuery5_CountsSumToRows(t *testing.T) {
	s, err := engine.Load(engine.Generate(3_000, 99))
	require.NoError(t, err)

	rows := run(t, 5, s.All())
	var total int64
	for i, r := range rows {
		total += r[1].(int64)
		if i > 0 {
			require.LessOrEqual(t, rows[i-1][1].(int64), r[1].(int64))
		}
	}
	require.Equal(t, int64(s.Len()), total)
}

func TestQuery6_AlbumDanceability(t *testing.T) {
	dance := func(v float64) mod { return func(t *models.Track) { t.Danceability = v } }
	f := load(t,
		track("A", "1", album("low"), dance(0.2)),
		track("A", "2", album("high"), dance(0.9)),
		track("A", "3", album("low"), dance(0.4)),
	)
	rows := run(t, 6, f)
	require.Len(t, rows, 2)
	require.Equal(t, "high", rows[0][0])
	require.Equal(t, "low", rows[1][0])
	require.InDelta(t, 0.3, rows[1][1].(float64), 1e-12)
}

func TestQuery7_TopEnergy(t *testing.T) {
	var rows []models.Track
	for i, e := range []float64{0.1, 0.9, 0.5, 0.7, 0.3, 0.8, 0.2} {
		rows = append(rows, track("A", string(rune('a'+i)), energy(e)))
	}
	// a second row for "a" raises its max
	rows = append(rows, track("B", "a", energy(0.95)))

	got := run(t, 7, load(t, rows...))
	require.Equal(t, [][]any{
		{"a", 0.95}, {"b", 0.9}, {"f", 0.8}, {"d", 0.7}, {"c", 0.5},
	}, got)
}

func TestQuery8_OfficialVideoEngagement(t *testing.T) {
	f := load(t,
		track("A", "x", officialVideo(10, 1)),
		track("B", "y", officialVideo(50, 5)),
		track("C", "x", officialVideo(15, 2)),
		track("D", "z", views(1_000)),
	)
	require.Equal(t, [][]any{
		{"y", int64(50), int64(5)},
		{"x", int64(25), int64(3)},
	}, run(t, 8, f))
}

func TestQuery9_AlbumTrackViews(t *testing.T) {
	f := load(t,
		track("A", "x", album("one"), views(5)),
		track("A", "x", album("two"), views(7)),
		track("B", "x", album("one"), views(4)),
	)
	require.Equal(t, [][]any{
		{"one", "x", int64(9)},
		{"two", "x", int64(7)},
	}, run(t, 9, f))
}

func TestQuery10_SpotifyOverYoutube(t *testing.T) {
	f := load(t,
		track("1", "A", on(models.PlatformSpotify), stream(100)),
		track("2", "A", on(models.PlatformYoutube), stream(50)),
		track("3", "B", on(models.PlatformSpotify), stream(100)),
		track("4", "C", on(models.PlatformSpotify), stream(10)),
		track("5", "C", on(models.PlatformYoutube), stream(50)),
	)
	require.Equal(t, [][]any{{"A", int64(50), int64(100)}}, run(t, 10, f))
}

func TestQuery11_DenseRank(t *testing.T) {
	f := load(t,
		track("X", "t1", views(100)),
		track("X", "t2", views(100)),
		track("X", "t3", views(50)),
		track("A", "u1", views(1)),
	)
	require.Equal(t, [][]any{
		{"A", "u1", int64(1), 1},
		{"X", "t1", int64(100), 1},
		{"X", "t2", int64(100), 1},
		{"X", "t3", int64(50), 2},
	}, run(t, 11, f))
}

func TestQuery11_CutoffAndNoGaps(t *testing.T) {
	f := load(t,
		track("X", "a", views(9)),
		track("X", "b", views(8)),
		track("X", "c", views(8)),
		track("X", "d", views(7)),
		track("X", "e", views(6)),
	)
	rows := run(t, 11, f)
	var ranks []int
	for _, r := range rows {
		ranks = append(ranks, r[3].(int))
	}
	require.Equal(t, []int{1, 2, 2, 3}, ranks)

	s, err := engine.Load(engine.Generate(2_000, 4))
	require.NoError(t, err)
	prev := map[string]int{}
	for _, r := range run(t, 11, s.All()) {
		artist, rank := r[0].(string), r[3].(int)
		require.LessOrEqual(t, rank, prev[artist]+1, "gap for %s", artist)
		require.LessOrEqual(t, rank, 3)
		prev[artist] = rank
	}
}

func TestQuery12_AboveAverageLiveness(t *testing.T) {
	f := load(t,
		track("A", "1", liveness(0.1)),
		track("A", "2", liveness(0.2)),
		track("A", "3", liveness(0.9)),
	)
	require.Equal(t, [][]any{{"3", 0.9}}, run(t, 12, f))
}

func TestQuery13_AlbumEnergyRange(t *testing.T) {
	f := load(t,
		track("A", "1", album("flat"), energy(0.5)),
		track("A", "2", album("wide"), energy(0.1)),
		track("A", "3", album("wide"), energy(0.9)),
		track("A", "4", album("flat"), energy(0.5)),
	)
	rows := run(t, 13, f)
	require.Len(t, rows, 2)
	require.Equal(t, "wide", rows[0][0])
	require.InDelta(t, 0.8, rows[0][1].(float64), 1e-12)
	require.Equal(t, []any{"flat", 0.0}, rows[1])
}

func TestRunAll(t *testing.T) {
	s, err := engine.Load(engine.Generate(1_500, 21))
	require.NoError(t, err)
	c := New(DefaultParams())

	results, err := c.RunAll(context.Background(), s.All())
	require.NoError(t, err)
	require.Len(t, results, 13)
	for i, res := range results {
		want, err := c.Run(i+1, s.All())
		require.NoError(t, err)
		require.Equal(t, want, res)
	}

	_, err = c.RunAll(context.Background(), load(t))
	var empty *engine.EmptyDatasetError
	require.ErrorAs(t, err, &empty)
	require.Contains(t, err.Error(), "query 3")
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultParams()).RunAll(ctx, load(t, track("A", "1")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := New(DefaultParams(), WithMetrics(m))

	_, err := c.Run(2, load(t, track("A", "1"), track("B", "2")))
	require.NoError(t, err)
	require.Equal(t, float64(2), testutil.ToFloat64(m.QueryRows.WithLabelValues("2")))
}

func TestAccessPredicates(t *testing.T) {
	c := New(DefaultParams())
	want := map[int]Access{
		1: {Column: engine.ColStream, Op: OpGt, Value: "1000000000"},
		3: {Column: engine.ColLicensed, Op: OpEq, Value: "true"},
		4: {Column: engine.ColAlbumType, Op: OpEq, Value: "single"},
		8: {Column: engine.ColOfficialVideo, Op: OpEq, Value: "true"},
	}
	for _, q := range c.All() {
		if w, ok := want[q.ID]; ok {
			require.NotNil(t, q.Access, "query %d", q.ID)
			require.Equal(t, w, *q.Access)
		} else {
			require.Nil(t, q.Access, "query %d", q.ID)
		}
	}
}

func TestAccessOn(t *testing.T) {
	c := New(DefaultParams())
	q5, err := c.Get(5)
	require.NoError(t, err)
	q3, err := c.Get(3)
	require.NoError(t, err)

	// no value, no predicate on the column: every row
	a, err := q5.AccessOn(engine.ColArtist, "")
	require.NoError(t, err)
	require.Equal(t, Access{Column: engine.ColArtist, Op: OpAll}, a)
	require.False(t, a.Restricts())
	require.Equal(t, "all keys of artist", a.String())

	// no value, the query's own predicate
	a, err = q3.AccessOn(engine.ColLicensed, "")
	require.NoError(t, err)
	require.Equal(t, *q3.Access, a)
	require.True(t, a.Restricts())

	// own predicate is on another column
	a, err = q3.AccessOn(engine.ColStream, "")
	require.NoError(t, err)
	require.Equal(t, OpAll, a.Op)

	a, err = q5.AccessOn(engine.ColStream, "> 10")
	require.NoError(t, err)
	require.Equal(t, Access{Column: engine.ColStream, Op: OpGt, Value: "10"}, a)

	_, err = q5.AccessOn(engine.Column("genre"), "")
	require.ErrorIs(t, err, engine.ErrUnknownColumn)
}
