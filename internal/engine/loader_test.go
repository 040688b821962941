package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"trackstats/internal/models"
)

func TestLoadFile(t *testing.T) {
	store, err := LoadFile(filepath.Join("testdata", "tracks.csv"), WithWorkers(3))
	if err != nil {
		t.Fatal(err)
	}

	// Expect 6 rows
	if store.Len() != 6 {
		t.Fatalf("Expected 6 rows, got %d", store.Len())
	}

	// Row 0 Check
	row := store.All().Row(0)
	if row.Views() != 693555221 {
		t.Errorf("Row 0 Views: Expected 693555221, got %d", row.Views())
	}
	if row.Stream() != 1040234854 {
		t.Errorf("Row 0 Stream: Expected 1040234854, got %d", row.Stream())
	}

	// Quoted field with commas survives
	if got := store.All().Row(2).TrackName(); got != "New Gold (feat. Tame Impala and Bootie Brown)" {
		t.Errorf("Row 2 Track: got %q", got)
	}

	// Case-insensitive booleans and enums
	if !store.Licensed[4] || store.Licensed[5] {
		t.Errorf("Licensed column decoded wrong: %v", store.Licensed)
	}
	if store.MostPlayedOn[4] != models.PlatformYoutube {
		t.Errorf("Row 4 most_played_on: got %v", store.MostPlayedOn[4])
	}
	if store.AlbumTypes[2] != models.AlbumTypeSingle {
		t.Errorf("Row 2 album_type: got %v", store.AlbumTypes[2])
	}

	// Dictionary Checks
	if len(store.ArtistDict) != 3 {
		t.Errorf("Expected 3 unique artists, got %d", len(store.ArtistDict))
	}
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullHeader = "artist,track,album,album_type,danceability,energy,loudness,speechiness,acousticness," +
	"instrumentalness,liveness,valence,tempo,duration_min,title,channel,views,likes,comments," +
	"licensed,official_video,stream,energy_liveness,most_played_on"

func csvRow(licensed, stream string) string {
	return "A,T,Al,album,0.1,0.2,-3,0.1,0.1,0,0.1,0.5,120,3.5,Ti,Ch,10,2,1," + licensed + ",true," + stream + ",2,Spotify"
}

func TestLoadFile_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantRow int
		wantCol string
	}{
		{
			name:    "bad boolean",
			content: fullHeader + "\n" + csvRow("true", "1") + "\n" + csvRow("yes", "1") + "\n",
			wantRow: 2,
			wantCol: "licensed",
		},
		{
			name:    "negative stream",
			content: fullHeader + "\n" + csvRow("true", "-4") + "\n",
			wantRow: 1,
			wantCol: "stream",
		},
		{
			name:    "fractional count",
			content: fullHeader + "\n" + csvRow("true", "1.5") + "\n",
			wantRow: 1,
			wantCol: "stream",
		},
		{
			name:    "missing column",
			content: strings.Replace(fullHeader, ",tempo", "", 1) + "\n",
			wantRow: 0,
			wantCol: "tempo",
		},
		{
			name:    "earliest bad row wins",
			content: fullHeader + "\n" + csvRow("x", "1") + "\n" + csvRow("true", "1") + "\n" + csvRow("y", "1") + "\n",
			wantRow: 1,
			wantCol: "licensed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, "bad.csv", tt.content)
			store, err := LoadFile(path, WithWorkers(4))
			require.Nil(t, store)

			var me *MalformedRecordError
			require.ErrorAs(t, err, &me)
			require.Equal(t, tt.wantRow, me.Row)
			require.Equal(t, tt.wantCol, me.Column)
			require.False(t, IsRecoverable(err))
		})
	}
}

func TestLoadFile_HeaderOnly(t *testing.T) {
	store, err := LoadFile(writeFixture(t, "empty.csv", fullHeader+"\n"))
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())
}

func TestLoadFile_TooLarge(t *testing.T) {
	content := fullHeader + "\n" + csvRow("true", "1") + "\n" + csvRow("true", "2") + "\n"
	_, err := LoadFile(writeFixture(t, "two.csv", content), WithMaxRows(1))

	var tooLarge *DatasetTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, 1, tooLarge.Limit)
}

const jsonRecord = `{"artist":"A","track":"T","album":"Al","album_type":"album","danceability":0.1,` +
	`"energy":0.2,"loudness":-3,"speechiness":0.1,"acousticness":0.1,"instrumentalness":0,` +
	`"liveness":0.1,"valence":0.5,"tempo":120,"duration_min":3.5,"title":"Ti","channel":"Ch",` +
	`"views":10,"likes":2,"comments":1,"licensed":true,"official_video":true,"stream":1,` +
	`"energy_liveness":2,"most_played_on":"spotify"}`

func TestLoadReader_GuardStopsReading(t *testing.T) {
	pastGuard := iotest.ErrReader(errors.New("read past the row guard"))

	tests := []struct {
		name   string
		format Format
		input  io.Reader
	}{
		{
			name:   "csv",
			format: FormatCSV,
			input: io.MultiReader(
				strings.NewReader(fullHeader+"\n"),
				strings.NewReader(strings.Repeat(csvRow("true", "1")+"\n", 10_000)),
				pastGuard),
		},
		{
			name:   "json",
			format: FormatJSON,
			input: io.MultiReader(
				strings.NewReader("["+strings.Repeat(jsonRecord+",", 10_000)),
				pastGuard),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReader(tt.input, WithFormat(tt.format), WithMaxRows(10))
			var tooLarge *DatasetTooLargeError
			require.ErrorAs(t, err, &tooLarge)
			require.True(t, tooLarge.Partial)
			require.Equal(t, 10, tooLarge.Limit)
			require.Contains(t, err.Error(), "more than 10 rows")
		})
	}
}

func TestLoadReader_JSONWithinGuard(t *testing.T) {
	content := "[" + jsonRecord + ",\n" + jsonRecord + "]"
	store, err := LoadReader(strings.NewReader(content), WithFormat(FormatJSON), WithMaxRows(2))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	_, err = LoadReader(strings.NewReader(jsonRecord), WithFormat(FormatJSON))
	var me *MalformedRecordError
	require.ErrorAs(t, err, &me)

	_, err = LoadReader(strings.NewReader("["+jsonRecord+","), WithFormat(FormatJSON))
	require.ErrorAs(t, err, &me)
}

func TestLoadGenerated_GuardBeforeBuilding(t *testing.T) {
	// far too many rows to ever allocate
	_, err := LoadGenerated(1<<40, 1, WithMaxRows(1_000))
	var tooLarge *DatasetTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, 1<<40, tooLarge.Rows)
	require.False(t, tooLarge.Partial)

	s, err := LoadGenerated(50, 1, WithMaxRows(50))
	require.NoError(t, err)
	require.Equal(t, 50, s.Len())
	require.Equal(t, "generated", s.Source)
}

func TestLoadFile_JSON(t *testing.T) {
	content := `[{"Artist":"A","Track":"T","Album":"Al","Album_type":"Single","Danceability":0.1,
"Energy":0.2,"Loudness":-3,"Speechiness":0.1,"Acousticness":0.1,"Instrumentalness":0,
"Liveness":0.1,"Valence":0.5,"Tempo":120,"Duration_min":3.5,"Title":"Ti","Channel":"Ch",
"Views":1.0e3,"Likes":2,"Comments":1,"Licensed":true,"official_video":"FALSE","Stream":2000000000,
"EnergyLiveness":2,"most_playedon":"youtube","extra":[1,2]}]`

	store, err := LoadFile(writeFixture(t, "tracks.json", content))
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	got := store.All().Row(0).Track()
	require.Equal(t, models.AlbumTypeSingle, got.AlbumType)
	require.Equal(t, models.PlatformYoutube, got.MostPlayedOn)
	require.Equal(t, int64(1000), got.Views)
	require.Equal(t, int64(2000000000), got.Stream)
	require.True(t, got.Licensed)
	require.False(t, got.OfficialVideo)
}

func TestLoadFile_JSONMissingField(t *testing.T) {
	_, err := LoadFile(writeFixture(t, "bad.json", `[{"artist":"A"}]`))
	var me *MalformedRecordError
	require.ErrorAs(t, err, &me)
	require.Equal(t, 1, me.Row)
}

func TestCoercionHelpers(t *testing.T) {
	n, err := parseCount("693555221.0")
	require.NoError(t, err)
	require.Equal(t, int64(693555221), n)

	_, err = parseCount("-1")
	require.Error(t, err)

	b, err := parseBool("TRUE")
	require.NoError(t, err)
	require.True(t, b)

	_, err = parseFloat("NaN")
	require.Error(t, err)

	require.Equal(t, "energyliveness", normalizeName("EnergyLiveness"))
	require.Equal(t, "durationmin", normalizeName("Duration_min"))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatAuto, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)

	require.Equal(t, FormatArrow, formatFromPath("x.arrow"))
	require.Equal(t, FormatCSV, formatFromPath("x.txt"))
}
