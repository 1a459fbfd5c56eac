package inspector

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

const merged = "Year\tActor1CountryCode\tActor2CountryCode\tEventCode\n" +
	"2014\tUSA\tCHN\t010\n" +
	"2014\tUSA\tCHN\t020\n" +
	"2014\tGBR\tFRA\t010\n" +
	"2015\tUSA\t\t010\n" +
	"2015\tUSA\tCHN\t043\n" +
	"2015\tRUS\tUKR\t190\n"

func TestInspect_TSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.tsv")
	require.NoError(t, os.WriteFile(path, []byte(merged), 0o644))

	s, err := Inspect(context.Background(), path, 2, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "tsv", s.Format)
	assert.EqualValues(t, 6, s.Rows)
	require.Len(t, s.Columns, 4)
	assert.Equal(t, "Actor1CountryCode", s.Columns[1].Name)
	assert.Equal(t, "VARCHAR", s.Columns[1].Type)

	require.Len(t, s.TopPairs, 2)
	assert.Equal(t, Pair{Actor1: "USA", Actor2: "CHN", Count: 3}, s.TopPairs[0])
	assert.Equal(t, Pair{Actor1: "GBR", Actor2: "FRA", Count: 1}, s.TopPairs[1])

	var out bytes.Buffer
	s.Print(&out)
	assert.Contains(t, out.String(), "Rows: 6")
	assert.Contains(t, out.String(), "USA      | CHN      | 3")
}

func TestInspect_Parquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.parquet")
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewCSVWriter([]string{
		"name=Year, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=EventCode, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	}, fw, 1)
	require.NoError(t, err)
	for _, row := range [][]string{{"2014", "010"}, {"2015", "020"}} {
		ptrs := []*string{&row[0], &row[1]}
		require.NoError(t, pw.WriteString(ptrs))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())

	s, err := Inspect(context.Background(), path, 0, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "parquet", s.Format)
	assert.EqualValues(t, 2, s.Rows)
	assert.Len(t, s.Columns, 2)
	assert.Empty(t, s.TopPairs)
	assert.NoError(t, s.PairsErr)
}

func TestInspect_MissingFile(t *testing.T) {
	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "none.tsv"), 5, quietLogger())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInspect_TSVFieldsAreNotQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.tsv")
	body := "Year\tActor1CountryCode\tActor2CountryCode\tActor1Name\n" +
		"2014\tUSA\tCHN\tPRESIDENT\n" +
		"2014\tUSA\tCHN\t\"quoted start\n" +
		"2014\tGBR\tFRA\tHALF\"QUOTE\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := Inspect(context.Background(), path, 5, quietLogger())
	require.NoError(t, err)
	assert.EqualValues(t, 3, s.Rows)
	require.NotEmpty(t, s.TopPairs)
	assert.Equal(t, Pair{Actor1: "USA", Actor2: "CHN", Count: 2}, s.TopPairs[0])
}
