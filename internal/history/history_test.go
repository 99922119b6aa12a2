package history

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

var now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func sampleLoans() []models.Loan {
	returned := now.Add(-72 * time.Hour)
	return []models.Loan{
		{ID: 1, BookID: 5, Status: models.LoanActive, DueAt: now.Add(48 * time.Hour),
			Book: models.BookSummary{Title: "Dune", Author: "Frank Herbert"}},
		{ID: 2, BookID: 6, Status: models.LoanActive, DueAt: now.Add(-24 * time.Hour),
			Book: models.BookSummary{Title: "Emma", Author: "Jane Austen"}},
		{ID: 3, BookID: 7, Status: models.LoanReturned, DueAt: now.Add(-48 * time.Hour), ReturnedAt: &returned,
			Book: models.BookSummary{Title: "Persuasion", Author: "Jane Austen"}},
		{ID: 4, BookID: 8, Status: models.LoanPending,
			Book: models.BookSummary{Title: "Ulysses", Author: "James Joyce"}},
	}
}

func TestEffectiveStatus(t *testing.T) {
	loans := sampleLoans()
	assert.Equal(t, models.LoanActive, EffectiveStatus(loans[0], now))
	assert.Equal(t, models.LoanOverdue, EffectiveStatus(loans[1], now))
	assert.Equal(t, models.LoanReturned, EffectiveStatus(loans[2], now))
	assert.Equal(t, models.LoanPending, EffectiveStatus(loans[3], now))
}

func TestFilterLoans(t *testing.T) {
	tests := []struct {
		name     string
		filter   LoanFilter
		expected []models.ID
	}{
		{"no filter", LoanFilter{}, []models.ID{1, 2, 3, 4}},
		{"all", LoanFilter{Status: "all"}, []models.ID{1, 2, 3, 4}},
		{"active excludes overdue", LoanFilter{Status: "active"}, []models.ID{1}},
		{"overdue", LoanFilter{Status: "overdue"}, []models.ID{2}},
		{"returned", LoanFilter{Status: "Returned"}, []models.ID{3}},
		{"author search", LoanFilter{Term: "austen"}, []models.ID{2, 3}},
		{"title search with status", LoanFilter{Status: "returned", Term: "PERSUASION"}, []models.ID{3}},
		{"no match", LoanFilter{Term: "tolkien"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []models.ID
			for _, l := range FilterLoans(sampleLoans(), tt.filter, now) {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func sampleDataset() eligibility.Dataset {
	return eligibility.Dataset{
		Requests: []models.LoanRequest{
			{ID: 10, BookID: 5, Status: models.RequestPending, CreatedAt: now,
				Book: models.BookSummary{Title: "Dune", Author: "Frank Herbert"}},
		},
		Loans: sampleLoans()[1:3],
		Penalties: []models.Penalty{
			{ID: 20, Reason: "late return", Status: models.PenaltyActive, StartsAt: now, EndsAt: now.Add(72 * time.Hour)},
		},
	}
}

func TestRecords(t *testing.T) {
	records := Records(sampleDataset(), now)
	require.Len(t, records, 4)

	assert.Equal(t, KindRequest, records[0].Kind)
	assert.Equal(t, "2024-03-20T12:00:00Z", records[0].StartsAt)

	assert.Equal(t, KindLoan, records[1].Kind)
	assert.Equal(t, "active", records[1].Status)
	assert.Equal(t, "overdue", records[1].DisplayStatus)
	assert.Empty(t, records[1].ReturnedAt)
	assert.NotEmpty(t, records[2].ReturnedAt)

	assert.Equal(t, KindPenalty, records[3].Kind)
	assert.Equal(t, "late return", records[3].Reason)
	assert.Zero(t, records[3].BookID)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"out.parquet":  FormatParquet,
		"out.jsonl":    FormatJSONL,
		"OUT.JSON":     FormatJSONL,
		"a/b/out.yaml": FormatYAML,
		"out.yml":      FormatYAML,
	}
	for path, expected := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, expected, got, path)
	}

	_, err := FormatFromPath("out.csv")
	assert.ErrorContains(t, err, "unsupported file format")
}

func TestExport(t *testing.T) {
	records := Records(sampleDataset(), now)
	dir := t.TempDir()

	t.Run("parquet", func(t *testing.T) {
		path := filepath.Join(dir, "history.parquet")
		require.NoError(t, Export(path, FormatParquet, records))

		read, err := parquet.ReadFile[Record](path)
		require.NoError(t, err)
		assert.Equal(t, records, read)
	})

	t.Run("jsonl", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "history.jsonl")
		require.NoError(t, Export(path, FormatJSONL, records))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		var read []Record
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var r Record
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
			read = append(read, r)
		}
		require.NoError(t, scanner.Err())
		assert.Equal(t, records, read)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "history.yaml")
		require.NoError(t, Export(path, FormatYAML, records))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc struct {
			Records []Record `yaml:"records"`
		}
		require.NoError(t, yaml.Unmarshal(data, &doc))
		assert.Equal(t, records, doc.Records)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, Export(filepath.Join(dir, "x.csv"), "csv", records))
	})
}
