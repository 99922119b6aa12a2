package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Supported export formats
const (
	FormatParquet = "parquet"
	FormatJSONL   = "jsonl"
	FormatYAML    = "yaml"
)

// FormatFromPath picks the export format from the file extension
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".parquet":
		return FormatParquet, nil
	case ".jsonl", ".json":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl, .yaml)", ext)
	}
}

// Export writes records to path in the given format
func Export(path, format string, records []Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	switch format {
	case FormatParquet:
		err = parquet.WriteFile(path, records)
	case FormatJSONL:
		err = writeJSONL(path, records)
	case FormatYAML:
		err = writeYAML(path, records)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s export: %w", format, err)
	}

	slog.Info("History exported", "path", path, "format", format, "records", len(records))
	return nil
}

func writeJSONL(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeYAML(path string, records []Record) error {
	doc := struct {
		Records []Record `yaml:"records"`
	}{Records: records}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
