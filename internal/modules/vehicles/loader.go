// Package vehicles loads the list of vehicles to collect sales for.
package vehicles

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/carmarket/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for vehicle files that are neither CSV nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported vehicle file format")

// Columns recognised in a CSV vehicle list. name and year are required.
const (
	colName             = "name"
	colYear             = "year"
	colMake             = "make"
	colModel            = "model"
	colVariant          = "variant"
	colClassicMarketURL = "classic_market_url"
)

// SupportedExtension reports whether path has a loadable extension.
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads a vehicle list from a CSV or YAML file, chosen by extension.
// An empty list is domain.ErrNoVehicles.
func Load(path string) ([]domain.Vehicle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vehicle file: %w", err)
	}
	defer f.Close()

	var list []domain.Vehicle
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		list, err = ParseCSV(f)
	case ".yaml", ".yml":
		list, err = ParseYAML(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return list, nil
}

// ParseCSV parses a vehicle list with a header row. Column order is free;
// unknown columns are ignored and blank lines are skipped.
func ParseCSV(r io.Reader) ([]domain.Vehicle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrNoVehicles
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, required := range []string{colName, colYear} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing %q column: %w", required, domain.ErrInvalidVehicle)
		}
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var list []domain.Vehicle
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}

		year, err := strconv.Atoi(field(row, colYear))
		if err != nil {
			return nil, fmt.Errorf("line %d: year %q: %w", line, field(row, colYear), domain.ErrInvalidVehicle)
		}

		v := domain.Vehicle{
			Name:             field(row, colName),
			Year:             year,
			Make:             field(row, colMake),
			Model:            field(row, colModel),
			Variant:          field(row, colVariant),
			ClassicMarketURL: field(row, colClassicMarketURL),
		}
		if err := Validate(v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		list = append(list, v)
	}

	if len(list) == 0 {
		return nil, domain.ErrNoVehicles
	}
	return list, nil
}

// document is the YAML layout: a top-level "vehicles" list.
type document struct {
	Vehicles []domain.Vehicle `yaml:"vehicles"`
}

// ParseYAML parses a vehicle list of the form
//
//	vehicles:
//	  - name: Porsche 911 Turbo
//	    year: 1995
//	    make: Porsche
//	    model: 911 Turbo
func ParseYAML(r io.Reader) ([]domain.Vehicle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Vehicles) == 0 {
		return nil, domain.ErrNoVehicles
	}

	for i := range doc.Vehicles {
		v := &doc.Vehicles[i]
		v.Name = strings.TrimSpace(v.Name)
		v.Make = strings.TrimSpace(v.Make)
		v.Model = strings.TrimSpace(v.Model)
		v.Variant = strings.TrimSpace(v.Variant)
		v.ClassicMarketURL = strings.TrimSpace(v.ClassicMarketURL)
		if err := Validate(*v); err != nil {
			return nil, fmt.Errorf("vehicle %d: %w", i+1, err)
		}
	}

	return doc.Vehicles, nil
}

// Validate checks the fields every vehicle must carry.
func Validate(v domain.Vehicle) error {
	if v.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrInvalidVehicle)
	}
	if v.Year <= 0 {
		return fmt.Errorf("year must be positive, got %d: %w", v.Year, domain.ErrInvalidVehicle)
	}
	return nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
