package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"apotek/m/internal/store"
)

// LoadMedicinesFile imports the catalog CSV at path. See LoadMedicines.
func LoadMedicinesFile(ctx context.Context, medicines *store.Medicines, path string, log zerolog.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open medicine catalog %s: %w", path, err)
	}
	defer file.Close()
	return LoadMedicines(ctx, medicines, file, log)
}

// LoadMedicines ingests a CSV with a header row and the columns
// name, stock, unit_price. Rows whose name is already in the catalog are
// ignored, as are malformed rows. It returns the number of rows inserted.
func LoadMedicines(ctx context.Context, medicines *store.Medicines, r io.Reader, log zerolog.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("read medicine header: %w", err)
	}

	existing, err := medicines.List(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, m := range existing {
		known[strings.ToLower(m.Name)] = true
	}

	rows := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("unable to read medicine row")
			continue
		}
		in, err := parseMedicine(record)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping medicine row")
			continue
		}
		key := strings.ToLower(in.Name)
		if known[key] {
			continue
		}

		if _, err := medicines.Create(ctx, in, nil); err != nil {
			var verr *store.ValidationError
			if errors.As(err, &verr) {
				log.Warn().Err(err).Int("line", line).Msg("skipping medicine row")
				continue
			}
			return rows, err
		}
		known[key] = true
		rows++
	}

	log.Info().Int("rows", rows).Msg("seeded medicine catalog")
	return rows, nil
}

func parseMedicine(record []string) (store.NewMedicine, error) {
	if len(record) < 3 {
		return store.NewMedicine{}, fmt.Errorf("expected 3 columns, got %d", len(record))
	}
	name := strings.TrimSpace(record[0])
	if name == "" {
		return store.NewMedicine{}, errors.New("empty name")
	}
	stock, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
	if err != nil {
		return store.NewMedicine{}, fmt.Errorf("stock: %w", err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return store.NewMedicine{}, fmt.Errorf("unit_price: %w", err)
	}
	return store.NewMedicine{Name: name, Stock: stock, UnitPrice: price}, nil
}
