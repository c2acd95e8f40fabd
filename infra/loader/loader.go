// Package loader reads the dispatch inputs from disk: one CSV per parameter
// series indexed by step and the unit envelope as CSV or YAML.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bhkw/core/model"
)

// ErrMissingStep is returned when a step appears in one series file but not in
// another.
var ErrMissingStep = errors.New("step missing from series")

// Series file names and the parameter column each one carries.
const (
	GasPriceFile          = "Gas_Price.csv"
	PowerPriceFile        = "Power_Price.csv"
	CapacityPriceFile     = "Capacity_Price.csv"
	CapacityAllowanceFile = "BHKWCapacityAllowance.csv"
	EnvelopeFile          = "BHKW.csv"
)

type seriesFile struct {
	name   string
	column string
	set    func(*model.Step, float64)
}

var seriesFiles = []seriesFile{
	{GasPriceFile, "Gas_Price", func(s *model.Step, v float64) { s.GasPrice = v }},
	{PowerPriceFile, "Power_Price", func(s *model.Step, v float64) { s.PowerPrice = v }},
	{CapacityPriceFile, "Capacity_Price", func(s *model.Step, v float64) { s.CapacityPrice = v }},
	{CapacityAllowanceFile, "BHKWCapacityAllowance", func(s *model.Step, v float64) { s.CapacityAllowance = v }},
}

// Load reads the four series from dir and the envelope from envelopePath. An
// empty envelopePath selects BHKW.csv inside dir.
func Load(dir, envelopePath string) (model.Series, model.Envelope, error) {
	s, err := LoadSeries(dir)
	if err != nil {
		return nil, model.Envelope{}, err
	}
	if envelopePath == "" {
		envelopePath = filepath.Join(dir, EnvelopeFile)
	}
	env, err := LoadEnvelope(envelopePath)
	if err != nil {
		return nil, model.Envelope{}, err
	}
	return s, env, nil
}

// LoadSeries merges the four parameter files of dir into one horizon ordered by
// step. Every file must carry exactly the same steps.
func LoadSeries(dir string) (model.Series, error) {
	steps := map[int]*model.Step{}
	var first []int
	for i, sf := range seriesFiles {
		path := filepath.Join(dir, sf.name)
		values, err := readParam(path, sf.column)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			for id, v := range values {
				st := &model.Step{ID: id}
				sf.set(st, v)
				steps[id] = st
				first = append(first, id)
			}
			continue
		}
		for id, v := range values {
			st, ok := steps[id]
			if !ok {
				return nil, fmt.Errorf("%w: t=%d in %s but not in %s", ErrMissingStep, id, sf.name, seriesFiles[0].name)
			}
			sf.set(st, v)
		}
		if len(values) != len(steps) {
			for _, id := range first {
				if _, ok := values[id]; !ok {
					return nil, fmt.Errorf("%w: t=%d not in %s", ErrMissingStep, id, sf.name)
				}
			}
		}
	}
	sort.Ints(first)
	s := make(model.Series, 0, len(first))
	for _, id := range first {
		s = append(s, *steps[id])
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("load series from %s: %w", dir, err)
	}
	return s, nil
}

// readParam reads a two-column `t,<column>` file.
func readParam(path, column string) (map[int]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open series: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	idCol, valCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "t":
			idCol = i
		case column:
			valCol = i
		}
	}
	if idCol < 0 || valCol < 0 {
		return nil, fmt.Errorf("%s: expected columns t and %s, got %v", path, column, header)
	}

	out := map[int]float64{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[idCol]))
		if err != nil {
			return nil, fmt.Errorf("%s: step %q: %w", path, rec[idCol], err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: t=%d: %w", path, id, err)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("%s: duplicate step t=%d", path, id)
		}
		out[id] = v
	}
	return out, nil
}

// LoadEnvelope reads the unit envelope. Files ending in .yaml or .yml are
// decoded as YAML, everything else as the Min/Max CSV table.
func LoadEnvelope(path string) (model.Envelope, error) {
	var (
		env model.Envelope
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		env, err = loadEnvelopeYAML(path)
	default:
		env, err = loadEnvelopeCSV(path)
	}
	if err != nil {
		return model.Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return model.Envelope{}, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

func loadEnvelopeYAML(path string) (model.Envelope, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("read envelope: %w", err)
	}
	var env model.Envelope
	if err := yaml.Unmarshal(b, &env); err != nil {
		return model.Envelope{}, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

// loadEnvelopeCSV reads a table whose rows are indexed by Min and Max and whose
// columns are Power, Gas and Heat.
func loadEnvelopeCSV(path string) (model.Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("open envelope: %w", err)
	}
	defer func() { _ = f.Close() }()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return model.Envelope{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(recs) < 3 {
		return model.Envelope{}, fmt.Errorf("%s: expected header and Min/Max rows", path)
	}
	cols := map[string]int{}
	for i, h := range recs[0] {
		cols[strings.TrimSpace(h)] = i
	}
	table := map[string]map[string]float64{}
	for _, rec := range recs[1:] {
		idx := strings.TrimSpace(rec[0])
		row := map[string]float64{}
		for _, c := range []string{"Power", "Gas", "Heat"} {
			i, ok := cols[c]
			if !ok {
				return model.Envelope{}, fmt.Errorf("%s: missing column %s", path, c)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return model.Envelope{}, fmt.Errorf("%s: %s/%s: %w", path, idx, c, err)
			}
			row[c] = v
		}
		table[idx] = row
	}
	lo, okLo := table["Min"]
	hi, okHi := table["Max"]
	if !okLo || !okHi {
		return model.Envelope{}, fmt.Errorf("%s: rows Min and Max are required", path)
	}
	return model.Envelope{
		PowerMin: lo["Power"], PowerMax: hi["Power"],
		GasMin: lo["Gas"], GasMax: hi["Gas"],
		HeatMin: lo["Heat"], HeatMax: hi["Heat"],
	}, nil
}
