package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Accepted on read; dates are always written back as ISO.
var dateLayouts = []string{dateLayout, "2006-01-02 15:04:05", "02/01/2006", "2/1/2006"}

var historyColumns = []string{"Date", "Commodity", "Market", "County", "Retail", "Wholesale", "Supply Volume"}
var recentColumns = []string{"Date", "Commodity", "Market", "County", "Retail", "Unit", "Wholesale"}

// ReadRows loads a raw history CSV. Rows with unparseable dates are
// dropped. A missing file is not an error and yields no rows.
func ReadRows(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := columnIndex(records[0])
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		date, ok := parseDate(field(record, index, "Date"))
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Date:         date,
			Commodity:    strings.TrimSpace(field(record, index, "Commodity")),
			Market:       strings.TrimSpace(field(record, index, "Market")),
			County:       strings.TrimSpace(field(record, index, "County")),
			Retail:       field(record, index, "Retail"),
			Wholesale:    field(record, index, "Wholesale"),
			SupplyVolume: field(record, index, "Supply Volume"),
		})
	}
	return rows, nil
}

// MergeRows concatenates the master history with a delta, deduplicates
// on (Date, Commodity, Market, County) keeping the later-supplied row,
// and returns the result sorted by date.
func MergeRows(history, latest []Row) []Row {
	type key struct {
		date   string
		entity EntityKey
	}
	seen := make(map[key]int, len(history)+len(latest))
	merged := make([]Row, 0, len(history)+len(latest))
	for _, row := range append(append([]Row(nil), history...), latest...) {
		k := key{date: row.Date.Format(dateLayout), entity: row.Entity()}
		if i, ok := seen[k]; ok {
			merged[i] = row
			continue
		}
		seen[k] = len(merged)
		merged = append(merged, row)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	return merged
}

// WriteRows persists the master history CSV via a temp file rename so a
// crash mid-write never truncates the existing master.
func WriteRows(path string, rows []Row) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, historyColumns)
	for _, row := range rows {
		records = append(records, []string{
			row.Date.Format(dateLayout),
			row.Commodity,
			row.Market,
			row.County,
			row.Retail,
			row.Wholesale,
			row.SupplyVolume,
		})
	}
	return writeCSV(path, records)
}

// RecentExtract keeps the last n observations per entity, in date
// order. Callers pass observations already cleaned of missing retail
// prices; the training price band does not apply here.
func RecentExtract(observations []PriceObservation, n int) []PriceObservation {
	groups := GroupByEntity(observations)
	keys := make([]EntityKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.County < b.County
	})

	extract := make([]PriceObservation, 0, len(observations))
	for _, key := range keys {
		series := groups[key]
		if len(series) > n {
			series = series[len(series)-n:]
		}
		extract = append(extract, series...)
	}
	return extract
}

// WriteRecent persists the serving extract CSV.
func WriteRecent(path string, observations []PriceObservation) error {
	records := make([][]string, 0, len(observations)+1)
	records = append(records, recentColumns)
	for _, o := range observations {
		wholesale := ""
		if !math.IsNaN(o.Wholesale) {
			wholesale = strconv.FormatFloat(o.Wholesale, 'f', -1, 64)
		}
		records = append(records, []string{
			o.Date.Format(dateLayout),
			o.Commodity,
			o.Market,
			o.County,
			strconv.FormatFloat(o.Retail, 'f', -1, 64),
			o.Unit,
			wholesale,
		})
	}
	return writeCSV(path, records)
}

// ReadRecent loads the serving extract written by WriteRecent.
func ReadRecent(path string) ([]PriceObservation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := columnIndex(records[0])
	observations := make([]PriceObservation, 0, len(records)-1)
	for _, record := range records[1:] {
		date, ok := parseDate(field(record, index, "Date"))
		if !ok {
			continue
		}
		retail, err := strconv.ParseFloat(field(record, index, "Retail"), 64)
		if err != nil {
			continue
		}
		unit := field(record, index, "Unit")
		if unit == "" {
			unit = UnitKG
		}
		wholesale := math.NaN()
		if raw := field(record, index, "Wholesale"); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				wholesale = v
			}
		}
		observations = append(observations, PriceObservation{
			Date:      date,
			Commodity: strings.TrimSpace(field(record, index, "Commodity")),
			Market:    strings.TrimSpace(field(record, index, "Market")),
			County:    strings.TrimSpace(field(record, index, "County")),
			Retail:    retail,
			Wholesale: wholesale,
			Unit:      unit,
		})
	}
	return observations, nil
}

// GroupByEntity splits observations into per-entity series, each sorted
// by date. Series never mix entities: lag and rolling features read one
// series only.
func GroupByEntity(observations []PriceObservation) map[EntityKey][]PriceObservation {
	groups := make(map[EntityKey][]PriceObservation)
	for _, o := range observations {
		key := o.Entity()
		groups[key] = append(groups[key], o)
	}
	for key := range groups {
		series := groups[key]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		groups[key] = series
	}
	return groups
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	return index
}

func field(record []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
