package prices

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/gridflex/core/tariff"
)

// ReadCSV parses "time,price" rows. Times are RFC 3339; a header row whose
// first cell does not parse as a time is skipped.
func ReadCSV(r io.Reader) ([]tariff.PricePoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	var out []tariff.PricePoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tariff.PricePoint{Time: ts.UTC(), Price: price})
	}
}
