// Package export renders dispense history records for external consumers.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/medbox/dispenser/core/model"
)

// WriteJSON writes the history records to w in JSON format.
func WriteJSON(w io.Writer, recs []model.HistoryRecord) error {
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes the history records to w as one row per record.
func WriteCSV(w io.Writer, recs []model.HistoryRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "origin", "outcome", "items", "pills", "error"}); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			string(r.Origin),
			string(r.Outcome),
			strconv.Itoa(len(r.Items)),
			strconv.Itoa(model.TotalPills(r.Items)),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
