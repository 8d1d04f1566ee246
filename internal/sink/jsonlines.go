package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/JonMunkholm/sheetload/internal/core"
)

// JSONLines writes each record as one JSON object per line, tagged with its
// destination. The batch CLI uses it for dry runs.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines returns a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

type jsonLine struct {
	Destination core.Destination      `json:"destination"`
	SheetRow    int                   `json:"sheet_row"`
	Record      core.NormalizedRecord `json:"record"`
}

// SubmitRecords implements core.Sink. A write error fails the batch.
func (s *JSONLines) SubmitRecords(ctx context.Context, dest core.Destination, records []core.NormalizedRecord) ([]core.RecordError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := enc.Encode(jsonLine{Destination: dest, SheetRow: rec.SheetRow, Record: rec}); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil, nil
}
