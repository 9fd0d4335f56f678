package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// csvHeader is the fixed CSV export header, per spec §4.5 ("CSV header
// fixed").
var csvHeader = []string{
	"id", "timestamp", "userId", "eventType", "resource", "action",
	"success", "ipAddress", "correlationId", "detailsSealed", "details",
	"previousHash", "thisHash",
}

// ExportCSV streams every record matching filter to w as CSV with the
// fixed header, paginating through the store internally regardless of
// filter.PageSize.
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer, filter Filter) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("audit: writing csv header: %w", err)
	}

	f := filter
	f.PageSize = MaxPageSize
	for {
		page, err := e.Query(ctx, f)
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			row := []string{
				rec.ID,
				rec.Timestamp.Format(rfc3339Nano),
				rec.UserID,
				rec.EventType,
				rec.Resource,
				rec.Action,
				fmt.Sprintf("%t", rec.Success),
				rec.IPAddress,
				rec.CorrelationID,
				fmt.Sprintf("%t", rec.DetailsSealed),
				rec.Details,
				fmt.Sprintf("%x", rec.PreviousHash),
				fmt.Sprintf("%x", rec.ThisHash),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("audit: writing csv row: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		if page.NextCursor == "" {
			return nil
		}
		f.Cursor = page.NextCursor
	}
}

// exportRecord is the JSON wire shape for one exported record; hashes
// are rendered hex rather than as raw byte arrays.
type exportRecord struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	UserID        string `json:"userId"`
	EventType     string `json:"eventType"`
	Resource      string `json:"resource"`
	Action        string `json:"action"`
	Success       bool   `json:"success"`
	IPAddress     string `json:"ipAddress"`
	CorrelationID string `json:"correlationId"`
	DetailsSealed bool   `json:"detailsSealed"`
	Details       string `json:"details"`
	PreviousHash  string `json:"previousHash"`
	ThisHash      string `json:"thisHash"`
}

func toExportRecord(rec Record) exportRecord {
	return exportRecord{
		ID: rec.ID, Timestamp: rec.Timestamp.Format(rfc3339Nano), UserID: rec.UserID,
		EventType: rec.EventType, Resource: rec.Resource, Action: rec.Action,
		Success: rec.Success, IPAddress: rec.IPAddress, CorrelationID: rec.CorrelationID,
		DetailsSealed: rec.DetailsSealed, Details: rec.Details,
		PreviousHash: fmt.Sprintf("%x", rec.PreviousHash), ThisHash: fmt.Sprintf("%x", rec.ThisHash),
	}
}

// ExportJSON streams every record matching filter to w as a single JSON
// array, per spec §4.5 ("JSON a streaming array"), without buffering the
// whole result set in memory.
func (e *Engine) ExportJSON(ctx context.Context, w io.Writer, filter Filter) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return err
	}
	enc := json.NewEncoder(w)

	f := filter
	f.PageSize = MaxPageSize
	first := true
	for {
		page, err := e.Query(ctx, f)
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return err
				}
			}
			first = false
			if err := enc.Encode(toExportRecord(rec)); err != nil {
				return fmt.Errorf("audit: encoding record: %w", err)
			}
		}
		if page.NextCursor == "" {
			break
		}
		f.Cursor = page.NextCursor
	}
	_, err := w.Write([]byte("]"))
	return err
}
