package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vybelabs/vybeledger/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver never needs write access to the
// primary store.

// MarketArchiveStore provides read access to settled markets.
type MarketArchiveStore interface {
	// ListResolvedBefore returns markets resolved strictly before the
	// given cutoff time.
	ListResolvedBefore(ctx context.Context, resolvedAt time.Time) ([]domain.Market, error)
}

// EventArchiveStore provides read access to the ledger event log.
type EventArchiveStore interface {
	ListByMarket(ctx context.Context, marketID uint64) ([]domain.Event, error)
}

// PositionArchiveStore provides read access to positions.
type PositionArchiveStore interface {
	ListByMarket(ctx context.Context, marketID uint64) ([]domain.Position, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for settled
// markets, serializing each market with its positions and event history to
// JSONL, and uploading the result to object storage.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	markets   MarketArchiveStore
	positions PositionArchiveStore
	events    EventArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	positions PositionArchiveStore,
	events EventArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		markets:   markets,
		positions: positions,
		events:    events,
		audit:     audit,
	}
}

// settledRecord is one JSONL line in the archive: a settled market together
// with its full position and event history.
type settledRecord struct {
	Market    domain.Market     `json:"market"`
	Positions []domain.Position `json:"positions"`
	Events    []domain.Event    `json:"events"`
}

// ArchiveSettled queries all markets resolved before the cutoff, bundles
// each with its positions and events, serializes the bundles to JSONL, and
// uploads the file to archive/settled/YYYY-MM.jsonl. The archival event is
// recorded in the audit log and the count of archived markets is returned.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	records := make([]settledRecord, 0, len(markets))
	for _, m := range markets {
		positions, err := a.positions.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled positions for market %d: %w", m.ID, err)
		}
		events, err := a.events.ListByMarket(ctx, m.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive settled events for market %d: %w", m.ID, err)
		}
		records = append(records, settledRecord{
			Market:    m,
			Positions: positions,
			Events:    events,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal: %w", err)
	}

	path := archivePath("settled", before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload: %w", err)
	}

	count := int64(len(markets))

	if err := a.audit.Log(ctx, "archive.settled", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settled audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/settled/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
