package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tania-lang/trublog-writer/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order. Each page is one row; snapshot
// columns repeat on every row. A snapshot without pages is stored as a
// single row with empty url and slug.
var headers = []string{
	"snapshot_id",
	"domain",
	"company",
	"created_at",
	"sitemaps_visited",
	"stop_reason",
	"duration_ms",
	"url",
	"slug",
	"include_subdomains",
	"max_urls",
}

// legacyColumns is the row width written before include_subdomains and
// max_urls were added. Such rows read back with both unset.
const legacyColumns = 9

// New opens a CSV file of harvested pages, writing the header row on first use.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, snap *storage.Snapshot) error {
	prefix := []string{
		snap.ID,
		snap.Domain,
		snap.Company,
		snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(snap.SitemapsVisited),
		snap.StopReason,
		strconv.FormatInt(snap.Duration.Milliseconds(), 10),
	}

	scope := [2]string{strconv.FormatBool(snap.IncludeSubdomains), strconv.Itoa(snap.MaxURLs)}

	rows := make([][]string, 0, max(len(snap.Pages), 1))
	for _, p := range snap.Pages {
		rows = append(rows, append(append([]string{}, prefix...), p.URL, p.Slug, scope[0], scope[1]))
	}
	if len(rows) == 0 {
		rows = append(rows, append(append([]string{}, prefix...), "", "", scope[0], scope[1]))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var (
		all     []*storage.Snapshot
		current *storage.Snapshot
	)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(record) != len(headers) && len(record) != legacyColumns {
			continue // skip malformed rows
		}

		// Save writes a snapshot's rows contiguously under the lock.
		if current == nil || current.ID != record[0] {
			visited, _ := strconv.Atoi(record[4])
			durationMs, _ := strconv.ParseInt(record[6], 10, 64)
			createdAt, _ := time.Parse(time.RFC3339Nano, record[3])

			current = &storage.Snapshot{
				ID:              record[0],
				Domain:          record[1],
				Company:         record[2],
				CreatedAt:       createdAt,
				SitemapsVisited: visited,
				StopReason:      record[5],
				Duration:        time.Duration(durationMs) * time.Millisecond,
				Pages:           []storage.PageRecord{},
			}
			if len(record) == len(headers) {
				current.IncludeSubdomains, _ = strconv.ParseBool(record[9])
				current.MaxURLs, _ = strconv.Atoi(record[10])
			}
			all = append(all, current)
		}

		if record[7] != "" {
			current.Pages = append(current.Pages, storage.PageRecord{
				URL:    record[7],
				Slug:   record[8],
				Domain: record[1],
			})
		}
	}

	var matched []*storage.Snapshot
	for i := len(all) - 1; i >= 0; i-- {
		if filter.Match(all[i]) {
			matched = append(matched, all[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return filter.Page(matched), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
