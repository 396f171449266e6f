package availability

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Normalize converts raw source rows into a snapshot of canonical
// records. Rows outside the home-based delivery mode are filtered out;
// rows missing an institution or test date are dropped and counted.
// Records are ordered by slot ID so every snapshot of the same state is
// identical.
func Normalize(rows []RawRow, takenAt time.Time) (*Snapshot, int) {
	dropped := 0
	records := make([]Record, 0, len(rows))

	for _, row := range rows {
		if !IsHomeDelivery(row.DeliveryMode) {
			continue
		}
		if strings.TrimSpace(row.Institution) == "" || strings.TrimSpace(row.TestDate) == "" {
			dropped++
			continue
		}

		status := ClassifyStatus(row.StatusText)
		capacity := 0
		if status == StatusAvailable {
			capacity = parseCapacity(row.CapacityText)
		}

		records = append(records, Record{
			SlotID:      SlotID(row.Institution, row.City, row.TestDate, row.DeliveryMode),
			Status:      status,
			Capacity:    capacity,
			Institution: strings.TrimSpace(row.Institution),
			Region:      strings.TrimSpace(row.Region),
			City:        strings.TrimSpace(row.City),
			Deadline:    strings.TrimSpace(row.Deadline),
			TestDate:    strings.TrimSpace(row.TestDate),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SlotID < records[j].SlotID
	})

	available := 0
	for _, r := range records {
		if r.Status == StatusAvailable {
			available++
		}
	}

	return &Snapshot{
		ID:             uuid.NewString(),
		TakenAt:        takenAt,
		Records:        records,
		TotalCount:     len(records),
		AvailableCount: available,
	}, dropped
}

// parseCapacity extracts the open-spot count from the calendar's spots
// column. The column sometimes carries extra text, so the first integer
// found wins; no integer means the count is unknown and reported as 0.
func parseCapacity(text string) int {
	for _, field := range strings.Fields(text) {
		if n, err := strconv.Atoi(field); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}
