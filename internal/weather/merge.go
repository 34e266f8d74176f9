package weather

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/metrics"
)

// MergePlan is the minimal set of writes that brings stored records in line with a fetch.
type MergePlan struct {
	// Inserts carry the target LocationID and no ID.
	Inserts []Record
	// Updates carry the ID of the stored record and the full set of fresh readings.
	Updates []Record
	// Unchanged counts fresh records that already match the store.
	Unchanged int
}

// Writes returns the number of store writes the plan needs.
func (p MergePlan) Writes() int {
	return len(p.Inserts) + len(p.Updates)
}

// MergeResult summarizes an applied merge.
type MergeResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// PlanMerge compares fresh against existing, keyed by timestamp.
//
// Fresh records with the same timestamp collapse into the last one in input order.
// A timestamp missing from existing becomes an insert. A timestamp present in existing
// becomes an update only when at least one reading differs, and the update then replaces
// all readings, including ones the fresh record leaves unset.
func PlanMerge(locationID int64, existing, fresh []Record) MergePlan {
	stored := make(map[int64]Record, len(existing))
	for _, r := range existing {
		stored[timeKey(r.Time)] = r
	}

	order := make([]int64, 0, len(fresh))
	latest := make(map[int64]Record, len(fresh))
	for _, r := range fresh {
		k := timeKey(r.Time)
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = r
	}

	var plan MergePlan
	for _, k := range order {
		r := latest[k]
		cur, ok := stored[k]
		if !ok {
			ins := r.Clone()
			ins.ID = 0
			ins.LocationID = locationID
			ins.Time = r.Time.UTC()
			plan.Inserts = append(plan.Inserts, ins)
			continue
		}
		if cur.SameReadings(r) {
			plan.Unchanged++
			continue
		}
		plan.Updates = append(plan.Updates, cur.WithReadings(r))
	}
	return plan
}

// Merger applies fetched records to the store, one location per call.
type Merger struct {
	store  Store
	logger *zap.Logger
}

func NewMerger(store Store, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{store: store, logger: logger}
}

// Merge reconciles fresh with the stored records of locationID inside one transaction.
// Either every write of the call commits or none does.
//
// ErrLocationNotFound is returned when the location no longer exists. Any other store
// failure is returned as *MergeError.
func (m *Merger) Merge(ctx context.Context, locationID int64, fresh []Record) (MergeResult, error) {
	var plan MergePlan

	err := m.store.WithinTx(ctx, func(tx StoreTx) error {
		if err := tx.LockLocation(ctx, locationID); err != nil {
			return err
		}
		existing, err := tx.ListRecords(ctx, locationID)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}

		plan = PlanMerge(locationID, existing, fresh)

		for _, r := range plan.Inserts {
			if err := tx.InsertRecord(ctx, locationID, r); err != nil {
				return fmt.Errorf("insert record at %s: %w", r.Time.Format("2006-01-02T15:04"), err)
			}
		}
		for _, r := range plan.Updates {
			if err := tx.UpdateRecord(ctx, r.ID, r); err != nil {
				return fmt.Errorf("update record %d: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return MergeResult{}, fmt.Errorf("location %d: %w", locationID, ErrLocationNotFound)
		}
		return MergeResult{}, &MergeError{LocationID: locationID, Err: err}
	}

	res := MergeResult{
		Inserted:  len(plan.Inserts),
		Updated:   len(plan.Updates),
		Unchanged: plan.Unchanged,
	}
	metrics.AddMergeWrites(res.Inserted, res.Updated)
	m.logger.Debug("records merged",
		zap.Int64("location_id", locationID),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
	)
	return res, nil
}
