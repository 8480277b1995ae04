// Package availability computes free capacity of items from in-memory item and
// commitment data. Nothing here performs I/O or mutates its inputs.
package availability

import (
	"fmt"
	"sort"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/model"
)

// Point is the state of one item on one day.
type Point struct {
	ItemID    string             `json:"item_id"`
	ItemName  string             `json:"item_name"`
	Date      dates.Date         `json:"date"`
	Total     int                `json:"total"`
	Committed int                `json:"committed"`
	Available int                `json:"available"`
	Active    []model.Commitment `json:"active_commitments"`
}

// Peak is the worst day of an item over a period.
type Peak struct {
	ItemID        string     `json:"item_id"`
	Start         dates.Date `json:"start"`
	End           dates.Date `json:"end"`
	Total         int        `json:"total"`
	PeakCommitted int        `json:"peak_committed"`
	PeakDay       dates.Date `json:"peak_day"`
	MinAvailable  int        `json:"min_available"`
}

// Fits reports whether a new commitment of quantity spanning the whole period
// can be accepted.
func (p Peak) Fits(quantity int) bool {
	return quantity <= p.MinAvailable
}

// PointInTime returns how much of item itemID is committed and free on day.
//
// With a non-nil filter only commitments at that location count. If the item
// itself is not at the filtered location, Available is max(0, -committed): a
// location filter narrows reporting, it does not create capacity elsewhere.
func PointInTime(items []model.Item, itemID string, commitments []model.Commitment, day dates.Date, filter *model.Location) (Point, error) {
	item, err := find(items, itemID)
	if err != nil {
		return Point{}, err
	}
	return point(item, commitments, day, filter), nil
}

// PeriodPeak returns the maximum daily committed quantity of item itemID over
// [start, end]. The commitment with id excludeID, if any, is ignored so that an
// edit can be re-validated against everything except its own footprint.
func PeriodPeak(items []model.Item, itemID string, commitments []model.Commitment, start, end dates.Date, excludeID string) (Peak, error) {
	item, err := find(items, itemID)
	if err != nil {
		return Peak{}, err
	}
	if end.Before(start) {
		return Peak{}, model.Invalid("end_date", "%s is before start %s", end, start)
	}
	return peak(item, commitments, start, end, excludeID), nil
}

// Snapshot computes PointInTime for every item against one shared commitment list.
func Snapshot(items []model.Item, commitments []model.Commitment, day dates.Date, filter *model.Location) []Point {
	byItem := make(map[string][]model.Commitment, len(items))
	for _, c := range commitments {
		byItem[c.ItemID] = append(byItem[c.ItemID], c)
	}

	points := make([]Point, 0, len(items))
	for _, item := range items {
		points = append(points, point(item, byItem[item.ID], day, filter))
	}
	return points
}

func find(items []model.Item, id string) (model.Item, error) {
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return model.Item{}, fmt.Errorf("%w: %s", model.ErrItemNotFound, id)
}

func point(item model.Item, commitments []model.Commitment, day dates.Date, filter *model.Location) Point {
	p := Point{
		ItemID:   item.ID,
		ItemName: item.Name,
		Date:     day,
		Total:    item.TotalQuantity,
		Active:   []model.Commitment{},
	}
	for _, c := range commitments {
		if c.ItemID != item.ID || !c.ActiveOn(day) {
			continue
		}
		if filter != nil && !c.Location().Matches(*filter) {
			continue
		}
		p.Committed += c.Quantity
		p.Active = append(p.Active, c)
	}

	p.Available = p.Total - p.Committed
	// Location filtering is a reporting view over a single-location capacity:
	// an item kept elsewhere has nothing available at the filtered place.
	if filter != nil && !item.Location().Matches(*filter) {
		p.Available = max(0, -p.Committed)
	}
	return p
}

type event struct {
	day   dates.Date
	delta int
}

// peak sweeps start/stop events of the overlapping commitments instead of
// materialising every day, which keeps multi-year periods cheap. The result is
// the same as taking the maximum of point() over each day of the period.
func peak(item model.Item, commitments []model.Commitment, start, end dates.Date, excludeID string) Peak {
	var events []event
	for _, c := range commitments {
		if c.ItemID != item.ID || (excludeID != "" && c.ID == excludeID) || !c.Overlaps(start, end) {
			continue
		}
		from, to := c.StartDate, c.EndDate
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		events = append(events, event{day: from, delta: c.Quantity}, event{day: to.AddDays(1), delta: -c.Quantity})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].day.Before(events[j].day)
	})

	p := Peak{ItemID: item.ID, Start: start, End: end, Total: item.TotalQuantity, PeakDay: start}
	running := 0
	for i := 0; i < len(events); {
		day := events[i].day
		for i < len(events) && events[i].day == day {
			running += events[i].delta
			i++
		}
		if running > p.PeakCommitted && !day.After(end) {
			p.PeakCommitted = running
			p.PeakDay = day
		}
	}
	p.MinAvailable = p.Total - p.PeakCommitted
	return p
}
