package model

import (
	"strings"
	"time"

	"github.com/erazemk/rezervator/internal/dates"
)

// Commitment reserves Quantity units of one item over [StartDate, EndDate] inclusive.
type Commitment struct {
	ID           string     `json:"id"`
	ItemID       string     `json:"item_id"`
	Quantity     int        `json:"quantity"`
	StartDate    dates.Date `json:"start_date"`
	EndDate      dates.Date `json:"end_date"`
	Description  string     `json:"description,omitempty"`
	City         string     `json:"city"`
	Region       string     `json:"region_code"`
	Address      string     `json:"address,omitempty"`
	Counterparty string     `json:"counterparty,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
}

// Location returns where the commitment takes place.
func (c Commitment) Location() Location {
	return Location{City: c.City, Region: c.Region}
}

// ActiveOn reports whether the commitment covers day.
func (c Commitment) ActiveOn(day dates.Date) bool {
	return day.Within(c.StartDate, c.EndDate)
}

// Overlaps reports whether the commitment shares a day with [start, end].
func (c Commitment) Overlaps(start, end dates.Date) bool {
	return dates.Overlaps(c.StartDate, c.EndDate, start, end)
}

// CommitmentSpec is the caller-supplied shape of a commitment on create and update.
type CommitmentSpec struct {
	ItemID       string     `json:"item_id"`
	Quantity     int        `json:"quantity"`
	StartDate    dates.Date `json:"start_date"`
	EndDate      dates.Date `json:"end_date"`
	Description  string     `json:"description,omitempty"`
	City         string     `json:"city"`
	Region       string     `json:"region_code"`
	Address      string     `json:"address,omitempty"`
	Counterparty string     `json:"counterparty,omitempty"`
}

// Normalize trims free-text fields and upper-cases the region code.
func (s CommitmentSpec) Normalize() CommitmentSpec {
	s.ItemID = strings.TrimSpace(s.ItemID)
	s.Description = strings.TrimSpace(s.Description)
	s.City = strings.TrimSpace(s.City)
	s.Region = strings.ToUpper(strings.TrimSpace(s.Region))
	s.Address = strings.TrimSpace(s.Address)
	s.Counterparty = strings.TrimSpace(s.Counterparty)
	return s
}

// Apply copies the requested fields onto a commitment, keeping its identity and timestamps.
func (s CommitmentSpec) Apply(c Commitment) Commitment {
	c.ItemID = s.ItemID
	c.Quantity = s.Quantity
	c.StartDate = s.StartDate
	c.EndDate = s.EndDate
	c.Description = s.Description
	c.City = s.City
	c.Region = s.Region
	c.Address = s.Address
	c.Counterparty = s.Counterparty
	return c
}
