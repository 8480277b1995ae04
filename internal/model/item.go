package model

import (
	"strings"
	"time"
)

// Item is a reservable resource with a finite quantity.
type Item struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	TotalQuantity int        `json:"total_quantity"`
	City          string     `json:"city"`
	Region        string     `json:"region_code"`
	Address       string     `json:"address,omitempty"`
	Attributes    Attributes `json:"attributes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Location returns where the item physically is.
func (i Item) Location() Location {
	return Location{City: i.City, Region: i.Region}
}

// ItemSpec is the caller-supplied shape of an item on create and update.
type ItemSpec struct {
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	TotalQuantity int        `json:"total_quantity"`
	City          string     `json:"city"`
	Region        string     `json:"region_code"`
	Address       string     `json:"address,omitempty"`
	Attributes    Attributes `json:"attributes,omitempty"`
}

// Normalize trims free-text fields and upper-cases the region code.
func (s ItemSpec) Normalize() ItemSpec {
	s.Name = strings.TrimSpace(s.Name)
	s.Category = strings.TrimSpace(s.Category)
	s.City = strings.TrimSpace(s.City)
	s.Region = strings.ToUpper(strings.TrimSpace(s.Region))
	s.Address = strings.TrimSpace(s.Address)
	s.Attributes = s.Attributes.Normalize()
	return s
}

// Apply copies the requested fields onto an item, keeping its identity and timestamps.
func (s ItemSpec) Apply(it Item) Item {
	it.Name = s.Name
	it.Category = s.Category
	it.TotalQuantity = s.TotalQuantity
	it.City = s.City
	it.Region = s.Region
	it.Address = s.Address
	it.Attributes = s.Attributes
	return it
}

// Attributes holds the category-specific fields of an item, keyed by field name.
type Attributes map[string]string

// Normalize trims keys and values and drops empty keys.
func (a Attributes) Normalize() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Location is a city plus two-letter region code.
type Location struct {
	City   string `json:"city"`
	Region string `json:"region_code"`
}

// Normalize trims the city and upper-cases the region code.
func (l Location) Normalize() Location {
	return Location{
		City:   strings.TrimSpace(l.City),
		Region: strings.ToUpper(strings.TrimSpace(l.Region)),
	}
}

// Matches reports whether two locations name the same place. City comparison is
// case-insensitive.
func (l Location) Matches(o Location) bool {
	a, b := l.Normalize(), o.Normalize()
	return strings.EqualFold(a.City, b.City) && a.Region == b.Region
}

// IsZero reports whether neither city nor region is set.
func (l Location) IsZero() bool {
	return strings.TrimSpace(l.City) == "" && strings.TrimSpace(l.Region) == ""
}
