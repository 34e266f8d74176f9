package weather

import (
	"fmt"
	"strconv"
	"time"
)

// Coordinates is a point on the globe in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Validate checks that both components are within their geographic range.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, c.Longitude)
	}
	return nil
}

// Key returns a canonical string key for indexing these coordinates in caches.
func (c Coordinates) Key() string {
	return strconv.FormatFloat(c.Latitude, 'f', 4, 64) + ":" + strconv.FormatFloat(c.Longitude, 'f', 4, 64)
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%g, %g)", c.Latitude, c.Longitude)
}

// Location is a monitored place. ID is assigned by the store and never changes.
type Location struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Coordinates
}

// Record is one timestamped set of readings for a location.
// Every reading is optional because the source may omit any of them.
type Record struct {
	ID         int64     `json:"-"`
	LocationID int64     `json:"-"`
	Time       time.Time `json:"time"`

	Temperature   *float64 `json:"temperature_2m,omitempty"`
	WindSpeed     *float64 `json:"wind_speed_10m,omitempty"`
	Pressure      *float64 `json:"pressure_msl,omitempty"`
	Precipitation *float64 `json:"rain,omitempty"`
	Humidity      *float64 `json:"relative_humidity_2m,omitempty"`
}

// SameReadings reports whether r and other hold identical readings.
// Time and identity are not compared.
func (r Record) SameReadings(other Record) bool {
	return equalReading(r.Temperature, other.Temperature) &&
		equalReading(r.WindSpeed, other.WindSpeed) &&
		equalReading(r.Pressure, other.Pressure) &&
		equalReading(r.Precipitation, other.Precipitation) &&
		equalReading(r.Humidity, other.Humidity)
}

// WithReadings returns r with every reading replaced by the ones in src.
func (r Record) WithReadings(src Record) Record {
	r.Temperature = cloneReading(src.Temperature)
	r.WindSpeed = cloneReading(src.WindSpeed)
	r.Pressure = cloneReading(src.Pressure)
	r.Precipitation = cloneReading(src.Precipitation)
	r.Humidity = cloneReading(src.Humidity)
	return r
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return r.WithReadings(r)
}

func equalReading(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneReading(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v. Handy when building records by hand.
func Float(v float64) *float64 {
	return &v
}

// timeKey normalizes a timestamp into the per-location dedup key.
func timeKey(t time.Time) int64 {
	return t.UnixNano()
}

// RefKind tells which field of a LocationRef identifies the location.
type RefKind int

const (
	RefByID RefKind = iota + 1
	RefByName
	RefByCoordinates
)

func (k RefKind) String() string {
	switch k {
	case RefByID:
		return "id"
	case RefByName:
		return "name"
	case RefByCoordinates:
		return "coordinates"
	default:
		return "unknown"
	}
}

// LocationRef identifies a location by exactly one of id, name or coordinates.
// Build it with ByID, ByName or ByCoordinates.
type LocationRef struct {
	kind   RefKind
	id     int64
	name   string
	coords Coordinates
}

func ByID(id int64) LocationRef { return LocationRef{kind: RefByID, id: id} }

func ByName(name string) LocationRef { return LocationRef{kind: RefByName, name: name} }

func ByCoordinates(c Coordinates) LocationRef { return LocationRef{kind: RefByCoordinates, coords: c} }

func (r LocationRef) Kind() RefKind { return r.kind }

func (r LocationRef) ID() int64 { return r.id }

func (r LocationRef) Name() string { return r.name }

func (r LocationRef) Coordinates() Coordinates { return r.coords }

func (r LocationRef) String() string {
	switch r.kind {
	case RefByID:
		return "id " + strconv.FormatInt(r.id, 10)
	case RefByName:
		return strconv.Quote(r.name)
	case RefByCoordinates:
		return r.coords.String()
	default:
		return "invalid location ref"
	}
}

// Origin says where a resolved record came from.
type Origin string

const (
	OriginStore  Origin = "store"
	OriginSource Origin = "source"
)

// Resolution is the outcome of a nearest-time lookup.
type Resolution struct {
	Record Record `json:"record"`
	Origin Origin `json:"origin"`
	// Location is nil when the record was fetched for coordinates that match no stored location.
	Location *Location `json:"location,omitempty"`
}
