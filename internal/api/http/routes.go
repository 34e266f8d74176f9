package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-monitor/internal/scheduler"
	"github.com/i474232898/weather-monitor/internal/weather"
)

var validate = validator.New()

type handlers struct {
	service  *weather.Service
	registry *scheduler.Registry
	zone     *time.Location
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
// zone is used to read times that carry no offset.
func RegisterRoutes(app *fiber.App, service *weather.Service, registry *scheduler.Registry, zone *time.Location) {
	if zone == nil {
		zone = time.UTC
	}
	h := &handlers{service: service, registry: registry, zone: zone}

	v1 := app.Group("/api/v1")

	v1.Post("/locations", h.addLocation)
	v1.Get("/locations", h.listLocations)
	v1.Delete("/locations/:id", h.deleteLocation)
	v1.Get("/locations/:id/weather", h.locationWeather)

	v1.Get("/weather", h.weatherByCoordinates)
	v1.Get("/weather/:name", h.weatherByName)

	v1.Get("/tasks", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"tasks": h.registry.Jobs()})
	})
}

// addLocationRequest is the body of POST /locations. Coordinates are optional when a geocoder
// is configured, but must be given together.
type addLocationRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (h *handlers) addLocation(c *fiber.Ctx) error {
	var req addLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude must be given together")
	}

	var coords *weather.Coordinates
	if req.Latitude != nil {
		coords = &weather.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	loc, err := h.service.AddLocation(c.UserContext(), req.Name, coords)
	if err != nil {
		return err
	}
	h.registry.Register(loc.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "location added",
		"id":        loc.ID,
		"name":      loc.Name,
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
	})
}

func (h *handlers) listLocations(c *fiber.Ctx) error {
	if !c.QueryBool("include_weather", false) {
		locs, err := h.service.ListLocations(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"locations": emptyIfNil(locs)})
	}

	fields := parseFields(c)
	locs, err := h.service.ListLocationsWithWeather(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]fiber.Map, 0, len(locs))
	for _, lw := range locs {
		records := make([]fiber.Map, 0, len(lw.Records))
		for _, r := range lw.Records {
			records = append(records, fields.render(r))
		}
		out = append(out, fiber.Map{
			"id":              lw.ID,
			"name":            lw.Name,
			"latitude":        lw.Latitude,
			"longitude":       lw.Longitude,
			"weather_records": records,
		})
	}
	return c.JSON(fiber.Map{"locations": out})
}

func (h *handlers) deleteLocation(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteLocation(c.UserContext(), id); err != nil {
		return err
	}
	h.registry.Deregister(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) locationWeather(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.resolve(c, weather.ByID(id), false)
}

// coordinatesQuery holds query parameters for identifying a point.
type coordinatesQuery struct {
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

func (h *handlers) weatherByCoordinates(c *fiber.Ctx) error {
	latStr, lonStr := c.Query("latitude"), c.Query("longitude")
	if latStr == "" || lonStr == "" {
		return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude query parameters are required")
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return fiber.NewError(fiber.StatusBadRequest, "latitude and longitude must be numbers")
	}

	q := coordinatesQuery{Latitude: lat, Longitude: lon}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return h.resolve(c, weather.ByCoordinates(weather.Coordinates{Latitude: lat, Longitude: lon}), false)
}

func (h *handlers) weatherByName(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	return h.resolve(c, weather.ByName(name), true)
}

// resolve answers with the record nearest to the "time" query parameter, or to now when it
// is absent and not required.
func (h *handlers) resolve(c *fiber.Ctx, ref weather.LocationRef, timeRequired bool) error {
	fields := parseFields(c)

	var (
		res weather.Resolution
		err error
	)
	switch raw := c.Query("time"); {
	case raw != "":
		target, perr := parseTime(raw, h.zone)
		if perr != nil {
			return fiber.NewError(fiber.StatusBadRequest, perr.Error())
		}
		res, err = h.service.ResolveNearest(c.UserContext(), ref, target)
	case timeRequired:
		return fiber.NewError(fiber.StatusBadRequest, "time query parameter is required")
	default:
		res, err = h.service.ResolveNow(c.UserContext(), ref)
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"location": res.Location,
		"origin":   res.Origin,
		"weather":  fields.render(res.Record),
	})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}
	return id, nil
}

// parseTime accepts RFC3339, a local date-time without offset (read in zone), or unix seconds.
// An unescaped "+" in an offset reaches us as a space and is put back.
func parseTime(s string, zone *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if t, i := strings.IndexByte(s, 'T'), strings.LastIndexByte(s, ' '); t > 0 && i > t {
		if ts, err := time.Parse(time.RFC3339, s[:i]+"+"+s[i+1:]); err == nil {
			return ts, nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, s, zone); err == nil {
			return ts, nil
		}
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 (escape + as %2B), YYYY-MM-DDTHH:MM or unix seconds")
}

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
