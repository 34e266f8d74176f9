package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-monitor/internal/weather"
)

// fieldSelection says which readings a response carries. time is always included.
type fieldSelection struct {
	Temperature bool
	WindSpeed   bool
	Pressure    bool
	Humidity    bool
	Rain        bool
}

func parseFields(c *fiber.Ctx) fieldSelection {
	return fieldSelection{
		Temperature: c.QueryBool("temperature_2m", true),
		WindSpeed:   c.QueryBool("wind_speed_10m", true),
		Pressure:    c.QueryBool("pressure_msl", true),
		Humidity:    c.QueryBool("relative_humidity_2m", false),
		Rain:        c.QueryBool("rain", false),
	}
}

func (f fieldSelection) render(r weather.Record) fiber.Map {
	out := fiber.Map{"time": r.Time}
	if f.Temperature {
		out["temperature_2m"] = r.Temperature
	}
	if f.WindSpeed {
		out["wind_speed_10m"] = r.WindSpeed
	}
	if f.Pressure {
		out["pressure_msl"] = r.Pressure
	}
	if f.Humidity {
		out["relative_humidity_2m"] = r.Humidity
	}
	if f.Rain {
		out["rain"] = r.Precipitation
	}
	return out
}
