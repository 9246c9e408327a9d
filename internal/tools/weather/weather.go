// Package weather provides the forecast tool backed by the Australian
// Bureau of Meteorology's public FTP product feed.
//
// One tool is exported via [NewTools]:
//   - "get_weather_forecast" — speaks today's and tomorrow's forecast for a
//     named area from the configured précis XML product.
//
// Fetch and parse failures degrade to an empty answer so the assistant
// falls back to a clarification phrase instead of reading error jargon.
package weather

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/MrWong99/auricle/internal/tools"
)

const fetchTimeout = 15 * time.Second

// Config locates the BOM forecast product.
type Config struct {
	// Host is the FTP host, with an optional port (default
	// "ftp.bom.gov.au").
	Host string `yaml:"host"`

	// Path is the product file to retrieve (default the NSW précis
	// product "/anon/gen/fwo/IDN11060.xml").
	Path string `yaml:"path"`

	// DefaultLocation is the area used when the request names none
	// (default "Sydney").
	DefaultLocation string `yaml:"default_location"`
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "ftp.bom.gov.au"
	}
	if c.Path == "" {
		c.Path = "/anon/gen/fwo/IDN11060.xml"
	}
	if c.DefaultLocation == "" {
		c.DefaultLocation = "Sydney"
	}
	return c
}

// product mirrors the slice of the BOM précis XML the summary needs.
type product struct {
	Areas []area `xml:"forecast>area"`
}

type area struct {
	Description string   `xml:"description,attr"`
	Periods     []period `xml:"forecast-period"`
}

type period struct {
	StartTimeLocal string    `xml:"start-time-local,attr"`
	Elements       []element `xml:"element"`
	Texts          []element `xml:"text"`
}

type element struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Service fetches and summarizes forecasts.
type Service struct {
	cfg   Config
	fetch func(ctx context.Context) ([]byte, error)
	now   func() time.Time
}

// New creates a Service reading from the configured FTP product.
func New(cfg Config) *Service {
	s := &Service{cfg: cfg.withDefaults(), now: time.Now}
	s.fetch = s.fetchFTP
	return s
}

// Forecast returns the spoken two-day forecast for location, or the
// configured default area when location is empty. An unknown area or a
// failed fetch returns the empty string.
func (s *Service) Forecast(ctx context.Context, location string) string {
	if location == "" {
		location = s.cfg.DefaultLocation
	}

	data, err := s.fetch(ctx)
	if err != nil {
		slog.Error("weather: forecast fetch failed", "error", err)
		return ""
	}

	var p product
	if err := xml.Unmarshal(data, &p); err != nil {
		slog.Error("weather: forecast parse failed", "error", err)
		return ""
	}

	for _, a := range p.Areas {
		if strings.EqualFold(a.Description, location) {
			return s.summarize(a, location)
		}
	}
	slog.Warn("weather: no forecast area", "location", location)
	return ""
}

// summarize renders the first two forecast periods as spoken sentences.
// Units are spelled out and abbreviations expanded so the synthesizer
// reads them naturally.
func (s *Service) summarize(a area, location string) string {
	periods := a.Periods
	if len(periods) > 2 {
		periods = periods[:2]
	}

	today := s.now()
	lines := []string{fmt.Sprintf("Forecast for %s", location)}

	for _, day := range periods {
		label := "Tomorrow"
		if len(day.StartTimeLocal) >= 10 {
			if start, err := time.Parse("2006-01-02", day.StartTimeLocal[:10]); err == nil {
				y1, m1, d1 := start.Date()
				y2, m2, d2 := today.Date()
				if y1 == y2 && m1 == m2 && d1 == d2 {
					label = "Today"
				}
			}
		}

		elements := byType(day.Elements)
		texts := byType(day.Texts)

		precis, ok := texts["precis"]
		if !ok {
			precis = "No forecast."
		}

		parts := []string{fmt.Sprintf("%s expect %s", label, strings.ReplaceAll(precis, ".", ""))}

		minTemp := elements["air_temperature_minimum"]
		maxTemp := elements["air_temperature_maximum"]
		switch {
		case minTemp != "" && maxTemp != "":
			parts = append(parts, fmt.Sprintf("%s to %s degrees Celcius", minTemp, maxTemp))
		case maxTemp != "":
			parts = append(parts, fmt.Sprintf("Maximum temperature %s degrees Celcius", maxTemp))
		}

		if chance := texts["probability_of_precipitation"]; chance != "" {
			parts = append(parts, fmt.Sprintf("with a %s chance of rain",
				strings.ReplaceAll(chance, "%", " percent")))
		}
		if precip := elements["precipitation_range"]; precip != "" {
			parts = append(parts, fmt.Sprintf("from %s",
				strings.ReplaceAll(precip, "mm", "millimetres")))
		}

		lines = append(lines, strings.Join(parts, " "))
	}

	return strings.Join(lines, ". ")
}

func byType(els []element) map[string]string {
	m := make(map[string]string, len(els))
	for _, e := range els {
		m[e.Type] = strings.TrimSpace(e.Value)
	}
	return m
}

// fetchFTP retrieves the product file with an anonymous FTP login.
func (s *Service) fetchFTP(ctx context.Context) ([]byte, error) {
	addr := s.cfg.Host
	if !strings.Contains(addr, ":") {
		addr += ":21"
	}

	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(fetchTimeout))
	if err != nil {
		return nil, fmt.Errorf("weather: dial %s: %w", addr, err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("weather: anonymous login: %w", err)
	}

	resp, err := conn.Retr(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("weather: retrieve %s: %w", s.cfg.Path, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("weather: read forecast: %w", err)
	}
	return data, nil
}

// NewTools returns the forecast tools backed by s.
func NewTools(s *Service) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "get_weather_forecast",
			Aliases:     []string{"weather", "forecast", "get_weather"},
			Description: "Get weather forecast for a location",
			Run: func(ctx context.Context, args map[string]string) string {
				return s.Forecast(ctx, args["location"])
			},
		},
	}
}
