// Package static implements ports.GPSSource with a fixed location,
// grounded directly on the teacher's geo.StaticProvider — the same
// "always returns the same location" shape, extended with the GPS
// contract's Scan/FetchLoc/FetchMode/Error surface (§6).
package static

// Source is a GPSSource that always reports the same fix.
type Source struct {
	Lat, Lon float64
}

func New(lat, lon float64) *Source {
	return &Source{Lat: lat, Lon: lon}
}

func (s *Source) Open(string, int) error { return nil }

// Scan always reports a fix (mode 3, "3D fix") for a static provider.
func (s *Source) Scan() int { return 1 }

func (s *Source) FetchLoc() (lat, lon, alt, spd float64, mode int) {
	return s.Lat, s.Lon, 0, 0, 3
}

func (s *Source) FetchMode() int  { return 3 }
func (s *Source) Error() string { return "" }
