package grid

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// RectangleType is the only obstacle kind a map document may contain.
const RectangleType = "rectangle"

// RectObstacle is an axis-aligned rectangle in world coordinates with its
// lower-left corner at (X, Y).
type RectObstacle struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MapConfig describes a static environment map: overall dimensions in
// meters, the grid resolution, the world coordinate of the grid origin, and
// the obstacles to rasterize.
type MapConfig struct {
	Resolution float64        `json:"resolution"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Origin     Origin         `json:"origin"`
	Obstacles  []RectObstacle `json:"obstacles"`
}

// Origin is the world coordinate of grid cell (0, 0).
type Origin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate ensures the map describes a non-degenerate grid.
func (cfg *MapConfig) Validate() error {
	if cfg.Resolution <= 0 {
		return errors.New("map resolution must be positive")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("map dimensions must be positive")
	}
	for i, obs := range cfg.Obstacles {
		if obs.Type != RectangleType {
			return errors.Errorf("obstacle %d: unsupported type %q", i, obs.Type)
		}
		if obs.Width < 0 || obs.Height < 0 {
			return errors.Errorf("obstacle %d: negative dimensions", i)
		}
	}
	return nil
}

// LoadMapConfig reads and validates a JSON map document. A missing or
// malformed map is an error; there is no default map.
func LoadMapConfig(path string) (MapConfig, error) {
	var cfg MapConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "cannot read map file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "cannot parse map file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid map %q", path)
	}
	return cfg, nil
}
