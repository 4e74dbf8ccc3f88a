package camera

import (
	"fmt"
	"image"
	"net/url"
	"time"
)

const (
	SourceHTTP      = "http"
	SourceSimulated = "simulated"
)

// Region is a rectangle of the camera frame, in pixels from the top left.
type Region struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (r Region) rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Config describes the camera pointed at a weight display.
type Config struct {
	Source         string  `json:"source" yaml:"source"`           // http or simulated
	SnapshotURL    string  `json:"snapshotUrl" yaml:"snapshotUrl"` // returns a single JPEG or PNG frame per GET
	DisplayRegion  *Region `json:"displayRegion" yaml:"displayRegion"`
	TimeoutMs      int     `json:"timeoutMs" yaml:"timeoutMs"`
	PollIntervalMs int     `json:"pollIntervalMs" yaml:"pollIntervalMs"`
}

func (c Config) source() string {
	if c.Source == "" {
		return SourceHTTP
	}
	return c.Source
}

func (c Config) timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PollInterval returns the configured sampling period, or zero if the default should be used.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c Config) Validate() error {
	switch c.source() {
	case SourceHTTP:
		u, err := url.Parse(c.SnapshotURL)
		if err != nil {
			return fmt.Errorf("parse snapshot url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("snapshot url must be http or https, got '%s'", c.SnapshotURL)
		}
	case SourceSimulated:
	default:
		return fmt.Errorf("unsupported camera source '%s'", c.Source)
	}
	if c.DisplayRegion != nil && (c.DisplayRegion.Width <= 0 || c.DisplayRegion.Height <= 0) {
		return fmt.Errorf("display region must have a positive size")
	}
	return nil
}
