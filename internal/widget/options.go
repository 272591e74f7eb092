// ABOUTME: Widget initialization options and their validation
// ABOUTME: Missing or invalid required options fail with ErrConfiguration before render

package widget

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrConfiguration is returned when the widget options are unusable
var ErrConfiguration = errors.New("invalid widget configuration")

// Position is the screen corner the widget is anchored to
type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
)

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Options are the recognized widget init options.
type Options struct {
	Title        string   `yaml:"title" toml:"title" json:"title"`
	Subtitle     string   `yaml:"subtitle" toml:"subtitle" json:"subtitle"`
	PrimaryColor string   `yaml:"primary_color" toml:"primary_color" json:"primaryColor"`
	LogoURL      string   `yaml:"logo_url" toml:"logo_url" json:"logoUrl"`
	Position     Position `yaml:"position" toml:"position" json:"position"`
	Greeting     string   `yaml:"greeting" toml:"greeting" json:"greeting"`
	DepartmentID string   `yaml:"department_id" toml:"department_id" json:"departmentId,omitempty"`
	AutoFocus    bool     `yaml:"auto_focus" toml:"auto_focus" json:"autoFocus"`
}

// Validate reports the first problem with the options, wrapping ErrConfiguration.
func (o Options) Validate() error {
	if o.Title == "" {
		return fmt.Errorf("%w: title is required", ErrConfiguration)
	}
	switch o.Position {
	case PositionBottomRight, PositionBottomLeft:
	case "":
		return fmt.Errorf("%w: position is required", ErrConfiguration)
	default:
		return fmt.Errorf("%w: position %q must be %s or %s",
			ErrConfiguration, o.Position, PositionBottomRight, PositionBottomLeft)
	}
	if o.PrimaryColor != "" && !hexColor.MatchString(o.PrimaryColor) {
		return fmt.Errorf("%w: primary_color %q is not a hex color", ErrConfiguration, o.PrimaryColor)
	}
	return nil
}
