// Package appearance holds the chat widget's presentation settings. They are
// independent of any conversation and can be changed one field at a time.
package appearance

import (
	"errors"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Font is one of the font families the widget offers.
type Font string

const (
	FontArial         Font = "Arial"
	FontCourierNew    Font = "Courier New"
	FontGeorgia       Font = "Georgia"
	FontTimesNewRoman Font = "Times New Roman"
	FontVerdana       Font = "Verdana"
)

// Fonts lists the selectable fonts in display order.
func Fonts() []Font {
	return []Font{FontArial, FontCourierNew, FontGeorgia, FontTimesNewRoman, FontVerdana}
}

// Field names a single settable appearance field.
type Field string

const (
	FieldBackground Field = "background"
	FieldChatbox    Field = "chatbox"
	FieldHeaderBar  Field = "header_bar"
	FieldButton     Field = "button"
	FieldFont       Field = "font"
)

var (
	ErrInvalidColor = errors.New("invalid color")
	ErrUnknownFont  = errors.New("unknown font")
	ErrUnknownField = errors.New("unknown appearance field")
)

// Appearance is the widget theme.
type Appearance struct {
	Background string `toml:"background" json:"background"`
	Chatbox    string `toml:"chatbox" json:"chatbox"`
	HeaderBar  string `toml:"header_bar" json:"header_bar"`
	Button     string `toml:"button" json:"button"`
	Font       Font   `toml:"font" json:"font"`
}

// Default returns the dark theme the widget ships with.
func Default() Appearance {
	return Appearance{
		Background: "#121212",
		Chatbox:    "#1E1E1E",
		HeaderBar:  "#BB86FC",
		Button:     "#BB86FC",
		Font:       FontArial,
	}
}

// Set validates value and assigns it to field, leaving the other fields untouched.
func (a *Appearance) Set(field Field, value string) error {
	switch field {
	case FieldBackground:
		return setColor(&a.Background, field, value)
	case FieldChatbox:
		return setColor(&a.Chatbox, field, value)
	case FieldHeaderBar:
		return setColor(&a.HeaderBar, field, value)
	case FieldButton:
		return setColor(&a.Button, field, value)
	case FieldFont:
		f := Font(value)
		if !f.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownFont, value)
		}
		a.Font = f
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// Validate reports the first invalid field.
func (a Appearance) Validate() error {
	colors := []struct {
		field Field
		value string
	}{
		{FieldBackground, a.Background},
		{FieldChatbox, a.Chatbox},
		{FieldHeaderBar, a.HeaderBar},
		{FieldButton, a.Button},
	}
	for _, c := range colors {
		if !validColor(c.value) {
			return fmt.Errorf("%s: %w: %q", c.field, ErrInvalidColor, c.value)
		}
	}
	if !a.Font.Valid() {
		return fmt.Errorf("%s: %w: %q", FieldFont, ErrUnknownFont, a.Font)
	}
	return nil
}

// Valid reports whether f is one of Fonts.
func (f Font) Valid() bool {
	for _, known := range Fonts() {
		if f == known {
			return true
		}
	}
	return false
}

func setColor(dst *string, field Field, value string) error {
	if !validColor(value) {
		return fmt.Errorf("%s: %w: %q", field, ErrInvalidColor, value)
	}
	*dst = value
	return nil
}

// validColor accepts CSS hex colors in #rgb or #rrggbb form.
func validColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	_, err := colorful.Hex(s)
	return err == nil
}
