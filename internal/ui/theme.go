package ui

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"

	"kvchat/internal/utils"
)

//go:embed default_theme.yaml
var defaultThemeYAML []byte

// ThemeConfig represents a theme loaded from YAML
type ThemeConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Author      string         `yaml:"author"`
	Version     string         `yaml:"version"`
	Colors      map[string]any `yaml:"colors"`
}

// Theme represents a processed theme with tcell colors
type Theme struct {
	Name        string
	Description string
	Author      string
	Version     string
	colors      map[string]tcell.Color
}

// DefaultTheme returns the built-in theme.
func DefaultTheme() *Theme {
	theme, err := ParseTheme(defaultThemeYAML)
	if err != nil {
		panic("built-in theme: " + err.Error())
	}
	return theme
}

// LoadTheme loads a theme from a YAML file. Colors it leaves out fall back to
// the built-in theme. An empty path returns the built-in theme.
func LoadTheme(themePath string) (*Theme, error) {
	if themePath == "" {
		return DefaultTheme(), nil
	}
	data, err := os.ReadFile(themePath)
	if err != nil {
		return nil, utils.ThemeError(fmt.Sprintf("failed to read theme file: %v", err))
	}
	theme, err := ParseTheme(data)
	if err != nil {
		return nil, err
	}
	for key, color := range DefaultTheme().colors {
		if _, ok := theme.colors[key]; !ok {
			theme.colors[key] = color
		}
	}
	return theme, nil
}

func ParseTheme(data []byte) (*Theme, error) {
	var config ThemeConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, utils.ThemeError(fmt.Sprintf("failed to parse theme YAML: %v", err))
	}

	theme := &Theme{
		Name:        config.Name,
		Description: config.Description,
		Author:      config.Author,
		Version:     config.Version,
		colors:      make(map[string]tcell.Color, len(config.Colors)),
	}
	for key, value := range config.Colors {
		color, err := parseColor(value)
		if err != nil {
			return nil, utils.ThemeError(fmt.Sprintf("failed to parse color '%s': %v", key, err))
		}
		theme.colors[key] = color
	}
	return theme, nil
}

// GetColor returns a color by name, white when the theme lacks it.
func (t *Theme) GetColor(name string) tcell.Color {
	return t.GetColorWithFallback(name, tcell.ColorWhite)
}

func (t *Theme) GetColorWithFallback(name string, fallback tcell.Color) tcell.Color {
	if color, exists := t.colors[name]; exists {
		return color
	}
	return fallback
}

func (t *Theme) HasColor(name string) bool {
	_, exists := t.colors[name]
	return exists
}

// ListColors returns all available color names, sorted.
func (t *Theme) ListColors() []string {
	keys := make([]string, 0, len(t.colors))
	for key := range t.colors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Tag renders name as a tview color tag, e.g. "[#89b4fa]".
func (t *Theme) Tag(name string) string {
	hex := t.GetColor(name).Hex()
	if hex < 0 {
		return "[white]"
	}
	return fmt.Sprintf("[#%06x]", hex)
}

func parseColor(value any) (tcell.Color, error) {
	switch v := value.(type) {
	case string:
		return parseColorString(v)
	case int:
		return tcell.PaletteColor(v), nil
	case map[string]any:
		return parseColorMap(v)
	default:
		return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("unsupported color format: %T", value))
	}
}

// parseColorString accepts #RGB, #RRGGBB, rgb(r, g, b) and the names tcell
// knows.
func parseColorString(colorStr string) (tcell.Color, error) {
	colorStr = strings.TrimSpace(colorStr)
	switch {
	case strings.HasPrefix(colorStr, "#"):
		return parseHexColor(colorStr)
	case strings.HasPrefix(colorStr, "rgb(") && strings.HasSuffix(colorStr, ")"):
		return parseRGBFunction(colorStr)
	}
	if color, ok := tcell.ColorNames[strings.ToLower(colorStr)]; ok {
		return color, nil
	}
	return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("unknown color name: %s", colorStr))
}

func parseHexColor(hex string) (tcell.Color, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("invalid hex color format: %s", hex))
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("invalid hex color format: %s", hex))
	}
	return tcell.NewHexColor(int32(v)), nil
}

func parseRGBFunction(rgbStr string) (tcell.Color, error) {
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(rgbStr, "rgb("), ")"), ",")
	if len(parts) != 3 {
		return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("invalid RGB format: %s", rgbStr))
	}
	var rgb [3]int32
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("invalid RGB component: %s", p))
		}
		rgb[i] = int32(n)
	}
	return tcell.NewRGBColor(rgb[0], rgb[1], rgb[2]), nil
}

func parseColorMap(colorMap map[string]any) (tcell.Color, error) {
	var rgb [3]int32
	for i, key := range []string{"r", "g", "b"} {
		raw, ok := colorMap[key]
		if !ok {
			return tcell.ColorWhite, utils.ThemeError("rgb color map must have r, g, b values")
		}
		n, ok := raw.(int)
		if !ok || n < 0 || n > 255 {
			return tcell.ColorWhite, utils.ThemeError(fmt.Sprintf("%s must be an integer in 0..255", key))
		}
		rgb[i] = int32(n)
	}
	return tcell.NewRGBColor(rgb[0], rgb[1], rgb[2]), nil
}

func (t *Theme) FormColors() (bg, fieldBg, buttonBg, buttonText, fieldText tcell.Color) {
	return t.GetColor("background"),
		t.GetColor("input-field"),
		t.GetColor("button-active"),
		t.GetColor("button-text"),
		t.GetColor("foreground")
}

func (t *Theme) ModalColors() (bg, text, border tcell.Color) {
	return t.GetColor("modal-background"),
		t.GetColor("foreground"),
		t.GetColor("border")
}

func (t *Theme) BorderColors() (normal, focus tcell.Color) {
	return t.GetColor("border"), t.GetColor("border-focus")
}
