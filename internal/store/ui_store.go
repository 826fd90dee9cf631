package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

// UI state keys
const (
	KeyUITheme             Key = "theme"
	KeyCurrentTheme        Key = "currentTheme"
	KeyIsMinimized         Key = "isMinimized"
	KeyIsSettingsOpen      Key = "isSettingsOpen"
	KeyUIProcessing        Key = "isProcessing"
	KeyWindowState         Key = "windowState"
	KeyColors              Key = "colors"
	KeyColorPresets        Key = "colorPresets"
	KeySelectedColorPreset Key = "selectedColorPreset"
	KeyCustomColors        Key = "customColors"
	KeyAnimations          Key = "animations"
	KeyTransparency        Key = "transparency"
	KeyFontSize            Key = "fontSize"
	KeyFontFamily          Key = "fontFamily"
	KeyCompactMode         Key = "compactMode"
	KeyShowTimestamps      Key = "showTimestamps"
	KeyShowMessageCount    Key = "showMessageCount"
	KeyAutoScroll          Key = "autoScroll"
)

var uiKeys = []Key{
	KeyUITheme, KeyCurrentTheme, KeyIsMinimized, KeyIsSettingsOpen, KeyUIProcessing,
	KeyWindowState, KeyColors, KeyColorPresets, KeySelectedColorPreset, KeyCustomColors,
	KeyAnimations, KeyTransparency, KeyFontSize, KeyFontFamily, KeyCompactMode,
	KeyShowTimestamps, KeyShowMessageCount, KeyAutoScroll,
}

const customPresetName = "custom"

// builtinPresets can never be deleted and are restored on every load
var builtinPresets = []string{"default", "dark", "ocean", "forest", "sunset"}

type Colors struct {
	Primary       string `json:"primary"`
	Secondary     string `json:"secondary"`
	Accent        string `json:"accent"`
	Background    string `json:"background"`
	Surface       string `json:"surface"`
	Text          string `json:"text"`
	TextSecondary string `json:"textSecondary"`
	Border        string `json:"border"`
	Success       string `json:"success"`
	Warning       string `json:"warning"`
	Error         string `json:"error"`
}

// merge overwrites c with the non-empty fields of o
func (c Colors) merge(o Colors) Colors {
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&c.Primary, o.Primary}, {&c.Secondary, o.Secondary}, {&c.Accent, o.Accent},
		{&c.Background, o.Background}, {&c.Surface, o.Surface}, {&c.Text, o.Text},
		{&c.TextSecondary, o.TextSecondary}, {&c.Border, o.Border},
		{&c.Success, o.Success}, {&c.Warning, o.Warning}, {&c.Error, o.Error},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return c
}

type WindowState struct {
	IsExpanded bool `json:"isExpanded"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	X          int  `json:"x"`
	Y          int  `json:"y"`
}

// WindowStateUpdate carries a partial window state; nil fields are kept
type WindowStateUpdate struct {
	IsExpanded *bool `json:"isExpanded,omitempty"`
	Width      *int  `json:"width,omitempty"`
	Height     *int  `json:"height,omitempty"`
	X          *int  `json:"x,omitempty"`
	Y          *int  `json:"y,omitempty"`
}

type Animations struct {
	Enabled  bool   `json:"enabled"`
	Duration int    `json:"duration"`
	Easing   string `json:"easing"`
}

type AnimationsUpdate struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Duration *int    `json:"duration,omitempty"`
	Easing   *string `json:"easing,omitempty"`
}

type Transparency struct {
	Enabled bool `json:"enabled"`
	Level   int  `json:"level"` // 0-100
}

type TransparencyUpdate struct {
	Enabled *bool `json:"enabled,omitempty"`
	Level   *int  `json:"level,omitempty"`
}

// UIPreferences is the persisted part of the UI state
type UIPreferences struct {
	Theme               string            `json:"theme"`
	CurrentTheme        string            `json:"currentTheme"` // theme with system resolved
	WindowState         WindowState       `json:"windowState"`
	Colors              Colors            `json:"colors"`
	ColorPresets        map[string]Colors `json:"colorPresets"`
	SelectedColorPreset string            `json:"selectedColorPreset"`
	CustomColors        bool              `json:"customColors"`
	Animations          Animations        `json:"animations"`
	Transparency        Transparency      `json:"transparency"`
	FontSize            int               `json:"fontSize"` // 12-24
	FontFamily          string            `json:"fontFamily"`
	CompactMode         bool              `json:"compactMode"`
	ShowTimestamps      bool              `json:"showTimestamps"`
	ShowMessageCount    bool              `json:"showMessageCount"`
	AutoScroll          bool              `json:"autoScroll"`
}

// UIState adds flags that only live for the process lifetime
type UIState struct {
	UIPreferences
	IsMinimized    bool `json:"isMinimized"`
	IsSettingsOpen bool `json:"isSettingsOpen"`
	IsProcessing   bool `json:"isProcessing"`
}

func defaultPresets() map[string]Colors {
	return map[string]Colors{
		"default": {
			Primary: "#6366f1", Secondary: "#818cf8", Accent: "#a855f7",
			Background: "#ffffff", Surface: "#f8fafc", Text: "#1e293b",
			TextSecondary: "#64748b", Border: "#e2e8f0",
			Success: "#10b981", Warning: "#f59e0b", Error: "#ef4444",
		},
		"dark": {
			Primary: "#6366f1", Secondary: "#818cf8", Accent: "#a855f7",
			Background: "#0f172a", Surface: "#1e293b", Text: "#f1f5f9",
			TextSecondary: "#94a3b8", Border: "#334155",
			Success: "#10b981", Warning: "#f59e0b", Error: "#ef4444",
		},
		"ocean": {
			Primary: "#0891b2", Secondary: "#06b6d4", Accent: "#0284c7",
			Background: "#ffffff", Surface: "#f0f9ff", Text: "#0c4a6e",
			TextSecondary: "#0369a1", Border: "#bae6fd",
			Success: "#059669", Warning: "#d97706", Error: "#dc2626",
		},
		"forest": {
			Primary: "#16a34a", Secondary: "#22c55e", Accent: "#15803d",
			Background: "#ffffff", Surface: "#f0fdf4", Text: "#14532d",
			TextSecondary: "#166534", Border: "#bbf7d0",
			Success: "#059669", Warning: "#ca8a04", Error: "#dc2626",
		},
		"sunset": {
			Primary: "#ea580c", Secondary: "#f97316", Accent: "#c2410c",
			Background: "#ffffff", Surface: "#fff7ed", Text: "#9a3412",
			TextSecondary: "#c2410c", Border: "#fed7aa",
			Success: "#16a34a", Warning: "#eab308", Error: "#dc2626",
		},
	}
}

// DefaultUIPreferences returns the first-run UI preferences
func DefaultUIPreferences() UIPreferences {
	presets := defaultPresets()
	return UIPreferences{
		Theme:               constants.ThemeSystem,
		CurrentTheme:        constants.ThemeLight,
		WindowState:         WindowState{Width: 700, Height: 80},
		Colors:              presets["default"],
		ColorPresets:        presets,
		SelectedColorPreset: "default",
		Animations:          Animations{Enabled: true, Duration: 300, Easing: "ease-in-out"},
		Transparency:        Transparency{Enabled: true, Level: 85},
		FontSize:            14,
		FontFamily:          "system-ui, -apple-system, sans-serif",
		ShowTimestamps:      true,
		AutoScroll:          true,
	}
}

// DefaultUIState returns default preferences with all transient flags off
func DefaultUIState() UIState {
	return UIState{UIPreferences: DefaultUIPreferences()}
}

func (s UIState) Clone() UIState {
	out := s
	out.ColorPresets = maps.Clone(s.ColorPresets)
	return out
}

func (s UIState) Keys() []Key { return uiKeys }

func (s UIState) Field(key Key) (any, bool) {
	switch key {
	case KeyUITheme:
		return s.Theme, true
	case KeyCurrentTheme:
		return s.CurrentTheme, true
	case KeyIsMinimized:
		return s.IsMinimized, true
	case KeyIsSettingsOpen:
		return s.IsSettingsOpen, true
	case KeyUIProcessing:
		return s.IsProcessing, true
	case KeyWindowState:
		return s.WindowState, true
	case KeyColors:
		return s.Colors, true
	case KeyColorPresets:
		return maps.Clone(s.ColorPresets), true
	case KeySelectedColorPreset:
		return s.SelectedColorPreset, true
	case KeyCustomColors:
		return s.CustomColors, true
	case KeyAnimations:
		return s.Animations, true
	case KeyTransparency:
		return s.Transparency, true
	case KeyFontSize:
		return s.FontSize, true
	case KeyFontFamily:
		return s.FontFamily, true
	case KeyCompactMode:
		return s.CompactMode, true
	case KeyShowTimestamps:
		return s.ShowTimestamps, true
	case KeyShowMessageCount:
		return s.ShowMessageCount, true
	case KeyAutoScroll:
		return s.AutoScroll, true
	}
	return nil, false
}

// ThemeDetector reports the OS color scheme, "light" or "dark"
type ThemeDetector func() string

// UIStore persists interface preferences to
// <dataDir>/ui-preferences/ui-preferences.json
type UIStore struct {
	*Base[UIState]

	path        string
	opMu        sync.Mutex
	systemTheme ThemeDetector
}

// UIOption customizes a UIStore
type UIOption func(*UIStore)

// WithThemeDetector sets how the system theme is resolved
func WithThemeDetector(detect ThemeDetector) UIOption {
	return func(s *UIStore) { s.systemTheme = detect }
}

// NewUIStore creates the UI preference store
func NewUIStore(dataDir string, logger *logutil.Logger, opts ...UIOption) *UIStore {
	s := &UIStore{
		path:        filepath.Join(dataDir, constants.UIPreferencesDir, constants.UIPreferencesFileName),
		systemTheme: func() string { return constants.ThemeLight },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = NewBase(constants.StoreUI, DefaultUIState, s.load, logger)
	s.RefreshSystemTheme()
	return s
}

// Path returns the preferences file location
func (s *UIStore) Path() string {
	return s.path
}

func (s *UIStore) detect() string {
	if s.systemTheme() == constants.ThemeDark {
		return constants.ThemeDark
	}
	return constants.ThemeLight
}

// normalize fills what a decoded file may lack or carry out of range
func (s *UIStore) normalize(p UIPreferences) UIPreferences {
	defaults := DefaultUIPreferences()
	if !slices.Contains(constants.Themes, p.Theme) {
		p.Theme = defaults.Theme
	}
	if p.Theme == constants.ThemeSystem {
		p.CurrentTheme = s.detect()
	} else {
		p.CurrentTheme = p.Theme
	}

	presets := defaultPresets()
	maps.Copy(presets, p.ColorPresets)
	p.ColorPresets = presets

	p.FontSize = clamp(p.FontSize, constants.MinFontSize, constants.MaxFontSize)
	p.Transparency.Level = clamp(p.Transparency.Level, constants.MinTransparencyLevel, constants.MaxTransparencyLevel)
	if strings.TrimSpace(p.FontFamily) == "" {
		p.FontFamily = defaults.FontFamily
	}
	return p
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// decodePreferences decodes data over the defaults, so absent fields keep
// their default value, then normalizes the result
func (s *UIStore) decodePreferences(data []byte) (UIPreferences, error) {
	prefs := DefaultUIPreferences()
	prefs.ColorPresets = nil
	if err := json.Unmarshal(data, &prefs); err != nil {
		return UIPreferences{}, err
	}
	return s.normalize(prefs), nil
}

func (s *UIStore) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var raw json.RawMessage
	found, err := readJSON(s.path, &raw)
	if !found {
		s.Logger().Info("No saved UI preferences found, using defaults")
		return nil
	}
	var prefs UIPreferences
	if err == nil {
		prefs, err = s.decodePreferences(raw)
	}
	if err != nil {
		s.Logger().Warn("Failed to load UI preferences, using defaults", logutil.Fields{"error": err})
		s.SetState(func(st *UIState) { st.UIPreferences = s.normalize(DefaultUIPreferences()) })
		return nil
	}

	s.SetState(func(st *UIState) { st.UIPreferences = prefs })
	s.Logger().Info("UI preferences loaded")
	return nil
}

// Save writes the preferences; transient flags are never written
func (s *UIStore) Save(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.save(ctx)
}

func (s *UIStore) save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeJSON(s.path, s.GetState().UIPreferences); err != nil {
		s.Logger().Error("Failed to save UI preferences", logutil.Fields{"error": err})
		return fmt.Errorf("failed to save ui: %w", err)
	}
	return nil
}

func (s *UIStore) update(ctx context.Context, mutate func(*UIState)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.SetState(mutate)
	return s.save(ctx)
}

// RefreshSystemTheme re-reads the OS theme; call it when the OS reports a change
func (s *UIStore) RefreshSystemTheme() {
	resolved := s.detect()
	s.SetState(func(st *UIState) {
		if st.Theme == constants.ThemeSystem {
			st.CurrentTheme = resolved
		}
	})
}

// SetTheme selects light, dark or system. Unless custom colors are active the
// default and dark presets follow the resolved theme.
func (s *UIStore) SetTheme(ctx context.Context, theme string) error {
	if err := configutil.NewValidator().OneOf("theme", theme, constants.Themes).Result(); err != nil {
		return err
	}
	resolved := theme
	if theme == constants.ThemeSystem {
		resolved = s.detect()
	}

	return s.update(ctx, func(st *UIState) {
		st.Theme = theme
		st.CurrentTheme = resolved
		if st.CustomColors {
			return
		}
		switch {
		case resolved == constants.ThemeDark && st.SelectedColorPreset == "default":
			if preset, ok := st.ColorPresets["dark"]; ok {
				st.SelectedColorPreset = "dark"
				st.Colors = preset
			}
		case resolved == constants.ThemeLight && st.SelectedColorPreset == "dark":
			if preset, ok := st.ColorPresets["default"]; ok {
				st.SelectedColorPreset = "default"
				st.Colors = preset
			}
		}
	})
}

// SetColorPreset applies a named preset. Unknown names are ignored and report false.
func (s *UIStore) SetColorPreset(ctx context.Context, name string) (bool, error) {
	preset, ok := s.GetState().ColorPresets[name]
	if !ok {
		return false, nil
	}
	return true, s.update(ctx, func(st *UIState) {
		st.SelectedColorPreset = name
		st.Colors = preset
		st.CustomColors = false
	})
}

// SetCustomColors overrides the non-empty fields of colors
func (s *UIStore) SetCustomColors(ctx context.Context, colors Colors) error {
	return s.update(ctx, func(st *UIState) {
		st.Colors = st.Colors.merge(colors)
		st.CustomColors = true
		st.SelectedColorPreset = customPresetName
	})
}

// CreateColorPreset saves colors under name and selects it
func (s *UIStore) CreateColorPreset(ctx context.Context, name string, colors Colors) error {
	if err := configutil.NewValidator().RequiredString("name", name).Result(); err != nil {
		return err
	}
	return s.update(ctx, func(st *UIState) {
		if st.ColorPresets == nil {
			st.ColorPresets = make(map[string]Colors)
		}
		st.ColorPresets[name] = colors
		st.SelectedColorPreset = name
		st.Colors = colors
		st.CustomColors = false
	})
}

// DeleteColorPreset removes a user preset. Built-in presets report false.
func (s *UIStore) DeleteColorPreset(ctx context.Context, name string) (bool, error) {
	if slices.Contains(builtinPresets, name) {
		return false, nil
	}
	return true, s.update(ctx, func(st *UIState) {
		delete(st.ColorPresets, name)
		if st.SelectedColorPreset == name {
			st.SelectedColorPreset = "default"
			if preset, ok := st.ColorPresets["default"]; ok {
				st.Colors = preset
			}
			st.CustomColors = false
		}
	})
}

// SetWindowState updates window geometry in memory only
func (s *UIStore) SetWindowState(update WindowStateUpdate) {
	s.SetState(func(st *UIState) {
		setIf(&st.WindowState.IsExpanded, update.IsExpanded)
		setIf(&st.WindowState.Width, update.Width)
		setIf(&st.WindowState.Height, update.Height)
		setIf(&st.WindowState.X, update.X)
		setIf(&st.WindowState.Y, update.Y)
	})
}

func (s *UIStore) SetProcessing(processing bool) {
	s.SetState(func(st *UIState) { st.IsProcessing = processing })
}

func (s *UIStore) SetSettingsOpen(open bool) {
	s.SetState(func(st *UIState) { st.IsSettingsOpen = open })
}

func (s *UIStore) SetMinimized(minimized bool) {
	s.SetState(func(st *UIState) { st.IsMinimized = minimized })
}

func (s *UIStore) SetAnimations(ctx context.Context, update AnimationsUpdate) error {
	return s.update(ctx, func(st *UIState) {
		setIf(&st.Animations.Enabled, update.Enabled)
		setIf(&st.Animations.Duration, update.Duration)
		setIf(&st.Animations.Easing, update.Easing)
	})
}

// SetTransparency updates transparency; the level is clamped to 0..100
func (s *UIStore) SetTransparency(ctx context.Context, update TransparencyUpdate) error {
	return s.update(ctx, func(st *UIState) {
		setIf(&st.Transparency.Enabled, update.Enabled)
		if update.Level != nil {
			st.Transparency.Level = clamp(*update.Level, constants.MinTransparencyLevel, constants.MaxTransparencyLevel)
		}
	})
}

// SetFontSize sets the font size clamped to 12..24
func (s *UIStore) SetFontSize(ctx context.Context, size int) error {
	return s.update(ctx, func(st *UIState) { st.FontSize = clamp(size, constants.MinFontSize, constants.MaxFontSize) })
}

func (s *UIStore) SetFontFamily(ctx context.Context, family string) error {
	return s.update(ctx, func(st *UIState) { st.FontFamily = family })
}

func (s *UIStore) SetCompactMode(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *UIState) { st.CompactMode = enabled })
}

func (s *UIStore) SetShowTimestamps(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *UIState) { st.ShowTimestamps = enabled })
}

func (s *UIStore) SetShowMessageCount(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *UIState) { st.ShowMessageCount = enabled })
}

func (s *UIStore) SetAutoScroll(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *UIState) { st.AutoScroll = enabled })
}

// ExportUIConfig returns the persistable preferences
func (s *UIStore) ExportUIConfig() UIPreferences {
	return s.GetState().UIPreferences
}

// ImportUIConfig replaces preferences with data decoded over defaults.
// Transient flags are kept and built-in presets are restored.
func (s *UIStore) ImportUIConfig(ctx context.Context, data []byte) error {
	prefs, err := s.decodePreferences(data)
	if err != nil {
		return fmt.Errorf("failed to parse imported ui config: %w", err)
	}
	return s.update(ctx, func(st *UIState) { st.UIPreferences = prefs })
}

// ResetToDefaults restores default preferences, keeping transient flags
func (s *UIStore) ResetToDefaults(ctx context.Context) error {
	prefs := s.normalize(DefaultUIPreferences())
	return s.update(ctx, func(st *UIState) { st.UIPreferences = prefs })
}

// CSSVariables maps the active look to CSS custom properties
func (s *UIStore) CSSVariables() map[string]string {
	st := s.GetState()
	c := st.Colors
	return map[string]string{
		"--color-primary":        c.Primary,
		"--color-secondary":      c.Secondary,
		"--color-accent":         c.Accent,
		"--color-background":     c.Background,
		"--color-surface":        c.Surface,
		"--color-text":           c.Text,
		"--color-text-secondary": c.TextSecondary,
		"--color-border":         c.Border,
		"--color-success":        c.Success,
		"--color-warning":        c.Warning,
		"--color-error":          c.Error,
		"--animation-duration":   fmt.Sprintf("%dms", st.Animations.Duration),
		"--animation-easing":     st.Animations.Easing,
		"--transparency-level":   fmt.Sprintf("%d%%", st.Transparency.Level),
		"--font-size":            fmt.Sprintf("%dpx", st.FontSize),
		"--font-family":          st.FontFamily,
	}
}
