package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

// configSchemaVersion is written to every settings file. Version 2 added
// lastCleanupAt.
const configSchemaVersion = 2

// Configuration state keys
const (
	KeyAPIKey          Key = "apiKey"
	KeyTheme           Key = "theme"
	KeyWindowSize      Key = "windowSize"
	KeyWindowPosition  Key = "windowPosition"
	KeyAutoHide        Key = "autoHide"
	KeyIncognitoMode   Key = "incognitoMode"
	KeyDataRetention   Key = "dataRetention"
	KeyAutoCleanup     Key = "autoCleanup"
	KeyCleanupSchedule Key = "cleanupSchedule"
	KeyMaxStorageSize  Key = "maxStorageSize"
	KeyKeepRecentDays  Key = "keepRecentDays"
	KeySelectedModel   Key = "selectedModel"
	KeyModelConfig     Key = "modelConfig"
	KeyShortcuts       Key = "shortcuts"
	KeyLastSaved       Key = "lastSaved"
	KeyLastCleanupAt   Key = "lastCleanupAt"
)

var configKeys = []Key{
	KeyAPIKey, KeyTheme, KeyWindowSize, KeyWindowPosition, KeyAutoHide,
	KeyIncognitoMode, KeyDataRetention, KeyAutoCleanup, KeyCleanupSchedule,
	KeyMaxStorageSize, KeyKeepRecentDays, KeySelectedModel, KeyModelConfig,
	KeyShortcuts, KeyLastSaved, KeyLastCleanupAt,
}

type WindowSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type WindowPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ModelConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type Shortcuts struct {
	ToggleWindow string `json:"toggleWindow"`
	NewChat      string `json:"newChat"`
}

// ShortcutsUpdate carries a partial shortcut change; nil fields are kept
type ShortcutsUpdate struct {
	ToggleWindow *string `json:"toggleWindow,omitempty"`
	NewChat      *string `json:"newChat,omitempty"`
}

// ConfigState is the persisted user configuration
type ConfigState struct {
	SchemaVersion     int            `json:"schemaVersion"`
	APIKey            string         `json:"apiKey"`
	Theme             string         `json:"theme"`
	WindowSize        WindowSize     `json:"windowSize"`
	WindowPosition    WindowPosition `json:"windowPosition"`
	AutoHide          bool           `json:"autoHide"`
	IncognitoMode     bool           `json:"incognitoMode"`
	DataRetentionDays int            `json:"dataRetention"`
	AutoCleanup       bool           `json:"autoCleanup"`
	CleanupSchedule   string         `json:"cleanupSchedule"`
	MaxStorageSizeMB  int            `json:"maxStorageSize"`
	KeepRecentDays    int            `json:"keepRecentDays"`
	SelectedModel     string         `json:"selectedModel"`
	ModelConfig       ModelConfig    `json:"modelConfig"`
	Shortcuts         Shortcuts      `json:"shortcuts"`
	LastSaved         time.Time      `json:"lastSaved"`
	LastCleanupAt     time.Time      `json:"lastCleanupAt,omitzero"`
}

// DefaultConfigState returns the configuration used on first run
func DefaultConfigState() ConfigState {
	return ConfigState{
		SchemaVersion:     configSchemaVersion,
		Theme:             constants.ThemeSystem,
		WindowSize:        WindowSize{Width: 700, Height: 80},
		AutoHide:          true,
		DataRetentionDays: constants.DefaultDataRetentionDays,
		CleanupSchedule:   constants.DefaultCleanupSchedule,
		MaxStorageSizeMB:  constants.DefaultMaxStorageSizeMB,
		KeepRecentDays:    constants.DefaultKeepRecentDays,
		SelectedModel:     constants.DefaultModel,
		ModelConfig: ModelConfig{
			Temperature: constants.DefaultTemperature,
			MaxTokens:   constants.DefaultMaxTokens,
		},
		Shortcuts: Shortcuts{
			ToggleWindow: "CommandOrControl+Space",
			NewChat:      "Control+T",
		},
	}
}

// Clone returns a copy; ConfigState holds no reference types
func (s ConfigState) Clone() ConfigState { return s }

func (s ConfigState) Keys() []Key { return configKeys }

func (s ConfigState) Field(key Key) (any, bool) {
	switch key {
	case KeyAPIKey:
		return s.APIKey, true
	case KeyTheme:
		return s.Theme, true
	case KeyWindowSize:
		return s.WindowSize, true
	case KeyWindowPosition:
		return s.WindowPosition, true
	case KeyAutoHide:
		return s.AutoHide, true
	case KeyIncognitoMode:
		return s.IncognitoMode, true
	case KeyDataRetention:
		return s.DataRetentionDays, true
	case KeyAutoCleanup:
		return s.AutoCleanup, true
	case KeyCleanupSchedule:
		return s.CleanupSchedule, true
	case KeyMaxStorageSize:
		return s.MaxStorageSizeMB, true
	case KeyKeepRecentDays:
		return s.KeepRecentDays, true
	case KeySelectedModel:
		return s.SelectedModel, true
	case KeyModelConfig:
		return s.ModelConfig, true
	case KeyShortcuts:
		return s.Shortcuts, true
	case KeyLastSaved:
		return s.LastSaved, true
	case KeyLastCleanupAt:
		return s.LastCleanupAt, true
	}
	return nil, false
}

// PrivacySettings is the retention policy projection of the configuration
type PrivacySettings struct {
	IncognitoMode     bool   `json:"incognitoMode"`
	DataRetentionDays int    `json:"dataRetention"`
	AutoCleanup       bool   `json:"autoCleanup"`
	CleanupSchedule   string `json:"cleanupSchedule"`
	MaxStorageSizeMB  int    `json:"maxStorageSize"`
	KeepRecentDays    int    `json:"keepRecentDays"`
}

// ConfigStore persists user settings to <dataDir>/config.json
type ConfigStore struct {
	*Base[ConfigState]

	path   string
	opMu   sync.Mutex
	now    func() time.Time
	getenv func(string) string
}

// ConfigOption customizes a ConfigStore
type ConfigOption func(*ConfigStore)

// WithConfigClock overrides the clock used for lastSaved and schedule checks
func WithConfigClock(now func() time.Time) ConfigOption {
	return func(s *ConfigStore) { s.now = now }
}

// WithEnvLookup overrides how the API key environment fallback is read
func WithEnvLookup(getenv func(string) string) ConfigOption {
	return func(s *ConfigStore) { s.getenv = getenv }
}

// NewConfigStore creates the configuration store
func NewConfigStore(dataDir string, logger *logutil.Logger, opts ...ConfigOption) *ConfigStore {
	s := &ConfigStore{
		path:   filepath.Join(dataDir, constants.ConfigFileName),
		now:    time.Now,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = NewBase(constants.StoreConfig, DefaultConfigState, s.load, logger)
	return s
}

// Path returns the settings file location
func (s *ConfigStore) Path() string {
	return s.path
}

func (s *ConfigStore) load(ctx context.Context) error {
	var file settingsFile
	found, err := readJSON(s.path, &file)
	if !found {
		s.Logger().Info("Settings file not found, writing defaults", logutil.Fields{"path": s.path})
		s.opMu.Lock()
		defer s.opMu.Unlock()
		if err := s.save(ctx); err != nil {
			s.Logger().Warn("Could not write default settings, keeping them in memory", logutil.Fields{"error": err})
		}
		return nil
	}
	if err != nil {
		s.Logger().Warn("Failed to load settings, using defaults", logutil.Fields{"error": err})
		s.Reset()
		return nil
	}

	state := file.toState(DefaultConfigState())
	s.SetState(func(st *ConfigState) { *st = state })
	s.Logger().Info("Settings loaded", logutil.Fields{"path": s.path})
	return nil
}

// Save stamps lastSaved and writes the full state
func (s *ConfigStore) Save(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.save(ctx)
}

func (s *ConfigStore) save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.SetState(func(st *ConfigState) { st.LastSaved = s.now() })
	if err := writeJSON(s.path, s.GetState()); err != nil {
		s.Logger().Error("Failed to save settings", logutil.Fields{"error": err})
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// update applies mutate and persists, one writer at a time
func (s *ConfigStore) update(ctx context.Context, mutate func(*ConfigState)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.SetState(mutate)
	return s.save(ctx)
}

// GetAPIKey returns the stored key, falling back to GEMINI_API_KEY
func (s *ConfigStore) GetAPIKey() string {
	if key := s.GetState().APIKey; key != "" {
		return key
	}
	return s.getenv(constants.EnvGeminiAPIKey)
}

func (s *ConfigStore) SetAPIKey(ctx context.Context, apiKey string) error {
	return s.update(ctx, func(st *ConfigState) { st.APIKey = apiKey })
}

func (s *ConfigStore) SetTheme(ctx context.Context, theme string) error {
	if err := configutil.NewValidator().OneOf("theme", theme, constants.Themes).Result(); err != nil {
		return err
	}
	return s.update(ctx, func(st *ConfigState) { st.Theme = theme })
}

func (s *ConfigStore) SetWindowSize(ctx context.Context, width, height int) error {
	if err := configutil.NewValidator().RequiredInt("width", width).RequiredInt("height", height).Result(); err != nil {
		return err
	}
	return s.update(ctx, func(st *ConfigState) { st.WindowSize = WindowSize{Width: width, Height: height} })
}

func (s *ConfigStore) SetWindowPosition(ctx context.Context, x, y int) error {
	return s.update(ctx, func(st *ConfigState) { st.WindowPosition = WindowPosition{X: x, Y: y} })
}

// SetModelConfig selects the model. Nil temperature or maxTokens keep the
// stored value.
func (s *ConfigStore) SetModelConfig(ctx context.Context, model string, temperature *float64, maxTokens *int) error {
	v := configutil.NewValidator().RequiredString("model", model)
	if temperature != nil {
		v.FloatRange("temperature", *temperature, 0, 2)
	}
	if maxTokens != nil {
		v.RequiredInt("maxTokens", *maxTokens)
	}
	if err := v.Result(); err != nil {
		return err
	}
	return s.update(ctx, func(st *ConfigState) {
		st.SelectedModel = model
		if temperature != nil {
			st.ModelConfig.Temperature = *temperature
		}
		if maxTokens != nil {
			st.ModelConfig.MaxTokens = *maxTokens
		}
	})
}

func (s *ConfigStore) SetIncognitoMode(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *ConfigState) { st.IncognitoMode = enabled })
}

func (s *ConfigStore) SetDataRetention(ctx context.Context, days int) error {
	return s.update(ctx, func(st *ConfigState) { st.DataRetentionDays = days })
}

func (s *ConfigStore) SetAutoHide(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(st *ConfigState) { st.AutoHide = enabled })
}

func (s *ConfigStore) SetShortcuts(ctx context.Context, update ShortcutsUpdate) error {
	return s.update(ctx, func(st *ConfigState) {
		if update.ToggleWindow != nil {
			st.Shortcuts.ToggleWindow = *update.ToggleWindow
		}
		if update.NewChat != nil {
			st.Shortcuts.NewChat = *update.NewChat
		}
	})
}

// SetAutoCleanup toggles automatic cleanup; an empty schedule keeps the current one
func (s *ConfigStore) SetAutoCleanup(ctx context.Context, enabled bool, schedule string) error {
	if schedule != "" {
		if err := configutil.NewValidator().OneOf("cleanupSchedule", schedule, constants.CleanupSchedules).Result(); err != nil {
			return err
		}
	}
	return s.update(ctx, func(st *ConfigState) {
		st.AutoCleanup = enabled
		if schedule != "" {
			st.CleanupSchedule = schedule
		}
	})
}

// SetMaxStorageSize sets the storage budget, never below 10 MB
func (s *ConfigStore) SetMaxStorageSize(ctx context.Context, sizeMB int) error {
	return s.update(ctx, func(st *ConfigState) { st.MaxStorageSizeMB = max(constants.MinMaxStorageSizeMB, sizeMB) })
}

// SetKeepRecentDays sets the always-keep window, never below 1 day
func (s *ConfigStore) SetKeepRecentDays(ctx context.Context, days int) error {
	return s.update(ctx, func(st *ConfigState) { st.KeepRecentDays = max(constants.MinKeepRecentDays, days) })
}

// MarkCleanupRun records when cleanup last ran
func (s *ConfigStore) MarkCleanupRun(ctx context.Context, at time.Time) error {
	return s.update(ctx, func(st *ConfigState) { st.LastCleanupAt = at })
}

func (s *ConfigStore) ResetToDefaults(ctx context.Context) error {
	return s.update(ctx, func(st *ConfigState) { *st = DefaultConfigState() })
}

// ExportConfig returns a copy of the configuration
func (s *ConfigStore) ExportConfig() ConfigState {
	return s.GetState()
}

// ImportConfig replaces the configuration with data filled against defaults.
// Fields missing from data take their default value.
func (s *ConfigStore) ImportConfig(ctx context.Context, data []byte) error {
	var file settingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse imported config: %w", err)
	}
	state := file.toState(DefaultConfigState())
	return s.update(ctx, func(st *ConfigState) { *st = state })
}

// IsConfigValid reports whether an API key is available from any source
func (s *ConfigStore) IsConfigValid() bool {
	return s.GetAPIKey() != ""
}

// PrivacySettings returns the retention policy
func (s *ConfigStore) PrivacySettings() PrivacySettings {
	st := s.GetState()
	return PrivacySettings{
		IncognitoMode:     st.IncognitoMode,
		DataRetentionDays: st.DataRetentionDays,
		AutoCleanup:       st.AutoCleanup,
		CleanupSchedule:   st.CleanupSchedule,
		MaxStorageSizeMB:  st.MaxStorageSizeMB,
		KeepRecentDays:    st.KeepRecentDays,
	}
}

// ShouldRunAutoCleanup reports whether auto-cleanup is enabled and the
// schedule threshold has passed since the last recorded cleanup run.
// A store that has never run cleanup is due immediately.
func (s *ConfigStore) ShouldRunAutoCleanup() bool {
	st := s.GetState()
	if !st.AutoCleanup {
		return false
	}
	threshold, ok := scheduleThreshold(st.CleanupSchedule)
	if !ok {
		return false
	}
	if st.LastCleanupAt.IsZero() {
		return true
	}
	return s.now().Sub(st.LastCleanupAt) > threshold
}

func scheduleThreshold(schedule string) (time.Duration, bool) {
	switch schedule {
	case constants.CleanupScheduleDaily:
		return constants.DailyCleanupThreshold, true
	case constants.CleanupScheduleWeekly:
		return constants.WeeklyCleanupThreshold, true
	case constants.CleanupScheduleMonthly:
		return constants.MonthlyCleanupThreshold, true
	}
	return 0, false
}

// settingsFile is the permissive on-disk shape. Every field is optional so
// older or hand-edited files decode, and toState fills the gaps explicitly.
type settingsFile struct {
	SchemaVersion     *int             `json:"schemaVersion"`
	APIKey            *string          `json:"apiKey"`
	Theme             *string          `json:"theme"`
	WindowSize        *WindowSize      `json:"windowSize"`
	WindowPosition    *WindowPosition  `json:"windowPosition"`
	AutoHide          *bool            `json:"autoHide"`
	IncognitoMode     *bool            `json:"incognitoMode"`
	DataRetentionDays *int             `json:"dataRetention"`
	AutoCleanup       *bool            `json:"autoCleanup"`
	CleanupSchedule   *string          `json:"cleanupSchedule"`
	MaxStorageSizeMB  *int             `json:"maxStorageSize"`
	KeepRecentDays    *int             `json:"keepRecentDays"`
	SelectedModel     *string          `json:"selectedModel"`
	ModelConfig       *modelConfigFile `json:"modelConfig"`
	Shortcuts         *ShortcutsUpdate `json:"shortcuts"`
	LastSaved         *time.Time       `json:"lastSaved"`
	LastCleanupAt     *time.Time       `json:"lastCleanupAt"`
}

type modelConfigFile struct {
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

func (f settingsFile) toState(st ConfigState) ConfigState {
	version := 1
	if f.SchemaVersion != nil {
		version = *f.SchemaVersion
	}

	setIf(&st.APIKey, f.APIKey)
	if f.Theme != nil && slices.Contains(constants.Themes, *f.Theme) {
		st.Theme = *f.Theme
	}
	setIf(&st.WindowSize, f.WindowSize)
	setIf(&st.WindowPosition, f.WindowPosition)
	setIf(&st.AutoHide, f.AutoHide)
	setIf(&st.IncognitoMode, f.IncognitoMode)
	setIf(&st.DataRetentionDays, f.DataRetentionDays)
	setIf(&st.AutoCleanup, f.AutoCleanup)
	if f.CleanupSchedule != nil && slices.Contains(constants.CleanupSchedules, *f.CleanupSchedule) {
		st.CleanupSchedule = *f.CleanupSchedule
	}
	if f.MaxStorageSizeMB != nil {
		st.MaxStorageSizeMB = max(constants.MinMaxStorageSizeMB, *f.MaxStorageSizeMB)
	}
	if f.KeepRecentDays != nil {
		st.KeepRecentDays = max(constants.MinKeepRecentDays, *f.KeepRecentDays)
	}
	if f.SelectedModel != nil && *f.SelectedModel != "" {
		st.SelectedModel = *f.SelectedModel
	}
	if f.ModelConfig != nil {
		setIf(&st.ModelConfig.Temperature, f.ModelConfig.Temperature)
		setIf(&st.ModelConfig.MaxTokens, f.ModelConfig.MaxTokens)
	}
	if f.Shortcuts != nil {
		setIf(&st.Shortcuts.ToggleWindow, f.Shortcuts.ToggleWindow)
		setIf(&st.Shortcuts.NewChat, f.Shortcuts.NewChat)
	}
	setIf(&st.LastSaved, f.LastSaved)
	setIf(&st.LastCleanupAt, f.LastCleanupAt)

	// v1 files tracked cleanup only through lastSaved
	if version < 2 && f.LastCleanupAt == nil && f.LastSaved != nil {
		st.LastCleanupAt = *f.LastSaved
	}
	st.SchemaVersion = configSchemaVersion
	return st
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
