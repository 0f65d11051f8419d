package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the file/environment configuration for a capture session.
type Config struct {
	SamplePeriod time.Duration `mapstructure:"sample_period" validate:"gt=0"`
	Timeslice    time.Duration `mapstructure:"timeslice" validate:"gt=0"`
	Encodings    []string      `mapstructure:"encodings" validate:"required,min=1"`
	FFmpegPath   string        `mapstructure:"ffmpeg_path" validate:"required"`
	Video        VideoConfig   `mapstructure:"video"`
	Audio        AudioConfig   `mapstructure:"audio"`
	Log          LogConfig     `mapstructure:"log"`
}

// VideoConfig is the requested camera format.
type VideoConfig struct {
	Width  int `mapstructure:"width" validate:"gt=0"`
	Height int `mapstructure:"height" validate:"gt=0"`
	FPS    int `mapstructure:"fps" validate:"gt=0,lte=120"`
}

// AudioConfig is the requested microphone format.
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate" validate:"oneof=8000 16000 24000 44100 48000"`
	Channels   int `mapstructure:"channels" validate:"oneof=1 2"`
}

// LogConfig configures NewLogger.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"` // Optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
}

// UserMediaOptions converts the configured formats to getUserMedia options.
func (c *Config) UserMediaOptions() UserMediaOptions {
	return UserMediaOptions{
		Video: &VideoConstraints{Width: c.Video.Width, Height: c.Video.Height, FrameRate: c.Video.FPS},
		Audio: &AudioConstraints{SampleRate: c.Audio.SampleRate, ChannelCount: c.Audio.Channels},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sample_period", DefaultSamplePeriod)
	v.SetDefault("timeslice", DefaultTimeslice)
	v.SetDefault("encodings", DefaultEncodings)
	v.SetDefault("ffmpeg_path", "ffmpeg")

	v.SetDefault("video.width", 1280)
	v.SetDefault("video.height", 720)
	v.SetDefault("video.fps", 30)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

// LoadConfig reads configuration from path (optional), then CAPTURE_*
// environment variables (CAPTURE_VIDEO_WIDTH overrides video.width), over
// the defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the config against its validate tags and verifies every
// encoding in the fallback chain parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var errs []error
	for _, e := range c.Encodings {
		if _, err := ParseEncoding(e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
