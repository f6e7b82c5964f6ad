package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address   string `mapstructure:"address"`
	StaticDir string `mapstructure:"static_dir"`
}

type LiveConfig struct {
	Model string `mapstructure:"model"`
}

type AudioConfig struct {
	InputSampleRate  int `mapstructure:"input_sample_rate"`
	OutputSampleRate int `mapstructure:"output_sample_rate"`
	ChunkQueueSize   int `mapstructure:"chunk_queue_size"`
	TurnBufferBytes  int `mapstructure:"turn_buffer_bytes"`
}

type TranscriptionConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Language         string `mapstructure:"language"`
	StreamChunkBytes int    `mapstructure:"stream_chunk_bytes"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
}

type Settings struct {
	Server        ServerConfig        `mapstructure:"server"`
	Live          LiveConfig          `mapstructure:"live"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Env           string              `mapstructure:"env"`
	Debug         bool                `mapstructure:"debug"`
}

func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("config_" + genEnv())
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// The service runs fine on defaults plus environment variables.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &settings, nil
}

func setDefaults() {
	viper.SetDefault("server.address", ":8765")
	viper.SetDefault("server.static_dir", "./static")
	viper.SetDefault("live.model", "models/gemini-2.5-flash-preview-native-audio-dialog")
	viper.SetDefault("audio.input_sample_rate", 16000)
	viper.SetDefault("audio.output_sample_rate", 24000)
	viper.SetDefault("audio.chunk_queue_size", 256)
	// ~32s of 16kHz 16-bit mono audio for one user turn.
	viper.SetDefault("audio.turn_buffer_bytes", 1024*1024)
	viper.SetDefault("transcription.enabled", true)
	viper.SetDefault("transcription.language", "en-US")
	viper.SetDefault("transcription.stream_chunk_bytes", 8192)
	viper.SetDefault("transcription.timeout_seconds", 60)
	viper.SetDefault("debug", false)
}

func genEnv() string {
	env := viper.GetString("ENV")
	if env == "" {
		return "dev"
	}
	return env
}
