package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/maastricht-university/meetsync/diarize"
	"github.com/maastricht-university/meetsync/features"
	"github.com/maastricht-university/meetsync/meeting"
)

const (
	EnvPrefix = "MEETSYNC"

	KeyringService = "meetsync"
	KeyringUser    = "summarizer"
)

type Service struct {
	URL string `yaml:"url" mapstructure:"url"`
}
type Services struct {
	ASR           Service `yaml:"asr" mapstructure:"asr"`
	Face          Service `yaml:"face" mapstructure:"face"`
	Landmarks     Service `yaml:"landmarks" mapstructure:"landmarks"`
	Visualization Service `yaml:"visualization" mapstructure:"visualization"`
	// Timeout bounds every request to the model services.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}
type Summarizer struct {
	URL      string        `yaml:"url" mapstructure:"url"`
	APIKey   string        `yaml:"api_key" mapstructure:"api_key"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Language string        `yaml:"language" mapstructure:"language"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Retries  int           `yaml:"retries" mapstructure:"retries"`
}
type Participant struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Video string `yaml:"video" mapstructure:"video"`
	Audio string `yaml:"audio" mapstructure:"audio"`
}
type Source struct {
	Video string `yaml:"video" mapstructure:"video"`
	Audio string `yaml:"audio" mapstructure:"audio"`
}
type Window struct {
	Start float64 `yaml:"start" mapstructure:"start"`
	End   float64 `yaml:"end" mapstructure:"end"`
}
type Audio struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
}
type Video struct {
	FPS float64 `yaml:"fps" mapstructure:"fps"`
}
type Features struct {
	NumCoefficients int     `yaml:"num_coefficients" mapstructure:"num_coefficients"`
	NumFilters      int     `yaml:"num_filters" mapstructure:"num_filters"`
	FrameLength     float64 `yaml:"frame_length" mapstructure:"frame_length"`
	Hop             float64 `yaml:"hop" mapstructure:"hop"`
	// sliding windows for meeting dynamics, seconds
	TimeWindow int `yaml:"time_window" mapstructure:"time_window"`
	Overlap    int `yaml:"overlap" mapstructure:"overlap"`
}
type FaceRecognition struct {
	Metric          string  `yaml:"metric" mapstructure:"metric"`
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	RegistrationFPS float64 `yaml:"registration_fps" mapstructure:"registration_fps"`
}
type LipSync struct {
	Method string `yaml:"method" mapstructure:"method"`
}
type Processing struct {
	NumWorkers         int           `yaml:"num_workers" mapstructure:"num_workers"`
	ParticipantTimeout time.Duration `yaml:"participant_timeout" mapstructure:"participant_timeout"`
}
type Paths struct {
	Outputs  string `yaml:"outputs" mapstructure:"outputs"`
	Database string `yaml:"database" mapstructure:"database"`
	FFmpeg   string `yaml:"ffmpeg" mapstructure:"ffmpeg"`
	Tmp      string `yaml:"tmp" mapstructure:"tmp"`
}
type Metrics struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type Root struct {
	Pipeline struct {
		Name      string `yaml:"name" mapstructure:"name"`
		Version   string `yaml:"version" mapstructure:"version"`
		LogLvl    string `yaml:"log_level" mapstructure:"log_level"`
		LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	} `yaml:"pipeline" mapstructure:"pipeline"`
	Participants    []Participant   `yaml:"participants" mapstructure:"participants"`
	Combined        Source          `yaml:"combined" mapstructure:"combined"`
	Window          Window          `yaml:"window" mapstructure:"window"`
	Audio           Audio           `yaml:"audio" mapstructure:"audio"`
	Video           Video           `yaml:"video" mapstructure:"video"`
	Services        Services        `yaml:"services" mapstructure:"services"`
	Summarizer      Summarizer      `yaml:"summarizer" mapstructure:"summarizer"`
	Features        Features        `yaml:"features" mapstructure:"features"`
	FaceRecognition FaceRecognition `yaml:"face_recognition" mapstructure:"face_recognition"`
	LipSync         LipSync         `yaml:"lipsync" mapstructure:"lipsync"`
	Diarization     diarize.Config  `yaml:"diarization" mapstructure:"diarization"`
	Processing      Processing      `yaml:"processing" mapstructure:"processing"`
	Paths           Paths           `yaml:"paths" mapstructure:"paths"`
	Metrics         Metrics         `yaml:"metrics" mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "meetsync")
	v.SetDefault("pipeline.version", "dev")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("pipeline.log_format", "")
	v.SetDefault("combined.video", "")
	v.SetDefault("combined.audio", "")
	v.SetDefault("window.start", 0.0)
	v.SetDefault("window.end", 0.0)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("video.fps", 25.0)
	v.SetDefault("services.asr.url", "")
	v.SetDefault("services.face.url", "")
	v.SetDefault("services.landmarks.url", "")
	v.SetDefault("services.visualization.url", "")
	v.SetDefault("services.timeout", 60*time.Second)
	v.SetDefault("summarizer.url", "https://api.perplexity.ai/chat/completions")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.model", "llama-3.1-sonar-huge-128k-online")
	v.SetDefault("summarizer.language", "English")
	v.SetDefault("summarizer.timeout", 2*time.Minute)
	v.SetDefault("summarizer.retries", 3)

	fd := features.DefaultConfig()
	v.SetDefault("features.num_coefficients", fd.NumCoefficients)
	v.SetDefault("features.num_filters", fd.NumFilters)
	v.SetDefault("features.frame_length", fd.FrameLength)
	v.SetDefault("features.hop", fd.Hop)
	v.SetDefault("features.time_window", 30)
	v.SetDefault("features.overlap", 15)

	v.SetDefault("face_recognition.metric", "cosine")
	v.SetDefault("face_recognition.threshold", 0.6)
	v.SetDefault("face_recognition.registration_fps", 1.0)
	v.SetDefault("lipsync.method", "cosine")

	dd := diarize.DefaultConfig()
	v.SetDefault("diarization.min_clusters", dd.MinClusters)
	v.SetDefault("diarization.max_clusters", dd.MaxClusters)
	v.SetDefault("diarization.max_frames", dd.MaxFrames)
	v.SetDefault("diarization.num_coefficients", dd.NumCoefficients)

	v.SetDefault("processing.num_workers", 0)
	v.SetDefault("processing.participant_timeout", 0)
	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("paths.database", "")
	v.SetDefault("paths.ffmpeg", "ffmpeg")
	v.SetDefault("paths.tmp", "")
	v.SetDefault("metrics.addr", "")
}

// Load reads path, or the first config file found under the CONFIG_ENV search list when path is
// empty. MEETSYNC_* environment variables override file values (e.g. MEETSYNC_VIDEO_FPS).
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		guess := []string{
			filepath.Join("config", env, "config.yaml"),
			"config.yaml",
		}
		for _, p := range guess {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("no config file found (tried %s)", strings.Join(guess, ", "))
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.Summarizer.APIKey == "" {
		if key, err := APIKeyFromKeyring(); err == nil {
			cfg.Summarizer.APIKey = key
		}
	}
	return &cfg, nil
}

// APIKeyFromKeyring looks up the summarizer credential in the OS keyring.
func APIKeyFromKeyring() (string, error) {
	key, err := keyring.Get(KeyringService, KeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("keyring: %w", err)
	}
	return strings.TrimSpace(key), nil
}

func (r *Root) MeetingParticipants() []meeting.Participant {
	out := make([]meeting.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, meeting.Participant{Name: p.Name, VideoSource: p.Video, AudioSource: p.Audio})
	}
	return out
}

func (r *Root) ProcessingWindow() meeting.Window {
	return meeting.Window{Start: r.Window.Start, End: r.Window.End}
}

func (r *Root) MFCC() features.Config {
	return features.Config{
		NumCoefficients: r.Features.NumCoefficients,
		NumFilters:      r.Features.NumFilters,
		FrameLength:     r.Features.FrameLength,
		Hop:             r.Features.Hop,
	}
}

// DiarizationMFCC uses the diarization coefficient count with the shared framing.
func (r *Root) DiarizationMFCC() features.Config {
	c := r.MFCC()
	c.NumCoefficients = r.Diarization.NumCoefficients
	if c.NumFilters < c.NumCoefficients {
		c.NumFilters = c.NumCoefficients
	}
	return c
}

// YAML renders the configuration with credentials redacted.
func (r *Root) YAML() ([]byte, error) {
	cp := *r
	if cp.Summarizer.APIKey != "" {
		cp.Summarizer.APIKey = "<redacted>"
	}
	return yaml.Marshal(&cp)
}
