package config

import "time"

// TurnServer describes one TURN relay with credentials.
type TurnServer struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Username   string `mapstructure:"username" yaml:"username"`
	Credential string `mapstructure:"credential" yaml:"credential"`
}

// DoNotDisturb is a local-time window during which incoming calls are
// silently rejected with the off-hours reason.
type DoNotDisturb struct {
	Enabled   bool `mapstructure:"enabled" yaml:"enabled"`
	StartHour int  `mapstructure:"start_hour" yaml:"start_hour"`
	EndHour   int  `mapstructure:"end_hour" yaml:"end_hour"`
}

// VideoProfile caps the outgoing video encoder.
type VideoProfile struct {
	MaxBitrateKbps int `mapstructure:"max_bitrate_kbps" yaml:"max_bitrate_kbps"`
	MaxFPS         int `mapstructure:"max_fps" yaml:"max_fps"`
	Width          int `mapstructure:"width" yaml:"width"`
	Height         int `mapstructure:"height" yaml:"height"`
}

// Config holds client configuration values.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Signaling transport.
	SignalingURL   string `mapstructure:"signaling_url" yaml:"signaling_url"`
	SignalingToken string `mapstructure:"signaling_token" yaml:"signaling_token"`

	// Local debug/ops HTTP surface.
	DebugAddr       string        `mapstructure:"debug_addr" yaml:"debug_addr"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer       string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience     string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Persistence for call system messages and unread counters.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Media transport.
	StunServers []string     `mapstructure:"stun_servers" yaml:"stun_servers"`
	TurnServers []TurnServer `mapstructure:"turn_servers" yaml:"turn_servers"`
	EnableIPv6  bool         `mapstructure:"enable_ipv6" yaml:"enable_ipv6"`

	// Call timers.
	RingingTimeout     time.Duration `mapstructure:"ringing_timeout" yaml:"ringing_timeout"`
	IncomingTimeout    time.Duration `mapstructure:"incoming_timeout" yaml:"incoming_timeout"`
	FailedGraceTimeout time.Duration `mapstructure:"failed_grace_timeout" yaml:"failed_grace_timeout"`

	// Stats polling.
	ConnectingStatsInterval time.Duration `mapstructure:"connecting_stats_interval" yaml:"connecting_stats_interval"`
	ConnectedStatsInterval  time.Duration `mapstructure:"connected_stats_interval" yaml:"connected_stats_interval"`
	VideoCheckInterval      time.Duration `mapstructure:"video_check_interval" yaml:"video_check_interval"`

	DoNotDisturb DoNotDisturb `mapstructure:"do_not_disturb" yaml:"do_not_disturb"`

	// Outgoing video limits, keyed by profile name (low, medium, high).
	// The relayed profile is applied when the selected path uses a TURN relay.
	VideoProfiles  map[string]VideoProfile `mapstructure:"video_profiles" yaml:"video_profiles"`
	DefaultProfile string                  `mapstructure:"default_profile" yaml:"default_profile"`
	RelayedProfile string                  `mapstructure:"relayed_profile" yaml:"relayed_profile"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:                "info",
		SignalingURL:            "ws://localhost:8080/ws",
		DebugAddr:               ":8081",
		JWTIssuer:               "wirecall",
		JWTAudience:             "wirecall",
		ShutdownTimeout:         5 * time.Second,
		DatabasePath:            "wirecall.db",
		StunServers:             []string{"stun:stun.l.google.com:19302"},
		EnableIPv6:              true,
		RingingTimeout:          60 * time.Second,
		IncomingTimeout:         60 * time.Second,
		FailedGraceTimeout:      15 * time.Second,
		ConnectingStatsInterval: 2 * time.Second,
		ConnectedStatsInterval:  30 * time.Second,
		VideoCheckInterval:      2 * time.Second,
		DoNotDisturb:            DoNotDisturb{Enabled: false, StartHour: 22, EndHour: 8},
		VideoProfiles: map[string]VideoProfile{
			"low":    {MaxBitrateKbps: 400, MaxFPS: 15, Width: 480, Height: 360},
			"medium": {MaxBitrateKbps: 2000, MaxFPS: 25, Width: 1280, Height: 720},
			"high":   {MaxBitrateKbps: 4000, MaxFPS: 30, Width: 1920, Height: 1080},
		},
		DefaultProfile: "medium",
		RelayedProfile: "low",
	}
}

// Profile resolves a named video profile, falling back to the default.
func (c *Config) Profile(name string) VideoProfile {
	if p, ok := c.VideoProfiles[name]; ok {
		return p
	}
	return c.VideoProfiles[c.DefaultProfile]
}

// InDoNotDisturb reports whether the given local time falls inside the
// configured do-not-disturb window. The window may wrap past midnight.
func (c *Config) InDoNotDisturb(t time.Time) bool {
	dnd := c.DoNotDisturb
	if !dnd.Enabled {
		return false
	}
	h := t.Hour()
	if dnd.StartHour <= dnd.EndHour {
		return h >= dnd.StartHour && h < dnd.EndHour
	}
	return h >= dnd.StartHour || h < dnd.EndHour
}
