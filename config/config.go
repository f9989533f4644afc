// Package config 运行参数。由 Load 一次性读出，之后按段显式传给各组件。
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"multicaster/player"
	"multicaster/raycast"
	"multicaster/vec"
)

// EnvPrefix 环境变量前缀，如 MULTICASTER_SERVER_PORT
const EnvPrefix = "MULTICASTER"

type Config struct {
	Server Server `mapstructure:"server"`
	Client Client `mapstructure:"client"`
	Render Render `mapstructure:"render"`
	Player Player `mapstructure:"player"`
	Map    Map    `mapstructure:"map"`
	Log    Log    `mapstructure:"log"`
}

type Server struct {
	Port        int           `mapstructure:"port"`
	MaxPlayers  int           `mapstructure:"max_players"`
	PeerTimeout time.Duration `mapstructure:"peer_timeout"`
	StepRate    int           `mapstructure:"step_rate"`
	TickRate    int           `mapstructure:"tick_rate"`
	LoopSleep   time.Duration `mapstructure:"loop_sleep"`
	SendQueue   int           `mapstructure:"send_queue"`
	AdminAddr   string        `mapstructure:"admin_addr"`
}

// ListenAddr 监听所有网卡
func (s Server) ListenAddr() string { return fmt.Sprintf(":%d", s.Port) }

type Client struct {
	Endpoint       string        `mapstructure:"endpoint"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	SendRate       int           `mapstructure:"send_rate"`
	AppName        string        `mapstructure:"app_name"`
}

type Render struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Color  string `mapstructure:"color"` // #rrggbb
}

// Raycast 转成引擎配置；颜色非法时退回红色
func (r Render) Raycast() raycast.Config {
	c, err := ParseColor(r.Color)
	if err != nil {
		c = color.RGBA{R: 255, A: 255}
	}
	return raycast.Config{Width: r.Width, Height: r.Height, Color: c}
}

type Player struct {
	MoveSpeed float64 `mapstructure:"move_speed"`
	TurnSpeed float64 `mapstructure:"turn_speed"`
	StartX    float64 `mapstructure:"start_x"`
	StartY    float64 `mapstructure:"start_y"`
	DirX      float64 `mapstructure:"dir_x"`
	DirY      float64 `mapstructure:"dir_y"`
	PlaneX    float64 `mapstructure:"plane_x"`
	PlaneY    float64 `mapstructure:"plane_y"`
}

func (p Player) Simulation() player.Config {
	return player.Config{
		MoveSpeed: p.MoveSpeed,
		TurnSpeed: p.TurnSpeed,
		Start: player.Pose{
			Position:  vec.New(p.StartX, p.StartY),
			Direction: vec.New(p.DirX, p.DirY),
			Plane:     vec.New(p.PlaneX, p.PlaneY),
		},
	}
}

type Map struct {
	Path string `mapstructure:"path"` // 空 = 内置地图
}

type Log struct {
	Path    string `mapstructure:"path"`
	Console bool   `mapstructure:"console"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":            53000,
		"server.max_players":     4,
		"server.peer_timeout":    5 * time.Second,
		"server.step_rate":       60,
		"server.tick_rate":       30,
		"server.loop_sleep":      10 * time.Millisecond,
		"server.send_queue":      64,
		"server.admin_addr":      ":8080",
		"client.endpoint":        "127.0.0.1:53000",
		"client.connect_timeout": 5 * time.Second,
		"client.timeout":         5 * time.Second,
		"client.retry_interval":  3 * time.Second,
		"client.send_rate":       30,
		"client.app_name":        "multicaster",
		"render.width":           640,
		"render.height":          480,
		"render.color":           "#ff0000",
		"player.move_speed":      4.0,
		"player.turn_speed":      1.7,
		"player.start_x":         2.0,
		"player.start_y":         2.0,
		"player.dir_x":           0.0,
		"player.dir_y":           1.0,
		"player.plane_x":         -0.65,
		"player.plane_y":         0.0,
		"map.path":               "",
		"log.path":               "logs/multicaster.log",
		"log.console":            true,
	}
}

func newViper() *viper.Viper {
	vip := viper.New()
	for k, v := range defaults() {
		vip.SetDefault(k, v)
	}
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	return vip
}

// Default 内置默认值（不读文件、不读环境变量）
func Default() *Config {
	vip := viper.New()
	for k, v := range defaults() {
		vip.SetDefault(k, v)
	}
	cfg := &Config{}
	if err := vip.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load 先加载 .env，再读配置文件与环境变量。
// path 为空时按 GO_ENV 选择 config.prod / config.local，找不到文件就用默认值。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	vip := newViper()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		switch os.Getenv("GO_ENV") {
		case "PROD":
			vip.SetConfigName("config.prod")
		default:
			vip.SetConfigName("config.local")
		}
		vip.AddConfigPath(".")
		vip.AddConfigPath("./config")
	}
	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := vip.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Server.MaxPlayers <= 0:
		return fmt.Errorf("config: server.max_players must be positive, got %d", c.Server.MaxPlayers)
	case c.Server.StepRate <= 0 || c.Server.TickRate <= 0:
		return fmt.Errorf("config: step_rate and tick_rate must be positive")
	case c.Server.PeerTimeout <= 0:
		return fmt.Errorf("config: server.peer_timeout must be positive, got %s", c.Server.PeerTimeout)
	case c.Server.LoopSleep <= 0:
		return fmt.Errorf("config: server.loop_sleep must be positive, got %s", c.Server.LoopSleep)
	case c.Client.Timeout <= 0 || c.Client.ConnectTimeout <= 0:
		return fmt.Errorf("config: client.timeout and client.connect_timeout must be positive")
	case c.Client.RetryInterval < 0:
		return fmt.Errorf("config: client.retry_interval must not be negative, got %s", c.Client.RetryInterval)
	case c.Client.SendRate <= 0:
		return fmt.Errorf("config: client.send_rate must be positive")
	case c.Render.Width <= 0 || c.Render.Height <= 0:
		return fmt.Errorf("config: bad resolution %dx%d", c.Render.Width, c.Render.Height)
	}
	if _, err := ParseColor(c.Render.Color); err != nil {
		return err
	}
	return nil
}

// ParseColor 解析 #rrggbb
func ParseColor(s string) (color.RGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(strings.TrimPrefix(s, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("config: bad color %q: %w", s, err)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
