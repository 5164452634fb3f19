package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/KiloProjects/arena"
	"github.com/davecgh/go-spew/spew"
)

// Config is the glue for all configuration sections of a competition
type Config struct {
	Common       Common       `toml:"common"`
	Database     Database     `toml:"database"`
	Game         Game         `toml:"game"`
	TestRunner   TestRunner   `toml:"test_runner"`
	Languages    []Language   `toml:"languages"`
	Packet       Packet       `toml:"packet"`
	Accounts     Accounts     `toml:"accounts"`
	Integrations Integrations `toml:"integrations"`
}

// Common is the data required for all services
type Common struct {
	LogDir    string `toml:"log_dir"`
	FlagsPath string `toml:"flags_path"`
	Debug     bool   `toml:"debug"`
}

// Database is the data required to establish a PostgreSQL connection
type Database struct {
	DSN string `toml:"dsn"`
}

type Game struct {
	// MaxSubmissions is the number of scored attempts per problem. 0 means unlimited.
	MaxSubmissions int           `toml:"max_submissions"`
	TimeLimit      time.Duration `toml:"time_limit"`
	StartPaused    bool          `toml:"start_paused"`

	Scoring Scoring `toml:"scoring"`
}

type Scoring struct {
	// Mode is one of "points", "first-to-solve" or "script"
	Mode string `toml:"mode"`

	// Points is the default value of a problem without explicit points
	Points float64 `toml:"points"`

	Bonus          float64 `toml:"bonus"`
	BonusPlaces    int     `toml:"bonus_places"`
	AttemptPenalty float64 `toml:"attempt_penalty"`
	MinPoints      float64 `toml:"min_points"`

	// Script is a path to a JS file defining score(problem, ctx)
	Script string `toml:"script"`
}

type TestRunner struct {
	Timeout       time.Duration `toml:"timeout"`
	TrimOutput    bool          `toml:"trim_output"`
	MaxConcurrent int           `toml:"max_concurrent"`
	WorkDir       string        `toml:"work_dir"`
	// Sandbox is "process" or "isolate"
	Sandbox string `toml:"sandbox"`
}

//  LANGUAGE DEFINITION STUFF --------------------

// Language is a struct for a language
type Language struct {
	Name        string `toml:"name"`
	DisplayName string `toml:"display_name"`

	// Build is optional, interpreted languages leave it empty
	Build string `toml:"build"`
	Run   string `toml:"run"`

	// Source is the file name the solution is written to
	Source string `toml:"source"`
}

// /LANGUAGE DEFINITION STUFF --------------------

type Packet struct {
	Title    string    `toml:"title"`
	Problems []Problem `toml:"problems"`
}

type Problem struct {
	Title       string   `toml:"title"`
	Description string   `toml:"description"`
	Languages   []string `toml:"languages"`
	Points      *float64 `toml:"points"`
	Tests       []Test   `toml:"tests"`
}

type Test struct {
	Input   string `toml:"input"`
	Output  string `toml:"output"`
	Visible bool   `toml:"visible"`
}

type Accounts struct {
	Hosts       []Account `toml:"hosts"`
	Competitors []Account `toml:"competitors"`
}

type Account struct {
	Name        string `toml:"name"`
	DisplayName string `toml:"display_name"`
	Password    string `toml:"password"`
}

type Integrations struct {
	EventScripts   []string `toml:"event_scripts"`
	Webhooks       []string `toml:"webhooks"`
	WebhookSecret  string   `toml:"webhook_secret"`
	DiscordWebhook string   `toml:"discord_webhook"`
}

// ArenaPacket converts the configured problems into their runtime representation.
func (c *Config) ArenaPacket() *arena.Packet {
	packet := &arena.Packet{Title: c.Packet.Title, Problems: make([]*arena.Problem, 0, len(c.Packet.Problems))}
	for i, p := range c.Packet.Problems {
		tests := make([]arena.TestCase, 0, len(p.Tests))
		for _, t := range p.Tests {
			tests = append(tests, arena.TestCase{Input: t.Input, Output: t.Output, Visible: t.Visible})
		}
		packet.Problems = append(packet.Problems, &arena.Problem{
			Index:       i,
			Title:       p.Title,
			Description: p.Description,
			Tests:       tests,
			Languages:   slices.Clone(p.Languages),
			Points:      p.Points,
		})
	}
	return packet
}

func (c *Config) setDefaults() {
	if c.Game.Scoring.Mode == "" {
		c.Game.Scoring.Mode = "points"
	}
	if c.Game.Scoring.Points == 0 {
		c.Game.Scoring.Points = 1
	}
	if c.TestRunner.Timeout == 0 {
		c.TestRunner.Timeout = 5 * time.Second
	}
	if c.TestRunner.MaxConcurrent <= 0 {
		c.TestRunner.MaxConcurrent = 4
	}
	if c.TestRunner.Sandbox == "" {
		c.TestRunner.Sandbox = "process"
	}
	if c.TestRunner.WorkDir == "" {
		c.TestRunner.WorkDir = os.TempDir()
	}
	for i := range c.Languages {
		if c.Languages[i].DisplayName == "" {
			c.Languages[i].DisplayName = c.Languages[i].Name
		}
	}
}

// Validate checks the cross references of the configuration.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Languages) == 0 {
		errs = append(errs, errors.New("at least one language must be configured"))
	}
	known := make(map[string]bool, len(c.Languages))
	for _, lang := range c.Languages {
		if lang.Name == "" || lang.Run == "" || lang.Source == "" {
			errs = append(errs, fmt.Errorf("language %q must have a name, run command and source file", lang.Name))
		}
		if known[lang.Name] {
			errs = append(errs, fmt.Errorf("language %q defined twice", lang.Name))
		}
		known[lang.Name] = true
	}
	for i, p := range c.Packet.Problems {
		if len(p.Tests) == 0 {
			errs = append(errs, fmt.Errorf("problem %d (%q) has no tests", i, p.Title))
		}
		for _, lang := range p.Languages {
			if !known[lang] {
				errs = append(errs, fmt.Errorf("problem %d (%q) references unknown language %q", i, p.Title, lang))
			}
		}
	}
	switch c.Game.Scoring.Mode {
	case "points", "first-to-solve":
	case "script":
		if c.Game.Scoring.Script == "" {
			errs = append(errs, errors.New("script scoring requires game.scoring.script"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scoring mode %q", c.Game.Scoring.Mode))
	}
	if c.TestRunner.Sandbox != "process" && c.TestRunner.Sandbox != "isolate" {
		errs = append(errs, fmt.Errorf("unknown sandbox %q", c.TestRunner.Sandbox))
	}
	if c.Game.MaxSubmissions < 0 {
		errs = append(errs, errors.New("game.max_submissions must not be negative"))
	}
	return errors.Join(errs...)
}

func finish(c *Config, md toml.MetaData) (*Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("There were a few undecoded keys in the config", slog.String("keys", spew.Sdump(undecoded)))
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Load reads and validates the competition config at path.
func Load(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, err
	}
	return finish(&c, md)
}

// Parse is like Load, for an in-memory document.
func Parse(data string) (*Config, error) {
	var c Config
	md, err := toml.Decode(data, &c)
	if err != nil {
		return nil, err
	}
	return finish(&c, md)
}
