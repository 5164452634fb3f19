package eval

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/KiloProjects/arena/internal/config"
	"github.com/google/shlex"
)

type Language struct {
	Name          string `json:"name"`
	PrintableName string `json:"displayName"`

	BuildCommand []string `json:"-"`
	RunCommand   []string `json:"-"`
	SourceName   string   `json:"sourceFile"`

	Disabled bool `json:"-"`
}

func (l *Language) Compiled() bool {
	return len(l.BuildCommand) > 0
}

type Languages struct {
	langs []*Language
}

// NewLanguages parses the configured build and run commands.
func NewLanguages(cfg []config.Language) (*Languages, error) {
	langs := make([]*Language, 0, len(cfg))
	for _, l := range cfg {
		run, err := shlex.Split(l.Run)
		if err != nil {
			return nil, fmt.Errorf("language %q: invalid run command: %w", l.Name, err)
		}
		if len(run) == 0 {
			return nil, fmt.Errorf("language %q: empty run command", l.Name)
		}
		var build []string
		if l.Build != "" {
			build, err = shlex.Split(l.Build)
			if err != nil {
				return nil, fmt.Errorf("language %q: invalid build command: %w", l.Name, err)
			}
		}
		langs = append(langs, &Language{
			Name:          l.Name,
			PrintableName: l.DisplayName,
			BuildCommand:  build,
			RunCommand:    run,
			SourceName:    l.Source,
		})
	}
	return &Languages{langs: langs}, nil
}

// Get returns an enabled language by name.
func (ls *Languages) Get(name string) (*Language, bool) {
	idx := slices.IndexFunc(ls.langs, func(l *Language) bool { return l.Name == name })
	if idx < 0 || ls.langs[idx].Disabled {
		return nil, false
	}
	return ls.langs[idx], true
}

func (ls *Languages) List() []*Language {
	return slices.DeleteFunc(slices.Clone(ls.langs), func(l *Language) bool { return l.Disabled })
}

// Check disables all languages whose compiler or interpreter cannot be found on the system.
func (ls *Languages) Check(logger *slog.Logger) {
	for _, lang := range ls.langs {
		toSearch := lang.RunCommand
		if lang.Compiled() {
			toSearch = lang.BuildCommand
		}
		if reason := checkBinary(toSearch[0]); reason != "" {
			lang.Disabled = true
			logger.Warn("Language was disabled", slog.String("lang", lang.Name), slog.String("reason", reason))
		}
	}
}

func checkBinary(name string) string {
	cmd, err := exec.LookPath(name)
	if err != nil {
		return "the compiler/interpreter was not found in PATH"
	}
	cmd, err = filepath.EvalSymlinks(cmd)
	if err != nil {
		return "the compiler/interpreter had a bad symlink"
	}
	stat, err := os.Stat(cmd)
	if err != nil {
		return "the compiler/interpreter binary was not found"
	}
	if stat.Mode()&0111 == 0 {
		return "the compiler/interpreter binary is not executable"
	}
	return ""
}
