// Package scoring turns an accepted submission into points.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/config"
	"github.com/dop251/goja"
)

var ErrUnknownProblem = errors.New("unknown problem")

// Context is everything known about a submission at the time it is scored.
type Context struct {
	// OtherCompletions is the number of other teams that solved the problem earlier
	OtherCompletions int `json:"otherCompletions"`
	// PriorAttempts is the number of earlier submissions of this team for the problem
	PriorAttempts int `json:"priorAttempts"`

	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

type Scorer interface {
	Score(problem int, sctx Context) (float64, error)
}

// New builds the scorer for the configured mode.
func New(cfg config.Scoring, packet *arena.Packet) (Scorer, error) {
	base := &Points{packet: packet, def: cfg.Points}
	switch cfg.Mode {
	case "", "points":
		return base, nil
	case "first-to-solve":
		return &FirstToSolve{
			Points:         base,
			Bonus:          cfg.Bonus,
			BonusPlaces:    cfg.BonusPlaces,
			AttemptPenalty: cfg.AttemptPenalty,
			MinPoints:      cfg.MinPoints,
		}, nil
	case "script":
		src, err := os.ReadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("could not read scoring script: %w", err)
		}
		return NewScript(cfg.Script, string(src), base)
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", cfg.Mode)
	}
}

// Points awards the fixed value of the problem.
type Points struct {
	packet *arena.Packet
	def    float64
}

func NewPoints(packet *arena.Packet, def float64) *Points {
	return &Points{packet: packet, def: def}
}

func (s *Points) value(problem int) (float64, error) {
	pb := s.packet.Problem(problem)
	if pb == nil {
		return 0, fmt.Errorf("%w: %d", ErrUnknownProblem, problem)
	}
	if pb.Points != nil {
		return *pb.Points, nil
	}
	return s.def, nil
}

func (s *Points) Score(problem int, _ Context) (float64, error) {
	return s.value(problem)
}

// FirstToSolve adds a bonus that shrinks with every team that solved the problem
// before, and takes off a penalty per earlier attempt.
type FirstToSolve struct {
	*Points

	Bonus          float64
	BonusPlaces    int
	AttemptPenalty float64
	MinPoints      float64
}

func (s *FirstToSolve) Score(problem int, sctx Context) (float64, error) {
	points, err := s.value(problem)
	if err != nil {
		return 0, err
	}
	if s.BonusPlaces > 0 {
		left := max(0, s.BonusPlaces-sctx.OtherCompletions)
		points += s.Bonus * float64(left) / float64(s.BonusPlaces)
	}
	points -= s.AttemptPenalty * float64(sctx.PriorAttempts)
	return math.Max(points, s.MinPoints), nil
}

const scriptTimeout = 1 * time.Second

// Script delegates scoring to a JS function score(problem, ctx).
type Script struct {
	prog    *goja.Program
	points  *Points
	timeout time.Duration
}

type scriptProblem struct {
	Index  int     `json:"index"`
	Title  string  `json:"title"`
	Points float64 `json:"points"`
	Tests  int     `json:"tests"`
}

func NewScript(name, src string, points *Points) (*Script, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("could not compile scoring script: %w", err)
	}
	return &Script{prog: prog, points: points, timeout: scriptTimeout}, nil
}

func (s *Script) Score(problem int, sctx Context) (float64, error) {
	value, err := s.points.value(problem)
	if err != nil {
		return 0, err
	}
	pb := s.points.packet.Problem(problem)

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	timer := time.AfterFunc(s.timeout, func() {
		vm.Interrupt("scoring script timed out")
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(s.prog); err != nil {
		return 0, fmt.Errorf("scoring script failed: %w", err)
	}
	fn, ok := goja.AssertFunction(vm.Get("score"))
	if !ok {
		return 0, errors.New("scoring script does not define score(problem, ctx)")
	}
	res, err := fn(goja.Undefined(), vm.ToValue(scriptProblem{
		Index:  pb.Index,
		Title:  pb.Title,
		Points: value,
		Tests:  len(pb.Tests),
	}), vm.ToValue(sctx))
	if err != nil {
		return 0, fmt.Errorf("scoring script failed: %w", err)
	}

	switch v := res.Export().(type) {
	case int64:
		return float64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("scoring script returned %v", v)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("scoring script returned %T, expected a number", v)
	}
}
