package ws

import (
	"fmt"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/teams"
	"github.com/goccy/go-json"
)

const (
	KindRunTest = "run-test"
	KindSubmit  = "submit"
)

// Incoming is a message sent by a client.
type Incoming struct {
	Kind     string `json:"kind"`
	ID       uint64 `json:"id"`
	Language string `json:"language"`
	Solution string `json:"solution"`
	Problem  int    `json:"problem"`
}

// DecodeIncoming parses a client message. The kind is not checked, unknown kinds are up to the handler.
func DecodeIncoming(data []byte) (Incoming, error) {
	var msg Incoming
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// InvalidMessage is the reply to a message that could not be decoded.
// It carries the message id when one can still be read from data.
func InvalidMessage(data []byte) ErrorMessage {
	var partial struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		partial.ID = nil
	}
	return Errorf(partial.ID, "Invalid message")
}

// Message is anything the server pushes onto a socket.
type Message interface {
	json.Marshaler
	MessageKind() string
}

func tagged(kind string, v any) ([]byte, error) {
	return arena.TagJSON(kind, v)
}

const (
	outcomePass = "pass"
	outcomeFail = "fail"

	ReasonTimeout         = "timeout"
	ReasonIncorrectOutput = "incorrect-output"
	ReasonCrash           = "crash"
)

// TestOutcome is the verdict of a single test as shown to the client.
type TestOutcome struct {
	Kind   string  `json:"kind"`
	Reason string  `json:"reason,omitempty"`
	Stdout *string `json:"stdout,omitempty"`
	Stderr *string `json:"stderr,omitempty"`
	Status *int    `json:"status,omitempty"`
}

func PassOutcome() TestOutcome {
	return TestOutcome{Kind: outcomePass}
}

func FailOutcome(reason string, stdout, stderr *string, status *int) TestOutcome {
	return TestOutcome{Kind: outcomeFail, Reason: reason, Stdout: stdout, Stderr: stderr, Status: status}
}

func (o TestOutcome) Passed() bool {
	return o.Kind == outcomePass
}

type IndividualTest struct {
	Index  int            `json:"index"`
	Result TestOutcome    `json:"result"`
	Test   arena.TestCase `json:"test"`
}

const (
	ResultsInternalError = "internal-error"
	ResultsCompileFail   = "compile-fail"
	ResultsIndividual    = "individual"
)

// TestResults is one of internal-error, compile-fail (with the build output)
// or individual (with the visible tests).
type TestResults struct {
	Kind string `json:"kind"`

	Stdout *string `json:"stdout,omitempty"`
	Stderr *string `json:"stderr,omitempty"`
	Status *int    `json:"status,omitempty"`

	Tests []IndividualTest `json:"tests,omitempty"`
}

func InternalErrorResults() TestResults {
	return TestResults{Kind: ResultsInternalError}
}

func CompileFailResults(stdout, stderr string, status int) TestResults {
	return TestResults{Kind: ResultsCompileFail, Stdout: &stdout, Stderr: &stderr, Status: &status}
}

func IndividualResults(tests []IndividualTest) TestResults {
	if tests == nil {
		tests = []IndividualTest{}
	}
	return TestResults{Kind: ResultsIndividual, Tests: tests}
}

type TestResultsMessage struct {
	ID      uint64      `json:"id"`
	Results TestResults `json:"results"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
}

func (m TestResultsMessage) MessageKind() string { return "test-results" }

func (m TestResultsMessage) MarshalJSON() ([]byte, error) {
	type plain TestResultsMessage
	return tagged(m.MessageKind(), plain(m))
}

type SubmitMessage struct {
	ID                uint64      `json:"id"`
	Results           TestResults `json:"results"`
	Passed            int         `json:"passed"`
	Failed            int         `json:"failed"`
	RemainingAttempts *int        `json:"remainingAttempts"`
}

func (m SubmitMessage) MessageKind() string { return "submit" }

func (m SubmitMessage) MarshalJSON() ([]byte, error) {
	type plain SubmitMessage
	return tagged(m.MessageKind(), plain(m))
}

// TestProgressMessage carries the results of a test run started over HTTP.
// Done is set on the last message of a run.
type TestProgressMessage struct {
	RunID   string      `json:"runId"`
	Results TestResults `json:"results"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
	Done    bool        `json:"done"`
}

func (m TestProgressMessage) MessageKind() string { return "test-progress" }

func (m TestProgressMessage) MarshalJSON() ([]byte, error) {
	type plain TestProgressMessage
	return tagged(m.MessageKind(), plain(m))
}

type ErrorMessage struct {
	ID      *uint64 `json:"id"`
	Message string  `json:"message"`
}

func (m ErrorMessage) MessageKind() string { return "error" }

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type plain ErrorMessage
	return tagged(m.MessageKind(), plain(m))
}

func Errorf(id *uint64, format string, args ...any) ErrorMessage {
	return ErrorMessage{ID: id, Message: fmt.Sprintf(format, args...)}
}

// Broadcast is a competition-wide update pushed to every socket.
type Broadcast interface {
	json.Marshaler
	BroadcastKind() string
}

type BroadcastMessage struct {
	Broadcast Broadcast `json:"broadcast"`
}

func (m BroadcastMessage) MessageKind() string { return "broadcast" }

func (m BroadcastMessage) MarshalJSON() ([]byte, error) {
	type plain BroadcastMessage
	return tagged(m.MessageKind(), plain(m))
}

func NewBroadcast(b Broadcast) BroadcastMessage {
	return BroadcastMessage{Broadcast: b}
}

type Announce struct {
	Message string `json:"message"`
}

func (b Announce) BroadcastKind() string { return "announce" }

func (b Announce) MarshalJSON() ([]byte, error) {
	type plain Announce
	return tagged(b.BroadcastKind(), plain(b))
}

type GamePaused struct{}

func (b GamePaused) BroadcastKind() string { return "game-paused" }

func (b GamePaused) MarshalJSON() ([]byte, error) {
	return tagged(b.BroadcastKind(), struct{}{})
}

type GameUnpaused struct {
	TimeLeftInSeconds uint64 `json:"timeLeftInSeconds"`
}

func (b GameUnpaused) BroadcastKind() string { return "game-unpaused" }

func (b GameUnpaused) MarshalJSON() ([]byte, error) {
	type plain GameUnpaused
	return tagged(b.BroadcastKind(), plain(b))
}

// TeamWithScore is a team as shown on connect/disconnect notices and team listings.
type TeamWithScore struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName *string    `json:"displayName"`
	Score       float64    `json:"score"`
	TeamInfo    teams.Info `json:"teamInfo"`
}

type TeamConnected struct {
	Team TeamWithScore `json:"team"`
}

func (b TeamConnected) BroadcastKind() string { return "team-connected" }

func (b TeamConnected) MarshalJSON() ([]byte, error) {
	type plain TeamConnected
	return tagged(b.BroadcastKind(), plain(b))
}

type TeamDisconnected struct {
	Team TeamWithScore `json:"team"`
}

func (b TeamDisconnected) BroadcastKind() string { return "team-disconnected" }

func (b TeamDisconnected) MarshalJSON() ([]byte, error) {
	type plain TeamDisconnected
	return tagged(b.BroadcastKind(), plain(b))
}

type TeamUpdate struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	NewScore  float64               `json:"newScore"`
	NewStates []arena.QuestionState `json:"newStates"`
}

func (b TeamUpdate) BroadcastKind() string { return "team-update" }

func (b TeamUpdate) MarshalJSON() ([]byte, error) {
	type plain TeamUpdate
	return tagged(b.BroadcastKind(), plain(b))
}
