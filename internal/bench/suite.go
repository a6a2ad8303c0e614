package bench

import "context"

// Suite is the adapter interface a benchmark data source implements:
// task loading and scoring, plus optional per-task lifecycle hooks.
// Running an adapter's task loop against a live agent (subprocess
// supervision, multi-turn simulation) is not provided here — only the
// interface shape and the scoring/loading primitives it composes with.
type Suite interface {
	// Name is a human-readable suite name (e.g. "GAIA Validation").
	Name() string

	// ID is a machine identifier (e.g. "gaia").
	ID() string

	// LoadTasks returns every task in the suite's data source.
	LoadTasks(ctx context.Context) ([]Task, error)

	// Score grades an agent's submission against a task.
	Score(ctx context.Context, task *Task, submission *Submission) (Score, error)
}

// LifecycleSuite is implemented by suites that need setup/teardown
// around each task (cloning a repo, seeding a database, and so on).
type LifecycleSuite interface {
	Suite
	SetupTask(ctx context.Context, task *Task) error
	TeardownTask(ctx context.Context, task *Task) error
}

// ConversationSuite is implemented by suites that drive a multi-turn
// dialog, simulating the next user message until the conversation ends.
type ConversationSuite interface {
	Suite
	NextUserMessage(ctx context.Context, task *Task, conversation []ConversationTurn) (string, bool, error)
}

// JSONLSuite is a Suite backed by a static JSONL task file and one of
// the built-in scorers named on each task record.
type JSONLSuite struct {
	SuiteName string
	SuiteID   string
	Tasks     []Task
	Judge     Judge
}

// NewJSONLSuite loads tasks from a JSONL stream into a ready-to-score
// Suite.
func NewJSONLSuite(name, id string, loader func() ([]Task, error)) (*JSONLSuite, error) {
	tasks, err := loader()
	if err != nil {
		return nil, err
	}
	return &JSONLSuite{SuiteName: name, SuiteID: id, Tasks: tasks}, nil
}

func (s *JSONLSuite) Name() string { return s.SuiteName }
func (s *JSONLSuite) ID() string   { return s.SuiteID }

func (s *JSONLSuite) LoadTasks(ctx context.Context) ([]Task, error) {
	return s.Tasks, nil
}

func (s *JSONLSuite) Score(ctx context.Context, task *Task, submission *Submission) (Score, error) {
	return ScoreTask(ctx, task, submission, s.Judge)
}
