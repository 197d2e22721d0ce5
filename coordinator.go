package codebench

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// inputMarker is the blocking-input primitive detected in Python sources.
// This is a plain substring check, not a parse: a source that mentions
// "input(" inside a comment or string still triggers the wait state. The
// behavior is inherited from the original design and kept as-is, since
// resolving it correctly would require an interpreter front-end.
const inputMarker = "input("

// State is the coordinator's run lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAwaitingInput
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAwaitingInput:
		return "awaiting_input"
	}
	return "unknown"
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a structured logger for the coordinator.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithRepository attaches a session repository. Without one the coordinator
// still runs code; it just never persists anything.
func WithRepository(repo *Repository) CoordinatorOption {
	return func(c *Coordinator) { c.repo = repo }
}

// WithRuntimeChecker enables the runtime-availability gate: before a run
// starts, the required runtime is probed and a missing runtime aborts the
// run with a *MissingRuntimeError.
func WithRuntimeChecker(rc RuntimeChecker) CoordinatorOption {
	return func(c *Coordinator) { c.checker = rc }
}

// WithLanguage sets the starting language. Default: python.
func WithLanguage(l Language) CoordinatorOption {
	return func(c *Coordinator) { c.language = l }
}

// WithAutosaveDebounce sets the quiescence window after a code change before
// an autosave fires. Zero disables autosave. Default: 500ms.
func WithAutosaveDebounce(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.debounce = d }
}

// Coordinator owns the live editor session: current code and language, the
// append-only console message log, and the run/stdin-wait state machine over
// an Executor. All state mutations go through its exported methods, guarded
// by one mutex; run requests are serialized by the state guard, and a
// monotonically increasing generation token discards effects of executor
// calls that were superseded by a later run.
type Coordinator struct {
	exec    Executor
	checker RuntimeChecker
	repo    *Repository
	logger  *slog.Logger

	mu           sync.Mutex
	state        State
	code         string
	language     Language
	messages     []ConsoleMessage
	pendingInput string
	generation   uint64

	debounce  time.Duration
	saveMu    sync.Mutex
	saveTimer *time.Timer
}

// NewCoordinator creates a Coordinator driving exec. The initial code is the
// language's seed snippet; call Restore to hydrate from persistence.
func NewCoordinator(exec Executor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		exec:     exec,
		logger:   nopLogger,
		language: LangPython,
		debounce: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	c.code = DefaultCode(c.language)
	return c
}

// Restore loads the latest persisted session for the current language into
// the editor. Persistence failures degrade to the seed snippet: the editor
// is never blocked because storage failed.
func (c *Coordinator) Restore(ctx context.Context) {
	if c.repo == nil {
		return
	}
	c.mu.Lock()
	language := c.language
	c.mu.Unlock()

	session, err := c.repo.GetLatestCodeSession(ctx, language)
	if err != nil {
		c.logger.Error("coordinator: restore failed, seeding default", "language", language, "error", err)
		return
	}
	if session == nil {
		return
	}
	c.mu.Lock()
	if c.language == language {
		c.code = session.Code
	}
	c.mu.Unlock()
	c.logger.Debug("coordinator: restored session", "id", session.ID, "language", language)
}

// Run starts an execution of the current code. Re-entrant calls while a run
// is outstanding are no-ops. When the runtime gate reports the required
// runtime missing, Run returns a *MissingRuntimeError without entering the
// running state. A Python source containing the blocking-input marker
// suspends into the awaiting-input state instead of executing; SubmitInput
// resumes it.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return nil
	}
	language := c.language
	c.mu.Unlock()

	// The runtime probe can be slow (it execs `bin --version`), so it runs
	// outside the lock. Accessors stay responsive during the probe; the state
	// guard is re-checked after it.
	if c.checker != nil {
		if rt := language.Runtime(); rt != "" && !c.checker.CheckRuntime(ctx, rt) {
			c.logger.Debug("coordinator: run aborted, runtime missing", "runtime", rt)
			return &MissingRuntimeError{Runtime: rt}
		}
	}

	c.mu.Lock()
	if c.state == StateRunning {
		c.mu.Unlock()
		return nil
	}
	code, language := c.code, c.language

	c.generation++
	generation := c.generation
	c.messages = nil
	stdin := c.pendingInput

	if language == LangPython && strings.Contains(code, inputMarker) {
		c.state = StateAwaitingInput
		c.mu.Unlock()
		c.logger.Debug("coordinator: awaiting input")
		return nil
	}

	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Debug("coordinator: run started", "language", language, "generation", generation)
	result := c.exec.Execute(ctx, code, language, stdin)
	c.complete(ctx, generation, code, language, result)
	return nil
}

// SubmitInput resumes a run suspended in the awaiting-input state, using
// input as the program's stdin. A call while not awaiting input is a no-op.
func (c *Coordinator) SubmitInput(ctx context.Context, input string) {
	c.mu.Lock()
	if c.state != StateAwaitingInput {
		c.mu.Unlock()
		return
	}
	c.appendMessageLocked(MessageInput, input)
	c.state = StateRunning
	c.pendingInput = input
	generation := c.generation
	code, language := c.code, c.language
	c.mu.Unlock()

	c.logger.Debug("coordinator: input submitted, resuming", "generation", generation)
	result := c.exec.Execute(ctx, code, language, input)
	c.complete(ctx, generation, code, language, result)
}

// complete applies an executor result: console messages, the idle
// transition, and the persisted output snapshot. Results from a superseded
// generation are discarded.
func (c *Coordinator) complete(ctx context.Context, generation uint64, code string, language Language, result ExecutionResult) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug("coordinator: stale result discarded", "generation", generation)
		return
	}
	if result.Stdout != "" {
		c.appendMessageLocked(MessageOutput, result.Stdout)
	}
	if result.Stderr != "" {
		c.appendMessageLocked(MessageError, result.Stderr)
	}
	c.state = StateIdle
	c.pendingInput = ""
	c.mu.Unlock()

	if c.repo == nil {
		return
	}
	serialized, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("coordinator: serialize result failed", "error", err)
		return
	}
	output := string(serialized)
	_, err = c.repo.SaveCodeSession(ctx, CodeSession{
		Code:      code,
		Language:  language,
		Output:    &output,
		Timestamp: NowISO(),
	})
	if err != nil {
		// Persistence failures never interrupt the session.
		c.logger.Error("coordinator: save execution result failed", "error", err)
	}
}

// SetCode replaces the editor buffer and arms the autosave debounce timer.
func (c *Coordinator) SetCode(code string) {
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()

	if c.repo == nil || c.debounce <= 0 {
		return
	}
	c.saveMu.Lock()
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(c.debounce, c.autosave)
	c.saveMu.Unlock()
}

// autosave persists the current buffer. Fire-and-forget: failures are
// logged, never surfaced.
func (c *Coordinator) autosave() {
	c.mu.Lock()
	code, language := c.code, c.language
	c.mu.Unlock()
	if code == "" {
		return
	}
	_, err := c.repo.SaveCodeSession(context.Background(), CodeSession{
		Code:      code,
		Language:  language,
		Timestamp: NowISO(),
	})
	if err != nil {
		c.logger.Error("coordinator: autosave failed", "language", language, "error", err)
		return
	}
	c.logger.Debug("coordinator: autosave ok", "language", language)
}

// SetLanguage switches the editor language, clears the message log, and
// loads the latest persisted session for the new language (or its seed
// snippet). Invalid languages are ignored.
func (c *Coordinator) SetLanguage(ctx context.Context, language Language) {
	if !language.Valid() {
		return
	}
	c.mu.Lock()
	c.language = language
	c.messages = nil
	c.code = DefaultCode(language)
	c.mu.Unlock()
	c.Restore(ctx)
}

// ClearMessages empties the console message log.
func (c *Coordinator) ClearMessages() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

// Close flushes a pending autosave and tears down the repository's adapter
// (final snapshot flush for buffer-backed stores). The coordinator must not
// be used afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	c.saveMu.Lock()
	pending := c.saveTimer != nil && c.saveTimer.Stop()
	c.saveTimer = nil
	c.saveMu.Unlock()
	if c.repo == nil {
		return nil
	}
	if pending {
		c.autosave()
	}
	return c.repo.Close(ctx)
}

func (c *Coordinator) appendMessageLocked(typ MessageType, content string) {
	c.messages = append(c.messages, ConsoleMessage{
		ID:        NewID(),
		Type:      typ,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether an execution is in flight.
func (c *Coordinator) IsRunning() bool {
	return c.State() == StateRunning
}

// IsWaitingForInput reports whether the coordinator is suspended waiting
// for stdin.
func (c *Coordinator) IsWaitingForInput() bool {
	return c.State() == StateAwaitingInput
}

// Code returns the current editor buffer.
func (c *Coordinator) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Language returns the current editor language.
func (c *Coordinator) Language() Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Messages returns a copy of the ordered console message log.
func (c *Coordinator) Messages() []ConsoleMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConsoleMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
