// Package shell runs the interactive read-eval-print loop over one active
// session.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/joss/agentsh/internal/command"
	"github.com/joss/agentsh/internal/domain"
	"github.com/joss/agentsh/internal/logging"
	"github.com/joss/agentsh/internal/render"
	"github.com/joss/agentsh/internal/session"
)

// maxLineSize bounds one line of input.
const maxLineSize = 1 << 20

type state int

const (
	statePrompting state = iota
	stateProcessing
	stateExiting
)

// Loop is the interactive shell. It owns the active session reference; every
// other piece of state lives in the store.
type Loop struct {
	manager    *session.Manager
	dispatcher *command.Dispatcher
	in         io.Reader
	out        *render.Writer
	log        *logging.Logger
	recovery   *logging.RecoveryHandler

	resumeID string
	workDir  string
	active   *domain.Session
}

// Option configures a Loop.
type Option func(*Loop)

// WithSessionID resumes the given session instead of starting a new one.
func WithSessionID(id string) Option {
	return func(l *Loop) { l.resumeID = id }
}

// WithWorkingDirectory anchors newly created sessions. Empty means the
// process cwd.
func WithWorkingDirectory(dir string) Option {
	return func(l *Loop) { l.workDir = dir }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Loop) { l.log = log.Named("shell") }
}

// New creates a loop reading lines from in and writing to out.
func New(m *session.Manager, d *command.Dispatcher, in io.Reader, out io.Writer, opts ...Option) *Loop {
	l := &Loop{
		manager:    m,
		dispatcher: d,
		in:         in,
		out:        render.NewWriter(out),
		log:        logging.New("shell"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.recovery = logging.NewRecoveryHandler("shell", l.log)
	return l
}

// Active returns the active session, nil before Run starts.
func (l *Loop) Active() *domain.Session {
	return l.active
}

// Run resolves the starting session and processes input until "exit", end
// of input or ctx cancellation. Failures while processing a line are
// reported and the loop continues; only a failure to obtain a starting
// session or to read input ends it with an error.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.start(ctx); err != nil {
		return err
	}
	l.out.Println("Type /help for commands, exit to quit.")

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, readErr := l.readLines(readCtx)
	st := statePrompting
	var line string
	for st != stateExiting {
		switch st {
		case statePrompting:
			l.out.Print("%s", l.prompt())
			var in inputLine
			var ok bool
			select {
			case <-ctx.Done():
				l.out.Line()
				l.farewell()
				return ctx.Err()
			case in, ok = <-lines:
			}
			if !ok {
				// End of input behaves like exit.
				l.out.Line()
				st = stateExiting
				if err := <-readErr; err != nil {
					l.farewell()
					return fmt.Errorf("read input: %w", err)
				}
				continue
			}
			if in.tooLong {
				l.log.Info("rejected_input", map[string]interface{}{"error": "line too long"})
				l.out.Error("input line too long (limit %d bytes), ignored", maxLineSize)
				continue
			}
			line = strings.TrimSpace(in.text)
			switch {
			case line == "":
			case strings.EqualFold(line, "exit"):
				st = stateExiting
			default:
				st = stateProcessing
			}

		case stateProcessing:
			l.process(ctx, line)
			st = statePrompting
		}
	}

	l.farewell()
	return nil
}

// start picks the initial session: the requested one if it resolves,
// otherwise a fresh one.
func (l *Loop) start(ctx context.Context) error {
	if l.resumeID != "" {
		sess, err := l.manager.GetSession(ctx, l.resumeID)
		if err == nil {
			l.active = sess
			l.out.Success("Resumed session %s (%d turns, created %s)",
				sess.ID, sess.TurnCount(), sess.Created.Local().Format("2006-01-02 15:04:05"))
			return nil
		}
		l.log.Warn("resume_failed", map[string]interface{}{"id": l.resumeID}, err)
		l.out.Warn("Session %s not found, starting a new session", l.resumeID)
	}

	sess, err := l.manager.CreateSession(ctx, session.CreateOptions{WorkingDirectory: l.workDir})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	l.active = sess
	l.out.Success("Started session %s", sess.ID)
	return nil
}

// process dispatches one line. Errors and panics are logged and printed;
// they never end the loop.
func (l *Loop) process(ctx context.Context, line string) {
	ctx = logging.WithRequestID(ctx, "")
	log := l.log.WithSession(l.active.ID).FromContext(ctx)

	var res command.Result
	err := l.recovery.WrapError(func() error {
		var err error
		res, err = l.dispatcher.Dispatch(ctx, line, l.active)
		return err
	})
	if err != nil {
		var usage *command.UsageError
		var unknown *command.UnknownCommandError
		if errors.As(err, &usage) || errors.As(err, &unknown) {
			log.Info("rejected_input", map[string]interface{}{"error": err.Error()})
		} else {
			log.Warn("dispatch_failed", nil, err)
		}
		l.out.Error("%v", err)
		return
	}

	l.out.Block(res.Output)
	if res.Session != nil {
		if res.Session.ID != l.active.ID {
			log.Info("session_switched", map[string]interface{}{"from": l.active.ID, "to": res.Session.ID})
		}
		l.active = res.Session
	}
}

func (l *Loop) prompt() string {
	if l.active.IsSubAgent() {
		return color.MagentaString("[sub:%s]", domain.Deref(l.active.SubAgentID)) + " agentsh> "
	}
	return "agentsh> "
}

func (l *Loop) farewell() {
	l.out.Println("Goodbye!")
}

// inputLine is one line of input. A line longer than maxLineSize is
// dropped and delivered with tooLong set.
type inputLine struct {
	text    string
	tooLong bool
}

// readLines feeds input lines to a channel so the prompt can also wait on
// ctx. The channel closes at end of input; errs then yields the read error,
// or nil.
func (l *Loop) readLines(ctx context.Context) (<-chan inputLine, <-chan error) {
	lines := make(chan inputLine)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(lines)
		r := bufio.NewReaderSize(l.in, 64*1024)
		for {
			line, err := readLine(r)
			if line != nil {
				select {
				case lines <- *line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- err
				}
				return
			}
		}
	}()
	return lines, errs
}

// readLine reads up to the next newline. Content past maxLineSize is
// discarded. A nil line means nothing was read before err.
func readLine(r *bufio.Reader) (*inputLine, error) {
	var buf []byte
	read := false
	tooLong := false
	for {
		frag, isPrefix, err := r.ReadLine()
		if err != nil {
			if !read {
				return nil, err
			}
			return finish(buf, tooLong), err
		}
		read = true
		if !tooLong {
			if len(buf)+len(frag) > maxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return finish(buf, tooLong), nil
		}
	}
}

func finish(buf []byte, tooLong bool) *inputLine {
	if tooLong {
		return &inputLine{tooLong: true}
	}
	return &inputLine{text: string(buf)}
}
