package mmi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/btharness/internal/pandora"
	"github.com/srg/btharness/internal/textdiff"
)

// Answers understood by PTS.
const (
	OK  = "OK"
	Yes = "Yes"
	No  = "No"
)

var (
	// ErrUnimplemented is returned for prompts no handler is registered for.
	ErrUnimplemented = errors.New("mmi: unimplemented")
	// ErrDescriptionMismatch is returned when a prompt text does not match its handler.
	ErrDescriptionMismatch = errors.New("mmi: description mismatch")
)

// Interaction is one prompt received from PTS.
type Interaction struct {
	Profile     string
	Test        string
	ID          string // MMI name, or the numeric id of an anonymous prompt
	Description string
	PTSAddress  pandora.Address
}

// Args are the named groups captured from a matched description.
type Args map[string]string

// Uint parses the named argument as an unsigned integer. Hex arguments may carry a 0x prefix.
func (a Args) Uint(name string, base int) (uint32, error) {
	v, ok := a[name]
	if !ok {
		return 0, fmt.Errorf("mmi: missing argument %q", name)
	}
	digits := v
	if base == 16 {
		digits = strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("mmi: argument %s=%q: %w", name, v, err)
	}
	return uint32(n), nil
}

// Handler answers one prompt.
type Handler func(ctx context.Context, in Interaction, args Args) (string, error)

type handler struct {
	description string
	pattern     *regexp.Regexp // nil for exact descriptions
	fn          Handler
}

// DescriptionMismatchError carries a diff between the registered and received text.
type DescriptionMismatchError struct {
	Profile string
	ID      string
	Diff    string
}

func (e *DescriptionMismatchError) Error() string {
	return fmt.Sprintf("%s %s: description mismatch:\n%s", e.Profile, e.ID, e.Diff)
}

func (e *DescriptionMismatchError) Is(target error) bool {
	return target == ErrDescriptionMismatch
}

// Proxy routes the prompts of one profile to their handlers.
type Proxy struct {
	name     string
	handlers *orderedmap.OrderedMap[string, *handler]
	differ   *textdiff.Differ
	logger   *logrus.Entry

	onTestStarted func(ctx context.Context, in Interaction) (string, error)
	onClose       func() error
}

// NewProxy creates an empty proxy for profile.
func NewProxy(profile string, logger *logrus.Logger) *Proxy {
	if logger == nil {
		logger = logrus.New()
	}
	return &Proxy{
		name:     profile,
		handlers: orderedmap.New[string, *handler](),
		differ: textdiff.New(
			textdiff.WithTrimSpace(true),
			textdiff.WithIgnoreLeadingWhitespace(true),
			textdiff.WithIgnoreTrailingWhitespace(true),
			textdiff.WithIgnoreEmptyLines(true),
			textdiff.WithLabels("registered", "received"),
		),
		logger: logger.WithField("profile", profile),
	}
}

// Name returns the profile name.
func (p *Proxy) Name() string { return p.name }

// Log returns the proxy logger.
func (p *Proxy) Log() *logrus.Entry { return p.logger }

// Normalize collapses every run of whitespace to one space.
func Normalize(description string) string {
	return strings.Join(strings.Fields(description), " ")
}

// AssertDescription registers fn for prompts whose text equals description
// after whitespace normalization.
func (p *Proxy) AssertDescription(id, description string, fn Handler) {
	p.register(id, &handler{description: description, fn: fn})
}

// MatchDescription registers fn for prompts whose normalized text fully matches
// the normalized pattern. Named groups are passed to fn as Args.
func (p *Proxy) MatchDescription(id, pattern string, fn Handler) {
	re := regexp.MustCompile(`(?s)^(?:` + Normalize(pattern) + `)$`)
	p.register(id, &handler{description: pattern, pattern: re, fn: fn})
}

func (p *Proxy) register(id string, h *handler) {
	if _, exists := p.handlers.Get(id); exists {
		panic(fmt.Sprintf("mmi: %s handler %s registered twice", p.name, id))
	}
	p.handlers.Set(id, h)
}

// OnTestStarted sets the hook run when PTS starts a test of this profile.
func (p *Proxy) OnTestStarted(fn func(ctx context.Context, in Interaction) (string, error)) {
	p.onTestStarted = fn
}

// OnClose sets the hook run when the proxy is discarded.
func (p *Proxy) OnClose(fn func() error) {
	p.onClose = fn
}

// Handlers lists the registered prompt names in registration order.
func (p *Proxy) Handlers() []string {
	names := make([]string, 0, p.handlers.Len())
	for pair := p.handlers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// handlerName maps numeric prompt ids to their anonymous handler name.
func handlerName(id string) string {
	if _, err := strconv.Atoi(id); err == nil {
		return "_mmi_" + id
	}
	return id
}

// TestStarted runs the test-started hook; "OK" when none is set.
func (p *Proxy) TestStarted(ctx context.Context, in Interaction) (string, error) {
	if p.onTestStarted == nil {
		return OK, nil
	}
	return p.onTestStarted(ctx, in)
}

// Interact answers one prompt.
func (p *Proxy) Interact(ctx context.Context, in Interaction) (answer string, err error) {
	name := handlerName(in.ID)
	h, ok := p.handlers.Get(name)
	if !ok {
		return "", fmt.Errorf("%s %s: %w", p.name, name, ErrUnimplemented)
	}

	args, err := p.match(name, h, in.Description)
	if err != nil {
		return "", err
	}

	log := p.logger.WithFields(logrus.Fields{"test": in.Test, "mmi": name})
	log.Debug("Handling prompt")

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Error("Prompt handler panicked")
			err = fmt.Errorf("%s %s: handler panic: %v", p.name, name, r)
		}
	}()

	answer, err = h.fn(ctx, in, args)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", p.name, name, err)
	}
	log.WithField("answer", answer).Debug("Prompt answered")
	return answer, nil
}

func (p *Proxy) match(name string, h *handler, description string) (Args, error) {
	got := Normalize(description)
	if h.pattern == nil {
		if got == Normalize(h.description) {
			return Args{}, nil
		}
		return nil, &DescriptionMismatchError{Profile: p.name, ID: name, Diff: p.differ.Diff(h.description, description)}
	}

	m := h.pattern.FindStringSubmatch(got)
	if m == nil {
		return nil, &DescriptionMismatchError{Profile: p.name, ID: name, Diff: p.differ.Diff(h.description, description)}
	}
	args := Args{}
	for i, group := range h.pattern.SubexpNames() {
		if group != "" {
			args[group] = m[i]
		}
	}
	return args, nil
}

// Close runs the close hook.
func (p *Proxy) Close() error {
	if p.onClose == nil {
		return nil
	}
	return p.onClose()
}
