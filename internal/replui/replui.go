// Package replui implements Laythe's interactive REPL as a bubbletea
// program, grounded directly on dr8co-kong/repl's Monke REPL: the same
// textinput+spinner model shape, the same async-evaluation-via-tea.Cmd
// pattern, the same bracket-balance heuristic for multiline input, and
// lipgloss styles for prompt/result/error rendering.
//
// It departs from that model in the one place Laythe's architecture
// forces a difference: there is no persistent environment value to
// carry between evaluations, because Laythe's state lives in a VM plus
// a GC heap (spec.md §5) rather than an evaluator's variable bindings,
// so the model holds a *vm.VM and *heap.Heap that every evaluation
// reuses in place of dr8co-kong's *object.Environment.
package replui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kristofer/laythe/pkg/compiler"
	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/lexer"
	"github.com/kristofer/laythe/pkg/vm"
)

const (
	Prompt     = "laythe> "
	ContPrompt = "   ...> "
)

// Options configures the REPL's display.
type Options struct {
	NoColor bool
	Debug   bool
}

// Run starts the REPL and blocks until the user exits.
func Run(options Options) error {
	p := tea.NewProgram(initialModel(options))
	_, err := p.Run()
	return err
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#5F5FD7")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5FD7")).Bold(true)
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))

	keywordStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6")).Bold(true)
	stringStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	numberStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C"))
	operatorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	identifierStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F8F8F2"))
)

type evalResultMsg struct {
	output  string
	isError bool
	elapsed time.Duration
}

type historyEntry struct {
	input   string
	output  string
	isError bool
	elapsed time.Duration
}

type model struct {
	textInput textinput.Model
	spinner   spinner.Model
	history   []historyEntry
	options   Options

	machine *vm.VM
	objects *heap.Heap

	evaluating      bool
	currentInput    string
	multilineBuffer string
	isMultiline     bool
}

func initialModel(options Options) model {
	ti := textinput.New()
	ti.Placeholder = "enter Laythe code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = Prompt

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	h := heap.NewHeap(2.0)
	return model{
		textInput: ti,
		spinner:   s,
		options:   options,
		machine:   vm.New(h),
		objects:   h,
	}
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced reports whether parens/braces/brackets balance, the same
// heuristic dr8co-kong's REPL uses to decide whether to keep reading.
func isBalanced(input string) bool {
	var stack []rune
	for _, ch := range input {
		switch ch {
		case '(', '{', '[':
			stack = append(stack, ch)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

func evalCmd(input string, machine *vm.VM, h *heap.Heap, debug bool) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		fn, errs := compiler.Compile(input, h)
		if len(errs) > 0 {
			var b strings.Builder
			b.WriteString("compile error:")
			for _, e := range errs {
				fmt.Fprintf(&b, "\n  line %d: %s", e.Line, e.Message)
			}
			return evalResultMsg{output: b.String(), isError: true, elapsed: time.Since(start)}
		}

		var out strings.Builder
		machine.Stdout = &out
		_, err := machine.Interpret(fn)
		elapsed := time.Since(start)
		if err != nil {
			return evalResultMsg{output: "runtime error: " + err.Error(), isError: true, elapsed: elapsed}
		}

		result := out.String()
		if result == "" {
			result = "nil"
		}
		return evalResultMsg{output: strings.TrimRight(result, "\n"), elapsed: elapsed}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		m.evaluating = false
		m.history = append(m.history, historyEntry{
			input:   m.currentInput,
			output:  msg.output,
			isError: msg.isError,
			elapsed: msg.elapsed,
		})
		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	if m.evaluating {
		return m, m.spinner.Tick
	}
	return m, cmd
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	input := m.textInput.Value()

	if input == "" {
		if m.isMultiline && m.multilineBuffer != "" {
			return m.startEval(m.multilineBuffer)
		}
		m.isMultiline = false
		return m, nil
	}

	if m.isMultiline {
		m.multilineBuffer += "\n" + input
		m.textInput.SetValue("")
		if isBalanced(m.multilineBuffer) {
			return m.startEval(m.multilineBuffer)
		}
		return m, nil
	}

	if !isBalanced(input) {
		m.isMultiline = true
		m.multilineBuffer = input
		m.textInput.SetValue("")
		return m, nil
	}

	return m.startEval(input)
}

func (m model) startEval(buffer string) (tea.Model, tea.Cmd) {
	m.evaluating = true
	m.currentInput = buffer
	m.textInput.SetValue("")
	m.isMultiline = false
	m.multilineBuffer = ""
	return m, evalCmd(buffer, m.machine, m.objects, m.options.Debug)
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " Laythe REPL "))
	s.WriteString("\n\n")

	for _, entry := range m.history {
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlight(line))
			s.WriteString("\n")
		}

		if entry.isError {
			s.WriteString(m.applyStyle(errorStyle, entry.output))
		} else {
			s.WriteString(m.applyStyle(resultStyle, entry.output))
		}
		if entry.elapsed > 10*time.Millisecond {
			s.WriteString(m.applyStyle(timeStyle, fmt.Sprintf(" (%.2fs)", entry.elapsed.Seconds())))
		}
		s.WriteString("\n\n")
	}

	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.highlight(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" evaluating...\n\n")
	}

	if m.isMultiline && !m.evaluating {
		s.WriteString(m.applyStyle(timeStyle, "(multiline: blank line to run)\n"))
		s.WriteString(m.highlight(m.multilineBuffer))
		s.WriteString("\n")
	}

	if !m.evaluating {
		if m.isMultiline {
			m.textInput.Prompt = m.applyStyle(promptStyle, ContPrompt)
		} else {
			m.textInput.Prompt = m.applyStyle(promptStyle, Prompt)
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	s.WriteString(m.applyStyle(helpStyle, "\nesc/ctrl+c to exit"))
	return s.String()
}

// highlight applies token-level syntax coloring by re-lexing line with
// pkg/lexer — the same idea as dr8co-kong's highlightCode, simplified to
// per-token coloring without its reflow/indentation pass since Laythe's
// REPL echoes input verbatim rather than reformatting it.
func (m model) highlight(line string) string {
	if m.options.NoColor || line == "" {
		return line
	}
	l := lexer.New(line)
	var b strings.Builder
	for {
		tok := l.Next()
		if tok.Type == lexer.TokenEOF {
			break
		}
		b.WriteString(styleFor(tok).Render(tok.Lexeme))
	}
	return b.String()
}

func styleFor(tok lexer.Token) lipgloss.Style {
	switch tok.Type {
	case lexer.TokenClass, lexer.TokenFn, lexer.TokenIf, lexer.TokenElse,
		lexer.TokenFor, lexer.TokenWhile, lexer.TokenReturn, lexer.TokenLet,
		lexer.TokenTrue, lexer.TokenFalse, lexer.TokenNil, lexer.TokenSuper,
		lexer.TokenSelf, lexer.TokenThis, lexer.TokenIn, lexer.TokenAnd,
		lexer.TokenOr, lexer.TokenPrint:
		return keywordStyle
	case lexer.TokenString, lexer.TokenChar:
		return stringStyle
	case lexer.TokenNumber:
		return numberStyle
	case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenStar, lexer.TokenSlash,
		lexer.TokenPercent, lexer.TokenBang, lexer.TokenBangEqual, lexer.TokenEqual,
		lexer.TokenEqualEqual, lexer.TokenGreater, lexer.TokenGreaterEqual,
		lexer.TokenLess, lexer.TokenLessEqual:
		return operatorStyle
	case lexer.TokenIdentifier:
		return identifierStyle
	default:
		return lipgloss.NewStyle()
	}
}
