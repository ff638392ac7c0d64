package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPunctuatorsAndOperators(t *testing.T) {
	input := `( ) { } [ ] , . - + ; / * % : | ! != = == > >= < <=`

	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenComma, TokenDot,
		TokenMinus, TokenPlus, TokenSemicolon, TokenSlash, TokenStar,
		TokenPercent, TokenColon, TokenPipe, TokenBang, TokenBangEqual,
		TokenEqual, TokenEqualEqual, TokenGreater, TokenGreaterEqual,
		TokenLess, TokenLessEqual, TokenEOF,
	}

	l := New(input)
	for i, wt := range want {
		tok := l.Next()
		require.Equalf(t, wt, tok.Type, "token %d (%q)", i, tok.Lexeme)
	}
}

func TestNextKeywords(t *testing.T) {
	input := "class fn if else for while return let true false nil super self this in and or print"
	want := []TokenType{
		TokenClass, TokenFn, TokenIf, TokenElse, TokenFor, TokenWhile,
		TokenReturn, TokenLet, TokenTrue, TokenFalse, TokenNil, TokenSuper,
		TokenSelf, TokenThis, TokenIn, TokenAnd, TokenOr, TokenPrint, TokenEOF,
	}

	l := New(input)
	for i, wt := range want {
		tok := l.Next()
		require.Equalf(t, wt, tok.Type, "token %d (%q)", i, tok.Lexeme)
	}
}

func TestNextIdentifierIsNotKeyword(t *testing.T) {
	l := New("classroom")
	tok := l.Next()
	require.Equal(t, TokenIdentifier, tok.Type)
	require.Equal(t, "classroom", tok.Lexeme)
}

func TestNextNumber(t *testing.T) {
	l := New("42 3.14")
	tok := l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "42", tok.Lexeme)

	tok = l.Next()
	require.Equal(t, TokenNumber, tok.Type)
	require.Equal(t, "3.14", tok.Lexeme)
}

func TestNextString(t *testing.T) {
	l := New(`"hello\nworld"`)
	tok := l.Next()
	require.Equal(t, TokenString, tok.Type)
	require.Contains(t, tok.Lexeme, "hello")
}

func TestNextUnterminatedStringIsError(t *testing.T) {
	l := New(`"oops`)
	tok := l.Next()
	require.Equal(t, TokenError, tok.Type)
	require.NotEmpty(t, tok.Message)
}

func TestNextSkipsCommentsAndWhitespace(t *testing.T) {
	l := New("// a comment\n  \t let x")
	tok := l.Next()
	require.Equal(t, TokenLet, tok.Type)
	require.Equal(t, 2, tok.Line)
}

func TestNextTracksLineNumbers(t *testing.T) {
	l := New("let\na\n=\n1")
	var lines []int
	for {
		tok := l.Next()
		if tok.Type == TokenEOF {
			break
		}
		lines = append(lines, tok.Line)
	}
	require.Equal(t, []int{1, 2, 3, 4}, lines)
}
