package replui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/lexer"
)

func TestIsBalancedSimpleCases(t *testing.T) {
	require.True(t, isBalanced(`print 1;`))
	require.True(t, isBalanced(`fn f() { return 1; }`))
	require.True(t, isBalanced(`[1, 2, {"a": 1}]`))

	require.False(t, isBalanced(`fn f() {`))
	require.False(t, isBalanced(`[1, 2`))
	require.False(t, isBalanced(`)`))
}

func TestIsBalancedRejectsMismatchedBrackets(t *testing.T) {
	require.False(t, isBalanced(`(]`))
	require.False(t, isBalanced(`{)`))
}

func TestModelApplyStyleRespectsNoColor(t *testing.T) {
	m := model{options: Options{NoColor: true}}
	require.Equal(t, "plain", m.applyStyle(keywordStyle, "plain"))

	m = model{options: Options{NoColor: false}}
	styled := m.applyStyle(keywordStyle, "fn")
	require.Contains(t, styled, "fn")
}

func TestStyleForClassifiesTokenKinds(t *testing.T) {
	require.Equal(t, keywordStyle, styleFor(lexer.Token{Type: lexer.TokenFn}))
	require.Equal(t, stringStyle, styleFor(lexer.Token{Type: lexer.TokenString}))
	require.Equal(t, numberStyle, styleFor(lexer.Token{Type: lexer.TokenNumber}))
	require.Equal(t, operatorStyle, styleFor(lexer.Token{Type: lexer.TokenPlus}))
	require.Equal(t, identifierStyle, styleFor(lexer.Token{Type: lexer.TokenIdentifier}))
}

func TestHighlightNoColorReturnsLineVerbatim(t *testing.T) {
	m := model{options: Options{NoColor: true}}
	require.Equal(t, `let x = 1;`, m.highlight(`let x = 1;`))
}

func TestHighlightEmptyLine(t *testing.T) {
	m := model{options: Options{NoColor: false}}
	require.Equal(t, "", m.highlight(""))
}
