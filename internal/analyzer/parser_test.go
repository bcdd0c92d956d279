package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSelector_OutputLine(t *testing.T) {
	text := "分析結果如下。\n\noutput:document.querySelector('.cart__subtotal')"
	got := ExtractSelector(text)
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('.cart__subtotal')", *got)
}

func TestExtractSelector_LastOutputWins(t *testing.T) {
	text := "output:document.querySelector('.wrong')\n再想一下...\noutput:document.querySelector('.right')"
	got := ExtractSelector(text)
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('.right')", *got)
}

func TestExtractSelector_TrimsWhitespace(t *testing.T) {
	got := ExtractSelector("output:   document.querySelector('#subtotal')  ")
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('#subtotal')", *got)
}

func TestExtractSelector_FallbackExpression(t *testing.T) {
	text := "建議使用 document.querySelector('.totals .money') 來取得小計。"
	got := ExtractSelector(text)
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('.totals .money')", *got)
}

func TestExtractSelector_FallbackLastWins(t *testing.T) {
	text := "可以用 document.querySelector('.a')，但 document.querySelector('.b') 更穩。"
	got := ExtractSelector(text)
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('.b')", *got)
}

func TestExtractSelector_NoMatch(t *testing.T) {
	assert.Nil(t, ExtractSelector("找不到小計元素。"))
	assert.Nil(t, ExtractSelector(""))
}

func TestExtractSelector_OutputPrefersOverFallback(t *testing.T) {
	text := "先試 document.querySelector('.early')\noutput:document.querySelector('.final')"
	got := ExtractSelector(text)
	require.NotNil(t, got)
	assert.Equal(t, "document.querySelector('.final')", *got)
}
