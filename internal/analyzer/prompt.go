package analyzer

import (
	"fmt"
	"strings"

	"github.com/shoplens/cartdetect/internal/model"
)

// Prompts are written in Traditional Chinese to match the product UI.
// The output: sentinel line is load-bearing: the parser extracts the
// selector from it, so every prompt must demand it verbatim.

// SubtotalSystemPrompt primes a model to answer the fan-out question.
const SubtotalSystemPrompt = "你是一位專業的 HTML 分析專家，擅長分析網頁結構並找出特定元素。" +
	"請分析提供的 HTML 代碼，找出購物車小計(subtotal)元素，並給出準確的 querySelector。" +
	"請盡量給出準確的結果，而不是基於html結構的選擇器。" +
	"請在回答的最後加上一行純文字：output:document.querySelector('你認為最合適的選擇器')"

const ConsensusSystemPrompt = "你是一位專業的 HTML 分析專家，擅長分析網頁結構並找出特定元素。" +
	"你的任務是綜合分析多個 AI 模型對同一問題的回答，找出最合理的解決方案。"

const noValidAnswer = "無法解析出有效答案"

// subtotalUserPrompt wraps the simplified HTML for the fan-out question.
func subtotalUserPrompt(simplifiedHTML string) string {
	return "分析以下 Shopify 購物車 HTML，判斷 subtotal element 有可能是哪個，給出 querySelector：\n```html\n" +
		simplifiedHTML + "\n```"
}

// consensusUserPrompt lays out every model's answer plus the HTML for the
// arbiter to weigh.
func consensusUserPrompt(answers []model.ParsedAnswer, html string) string {
	var b strings.Builder
	b.WriteString("我有多個 AI 模型對同一個問題的回答，請幫我綜合分析這些回答，找出最合理的解決方案。\n")
	b.WriteString("問題是：分析 Shopify 購物車 HTML，判斷 subtotal element 有可能是哪個，給出 querySelector。\n\n")
	b.WriteString("以下是各個模型的回答：\n")

	blocks := make([]string, 0, len(answers))
	for _, a := range answers {
		name := a.ModelDisplayName
		if name == "" {
			name = a.ModelID
		}
		answer := noValidAnswer
		if a.Selector != nil {
			answer = *a.Selector
		}
		blocks = append(blocks, fmt.Sprintf("模型 %s：%s", name, answer))
	}
	b.WriteString(strings.Join(blocks, "\n\n"))

	b.WriteString("\n\n以下是 HTML 內容：\n")
	b.WriteString(html)
	b.WriteString("\n\n請綜合分析這些回答，給出：\n")
	b.WriteString("1. 最可能正確的 querySelector 選擇器\n")
	b.WriteString("2. 為什麼你認為這個選擇器是最合適的\n")
	b.WriteString("3. 如果有多個可能的選擇器，請列出並說明各自的優缺點\n\n")
	b.WriteString("請在回答的最後加上一行純文字：output:document.querySelector('你認為最合適的選擇器')")
	return b.String()
}
