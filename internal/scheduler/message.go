package scheduler

import (
	"fmt"
	"strings"
)

// Fixed notifications.
const (
	CompletionMessage = "🎉 *Congratulations!* You've completed all the practice questions. Keep up the great work! 🎉"
	LoadErrorMessage  = "❗ *Error:* Questions data not found or failed to load."
	NotStartedMessage = "🔔 *DSA Notifier:* No questions to send today."

	messageHeader = "*Today's DSA Practice Questions:* 📚\n"
)

// TextEscaper is implemented by senders whose markup needs user text escaped.
type TextEscaper interface {
	EscapeText(text string) string
}

// RenderMessage formats a batch for posting. An empty batch renders as the
// completion message.
func RenderMessage(items []BatchItem) string {
	return RenderMessageWith(items, nil)
}

// RenderMessageWith is RenderMessage with question, topic and category passed
// through escape first. A nil escape leaves them as they are.
func RenderMessageWith(items []BatchItem, escape func(string) string) string {
	if escape == nil {
		escape = func(s string) string { return s }
	}
	if len(items) == 0 {
		return CompletionMessage
	}

	var b strings.Builder
	b.WriteString(messageHeader)
	for _, item := range items {
		q := item.Question
		fmt.Fprintf(&b, "\n• *Question %d:* %s\n  _Topic:_ %s | _Category:_ %s\n",
			item.Number, escape(q.Question), escape(q.Topic), escape(q.Category))
	}
	return b.String()
}
