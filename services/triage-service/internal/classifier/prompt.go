package classifier

import (
	"fmt"
	"strings"

	"github.com/stoik/triage/services/triage-service/internal/textutil"
)

// MaxBodyChars bounds the body embedded in the prompt
const MaxBodyChars = 3000

// BuildPrompt renders the instruction block for the given tag set
func BuildPrompt(tags []Tag) string {
	var descriptions, examples strings.Builder
	names := make([]string, 0, len(tags))

	for i, tag := range tags {
		names = append(names, tag.Name)
		fmt.Fprintf(&descriptions, "- **%s**: %s\n", tag.Name, strings.TrimSpace(tag.Description))

		if i > 0 {
			examples.WriteString("\n")
		}
		fmt.Fprintf(&examples, "**%s** examples:\n", strings.ToUpper(tag.Name))
		for _, ex := range tag.Examples {
			fmt.Fprintf(&examples, "  - %q\n", ex)
		}
	}

	return fmt.Sprintf(`You are an email classification assistant for student support.
Your task is to classify incoming emails into one of the following categories:

%s
Here are examples for each category:

%s
IMPORTANT - HANDLING EMAIL THREADS:
- The email body may contain a conversation thread with previous messages (quoted replies, forwarded content, etc.)
- You must ONLY classify based on the MOST RECENT/NEWEST message (typically at the top)
- Use the conversation history ONLY as context to better understand the current request
- Do NOT classify based on older messages in the thread
- Look for indicators like "On [date], [person] wrote:", "From:", "-----Original Message-----", or ">" quote markers to identify older messages

INSTRUCTIONS:
1. Identify the MOST RECENT message in the email (ignore quoted/forwarded older content)
2. Read the subject and the latest message carefully
3. Determine the PRIMARY intent of the latest message only
4. Select the SINGLE most appropriate category
5. Provide a confidence score (0.0 to 1.0)
6. Give a brief reason for your classification

RESPOND IN EXACTLY THIS JSON FORMAT (no markdown, no code blocks):
{"classification": "<tag_name>", "confidence": <0.0-1.0>, "reason": "<brief explanation>"}

Valid tags: %s

If the email is ambiguous, choose the category that best matches the main request.
If truly unclear, use %q with lower confidence.`,
		descriptions.String(), examples.String(), strings.Join(names, ", "), FallbackTag)
}

func userPrompt(subject, body string) string {
	return fmt.Sprintf("Please classify the following email:\n\nSUBJECT: %s\n\nBODY:\n%s",
		subject, textutil.Truncate(body, MaxBodyChars))
}
