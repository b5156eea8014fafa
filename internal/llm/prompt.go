package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// DefaultInstructions is the system prompt used when no prompt file
// overrides it.
const DefaultInstructions = `Extract structured information from movie-related queries for a cinema assistant.
Return ONLY a JSON object with these possible fields (include a field only if it is mentioned or clearly implied by the conversation):
- intent: one of [movie_review, showtimes, cinema_location, book_tickets, general]
- movie_name: exact movie name if mentioned
- city: city name if mentioned
- locality: specific area/locality/neighborhood if mentioned (e.g., Koramangala, JP Nagar, Church Street)
- cinema_name: theater or cinema chain if mentioned (e.g., PVR, INOX)
- date: show date as YYYY-MM-DD; resolve words like "today" or "tomorrow" against the current date
- time: show time as HH:MM in 24 hour format
- num_tickets: number of tickets as an integer
- language: movie language if mentioned
- genre: movie genre if mentioned
- time_context: one of [currently_playing, evening, tomorrow, this_week]

Use the conversation so far to fill in fields the user refers to indirectly, e.g. "book 2 for the 5:30 show" after asking about Dune at PVR.
Questions about ratings, reviews, plot or cast are movie_review. Anything else about movies is general.`

var defaultExamples = []config.PromptExample{
	{Input: "movies playing in koramangala", Output: `{"intent": "showtimes", "locality": "koramangala", "time_context": "currently_playing"}`},
	{Input: "theatres in JP Nagar bangalore", Output: `{"intent": "cinema_location", "city": "bangalore", "locality": "JP Nagar"}`},
	{Input: "showtimes for singham again in indiranagar", Output: `{"intent": "showtimes", "movie_name": "singham again", "locality": "indiranagar"}`},
	{Input: "how good is dune part two", Output: `{"intent": "movie_review", "movie_name": "dune part two"}`},
	{Input: "book 2 tickets for Dune at PVR at 17:30", Output: `{"intent": "book_tickets", "movie_name": "Dune", "cinema_name": "PVR", "time": "17:30", "num_tickets": 2}`},
	{Input: "any good thrillers this week", Output: `{"intent": "showtimes", "genre": "thriller", "time_context": "this_week"}`},
}

// buildInstructions renders the system prompt with its examples and the
// current date.
func buildInstructions(base string, examples []config.PromptExample, today time.Time) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultInstructions
	}
	if len(examples) == 0 {
		examples = defaultExamples
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nExamples:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "%q ->\n%s\n\n", ex.Input, ex.Output)
	}
	fmt.Fprintf(&b, "Current date: %s (%s).", today.Format("2006-01-02"), today.Weekday())
	return b.String()
}

// newTemplate returns the chat template.  Instructions and user input are
// passed as variables so braces in them are never read as placeholders.
func newTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage("{instructions}"),
		schema.UserMessage("{input_text}"),
	)
}

// formatInput renders the history window and the message to classify.
func formatInput(text string, history []model.Turn) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, t := range history {
		label := "User"
		if t.Role == model.RoleBot {
			label = "Bot"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Content)
	}
	b.WriteString("</conversation_context>\n\n")
	fmt.Fprintf(&b, "<current_message_to_analyze>\n%s\n</current_message_to_analyze>", text)
	return b.String()
}
