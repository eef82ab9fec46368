package agent

import "strings"

const defaultSystemPrompt = `You are a voice journal assistant with calendar access. Be brief and natural.
- Max 2-3 sentences
- Use journal entries and calendar events as context
- For calendar queries, mention specific events and times
- Maintain conversation flow`

const summarySystemPrompt = `You summarize a person's journal entries for them, speaking directly to them. Be brief and warm.
- Max 3 sentences
- Mention recurring themes and notable moments
- Do not invent anything that is not in the entries`

// User-facing replies.
const (
	replyLogged          = "Got it! I've saved your note. Anything else?"
	replyLogClarify      = "I didn't catch what you wanted to log. What would you like to note down?"
	replySaveFailed      = "Sorry, I had trouble saving that. Could you try again?"
	replyApology         = "I'm having trouble thinking right now. Could you try again?"
	replyUnknown         = "Sorry, I'm not sure what you meant. You can log a note, ask about your journal, or say \"help\"."
	replyNothingPending  = "There's nothing to confirm right now."
	replyWhichEntry      = "Which entry should I delete? Ask me about it first, or tell me its number."
	replyEntryNotFound   = "I couldn't find that entry."
	replyJournalEmpty    = "Your journal is already empty."
	replyNoEntriesPeriod = "I couldn't find any entries from that period."
	confirmSuffix        = " Say \"confirm delete\" to go ahead."
)

const helpText = `I can help you keep a voice journal.
- Log a note: "note this: finished the report" or "remember to call mom"
- Ask about past entries: "what did I say about my trip?"
- Check your calendar: "what's on my schedule tomorrow?"
- Summarize: "summarize my week"
- Delete: "delete that", "delete entries from yesterday" or "delete all my entries", then "confirm delete"`

// buildPrompt joins the non-empty context sections ahead of the user's query.
func buildPrompt(conversation, calendarCtx, journal, query string) string {
	parts := make([]string, 0, 4)
	if conversation = strings.TrimSpace(conversation); conversation != "" {
		parts = append(parts, "Chat history:\n"+conversation)
	}
	if calendarCtx = strings.TrimSpace(calendarCtx); calendarCtx != "" {
		parts = append(parts, "Calendar:\n"+calendarCtx)
	}
	if journal = strings.TrimSpace(journal); journal != "" {
		parts = append(parts, "Journal:\n"+journal)
	}
	parts = append(parts, "User: "+strings.TrimSpace(query))
	return strings.Join(parts, "\n\n")
}

func buildSummaryPrompt(entries, request string) string {
	return "Journal entries:\n" + entries + "\n\nUser: " + strings.TrimSpace(request)
}
