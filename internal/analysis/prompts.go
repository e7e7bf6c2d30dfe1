package analysis

const summarySystemPrompt = `You are a meeting assistant keeping a running summary of a live meeting.
The meeting objective is: %s
The assistant message holds the summary so far. Rewrite it to include the new transcript excerpt from the user.
Keep decisions, owners and open issues. Be concise. Reply with the updated summary only.`

const summaryUserPrompt = `New transcript excerpt:
%s`

const summaryPolishSystemPrompt = `You are a meeting assistant writing the final summary of a meeting.
The meeting objective is: %s
The assistant message holds the running summary written during the meeting. Use the full transcript from the user to correct and complete it.
Reply with the final summary only.`

const summaryPolishUserPrompt = `Full transcript:
%s`

const listSystemPrompt = `You are a meeting assistant tracking %s in a live meeting.
The meeting objective is: %s
The assistant message lists the %s found so far. From the new transcript excerpt, reply with only NEW %s, one per line starting with "- ".
Reply with "NONE" when there is nothing new.`

const listPolishSystemPrompt = `You are a meeting assistant finalizing the %s of a meeting.
The meeting objective is: %s
The assistant message lists the %s collected during the meeting. Using the full transcript from the user, merge duplicates, drop anything wrong and add anything missed.
Reply with the final list, one per line starting with "- ".`

// listKinds describes each list analyzer: the noun used in prompts and
// the label used by the offline fold.
var listKinds = map[string]struct{ noun, label string }{
	Themes:      {"themes", "Theme"},
	Insights:    {"insights", "Insight"},
	Questions:   {"open questions", "Question"},
	ActionItems: {"action items, with owners and due dates when stated", "Action"},
}

const runningSummaryHeader = "Running Summary:\n"
