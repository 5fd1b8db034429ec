package distill

import "github.com/poiesic/mentorit/core"

const anonymizePrompt = `You anonymize interview and podcast transcripts.

Rewrite the transcript you are given so that no private person can be identified:
- Replace personal names with neutral roles ("the host", "the guest", "a friend", "their daughter").
- Remove or generalize street addresses, phone numbers, email addresses, employers and small towns.
- Keep public figures, book titles and widely known organizations as they are.
- Keep everything else verbatim. Do not summarize, shorten or comment.

Return only the rewritten transcript.`

const strictAnonymizePrompt = `You anonymize transcripts and a previous pass left identifying details behind.

Rewrite the text so that NO individual can be identified:
- Replace every personal name, nickname or initial with a neutral role, including names of public figures mentioned in a personal context.
- Remove every location more specific than a country, every employer, school, date of birth, and contact detail.
- When in doubt, generalize.
- Keep the meaning and wording of everything else.

Return only the rewritten text.`

const verifyPrompt = `You check anonymized text for leaks.

Does the text below still contain any personally identifying information about a private individual, such as a personal name, address, phone number, email address or employer?

Answer with exactly one word: yes or no.`

const chunkSchema = `Return a JSON array. Each element is an object with these keys:
- "text": the knowledge unit, 20 to 1400 characters, self-contained and understandable without the transcript
- "content_type": one of "explanation", "advice", "story", "warning", "reframe"
- "topic": a short topic label
- "tone": one or two words describing the delivery (optional)
- "confidence": one of "soft", "direct", "authoritative"
- "voice_origin": "native" if the idea is the speaker's own, "attributed" if they credit someone else
- "attribution": who the idea is credited to, only when voice_origin is "attributed"

Return only the JSON array, with no commentary before or after it.`

const plainChunkPrompt = `You distill anonymized transcripts into standalone knowledge units.

Read the transcript and extract every distinct insight, piece of advice, story or warning worth remembering. Write each unit in neutral third-person prose. Skip small talk, sponsor reads and housekeeping.

` + chunkSchema

const mentorChunkPrompt = `You distill anonymized transcripts into the voice of the mentor who is speaking.

Read the transcript and extract every distinct insight, piece of advice, story or warning the mentor shares. Rewrite each unit in the mentor's own first-person voice, as if they were saying it directly to the listener, keeping their phrasing and temperament. Skip small talk, sponsor reads and the host's questions.

` + chunkSchema

func chunkPrompt(mode core.Mode) string {
	if mode == core.ModeMentorVoice {
		return mentorChunkPrompt
	}
	return plainChunkPrompt
}
