package script

import (
	"fmt"
	"strings"

	"gridlock/internal/store"
)

const systemPrompt = `You are the head writer of a satirical animated show about Formula 1.
Each episode is a sequence of short talking-head scenes delivered by caricatured
paddock personalities. Scenes are punchy, self-contained, and written for a
five-second clip: one character, one line of dialogue, one visual gag.

Respond with JSON only, no surrounding prose, using this shape:
{
  "title": "episode title",
  "description": "one-paragraph episode description",
  "scenes": [
    {
      "scene_number": 1,
      "character": "character name exactly as given in the roster",
      "dialogue": "what the character says, one or two short sentences",
      "action": "what the character is doing on screen",
      "audio": "ambient sound and delivery notes"
    }
  ]
}`

// buildUserPrompt assembles the episode brief: what happened, who is
// available, and how many scenes to write.
func buildUserPrompt(ep *store.Episode, race *store.Race, roster []*store.Character, sceneCount int) string {
	var b strings.Builder

	switch {
	case race != nil:
		fmt.Fprintf(&b, "Write a %s episode about the %s", ep.EpisodeType, race.RaceName)
		if race.CircuitName != "" {
			fmt.Fprintf(&b, " at %s", race.CircuitName)
		}
		if race.Country != "" {
			fmt.Fprintf(&b, " in %s", race.Country)
		}
		fmt.Fprintf(&b, " (season %d, round %d", race.Season, race.RoundNumber)
		if race.IsSprintWeekend {
			b.WriteString(", sprint weekend")
		}
		b.WriteString(").\n")
	case ep.EpisodeType == store.TypeWeeklyRecap:
		b.WriteString("Write a weekly recap episode. There was no race this week, so the cast riffs on paddock rumors, testing gossip, and off-season absurdity.\n")
	default:
		fmt.Fprintf(&b, "Write a %s episode. No race details are available; improvise around the current state of the championship.\n", ep.EpisodeType)
	}

	b.WriteString("\nAvailable cast (use the name exactly as written):\n")
	for _, ch := range roster {
		fmt.Fprintf(&b, "- %s", ch.Name)
		var notes []string
		if ch.Role != "" {
			notes = append(notes, ch.Role)
		}
		if ch.Team != "" {
			notes = append(notes, ch.Team)
		}
		if ch.Personality != "" {
			notes = append(notes, ch.Personality)
		}
		if ch.ComedyAngle != "" {
			notes = append(notes, "comedy angle: "+ch.ComedyAngle)
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(notes, "; "))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nWrite exactly %d scenes. Rotate through the cast; no character should dominate. Number scenes from 1 with no gaps.\n", sceneCount)
	return b.String()
}

// stripFences removes a markdown code fence if the model wrapped its JSON
// in one despite instructions.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
