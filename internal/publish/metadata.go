package publish

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gridlock/internal/services/ytclient"
	"gridlock/internal/store"
)

var titleCaser = cases.Title(language.English)

const descriptionFooter = "Satirical animated commentary. All characters and events are parodies."

// BuildMetadata assembles upload metadata for an episode. The title is
// normalized to title case and suffixed with the race name when one is
// linked, so the channel listing stays consistent across episode types.
func BuildMetadata(ep *store.Episode, race *store.Race, channelTag string) ytclient.Metadata {
	title := strings.TrimSpace(ep.Title)
	if title == "" {
		title = fallbackTitle(ep, race)
	}
	title = titleCaser.String(title)
	if race != nil && !strings.Contains(strings.ToLower(title), strings.ToLower(race.RaceName)) {
		title = fmt.Sprintf("%s | %s", title, race.RaceName)
	}

	var desc strings.Builder
	if ep.Description != "" {
		desc.WriteString(strings.TrimSpace(ep.Description))
		desc.WriteString("\n\n")
	}
	if race != nil {
		fmt.Fprintf(&desc, "%d Season, Round %d: %s\n\n", race.Season, race.RoundNumber, race.RaceName)
	}
	desc.WriteString(descriptionFooter)

	tags := []string{"f1", "formula 1", "satire", "comedy", "animation"}
	if race != nil {
		tags = append(tags, strings.ToLower(race.RaceName))
	}
	tags = append(tags, tagForType(ep.EpisodeType)...)
	if channelTag != "" {
		tags = append(tags, channelTag)
	}

	return ytclient.Metadata{
		Title:       title,
		Description: desc.String(),
		Tags:        dedupe(tags),
	}
}

func fallbackTitle(ep *store.Episode, race *store.Race) string {
	label := strings.ReplaceAll(string(ep.EpisodeType), "-", " ")
	if race != nil {
		return fmt.Sprintf("%s reaction: %s", label, race.RaceName)
	}
	return fmt.Sprintf("%s episode %d", label, ep.ID)
}

func tagForType(episodeType store.EpisodeType) []string {
	switch episodeType {
	case store.TypePostRace:
		return []string{"race reaction"}
	case store.TypePostFP2:
		return []string{"practice", "fp2"}
	case store.TypePostSprint:
		return []string{"sprint"}
	case store.TypeWeeklyRecap:
		return []string{"weekly recap"}
	case store.TypePreRace:
		return []string{"race preview"}
	default:
		return nil
	}
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
