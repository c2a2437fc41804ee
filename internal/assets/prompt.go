package assets

import (
	"fmt"
	"strings"

	"gridlock/internal/store"
)

// buildImagePrompt describes the scene's source frame for the image model,
// folding in the character's caricature traits so every appearance stays
// on-model.
func buildImagePrompt(scene *store.Scene, character *store.Character) string {
	var b strings.Builder
	b.WriteString("Satirical cartoon caricature, bold outlines, flat colors, talking-head framing.\n")

	if character != nil {
		fmt.Fprintf(&b, "Character: %s.\n", character.DisplayName)
		for _, trait := range traitLines(character) {
			b.WriteString(trait)
			b.WriteByte('\n')
		}
	}

	if scene.ActionDescription != "" {
		fmt.Fprintf(&b, "Scene: %s.\n", scene.ActionDescription)
	}
	b.WriteString("Single character, facing camera, 16:9 composition.")
	return b.String()
}

func traitLines(character *store.Character) []string {
	pairs := []struct {
		label string
		value string
	}{
		{"Physical features", character.PhysicalFeatures},
		{"Expression", character.SignatureExpression},
		{"Pose", character.SignaturePose},
		{"Props", character.Props},
		{"Clothing", character.ClothingDescription},
		{"Background", backgroundLine(character)},
	}
	lines := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair.value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s.", pair.label, pair.value))
		}
	}
	return lines
}

func backgroundLine(character *store.Character) string {
	if character.BackgroundDetail != "" {
		return character.BackgroundDetail
	}
	if character.BackgroundType != "" {
		return strings.ReplaceAll(character.BackgroundType, "_", " ")
	}
	return ""
}

// buildClipPrompt assembles the synthesis prompt in the token format the
// video app expects: action text, speech wrapped in <S>...<E>, and an
// audio caption wrapped in <AUDCAP>...<ENDAUDCAP>.
func buildClipPrompt(scene *store.Scene) string {
	var parts []string
	if scene.ActionDescription != "" {
		parts = append(parts, scene.ActionDescription)
	}
	if scene.Dialogue != "" {
		parts = append(parts, fmt.Sprintf("<S>%s<E>", scene.Dialogue))
	}
	if scene.AudioDescription != "" {
		parts = append(parts, fmt.Sprintf("<AUDCAP>%s<ENDAUDCAP>", scene.AudioDescription))
	}
	return strings.Join(parts, " ")
}
