package persona

import (
	"fmt"
	"strconv"
	"strings"
)

// Known personality tags. Matching is exact; anything else resolves to
// Supportive, which is a contract of the prompt builder rather than an
// error path.
const (
	Romantic   = "Romantic"
	Funny      = "Funny"
	Supportive = "Supportive"
)

const (
	romanticClause   = "You are very affectionate, caring, and express your love frequently. You use terms of endearment and are emotionally expressive."
	funnyClause      = "You have a great sense of humor, love making jokes, and always try to make your spouse laugh. You're playful and witty."
	supportiveClause = "You are understanding, empathetic, and always there to support your spouse. You're a good listener and give thoughtful advice."
)

// TraitClause maps a personality tag to its descriptive trait clause.
func TraitClause(personality string) string {
	switch personality {
	case Romantic:
		return romanticClause
	case Funny:
		return funnyClause
	default:
		return supportiveClause
	}
}

// Prompt builds the system-level persona preamble for one companion.
// It is recomputed on every exchange because the personality can change
// between requests.
func Prompt(name, personality string, age int, gender string) string {
	ageText := "adult"
	if age > 0 {
		ageText = strconv.Itoa(age)
	}
	genderText := strings.TrimSpace(gender)
	if genderText == "" {
		genderText = "person"
	}
	tag := strings.TrimSpace(personality)
	if tag != Romantic && tag != Funny {
		tag = Supportive
	}
	return fmt.Sprintf("You are %s, a %s year old %s with a %s personality. %s",
		name, ageText, genderText, strings.ToLower(tag), TraitClause(personality))
}
