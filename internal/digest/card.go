package digest

import (
	"feishu-digest-bot/internal/models"
)

// Card is the interactive message payload for a template card.
type Card struct {
	Type string   `json:"type"`
	Data CardData `json:"data"`
}

// CardData references a card built in the card builder tool by id and
// version and carries its variables.
type CardData struct {
	TemplateID          string       `json:"template_id"`
	TemplateVersionName string       `json:"template_version_name"`
	TemplateVariable    CardVariable `json:"template_variable"`
}

// CardVariable is the variable set the digest template expects: a headline
// plus the item list.
type CardVariable struct {
	Common string              `json:"common"`
	Item   []models.DigestItem `json:"item"`
}

// BuildCard assembles the template card payload for a digest.
func BuildCard(templateID, versionName, title string, items []models.DigestItem) Card {
	return Card{
		Type: "template",
		Data: CardData{
			TemplateID:          templateID,
			TemplateVersionName: versionName,
			TemplateVariable: CardVariable{
				Common: title,
				Item:   items,
			},
		},
	}
}
