package queries

import (
	"encoding/json"
	"fmt"
)

// Rule decides whether an event belongs to a category.
type Rule struct {
	Type       string `json:"type"`
	Regex      string `json:"regex,omitempty"`
	IgnoreCase bool   `json:"ignore_case,omitempty"`
}

// Class maps a category path, e.g. ["Work", "Programming"], to a rule.
type Class struct {
	Category []string
	Rule     Rule
}

// MarshalJSON encodes the class as the [category, rule] pair the server's
// categorize function takes.
func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Category, c.Rule})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Class) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("class must be a [category, rule] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Category); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &c.Rule)
}

func regex(pattern string, ignoreCase bool) Rule {
	return Rule{Type: "regex", Regex: pattern, IgnoreCase: ignoreCase}
}

// DefaultClasses returns the stock categorization rules.
func DefaultClasses() []Class {
	return []Class{
		{[]string{"Work"}, regex("Google Docs|libreoffice|ReText", false)},
		{[]string{"Work", "Programming"}, regex("GitHub|Stack Overflow|BitBucket|Gitlab|vim|Spyder|kate|Ghidra|Scite", false)},
		{[]string{"Work", "Programming", "ActivityWatch"}, regex("ActivityWatch|aw-", true)},
		{[]string{"Work", "Image"}, regex("Gimp|Inkscape", false)},
		{[]string{"Work", "Video"}, regex("Kdenlive", false)},
		{[]string{"Work", "Audio"}, regex("Audacity", false)},
		{[]string{"Work", "3D"}, regex("Blender", false)},
		{[]string{"Media", "Games"}, regex("Minecraft|RimWorld", false)},
		{[]string{"Media", "Video"}, regex("YouTube|Plex|VLC", false)},
		{[]string{"Media", "Social Media"}, regex("reddit|Facebook|Twitter|Instagram|devRant", true)},
		{[]string{"Media", "Music"}, regex("Spotify|Deezer", true)},
		{[]string{"Comms", "IM"}, regex("Messenger|Telegram|Signal|WhatsApp|Rambox|Slack|Riot|Element|Discord|Nheko|NeoChat", false)},
		{[]string{"Comms", "Email"}, regex("Gmail|Thunderbird|mutt|alpine", false)},
	}
}
