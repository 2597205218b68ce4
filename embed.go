package warden

import "time"

// An Embed is a rich message that adapters may render natively (e.g. Discord
// embeds). It deliberately only models the fields the cogs actually use so no
// SDK type leaks into cog code.
type Embed struct {
	Title       string
	Description string
	Color       int // 24 bit RGB, e.g. 0x5865F2
	Thumbnail   string
	Footer      string
	Fields      []EmbedField
}

// An EmbedField is a titled section within an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// A Presence describes the bots own status and the activity shown next to its
// name in the member list.
type Presence struct {
	Status   string // "online", "idle", "dnd" or "invisible"
	Activity *Activity
}

// An Activity is a single "Playing …" / "Watching …" style display item.
type Activity struct {
	Kind string // "playing", "watching", "listening", "streaming" or "competing"
	Text string
	URL  string // only used for streaming activities
}

// A HistoryMessage is a single message as returned by adapters that can read
// back channel history (see the HistorySource capability).
type HistoryMessage struct {
	ID         string
	Text       string
	AuthorID   string
	AuthorName string
	Bot        bool
	Time       time.Time
}
