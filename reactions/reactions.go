// Package reactions contains the emoji reactions the bot can attach to
// messages via a ReactionAwareAdapter.
package reactions

// A Reaction is a single emoji, identified by its shortcode (e.g. "thumbsup").
// Adapters translate the shortcode into whatever representation the platform
// expects; custom guild emoji can be referenced by their raw platform code.
type Reaction struct {
	Shortcode string
}

func (r Reaction) String() string {
	return r.Shortcode
}

// Common reactions used by the cogs.
var (
	Thumbsup    = Reaction{Shortcode: "👍"}
	Thumbsdown  = Reaction{Shortcode: "👎"}
	Eyes        = Reaction{Shortcode: "👀"}
	Tada        = Reaction{Shortcode: "🎉"}
	Bell        = Reaction{Shortcode: "🔔"}
	Wastebasket = Reaction{Shortcode: "🗑️"}
)

// An Event may be emitted by a chat Adapter to indicate that a message
// received a reaction.
type Event struct {
	Reaction  Reaction
	MessageID string
	Channel   string
	AuthorID  string
}
