package warden

import "time"

// The InitEvent is the first event that is handled by the Brain after the Bot
// is started via Bot.Run().
type InitEvent struct{}

// The ShutdownEvent is the last event that is handled by the Brain before it
// stops handling any events after the bot context is done.
type ShutdownEvent struct{}

// A User represents a chat user as seen by the Adapter.
type User struct {
	ID   string
	Name string
}

// The ReceiveMessageEvent is emitted by an Adapter whenever the Bot sees a new
// message in the chat. Messages of other bots are included (e.g. the remind
// cog watches for the bump bot's confirmation) but adapters must never emit
// the bots own messages.
type ReceiveMessageEvent struct {
	ID         string // platform specific message ID
	Text       string // the message text
	AuthorID   string // a string identifying the author of the message on the adapter
	AuthorName string // the display name of the author, if the adapter knows it
	Channel    string // the channel over which the message was received
	Guild      string // the guild (server) the channel belongs to; empty for direct messages
	Mentions   []User // users that were mentioned in the message
	Bot        bool   // whether the author is another bot
	Time       time.Time

	// Embeds contains any rich embeds that were attached to the message.
	// Not all adapters support embeds in which case this is always empty.
	Embeds []Embed

	// A message may optionally also contain additional information that was
	// received by the Adapter (e.g. with the Discord adapter this is the
	// *discordgo.MessageCreate). Each Adapter implementation should document
	// if and what information is available here, if any at all.
	Data interface{}
}

// The MessageUpdatedEvent is emitted by an Adapter when a previously sent
// message was edited. OldText is only set if the adapter still had the
// original content cached.
type MessageUpdatedEvent struct {
	ID       string
	Text     string
	OldText  string
	AuthorID string
	Channel  string
	Guild    string
	Time     time.Time
}

// The MessageDeletedEvent is emitted by an Adapter when a message was deleted.
// Text and AuthorID are only set if the adapter still had the message cached.
type MessageDeletedEvent struct {
	ID       string
	Text     string
	AuthorID string
	Channel  string
	Guild    string
	Time     time.Time
}

// The UserTypingEvent is emitted by the Adapter and indicates that the Bot
// sees that a user is typing. This event may not be emitted on all Adapter
// implementations but only when it is actually supported.
type UserTypingEvent struct {
	User    User
	Channel string
}

// The RegisterCommandEvent is emitted by Bot.Command(…) so other components
// (e.g. the help cog) can build an index of everything the bot responds to.
type RegisterCommandEvent struct {
	Command string // the command keyword without the bot prefix
	Usage   string // a short usage line, e.g. "!bump cooldown <duration>"
}

// An EventEmitter can be used to send events to the Brain of the Bot from
// adapters or other modules.
type EventEmitter interface {
	Emit(event interface{}, callbacks ...func(Event))
}
