package warden

import (
	"time"

	"github.com/go-warden/warden/reactions"
)

// An Adapter connects the bot with the chat platform by enabling it to
// receive and send messages. Advanced adapters can emit more events than just
// the ReceiveMessageEvent (e.g. the Discord adapter also emits
// MessageUpdatedEvent and MessageDeletedEvent). Such adapter events must be
// set up in the RegisterAt function of the Adapter.
//
// Everything beyond plain text messages is modeled as an optional capability:
// a small interface the adapter may additionally implement. Components that
// need a capability type-assert for it and return ErrNotImplemented if the
// configured adapter does not provide it. This keeps every cog free of
// platform SDK types and testable against trivial fakes.
//
// warden provides a default CLIAdapter implementation which connects the bot
// with the local shell to receive messages from stdin and print messages to
// stdout.
type Adapter interface {
	RegisterAt(*Brain)
	Send(text, channel string) error
	Close() error
}

// An EmbedSender is an Adapter that can send rich embeds. The text is sent as
// regular message content alongside the embed and may be empty (Discord shows
// it above the embed which is how role pings are delivered).
type EmbedSender interface {
	SendEmbed(channel, text string, embed Embed) error
}

// A MessagePoster is an Adapter that reports the platform ID of a sent
// message so the caller can later delete or edit it (used by the sticky cog).
type MessagePoster interface {
	PostMessage(text, channel string) (messageID string, err error)
}

// A TemporarySender is an Adapter that can send a message which is
// automatically deleted again after the given duration.
type TemporarySender interface {
	SendTemporary(text, channel string, ttl time.Duration) error
}

// A MessageDeleter is an Adapter that can delete a single message.
type MessageDeleter interface {
	DeleteMessage(channel, messageID string) error
}

// A BulkDeleter is an Adapter that can delete many messages at once. The
// reason is attached to the platform audit log where supported.
type BulkDeleter interface {
	DeleteMessages(channel string, messageIDs []string, reason string) error
}

// A HistorySource is an Adapter that can read back up to limit recent
// messages of a channel, newest first.
type HistorySource interface {
	RecentMessages(channel string, limit int) ([]HistoryMessage, error)
}

// A ChannelRenamer is an Adapter that can rename channels. Implementations
// must skip the API call if the channel already has the requested name so
// periodic callers do not exhaust platform rate limits.
type ChannelRenamer interface {
	RenameChannel(channel, name string) error
}

// A PresenceUpdater is an Adapter that can change the bots own presence.
type PresenceUpdater interface {
	SetPresence(p Presence) error
}

// An EmojiImporter is an Adapter that can upload custom emoji to a guild.
type EmojiImporter interface {
	CreateEmoji(guild, name string, image []byte) (emojiID string, err error)
	EmojiUsage(guild string) (used, limit int, err error)
}

// A ReactionAwareAdapter is an Adapter that supports attaching emoji
// reactions to previously received messages.
type ReactionAwareAdapter interface {
	React(reaction reactions.Reaction, msg Message) error
}
