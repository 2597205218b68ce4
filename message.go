package warden

import (
	"context"
	"fmt"
	"time"

	"github.com/go-warden/warden/reactions"
)

// A Message is automatically created from a ReceiveMessageEvent if the bot
// has a handler that was registered via Bot.Respond(…), Bot.RespondRegex(…)
// or Bot.Command(…) and the message matched.
type Message struct {
	Context    context.Context
	ID         string
	Text       string
	AuthorID   string
	AuthorName string
	Channel    string
	Guild      string
	Mentions   []User
	Time       time.Time
	Matches    []string    // contains all sub matches of the regular expression that matched the Text
	Data       interface{} // corresponds to the ReceiveMessageEvent.Data field

	adapter Adapter
}

// Respond is a helper function to directly send a response back to the
// channel the message originated from. This function ignores any error when
// sending the response. If you want to handle the error use Message.RespondE
// instead.
func (msg *Message) Respond(text string, args ...interface{}) {
	if len(args) > 0 {
		text = fmt.Sprintf(text, args...)
	}

	_ = msg.RespondE(text)
}

// RespondE is a helper function to directly send a response back to the
// channel the message originated from. It returns any error that the Adapter
// encountered.
func (msg *Message) RespondE(text string) error {
	return msg.adapter.Send(text, msg.Channel)
}

// RespondEmbed sends a rich embed back to the channel the message originated
// from. It returns ErrNotImplemented if the Adapter is no EmbedSender.
func (msg *Message) RespondEmbed(embed Embed) error {
	adapter, ok := msg.adapter.(EmbedSender)
	if !ok {
		return ErrNotImplemented
	}

	return adapter.SendEmbed(msg.Channel, "", embed)
}

// RespondTemporary sends a response that is deleted again after the given
// duration. If the Adapter is no TemporarySender the response is sent as a
// regular message instead.
func (msg *Message) RespondTemporary(ttl time.Duration, text string, args ...interface{}) error {
	if len(args) > 0 {
		text = fmt.Sprintf(text, args...)
	}

	adapter, ok := msg.adapter.(TemporarySender)
	if !ok {
		return msg.adapter.Send(text, msg.Channel)
	}

	return adapter.SendTemporary(text, msg.Channel, ttl)
}

// React attempts to let the Adapter attach the given reaction to this
// message. It returns ErrNotImplemented if the Adapter does not support
// reactions.
func (msg *Message) React(reaction reactions.Reaction) error {
	adapter, ok := msg.adapter.(ReactionAwareAdapter)
	if !ok {
		return ErrNotImplemented
	}

	return adapter.React(reaction, *msg)
}

// Delete removes this message from the channel it was posted to. It returns
// ErrNotImplemented if the Adapter is no MessageDeleter.
func (msg *Message) Delete() error {
	adapter, ok := msg.adapter.(MessageDeleter)
	if !ok {
		return ErrNotImplemented
	}

	return adapter.DeleteMessage(msg.Channel, msg.ID)
}
