package discord

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-warden/warden"
	"github.com/go-warden/warden/reactions"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// bulkDeleteLimit is the maximum number of messages Discord accepts in a
	// single bulk delete call.
	bulkDeleteLimit = 100

	// historyPageSize is the maximum number of messages Discord returns per
	// channel history request.
	historyPageSize = 100
)

// SendEmbed implements the warden.EmbedSender interface. The text is sent as
// regular message content above the embed and may be empty.
func (a *BotAdapter) SendEmbed(channel, text string, embed warden.Embed) error {
	defer a.timeCall("embed", time.Now())

	err := a.waitSend()
	if err != nil {
		return err
	}

	a.logger.Info("Sending embed to channel", zap.String("channel", channel))
	_, err = a.api.ChannelMessageSendComplex(channel, &discordgo.MessageSend{
		Content: text,
		Embeds:  []*discordgo.MessageEmbed{newMessageEmbed(embed)},
	}, discordgo.WithContext(a.context))

	return err
}

// PostMessage implements the warden.MessagePoster interface. It works like
// Send but additionally reports the ID of the created message.
func (a *BotAdapter) PostMessage(text, channel string) (string, error) {
	defer a.timeCall("send", time.Now())

	err := a.waitSend()
	if err != nil {
		return "", err
	}

	msg, err := a.api.ChannelMessageSend(channel, text, discordgo.WithContext(a.context))
	if err != nil {
		return "", err
	}

	return msg.ID, nil
}

// SendTemporary implements the warden.TemporarySender interface. The message
// is deleted again after the ttl has passed.
func (a *BotAdapter) SendTemporary(text, channel string, ttl time.Duration) error {
	defer a.timeCall("send", time.Now())

	err := a.waitSend()
	if err != nil {
		return err
	}

	msg, err := a.api.ChannelMessageSend(channel, text)
	if err != nil {
		return err
	}

	time.AfterFunc(ttl, func() {
		err := a.api.ChannelMessageDelete(channel, msg.ID)
		if err != nil {
			a.logger.Error("Failed to delete temporary message",
				zap.String("channel", channel),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	})

	return nil
}

// DeleteMessage implements the warden.MessageDeleter interface.
func (a *BotAdapter) DeleteMessage(channel, messageID string) error {
	defer a.timeCall("delete", time.Now())
	return a.api.ChannelMessageDelete(channel, messageID)
}

// DeleteMessages implements the warden.BulkDeleter interface. Discord accepts
// at most 100 messages per bulk delete call so larger batches are split. A
// batch of a single message falls back to a regular delete because the bulk
// endpoint rejects it.
func (a *BotAdapter) DeleteMessages(channel string, messageIDs []string, reason string) error {
	defer a.timeCall("bulk_delete", time.Now())

	for len(messageIDs) > 0 {
		n := len(messageIDs)
		if n > bulkDeleteLimit {
			n = bulkDeleteLimit
		}

		batch := messageIDs[:n]
		messageIDs = messageIDs[n:]

		var err error
		if len(batch) == 1 {
			err = a.api.ChannelMessageDelete(channel, batch[0])
		} else {
			err = a.api.ChannelMessagesBulkDelete(channel, batch, discordgo.WithAuditLogReason(reason))
		}

		if err != nil {
			return errors.Wrapf(err, "failed to delete %d messages", len(batch))
		}
	}

	return nil
}

// RecentMessages implements the warden.HistorySource interface. Messages are
// returned newest first, up to the given limit.
func (a *BotAdapter) RecentMessages(channel string, limit int) ([]warden.HistoryMessage, error) {
	defer a.timeCall("history", time.Now())

	var (
		out    []warden.HistoryMessage
		before string
	)

	for limit > len(out) {
		n := limit - len(out)
		if n > historyPageSize {
			n = historyPageSize
		}

		page, err := a.api.ChannelMessages(channel, n, before, "", "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch channel history")
		}

		for _, m := range page {
			msg := warden.HistoryMessage{
				ID:   m.ID,
				Text: m.Content,
				Time: m.Timestamp,
			}

			if m.Author != nil {
				msg.AuthorID = m.Author.ID
				msg.AuthorName = m.Author.Username
				msg.Bot = m.Author.Bot
			}

			out = append(out, msg)
		}

		if len(page) < n {
			break
		}

		before = page[len(page)-1].ID
	}

	return out, nil
}

// RenameChannel implements the warden.ChannelRenamer interface. The API call
// is skipped if the channel already has the requested name because Discord
// only allows two channel renames per ten minutes.
func (a *BotAdapter) RenameChannel(channel, name string) error {
	defer a.timeCall("rename", time.Now())

	current, err := a.api.Channel(channel)
	if err != nil {
		return errors.Wrap(err, "failed to look up channel")
	}

	if current.Name == name {
		return nil
	}

	a.logger.Info("Renaming channel",
		zap.String("channel", channel),
		zap.String("name", name),
	)

	_, err = a.api.ChannelEdit(channel, &discordgo.ChannelEdit{Name: name})
	return errors.Wrap(err, "failed to edit channel")
}

// SetPresence implements the warden.PresenceUpdater interface.
func (a *BotAdapter) SetPresence(p warden.Presence) error {
	defer a.timeCall("presence", time.Now())

	data := discordgo.UpdateStatusData{Status: p.Status}
	if p.Activity != nil {
		data.Activities = []*discordgo.Activity{{
			Name: p.Activity.Text,
			Type: activityType(p.Activity.Kind),
			URL:  p.Activity.URL,
		}}
	}

	return a.api.UpdateStatusComplex(data)
}

func activityType(kind string) discordgo.ActivityType {
	switch strings.ToLower(kind) {
	case "streaming":
		return discordgo.ActivityTypeStreaming
	case "listening":
		return discordgo.ActivityTypeListening
	case "watching":
		return discordgo.ActivityTypeWatching
	case "competing":
		return discordgo.ActivityTypeCompeting
	default:
		return discordgo.ActivityTypeGame
	}
}

// CreateEmoji implements the warden.EmojiImporter interface. The image is
// uploaded as a data URI which Discord limits to 256KiB.
func (a *BotAdapter) CreateEmoji(guild, name string, image []byte) (string, error) {
	defer a.timeCall("create_emoji", time.Now())

	mime := http.DetectContentType(image)
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	emoji, err := a.api.GuildEmojiCreate(guild, &discordgo.EmojiParams{
		Name:  name,
		Image: uri,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create guild emoji")
	}

	a.logger.Info("Created guild emoji",
		zap.String("guild", guild),
		zap.String("name", name),
		zap.String("emoji_id", emoji.ID),
	)

	return emoji.ID, nil
}

// EmojiUsage implements the warden.EmojiImporter interface. Discord keeps
// separate slot pools for static and animated emoji; the reported numbers
// cover the static pool.
func (a *BotAdapter) EmojiUsage(guild string) (used, limit int, err error) {
	g, err := a.api.Guild(guild)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to fetch guild")
	}

	for _, e := range g.Emojis {
		if !e.Animated {
			used++
		}
	}

	return used, emojiLimit(g.PremiumTier), nil
}

func emojiLimit(tier discordgo.PremiumTier) int {
	switch tier {
	case discordgo.PremiumTier1:
		return 100
	case discordgo.PremiumTier2:
		return 150
	case discordgo.PremiumTier3:
		return 250
	default:
		return 50
	}
}

// React implements the warden.ReactionAwareAdapter interface. Unicode emoji
// are passed through as is while custom guild emoji use their "name:id" code.
func (a *BotAdapter) React(reaction reactions.Reaction, msg warden.Message) error {
	defer a.timeCall("react", time.Now())
	return a.api.MessageReactionAdd(msg.Channel, msg.ID, reaction.Shortcode)
}

// ticketChannelPermissions are granted to everybody who may see a ticket
// channel.
const ticketChannelPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory

// CreatePrivateChannel creates a guild text channel under the given parent
// category that is hidden from everyone except the listed users and roles
// (and the bot itself). It implements the Platform interface of the tickets
// cog.
func (a *BotAdapter) CreatePrivateChannel(guild, parent, name, topic string, allowUsers, allowRoles []string) (string, error) {
	defer a.timeCall("channel_create", time.Now())

	// the @everyone role shares the ID of its guild
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guild, Type: discordgo.PermissionOverwriteTypeRole, Deny: ticketChannelPermissions},
		{ID: a.userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketChannelPermissions},
	}

	for _, id := range allowUsers {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketChannelPermissions,
		})
	}

	for _, id := range allowRoles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: ticketChannelPermissions,
		})
	}

	ch, err := a.api.GuildChannelCreateComplex(guild, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                topic,
		ParentID:             parent,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(a.context))
	if err != nil {
		return "", errors.Wrap(err, "failed to create private channel")
	}

	a.logger.Info("Created private channel",
		zap.String("guild", guild),
		zap.String("channel", ch.ID),
		zap.String("name", name),
	)

	return ch.ID, nil
}

// DeleteChannel implements the Platform interface of the tickets cog. The
// reason is attached to the audit log entry.
func (a *BotAdapter) DeleteChannel(channel, reason string) error {
	defer a.timeCall("channel_delete", time.Now())

	_, err := a.api.ChannelDelete(channel, discordgo.WithAuditLogReason(reason))
	return errors.Wrap(err, "failed to delete channel")
}

func newMessageEmbed(embed warden.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}

	if embed.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: embed.Thumbnail}
	}

	if embed.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: embed.Footer}
	}

	for _, f := range embed.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}

	return out
}
