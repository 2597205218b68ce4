package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-warden/warden"
	"go.uber.org/zap"
)

func (a *BotAdapter) handleReady(_ *discordgo.Session, evt *discordgo.Ready) {
	a.logger.Info("Discord gateway session is ready",
		zap.String("name", a.name),
		zap.Int("guilds", len(evt.Guilds)),
	)
}

func (a *BotAdapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	// Own messages are cached but never emitted so the delete handler can
	// tell our own cleanups apart from foreign deletions.
	a.cache.add(m.ID, m.Content, m.Author.ID)
	if m.Author.ID == a.userID {
		return
	}

	a.events.Emit(warden.ReceiveMessageEvent{
		ID:         m.ID,
		Text:       m.Content,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Channel:    m.ChannelID,
		Guild:      m.GuildID,
		Mentions:   users(m.Mentions),
		Bot:        m.Author.Bot,
		Time:       m.Timestamp,
		Embeds:     embeds(m.Embeds),
		Data:       m,
	})
}

func (a *BotAdapter) handleMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil {
		// Discord emits author-less updates when it resolves an embed within
		// a previously sent message. Nobody edited anything in that case.
		return
	}

	if m.Author.ID == a.userID {
		return
	}

	old, _ := a.cache.get(m.ID)
	a.cache.add(m.ID, m.Content, m.Author.ID)

	editedAt := time.Now()
	if m.EditedTimestamp != nil {
		editedAt = *m.EditedTimestamp
	}

	a.events.Emit(warden.MessageUpdatedEvent{
		ID:       m.ID,
		Text:     m.Content,
		OldText:  old.text,
		AuthorID: m.Author.ID,
		Channel:  m.ChannelID,
		Guild:    m.GuildID,
		Time:     editedAt,
	})
}

func (a *BotAdapter) handleMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	cached, _ := a.cache.remove(m.ID)
	if cached.authorID == a.userID {
		return
	}

	a.events.Emit(warden.MessageDeletedEvent{
		ID:       m.ID,
		Text:     cached.text,
		AuthorID: cached.authorID,
		Channel:  m.ChannelID,
		Guild:    m.GuildID,
		Time:     time.Now(),
	})
}

func (a *BotAdapter) handleTypingStart(_ *discordgo.Session, evt *discordgo.TypingStart) {
	if evt.UserID == a.userID {
		return
	}

	a.events.Emit(warden.UserTypingEvent{
		User:    warden.User{ID: evt.UserID},
		Channel: evt.ChannelID,
	})
}

func users(in []*discordgo.User) []warden.User {
	if len(in) == 0 {
		return nil
	}

	out := make([]warden.User, 0, len(in))
	for _, u := range in {
		out = append(out, warden.User{ID: u.ID, Name: u.Username})
	}

	return out
}

func embeds(in []*discordgo.MessageEmbed) []warden.Embed {
	if len(in) == 0 {
		return nil
	}

	out := make([]warden.Embed, 0, len(in))
	for _, e := range in {
		embed := warden.Embed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}

		if e.Thumbnail != nil {
			embed.Thumbnail = e.Thumbnail.URL
		}

		if e.Footer != nil {
			embed.Footer = e.Footer.Text
		}

		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, warden.EmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}

		out = append(out, embed)
	}

	return out
}
