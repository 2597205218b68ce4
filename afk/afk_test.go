package afk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/wardentest"
)

type sentText struct {
	channel string
	text    string
}

type sentTemporary struct {
	channel string
	text    string
	ttl     time.Duration
}

// fakeAdapter records everything the cog sends so tests can assert on it.
type fakeAdapter struct {
	mu    sync.Mutex
	texts []sentText
	temps []sentTemporary
}

func (a *fakeAdapter) RegisterAt(*warden.Brain) {}
func (a *fakeAdapter) Close() error             { return nil }

func (a *fakeAdapter) Send(text, channel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, sentText{channel: channel, text: text})
	return nil
}

func (a *fakeAdapter) SendTemporary(text, channel string, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.temps = append(a.temps, sentTemporary{channel: channel, text: text, ttl: ttl})
	return nil
}

func (a *fakeAdapter) sentTexts() []sentText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentText(nil), a.texts...)
}

func (a *fakeAdapter) sentTemporary() []sentTemporary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentTemporary(nil), a.temps...)
}

func newTestCog(t *testing.T) (*warden.TestBot, *fakeAdapter, *Cog) {
	t.Helper()

	adapter := new(fakeAdapter)
	b := warden.NewTest(t, warden.ModuleFunc(func(conf *warden.Config) error {
		conf.SetAdapter(adapter)
		return nil
	}))

	cog := New(b.Bot)
	b.Start()

	return b, adapter, cog
}

func message(author, text string, mentions ...warden.User) warden.ReceiveMessageEvent {
	return warden.ReceiveMessageEvent{
		ID:       "msg-1",
		Text:     text,
		AuthorID: author,
		Channel:  "general",
		Guild:    "guild-1",
		Mentions: mentions,
		Time:     time.Now(),
	}
}

func stored(t *testing.T, b *warden.TestBot) map[string]status {
	t.Helper()

	entries := map[string]status{}
	ok, err := b.Store.Get("afk.guild-1", &entries)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	return entries
}

func TestCog_SetAFK(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk building a shed"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "💤 <@user-1> is now AFK: **building a shed**", texts[0].text)
	assert.Equal(t, "general", texts[0].channel)

	entries := stored(t, b)
	require.Contains(t, entries, "user-1")
	assert.Equal(t, "building a shed", entries["user-1"].Reason)
	assert.NotZero(t, entries["user-1"].Since)
}

func TestCog_SetAFKDefaultReason(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "💤 <@user-1> is now AFK: **No reason provided.**", texts[0].text)
	assert.Equal(t, DefaultReason, stored(t, b)["user-1"].Reason)
}

func TestCog_UpdatesReason(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-1", "!afk long lunch"))

	// The second !afk is a command, so it must update the reason instead of
	// tripping the welcome back path.
	assert.Empty(t, adapter.sentTemporary())
	assert.Equal(t, "long lunch", stored(t, b)["user-1"].Reason)
}

func TestCog_ReasonStartingWithClear(t *testing.T) {
	b, _, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk clearing my head"))

	assert.Equal(t, "clearing my head", stored(t, b)["user-1"].Reason)
}

func TestCog_WelcomeBack(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-1", "back at my desk"))

	temps := adapter.sentTemporary()
	require.Len(t, temps, 1)
	assert.Equal(t, "👋 Welcome back, <@user-1> — AFK removed.", temps[0].text)
	assert.Equal(t, "general", temps[0].channel)
	assert.Equal(t, 5*time.Second, temps[0].ttl)

	assert.Empty(t, stored(t, b))
}

func TestCog_WelcomeBackWithoutTemporarySender(t *testing.T) {
	// The plain CLI test adapter cannot delete messages, so the welcome back
	// notice is sent as a regular message.
	b := warden.NewTest(t)
	New(b.Bot)
	b.Start()
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-1", "back"))

	assert.Contains(t, b.ReadOutput(), "👋 Welcome back, <@user-1> — AFK removed.")
}

func TestCog_CommandsDoNotClear(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-1", "!ping"))

	assert.Empty(t, adapter.sentTemporary())
	require.Contains(t, stored(t, b), "user-1")
}

func TestCog_MentionNotice(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evt := message("user-1", "!afk lunch")
	evt.Time = since
	b.EmitSync(evt)

	b.EmitSync(message("user-2", "hey have you seen this?", warden.User{ID: "user-1", Name: "Ann"}))

	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, fmt.Sprintf("🛌 **Ann** is AFK (since <t:%d:R>): **lunch**", since.Unix()), texts[1].text)
}

func TestCog_MentionNoticeThrottled(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))

	b.EmitSync(message("user-2", "ping", warden.User{ID: "user-1", Name: "Ann"}))
	b.EmitSync(message("user-2", "ping again", warden.User{ID: "user-1", Name: "Ann"}))
	b.EmitSync(message("user-3", "ping too", warden.User{ID: "user-1", Name: "Ann"}))

	// user-2 is throttled on the repeat but user-3 gets their own notice.
	texts := adapter.sentTexts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[1].text, "is AFK")
	assert.Contains(t, texts[2].text, "is AFK")
}

func TestCog_MentionNoticeMultipleMembers(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-4", "!afk gym"))

	b.EmitSync(message("user-2", "anyone around?",
		warden.User{ID: "user-1", Name: "Ann"},
		warden.User{ID: "user-4", Name: "Ben"},
	))

	texts := adapter.sentTexts()
	require.Len(t, texts, 3)
	lines := texts[2].text
	assert.Contains(t, lines, "**Ann** is AFK")
	assert.Contains(t, lines, "**Ben** is AFK")
	assert.Contains(t, lines, "\n")
}

func TestCog_MentionWithoutName(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-2", "ping", warden.User{ID: "user-1"}))

	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1].text, "**<@user-1>** is AFK")
}

func TestCog_ReturnBeatsMention(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("user-1", "I am back", warden.User{ID: "user-1", Name: "Ann"}))

	// The returning message clears the status first, so mentioning yourself
	// never produces an AFK notice.
	require.Len(t, adapter.sentTemporary(), 1)
	require.Len(t, adapter.sentTexts(), 1) // only the !afk confirmation
}

func TestCog_IgnoresBots(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))

	evt := message("bot-2", "automated ping", warden.User{ID: "user-1", Name: "Ann"})
	evt.Bot = true
	b.EmitSync(evt)

	require.Len(t, adapter.sentTexts(), 1)
	require.Contains(t, stored(t, b), "user-1")
}

func TestCog_IgnoresDirectMessages(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))

	evt := message("user-1", "hello bot")
	evt.Guild = ""
	b.EmitSync(evt)

	assert.Empty(t, adapter.sentTemporary())
	require.Contains(t, stored(t, b), "user-1")
}

func TestCog_GuildOnlyCommand(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	evt := message("user-1", "!afk lunch")
	evt.Guild = ""
	b.EmitSync(evt)

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "This command only works in a server.", texts[0].text)
}

func TestCog_ClearOther(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "admin")
	require.NoError(t, err)

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("admin", "!afk clear <@user-1>", warden.User{ID: "user-1", Name: "Ann"}))

	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, "🧹 Cleared the AFK status of <@user-1>.", texts[1].text)
	assert.Empty(t, stored(t, b))
}

func TestCog_ClearRejectsInvalidTarget(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "admin")
	require.NoError(t, err)

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("admin", "!afk clear user-1"))

	// A bare target that is not a numeric ID is rejected.
	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Usage: `!afk clear @member`", texts[1].text)

	b.EmitSync(message("admin", "!afk clear <@user-9>"))
	texts = adapter.sentTexts()
	require.Len(t, texts, 3)
	assert.Equal(t, "Usage: `!afk clear @member`", texts[2].text)
}

func TestCog_ClearNumericID(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "admin")
	require.NoError(t, err)

	evt := message("42", "!afk lunch")
	b.EmitSync(evt)

	b.EmitSync(message("admin", "!afk clear <@!42>"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, "🧹 Cleared the AFK status of <@42>.", texts[1].text)
}

func TestCog_ClearUnknownMember(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "admin")
	require.NoError(t, err)

	b.EmitSync(message("admin", "!afk clear <@1234>"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "<@1234> is not AFK.", texts[0].text)
}

func TestCog_ClearRequiresPermission(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	b.EmitSync(message("user-1", "!afk lunch"))
	b.EmitSync(message("mallory", "!afk clear <@user-1>", warden.User{ID: "user-1", Name: "Ann"}))

	texts := adapter.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, "You are not allowed to clear the AFK status of others.", texts[1].text)
	require.Contains(t, stored(t, b), "user-1")
}

func TestCog_SurvivesRestart(t *testing.T) {
	b, adapter, _ := newTestCog(t)
	defer b.Stop()

	wardentest.WrapStorage(t, b.Store).MustSet("afk.guild-1", map[string]status{
		"user-1": {Reason: "on vacation", Since: 1700000000},
	})

	b.EmitSync(message("user-2", "ping", warden.User{ID: "user-1", Name: "Ann"}))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "🛌 **Ann** is AFK (since <t:1700000000:R>): **on vacation**", texts[0].text)
}

func TestParseMention(t *testing.T) {
	cases := map[string]string{
		"<@123>":   "123",
		"<@!123>":  "123",
		"123":      "123",
		" <@123> ": "123",
		"<@abc>":   "",
		"abc":      "",
		"":         "",
		"<@>":      "",
	}

	for input, want := range cases {
		assert.Equal(t, want, parseMention(input), "input %q", input)
	}
}
