package embeds

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-warden/warden"
)

type sentText struct {
	channel string
	text    string
}

type sentEmbed struct {
	channel string
	text    string
	embed   warden.Embed
}

type fakeAdapter struct {
	mu     sync.Mutex
	texts  []sentText
	embeds []sentEmbed
}

func (a *fakeAdapter) RegisterAt(*warden.Brain) {}
func (a *fakeAdapter) Close() error             { return nil }

func (a *fakeAdapter) Send(text, channel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, sentText{channel: channel, text: text})
	return nil
}

func (a *fakeAdapter) SendEmbed(channel, text string, embed warden.Embed) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.embeds = append(a.embeds, sentEmbed{channel: channel, text: text, embed: embed})
	return nil
}

func (a *fakeAdapter) sentTexts() []sentText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentText(nil), a.texts...)
}

func (a *fakeAdapter) sentEmbeds() []sentEmbed {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentEmbed(nil), a.embeds...)
}

func newTestCog(t *testing.T) (*warden.TestBot, *fakeAdapter) {
	t.Helper()

	adapter := new(fakeAdapter)
	b := warden.NewTest(t, warden.ModuleFunc(func(conf *warden.Config) error {
		conf.SetAdapter(adapter)
		return nil
	}))

	New(b.Bot)
	b.Start()

	_, err := b.Auth.Grant(Scope, "mod")
	require.NoError(t, err)

	return b, adapter
}

func command(text string) warden.ReceiveMessageEvent {
	return warden.ReceiveMessageEvent{
		ID:       "cmd-1",
		Text:     text,
		AuthorID: "mod",
		Channel:  "staff",
		Guild:    "guild-1",
		Time:     time.Now(),
	}
}

func TestCog_Post(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post <#news> Game night! | Friday at 8pm, bring snacks | #5865F2"))

	embeds := adapter.sentEmbeds()
	require.Len(t, embeds, 1)
	assert.Equal(t, "news", embeds[0].channel)
	assert.Equal(t, "", embeds[0].text)
	assert.Equal(t, warden.Embed{
		Title:       "Game night!",
		Description: "Friday at 8pm, bring snacks",
		Color:       0x5865F2,
	}, embeds[0].embed)

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, sentText{channel: "staff", text: "✅ Embed sent."}, texts[0])
}

func TestCog_PostTitleOnly(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post <#news> Maintenance tonight"))

	embeds := adapter.sentEmbeds()
	require.Len(t, embeds, 1)
	assert.Equal(t, warden.Embed{Title: "Maintenance tonight"}, embeds[0].embed)
}

func TestCog_PostRequiresChannel(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post Game night! | Friday"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Usage: `!embed post <#channel> <title> | <text> | <#color>`.", texts[0].text)
	assert.Empty(t, adapter.sentEmbeds())
}

func TestCog_PostRequiresTitle(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post <#news> | body without title"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Usage: `<title> | <text> | <#color>`, only the title is required.", texts[0].text)
}

func TestCog_PostInvalidColor(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post <#news> Title | Body | bright red"))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "❌ Invalid color. Use hex like `#5865F2`.", texts[0].text)
	assert.Empty(t, adapter.sentEmbeds())
}

func TestCog_PostTitleTooLong(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed post <#news> " + strings.Repeat("x", maxTitleLen+1)))

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "The title must be at most 256 characters.", texts[0].text)
}

func TestCog_PostWithoutEmbedSender(t *testing.T) {
	b := warden.NewTest(t)
	New(b.Bot)
	b.Start()
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "mod")
	require.NoError(t, err)

	b.EmitSync(command("!embed post <#news> Title"))

	assert.Contains(t, b.ReadOutput(), "The chat adapter cannot send embeds.")
}

func TestCog_Preview(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	b.EmitSync(command("!embed preview Game night! | Friday at 8pm | 0x5865F2"))

	embeds := adapter.sentEmbeds()
	require.Len(t, embeds, 1)
	assert.Equal(t, "staff", embeds[0].channel)
	assert.Equal(t, warden.Embed{
		Title:       "Game night!",
		Description: "Friday at 8pm",
		Color:       0x5865F2,
	}, embeds[0].embed)

	// The preview itself is the only response.
	assert.Empty(t, adapter.sentTexts())
}

func TestCog_PreviewFallsBackToText(t *testing.T) {
	b := warden.NewTest(t)
	New(b.Bot)
	b.Start()
	defer b.Stop()

	_, err := b.Auth.Grant(Scope, "mod")
	require.NoError(t, err)

	b.EmitSync(command("!embed preview Game night! | Friday at 8pm"))

	out := b.ReadOutput()
	assert.Contains(t, out, "Game night!")
	assert.Contains(t, out, "Friday at 8pm")
}

func TestCog_RequiresPermission(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	evt := command("!embed post <#news> Title")
	evt.AuthorID = "mallory"
	b.EmitSync(evt)

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "You are not allowed to post embeds.", texts[0].text)
	assert.Empty(t, adapter.sentEmbeds())
}

func TestCog_GuildOnly(t *testing.T) {
	b, adapter := newTestCog(t)
	defer b.Stop()

	evt := command("!embed preview Title")
	evt.Guild = ""
	b.EmitSync(evt)

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "This command only works in a server.", texts[0].text)
}

func TestParseColor(t *testing.T) {
	valid := map[string]int{
		"#5865F2":  0x5865F2,
		"0x5865F2": 0x5865F2,
		"5865F2":   0x5865F2,
		"#fff":     0xFFF,
		" #000000": 0,
	}
	for in, want := range valid {
		got, err := parseColor(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	for _, in := range []string{"", "red", "#12345678", "-1"} {
		_, err := parseColor(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestSplitChannel(t *testing.T) {
	channel, rest := splitChannel("<#123> Title | Body")
	assert.Equal(t, "123", channel)
	assert.Equal(t, "Title | Body", rest)

	channel, rest = splitChannel("Title | Body")
	assert.Equal(t, "", channel)
	assert.Equal(t, "Title | Body", rest)

	channel, _ = splitChannel("<#> broken")
	assert.Equal(t, "", channel)
}
