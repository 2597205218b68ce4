package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-warden/warden"
	"github.com/go-warden/warden/pulse"
	"github.com/go-warden/warden/wardentest"
)

type sentText struct {
	channel string
	text    string
}

// fakeAdapter records sent messages and presence updates.
type fakeAdapter struct {
	mu        sync.Mutex
	texts     []sentText
	presences []warden.Presence
}

func (a *fakeAdapter) RegisterAt(*warden.Brain) {}
func (a *fakeAdapter) Close() error             { return nil }

func (a *fakeAdapter) Send(text, channel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, sentText{channel: channel, text: text})
	return nil
}

func (a *fakeAdapter) SetPresence(p warden.Presence) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.presences = append(a.presences, p)
	return nil
}

func (a *fakeAdapter) sentTexts() []sentText {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentText(nil), a.texts...)
}

func (a *fakeAdapter) presenceUpdates() []warden.Presence {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]warden.Presence(nil), a.presences...)
}

func newTestBot(t *testing.T) (*warden.TestBot, *fakeAdapter) {
	t.Helper()

	adapter := new(fakeAdapter)
	b := warden.NewTest(t, warden.ModuleFunc(func(conf *warden.Config) error {
		conf.SetAdapter(adapter)
		return nil
	}))

	return b, adapter
}

func startCog(t *testing.T, b *warden.TestBot) *Cog {
	t.Helper()
	cog := New(b.Bot)
	b.Start()
	return cog
}

func grantAdmin(t *testing.T, b *warden.TestBot) {
	t.Helper()
	_, err := b.Auth.Grant(Scope, "admin")
	require.NoError(t, err)
}

func command(text string) warden.ReceiveMessageEvent {
	return warden.ReceiveMessageEvent{
		ID:         "cmd-1",
		Text:       text,
		AuthorID:   "admin",
		AuthorName: "Admin",
		Channel:    "admin-chan",
		Guild:      "guild-1",
		Time:       time.Now(),
	}
}

func TestCog_DefaultPresenceOnStart(t *testing.T) {
	b, adapter := newTestBot(t)
	startCog(t, b)
	defer b.Stop()

	updates := adapter.presenceUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "online", updates[0].Status)
	assert.Nil(t, updates[0].Activity)
}

func TestCog_AppliesPersistedPresenceOnStart(t *testing.T) {
	b, adapter := newTestBot(t)

	store := wardentest.WrapStorage(t, b.Store)
	store.MustSet(settingsKey, settings{Status: "dnd", Kind: "playing", Text: "chess"})

	startCog(t, b)
	defer b.Stop()

	updates := adapter.presenceUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "dnd", updates[0].Status)
	require.NotNil(t, updates[0].Activity)
	assert.Equal(t, "playing", updates[0].Activity.Kind)
	assert.Equal(t, "chess", updates[0].Activity.Text)
}

func TestCog_ResumesRunningRotationAfterRestart(t *testing.T) {
	b, adapter := newTestBot(t)

	store := wardentest.WrapStorage(t, b.Store)
	store.MustSet("presence.pulse.global", pulse.State{
		Scope:    "global",
		Items:    []pulse.Item{{Kind: "playing", Text: "chess"}},
		Interval: 30,
		Cooldown: 7200,
		Running:  true,
	})

	cog := startCog(t, b)
	defer b.Stop()

	st := cog.engine.Status("global")
	assert.True(t, st.Running)

	cog.engine.Tick(context.Background(), time.Now())

	updates := adapter.presenceUpdates()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.NotNil(t, last.Activity)
	assert.Equal(t, "chess", last.Activity.Text)
}

func TestCog_AutostartRestartsStoppedRotation(t *testing.T) {
	b, _ := newTestBot(t)

	store := wardentest.WrapStorage(t, b.Store)
	store.MustSet("presence.pulse.global", pulse.State{
		Scope:     "global",
		Items:     []pulse.Item{{Kind: "watching", Text: "the door"}},
		Interval:  60,
		Cooldown:  7200,
		Autostart: true,
	})

	cog := startCog(t, b)
	defer b.Stop()

	assert.True(t, cog.engine.Status("global").Running)
}

func TestCog_StatusCommand(t *testing.T) {
	b, adapter := newTestBot(t)
	startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!status idle"))

	updates := adapter.presenceUpdates()
	require.NotEmpty(t, updates)
	assert.Equal(t, "idle", updates[len(updates)-1].Status)

	var conf settings
	ok, err := b.Store.Get(settingsKey, &conf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "idle", conf.Status)

	b.EmitSync(command("!status"))
	texts := adapter.sentTexts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1].text, "idle")

	b.EmitSync(command("!status away"))
	texts = adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Unknown status")
}

func TestCog_ActivityCommand(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation add playing Minecraft"))
	b.EmitSync(command("!rotation start"))
	require.True(t, cog.engine.Status("global").Running)

	b.EmitSync(command("!activity watching the door"))

	assert.False(t, cog.engine.Status("global").Running)
	updates := adapter.presenceUpdates()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.NotNil(t, last.Activity)
	assert.Equal(t, "watching", last.Activity.Kind)
	assert.Equal(t, "the door", last.Activity.Text)

	b.EmitSync(command("!activity off"))
	updates = adapter.presenceUpdates()
	assert.Nil(t, updates[len(updates)-1].Activity)

	b.EmitSync(command("!activity dancing tango"))
	texts := adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Usage:")
}

func TestCog_RotationAddListDel(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation add playing Minecraft"))
	b.EmitSync(command("!rotation add streaming dev work | https://twitch.tv/me"))
	b.EmitSync(command("!rotation add streaming lofi beats"))

	items := cog.engine.Status("global").Items
	require.Len(t, items, 3)
	assert.Equal(t, pulse.Item{Kind: "playing", Text: "Minecraft"}, items[0])
	assert.Equal(t, pulse.Item{Kind: "streaming", Text: "dev work", URL: "https://twitch.tv/me"}, items[1])
	assert.Equal(t, pulse.Item{Kind: "streaming", Text: "lofi beats", URL: DefaultStreamURL}, items[2])

	b.EmitSync(command("!rotation add dancing tango"))
	texts := adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Unknown activity type")

	b.EmitSync(command("!rotation list"))
	texts = adapter.sentTexts()
	list := texts[len(texts)-1].text
	assert.Contains(t, list, "1. **playing** — Minecraft")
	assert.Contains(t, list, "[https://twitch.tv/me]")

	b.EmitSync(command("!rotation del 2"))
	items = cog.engine.Status("global").Items
	require.Len(t, items, 2)
	assert.Equal(t, "lofi beats", items[1].Text)

	b.EmitSync(command("!rotation del 99"))
	texts = adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Invalid index")

	b.EmitSync(command("!rotation del x"))
	texts = adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Usage:")
}

func TestCog_RotationAdvances(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation add playing Minecraft"))
	b.EmitSync(command("!rotation add watching the stars"))

	base := time.Now()
	b.EmitSync(command("!rotation start 30"))

	texts := adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Rotating every 30s with 2 item(s).")

	// Starting applied the first item immediately, the following ticks
	// advance through the list and wrap around.
	ctx := context.Background()
	cog.engine.Tick(ctx, base.Add(31*time.Second))
	cog.engine.Tick(ctx, base.Add(62*time.Second))

	updates := adapter.presenceUpdates()
	var shown []string
	for _, p := range updates {
		if p.Activity != nil {
			shown = append(shown, p.Activity.Text)
		}
	}

	assert.Equal(t, []string{"Minecraft", "the stars", "Minecraft"}, shown)
}

func TestCog_RotationStopHaltsAdvance(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation add playing Minecraft"))
	b.EmitSync(command("!rotation start"))
	b.EmitSync(command("!rotation stop"))

	assert.False(t, cog.engine.Status("global").Running)

	before := len(adapter.presenceUpdates())
	cog.engine.Tick(context.Background(), time.Now().Add(5*time.Minute))
	assert.Len(t, adapter.presenceUpdates(), before)
}

func TestCog_RotationStartWithEmptyList(t *testing.T) {
	b, adapter := newTestBot(t)
	startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation start"))

	texts := adapter.sentTexts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1].text, "Rotation list is empty")
}

func TestCog_RotationAutostart(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()
	grantAdmin(t, b)

	b.EmitSync(command("!rotation autostart on"))
	assert.True(t, cog.engine.Status("global").Autostart)

	b.EmitSync(command("!rotation autostart off"))
	assert.False(t, cog.engine.Status("global").Autostart)

	b.EmitSync(command("!rotation autostart maybe"))
	texts := adapter.sentTexts()
	assert.Contains(t, texts[len(texts)-1].text, "Usage:")
}

func TestCog_RequiresPermission(t *testing.T) {
	b, adapter := newTestBot(t)
	cog := startCog(t, b)
	defer b.Stop()

	evt := command("!rotation stop")
	evt.AuthorID = "mallory"
	b.EmitSync(evt)

	texts := adapter.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "You are not allowed to manage the bot presence.", texts[0].text)
	assert.False(t, cog.engine.Status("global").Running)
}

func TestParseInterval(t *testing.T) {
	cases := map[string]struct {
		in   string
		want time.Duration
		ok   bool
	}{
		"empty keeps configured": {in: "", want: 0, ok: true},
		"duration":               {in: "90s", want: 90 * time.Second, ok: true},
		"minutes":                {in: "2m", want: 2 * time.Minute, ok: true},
		"bare seconds":           {in: "45", want: 45 * time.Second, ok: true},
		"nonsense":               {in: "soon", ok: false},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			d, ok := parseInterval(c.in)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.want, d)
		})
	}
}

func TestSettings(t *testing.T) {
	conf := new(settings)
	assert.Equal(t, "online", conf.status())
	assert.Nil(t, conf.activity())

	conf.Status = "sleeping"
	assert.Equal(t, "online", conf.status())

	conf.Status = "idle"
	conf.Kind, conf.Text = "playing", "chess"
	assert.Equal(t, "idle", conf.status())
	require.NotNil(t, conf.activity())
	assert.Equal(t, "chess", conf.activity().Text)
}
