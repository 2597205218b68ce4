// Package emoji copies custom emoji from other servers into your own. The
// !steal command parses emoji tokens out of the message, downloads the
// images from the platform CDN and uploads them again through the adapter.
package emoji

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/go-warden/warden"
)

// Scope is the permission scope required to steal emoji.
const Scope = "emoji"

// SizeLimit is the maximum image size the platform accepts for an emoji.
const SizeLimit = 256 * 1024

// DefaultCDN is where emoji images are downloaded from.
const DefaultCDN = "https://cdn.discordapp.com/emojis"

const (
	fetchTimeout = 15 * time.Second
	userAgent    = "warden-emoji/1.0"
	maxNameLen   = 32
)

var (
	tokenPattern = regexp.MustCompile(`<(a?):([A-Za-z0-9_]+):(\d+)>`)
	fullToken    = regexp.MustCompile(`^<a?:[A-Za-z0-9_]+:\d+>$`)
	nameAllowed  = regexp.MustCompile(`[^0-9a-zA-Z_]+`)
)

// A ref is a custom emoji parsed from a message.
type ref struct {
	name     string
	id       string
	animated bool
}

func (r ref) String() string {
	if r.animated {
		return "<a:" + r.name + ":" + r.id + ">"
	}
	return "<:" + r.name + ":" + r.id + ">"
}

// A Cog downloads and re-uploads custom emoji.
type Cog struct {
	logger  *zap.Logger
	auth    *warden.Auth
	adapter warden.Adapter
	client  *http.Client
	cdn     string
}

// An Option configures the Cog during New.
type Option func(*Cog)

// WithHTTPClient replaces the HTTP client used for CDN downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cog) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCDN changes the base URL emoji images are downloaded from.
func WithCDN(base string) Option {
	return func(c *Cog) {
		if base != "" {
			c.cdn = strings.TrimSuffix(base, "/")
		}
	}
}

// New creates the emoji cog and registers its command at the given bot.
func New(b *warden.Bot, opts ...Option) *Cog {
	c := &Cog{
		logger:  b.Logger.Named("emoji"),
		auth:    b.Auth,
		adapter: b.Adapter,
		client:  &http.Client{Timeout: fetchTimeout},
		cdn:     DefaultCDN,
	}

	for _, opt := range opts {
		opt(c)
	}

	b.Command("steal", "!steal <emoji…> [name_prefix] — copy custom emoji into this server", c.steal)

	return c
}

// steal copies the custom emoji mentioned in the command into the guild. A
// trailing word that is not an emoji token becomes a name prefix, the stolen
// emoji are then numbered prefix1, prefix2 and so on.
func (c *Cog) steal(msg warden.Message) error {
	if msg.Guild == "" {
		msg.Respond("This command can only be used in a server.")
		return nil
	}

	if err := c.auth.CheckPermission(Scope, msg.AuthorID); err != nil {
		if !errors.Is(err, warden.ErrNotAllowed) {
			c.logger.Error("Failed to check permission", zap.Error(err))
		}
		msg.Respond("You are not allowed to steal emoji.")
		return nil
	}

	importer, ok := c.adapter.(warden.EmojiImporter)
	if !ok {
		msg.Respond("The chat adapter cannot upload emoji.")
		return nil
	}

	text := strings.TrimSpace(msg.Matches[0])
	if text == "" {
		msg.Respond("Provide at least one custom emoji to steal.")
		return nil
	}

	refs, prefix := parseInput(text)
	if len(refs) == 0 {
		msg.Respond("I couldn't find any **custom emoji**. Example: `<:name:123456789012345678>`")
		return nil
	}

	used, limit, err := importer.EmojiUsage(msg.Guild)
	if err != nil {
		return errors.Wrap(err, "failed to check emoji slots")
	}

	free := limit - used
	if free <= 0 {
		msg.Respond("No emoji slots left (limit: %d).", limit)
		return nil
	}

	ctx := msg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var added []string
	var failures []string

	for i, r := range refs {
		if len(added) >= free {
			failures = append(failures, fmt.Sprintf("`%s` → No slots left", r))
			continue
		}

		name := sanitizeName(r.name)
		if prefix != "" {
			name = fmt.Sprintf("%s%d", prefix, i+1)
		}

		data, reason := c.fetch(ctx, r)
		if reason != "" {
			failures = append(failures, fmt.Sprintf("`%s` → %s", r, reason))
			continue
		}

		if len(data) > SizeLimit {
			failures = append(failures, fmt.Sprintf("`%s` → Too large (more than 256 KB)", r))
			continue
		}

		id, err := importer.CreateEmoji(msg.Guild, name, data)
		if err != nil {
			c.logger.Error("Failed to upload emoji",
				zap.String("guild", msg.Guild),
				zap.String("name", name),
				zap.Error(err),
			)
			failures = append(failures, fmt.Sprintf("`%s` → Upload rejected", r))
			continue
		}

		added = append(added, ref{name: name, id: id, animated: r.animated}.String())
	}

	switch {
	case len(added) > 0 && len(failures) == 0:
		msg.Respond("✅ Added: " + strings.Join(added, " "))
	case len(added) > 0:
		msg.Respond("✅ Added: " + strings.Join(added, " ") + "\n⚠️ Skipped: " + strings.Join(failures, "; "))
	default:
		msg.Respond("❌ Couldn't add any emojis. Reasons: " + strings.Join(failures, "; "))
	}

	return nil
}

// fetch downloads the emoji image. Animated emoji try the GIF first and fall
// back to the PNG render. The response is capped slightly above the upload
// size limit so oversized images can be reported without reading them whole.
func (c *Cog) fetch(ctx context.Context, r ref) (data []byte, reason string) {
	var urls []string
	if r.animated {
		urls = append(urls, fmt.Sprintf("%s/%s.gif?size=96&quality=lossless", c.cdn, r.id))
	}
	urls = append(urls, fmt.Sprintf("%s/%s.png?size=96&quality=lossless", c.cdn, r.id))

	lastStatus := 0
	for _, url := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "Invalid CDN URL"
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, "Network error"
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastStatus = resp.StatusCode
			continue
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, SizeLimit+1))
		resp.Body.Close()
		if err != nil {
			return nil, "Network error"
		}
		if len(data) > 0 {
			return data, ""
		}
	}

	if lastStatus != 0 {
		return nil, fmt.Sprintf("CDN refused (status %d)", lastStatus)
	}
	return nil, "Could not reach CDN"
}

// parseInput extracts the emoji tokens and an optional trailing name prefix
// from the command arguments.
func parseInput(text string) ([]ref, string) {
	tokens := strings.Fields(text)

	prefix := ""
	source := text
	if last := tokens[len(tokens)-1]; !fullToken.MatchString(last) {
		prefix = sanitizeName(last)
		if len(tokens) > 1 {
			source = strings.Join(tokens[:len(tokens)-1], " ")
		} else {
			source = ""
		}
	}

	refs := parseRefs(source)
	if len(refs) == 0 {
		// Maybe the "prefix" was a malformed emoji token after all; retry
		// against the full text so the user gets the proper error message.
		refs = parseRefs(text)
		if len(refs) > 0 {
			prefix = ""
		}
	}

	return refs, prefix
}

func parseRefs(text string) []ref {
	var refs []ref
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		refs = append(refs, ref{animated: m[1] == "a", name: m[2], id: m[3]})
	}
	return refs
}

// sanitizeName reduces a name to the characters the platform accepts.
func sanitizeName(name string) string {
	name = nameAllowed.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	if name == "" {
		return "emoji"
	}
	return name
}
