// The warden command runs a chat bot with all stock cogs. It is configured
// through a TOML file plus a few environment variables for secrets, which
// may also come from a .env file in the working directory:
//
//	WARDEN_DISCORD_TOKEN   bot token when the discord adapter is selected
//	WARDEN_SLACK_TOKEN     bot token when the slack adapter is selected
//	WARDEN_REDIS_PASSWORD  password of the redis storage, if any
//
// A small Discord deployment looks like this:
//
//	name = "warden"
//	prefix = "!"
//	admins = ["187487985317894144"]
//
//	[adapter]
//	kind = "discord"
//
//	[storage]
//	kind = "file"
//	path = "/var/lib/warden/memory.json"
//
//	[http]
//	listen = ":9090"
//
//	[cogs]
//	emoji = false
//
// Without a configuration file the bot starts on the local shell with
// in-memory storage, which is handy to try out cogs.
package main

import (
	"flag"
	"log"

	"github.com/fraugster/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-warden/warden/metrics"
)

func main() {
	configPath := flag.String("config", "warden.toml", "path to the TOML configuration")
	flag.Parse()

	conf, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	m := metrics.NewNop()
	if conf.HTTP.Listen != "" {
		m = metrics.NewPrometheus()
	}

	// The group context ends on SIGINT or SIGTERM and when either the bot
	// or the HTTP server fails, which shuts the other one down as well.
	g, ctx := errgroup.WithContext(cli.Context())

	b, err := New(ctx, conf, m)
	if err != nil {
		log.Fatalf("Failed to set up bot: %v", err)
	}

	g.Go(b.Run)

	if conf.HTTP.Listen != "" {
		g.Go(func() error {
			return serveHTTP(ctx, b.Logger.Named("http"), conf.HTTP.Listen, m.Collectors())
		})
	}

	err = g.Wait()
	if err != nil {
		b.Logger.Fatal("Bot terminated", zap.Error(err))
	}
}
