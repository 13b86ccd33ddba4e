package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/masahide/huginn-discord/pkg/huginn"
	"github.com/masahide/huginn-discord/pkg/metrics"
	"github.com/masahide/huginn-discord/pkg/report"
	"github.com/masahide/huginn-discord/pkg/schedule"
)

type env struct {
	Debug            bool          `envconfig:"DEBUG" default:"false"`
	BotToken         string        `envconfig:"BOT_TOKEN" required:"true"`
	ScheduleTimezone string        `envconfig:"SCHEDULE_TIMEZONE"`
	PresenceInterval time.Duration `envconfig:"PRESENCE_INTERVAL" default:"30s"`
	OtelEnabled      bool          `envconfig:"OTEL_ENABLED" default:"false"`
	OtelInterval     time.Duration `envconfig:"OTEL_INTERVAL" default:"60s"`
	huginn.Env
	metrics.MackerelEnv
}

// loadEnv reads envFile when it exists, then the process environment.
func loadEnv(envFile string) (env, error) {
	e := env{}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return e, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := envconfig.Process("", &e); err != nil {
		return e, err
	}
	if strings.TrimSpace(e.BotToken) == "" {
		return e, errors.New("BOT_TOKEN env variable must be set")
	}
	if strings.TrimSpace(e.HuginnURL) == "" {
		return e, errors.New("HUGINN_URL env variable must be set")
	}
	if e.PresenceInterval < 0 {
		return e, fmt.Errorf("PRESENCE_INTERVAL must be >= 0, got %s", e.PresenceInterval)
	}
	return e, nil
}

func (e env) location() (*time.Location, error) {
	if e.ScheduleTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	return loc, nil
}

func setupLogger(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.With().Caller().Logger()
}

func maskToken(t string) string {
	if len(t) <= 8 {
		return "****"
	}
	return t[:4] + "****"
}

const recordTimeout = 10 * time.Second

type statusFetcher interface {
	FetchStatus(ctx context.Context) (huginn.Result, error)
}

type discordbot struct {
	env
	ctx       context.Context
	huginn    statusFetcher
	formatter *report.Formatter
	sink      metrics.Sink

	presenceOnce sync.Once
}

func newBot(ctx context.Context, e env, f statusFetcher, fm *report.Formatter, sink metrics.Sink) *discordbot {
	if sink == nil {
		sink = metrics.Multi{}
	}
	return &discordbot{env: e, ctx: ctx, huginn: f, formatter: fm, sink: sink}
}

// fetch polls Huginn once. The outcome is handed to the metric sinks in the
// background so replies only wait on Huginn.
func (d *discordbot) fetch(ctx context.Context) (huginn.Result, error) {
	res, err := d.huginn.FetchStatus(ctx)
	if err != nil {
		return res, err
	}
	go d.record(res, time.Now())
	return res, nil
}

func (d *discordbot) record(res huginn.Result, now time.Time) {
	ctx, cancel := context.WithTimeout(d.ctx, recordTimeout)
	defer cancel()
	if err := d.sink.Record(ctx, res, now); err != nil {
		log.Warn().Err(err).Msg("Error recording metrics")
	}
}

func (d *discordbot) statusMessage(ctx context.Context) (string, error) {
	res, err := d.fetch(ctx)
	if err != nil {
		return "", err
	}
	return d.formatter.Render(res).Markdown(), nil
}

// reply resolves the text for act. ok is false when nothing should be sent.
func (d *discordbot) reply(act action) (string, bool) {
	if !act.status {
		return act.text, true
	}
	content, err := d.statusMessage(d.ctx)
	if err != nil {
		log.Error().Err(err).Msg("status fetch interrupted, not replying")
		return "", false
	}
	return content, true
}

func (d *discordbot) ready(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("user", r.User.String()).Int("guilds", len(r.Guilds)).Msg("connected to discord")
	if d.PresenceInterval <= 0 {
		return
	}
	d.presenceOnce.Do(func() {
		go d.presenceLoop(d.ctx, s, d.PresenceInterval)
	})
}

type commandRegistrar interface {
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

var _ commandRegistrar = (*discordgo.Session)(nil)

func (d *discordbot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if err := registerCommands(s, s.State.User.ID, g.ID); err != nil {
		log.Error().Err(err).Str("guild", g.ID).Msg("Error registering command")
		return
	}
	log.Debug().Str("guild", g.ID).Str("command", statusCommandName).Msg("command registered")
}

// registerCommands upserts the status command for one guild.
func registerCommands(r commandRegistrar, appID, guildID string) error {
	_, err := r.ApplicationCommandCreate(appID, guildID, &discordgo.ApplicationCommand{
		Name:        statusCommandName,
		Description: statusCommandDesc,
	})
	return err
}

func (d *discordbot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ev := eventFromMessage(m.Message, s.State.User.ID)
	t := classify(ev)
	act, ok := actionFor(t)
	if !ok {
		return
	}
	log.Debug().Str("trigger", t.String()).Str("channel", m.ChannelID).Msg("message")
	content, ok := d.reply(act)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
		log.Error().Err(err).Str("channel", m.ChannelID).Msg("Error sending reply")
	}
}

func (d *discordbot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ev, ok := eventFromInteraction(i.Interaction)
	if !ok {
		return
	}
	t := classify(ev)
	act, _ := actionFor(t)
	log.Debug().Str("trigger", t.String()).Str("command", ev.command).Msg("interaction")

	if !act.status {
		var flags discordgo.MessageFlags
		if act.ephemeral {
			flags = discordgo.MessageFlagsEphemeral
		}
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: act.text, Flags: flags},
		})
		if err != nil {
			log.Error().Err(err).Msg("Error responding to interaction")
		}
		return
	}

	// Acknowledge first, the fetch may outlast the interaction deadline.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Error().Err(err).Msg("Error deferring interaction")
		return
	}
	content, ok := d.reply(act)
	if !ok {
		return
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		log.Error().Err(err).Msg("Error editing interaction response")
	}
}

func buildSinks(ctx context.Context, e env) (metrics.Multi, func()) {
	sinks := metrics.Multi{}
	cleanup := func() {}
	if e.MackerelEnv.Enabled() {
		sinks = append(sinks, metrics.NewMackerel(e.MackerelEnv))
		log.Info().Str("host", e.MackerelHostID).Msg("mackerel metrics enabled")
	}
	if e.OtelEnabled {
		o, err := metrics.NewOTel(ctx, e.OtelInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("otel setup")
		}
		sinks = append(sinks, o)
		cleanup = func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.Shutdown(shCtx); err != nil {
				log.Error().Err(err).Msg("otel shutdown")
			}
		}
		log.Info().Dur("interval", e.OtelInterval).Msg("otel metrics enabled")
	}
	return sinks, cleanup
}

func main() {
	e, err := loadEnv(".env")
	setupLogger(e.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	log.Info().Msg("Starting up")
	log.Info().Str("BOT_TOKEN", maskToken(e.BotToken)).Msg("Loaded BOT_TOKEN")
	log.Info().Str("HUGINN_URL", e.HuginnURL).Msg("Loaded HUGINN_URL")

	loc, err := e.location()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	client, err := huginn.NewClient(e.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, flush := buildSinks(ctx, e)
	defer flush()

	dg, err := discordgo.New("Bot " + e.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating Discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	d := newBot(ctx, e, client, report.NewFormatter(schedule.NewEvaluator(loc)), sinks)
	dg.AddHandler(d.ready)
	dg.AddHandler(d.guildCreate)
	dg.AddHandler(d.messageCreate)
	dg.AddHandler(d.interactionCreate)

	if err := dg.Open(); err != nil {
		log.Fatal().Err(err).Msg("Fatal: error opening connection")
	}
	defer dg.Close()

	<-ctx.Done()
	log.Info().Msg("shutting down...")
}
