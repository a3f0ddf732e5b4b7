package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/DailyProgress/YearReel/internal/alerts"
	"github.com/DailyProgress/YearReel/internal/genai"
	"github.com/DailyProgress/YearReel/internal/generator"
	"github.com/DailyProgress/YearReel/internal/history"
	"github.com/DailyProgress/YearReel/internal/lockfile"
	"github.com/DailyProgress/YearReel/internal/models"
	"github.com/DailyProgress/YearReel/internal/orchestrator"
	"github.com/DailyProgress/YearReel/internal/render"
	"github.com/DailyProgress/YearReel/internal/statestore"
	"github.com/DailyProgress/YearReel/internal/uploader"
	"github.com/DailyProgress/YearReel/internal/util"
)

// Default configuration constants
const (
	// DefaultWorkDir is the default directory for YearReel lock and scratch data
	DefaultWorkDir = "/var/lib/yearreel"
	// DefaultHistoryDBFileName is the default SQLite history database filename
	DefaultHistoryDBFileName = "yearreel-history.db"
)

func main() {
	os.Exit(run())
}

// run is the whole control flow. It returns the process exit code so deferred
// cleanup (lock release, video removal) still executes.
func run() int {
	// Load environment configuration first so LOG_LEVEL can shape the logger
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx := context.Background()

	// Serialize runs against the shared work directory
	lock, err := lockfile.AcquireLock(*flags.workDir)
	if err != nil {
		slog.Error("Failed to acquire run lock", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer lock.Release()

	// The remote state record is mandatory: without it every run would repost
	state, err := statestore.NewClient(
		statestore.WithGistID(*flags.gistID),
		statestore.WithToken(*flags.gistToken),
	)
	if err != nil {
		slog.Error("Failed to configure state store", "error", err)
		return 1
	}

	if *flags.reset {
		if err := state.Reset(ctx); err != nil {
			slog.Error("Failed to reset state record", "error", err)
			return 1
		}
		slog.Info("State record reset, next run will post unconditionally")
		return 0
	}

	orch, err := buildOrchestrator(flags)
	if err != nil {
		slog.Error("Failed to configure uploaders", "error", err)
		return 1
	}
	if len(orch.Platforms()) == 0 {
		slog.Error("No platform credentials configured, nothing to post to")
		return 1
	}

	if *flags.verify {
		return verifyCredentials(ctx, orch)
	}

	gen, err := buildGenerator(flags)
	if err != nil {
		slog.Error("Failed to configure generator", "error", err)
		return 1
	}

	notifier := buildNotifier()
	return post(ctx, flags, state, gen, orch, notifier)
}

// post runs the generate/upload/record sequence for one invocation.
func post(ctx context.Context, flags Flags, state *statestore.Client, gen generator.Generator, orch *orchestrator.Orchestrator, notifier alerts.Notifier) int {
	last := state.Fetch(ctx)
	if !gen.ShouldGenerate(last) {
		slog.Info("Current value already posted, skipping",
			"content_type", gen.ContentType(), "current_value", gen.CurrentValue())
		return 0
	}

	bundle, err := gen.Generate(ctx)
	if err != nil {
		slog.Error("Content generation failed", "error", err)
		return 1
	}
	// The rendered video is scratch data; remove it whatever happens next
	defer func() {
		if err := os.Remove(bundle.VideoPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove rendered video", "path", bundle.VideoPath, "error", err)
		}
	}()

	caption := bundle.Caption
	if len(bundle.Hashtags) > 0 {
		caption += "\n\n" + strings.Join(bundle.Hashtags, " ")
	}

	opts := models.UploadOptions{DryRun: *flags.dryRun}
	aggregate := uploadToSelected(ctx, orch, bundle.VideoPath, caption, flags, opts)

	if *flags.dryRun {
		slog.Info("Dry run complete, state record left untouched",
			"successful", len(aggregate.Results.Successful), "failed", len(aggregate.Results.Failed))
		return 0
	}

	recordHistory(flags, gen, caption, aggregate)

	if !aggregate.Success {
		slog.Error("All platform uploads failed", "failed", len(aggregate.Results.Failed))
		notify(ctx, notifier, "all uploads failed",
			fmt.Sprintf("%d platform(s) failed for %s=%v", len(aggregate.Results.Failed), gen.ContentType(), gen.CurrentValue()))
		return 1
	}

	if _, err := state.Write(ctx, models.StateRecord{
		LastValue:   gen.CurrentValue(),
		ContentType: gen.ContentType(),
		Year:        gen.CurrentYear(),
	}); err != nil {
		// A stale record means the next scheduled run reposts, so this is fatal
		slog.Error("Failed to write state record", "error", err)
		notify(ctx, notifier, "state write failed", err.Error())
		return 1
	}

	slog.Info("Run complete",
		"content_type", gen.ContentType(),
		"value", gen.CurrentValue(),
		"successful", len(aggregate.Results.Successful),
		"failed", len(aggregate.Results.Failed))
	return 0
}

// uploadToSelected fans out to every configured platform, or to the subset
// named by -platforms.
func uploadToSelected(ctx context.Context, orch *orchestrator.Orchestrator, videoPath, caption string, flags Flags, opts models.UploadOptions) models.MultiUploadResult {
	if *flags.platforms == "" {
		return orch.UploadToAll(ctx, videoPath, caption, opts)
	}
	var selected []models.Platform
	for _, name := range strings.Split(*flags.platforms, ",") {
		selected = append(selected, models.Platform(strings.TrimSpace(name)))
	}
	return orch.UploadTo(ctx, videoPath, caption, selected, opts)
}

// recordHistory saves per-platform outcomes. History is best-effort and never
// changes the exit code.
func recordHistory(flags Flags, gen generator.Generator, caption string, aggregate models.MultiUploadResult) {
	st, err := history.NewStore(buildHistoryOptions(flags)...)
	if err != nil {
		slog.Warn("History store unavailable, skipping history", "error", err)
		return
	}
	defer st.Close()

	all := append(aggregate.Results.Successful, aggregate.Results.Failed...)
	for _, r := range all {
		postID, _ := r.Result["id"].(string)
		rec := history.Record{
			ContentType: gen.ContentType(),
			Value:       fmt.Sprint(gen.CurrentValue()),
			Caption:     caption,
			Platform:    r.Platform,
			Success:     r.Success,
			PostID:      postID,
			Error:       r.Error,
		}
		if err := st.RecordUpload(rec); err != nil {
			slog.Warn("Failed to record history", "platform", r.Platform, "error", err)
		}
	}
}

// verifyCredentials runs each uploader's read-only credential check.
func verifyCredentials(ctx context.Context, orch *orchestrator.Orchestrator) int {
	failed := 0
	for _, platform := range orch.Platforms() {
		ok := orch.VerifyCredentials(ctx, platform)
		fmt.Printf("%-10s %v\n", platform, ok)
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		slog.Error("Credential verification failed", "failed", failed)
		return 1
	}
	slog.Info("All platform credentials verified")
	return 0
}

func notify(ctx context.Context, notifier alerts.Notifier, subject, body string) {
	if err := notifier.Notify(ctx, subject, body); err != nil {
		slog.Warn("Failed to send operator alert", "subject", subject, "error", err)
	}
}

// Config holds environment configuration
type Config struct {
	LogLevel       string
	WorkDir        string
	GistID         string
	GistToken      string
	ContentType    string
	TemplatesPath  string
	HistoryDSN     string
	OpenAIKey      string
	DryRun         bool
	FontPath       string
	BackgroundDir  string
	AudioDir       string
	FFmpegPath     string
	YouTubeToken   string
	FacebookPageID string
	FacebookToken  string
	InstagramUser  string
	InstagramToken string
	HostUploadURL  string
	HostPublicURL  string
	HostToken      string
}

// Flags holds command line flag values
type Flags struct {
	workDir       *string
	gistID        *string
	gistToken     *string
	contentType   *string
	templatesPath *string
	historyDSN    *string
	openaiKey     *string
	dryRun        *bool
	reset         *bool
	verify        *bool
	platforms     *string
	fontPath      *string
	backgroundDir *string
	audioDir      *string
	ffmpegPath    *string

	env Config
}

// initializeLogger sets up structured logging at the configured level
func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		LogLevel:       os.Getenv("LOG_LEVEL"),
		WorkDir:        os.Getenv("YEARREEL_WORK_DIR"),
		GistID:         os.Getenv("STATE_GIST_ID"),
		GistToken:      os.Getenv("STATE_GIST_TOKEN"),
		ContentType:    os.Getenv("CONTENT_TYPE"),
		TemplatesPath:  os.Getenv("CAPTION_TEMPLATES"),
		HistoryDSN:     os.Getenv("HISTORY_DB_DSN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		DryRun:         util.ParseBoolEnv("DRY_RUN", false),
		FontPath:       os.Getenv("FONT_PATH"),
		BackgroundDir:  os.Getenv("BACKGROUND_DIR"),
		AudioDir:       os.Getenv("AUDIO_DIR"),
		FFmpegPath:     os.Getenv("FFMPEG_PATH"),
		YouTubeToken:   os.Getenv("YOUTUBE_ACCESS_TOKEN"),
		FacebookPageID: os.Getenv("FACEBOOK_PAGE_ID"),
		FacebookToken:  os.Getenv("FACEBOOK_ACCESS_TOKEN"),
		InstagramUser:  os.Getenv("INSTAGRAM_USER_ID"),
		InstagramToken: os.Getenv("INSTAGRAM_ACCESS_TOKEN"),
		HostUploadURL:  os.Getenv("VIDEO_HOST_UPLOAD_URL"),
		HostPublicURL:  os.Getenv("VIDEO_HOST_PUBLIC_URL"),
		HostToken:      os.Getenv("VIDEO_HOST_TOKEN"),
	}

	if config.WorkDir == "" {
		config.WorkDir = DefaultWorkDir
		slog.Debug("No YEARREEL_WORK_DIR set, using default", "default_work_dir", config.WorkDir)
	}
	if config.ContentType == "" {
		config.ContentType = generator.ContentTypeYearProgress
	}
	// Fall back to the shared database URL, then to SQLite in the work directory
	if config.HistoryDSN == "" {
		config.HistoryDSN = os.Getenv("DATABASE_URL")
	}
	if config.HistoryDSN == "" {
		config.HistoryDSN = filepath.Join(config.WorkDir, DefaultHistoryDBFileName)
		slog.Debug("No history DSN provided, defaulting to SQLite", "sqlite_path", config.HistoryDSN)
	}

	slog.Debug("environment variables loaded",
		"YEARREEL_WORK_DIR", config.WorkDir,
		"STATE_GIST_ID_SET", config.GistID != "",
		"STATE_GIST_TOKEN_SET", config.GistToken != "",
		"CONTENT_TYPE", config.ContentType,
		"HISTORY_DB_DSN_SET", config.HistoryDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DRY_RUN", config.DryRun)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		workDir:       flag.String("work-dir", config.WorkDir, "work directory for lock and scratch data (overrides $YEARREEL_WORK_DIR)"),
		gistID:        flag.String("gist-id", config.GistID, "gist id holding the state record (overrides $STATE_GIST_ID)"),
		gistToken:     flag.String("gist-token", config.GistToken, "token for gist API access (overrides $STATE_GIST_TOKEN)"),
		contentType:   flag.String("content-type", config.ContentType, "registered content type to post (overrides $CONTENT_TYPE)"),
		templatesPath: flag.String("templates", config.TemplatesPath, "caption templates YAML file (overrides $CAPTION_TEMPLATES)"),
		historyDSN:    flag.String("history-dsn", config.HistoryDSN, "history database DSN (overrides $HISTORY_DB_DSN or $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for caption enhancement (overrides $OPENAI_API_KEY)"),
		dryRun:        flag.Bool("dry-run", config.DryRun, "render but skip uploads and state write (overrides $DRY_RUN)"),
		reset:         flag.Bool("reset", false, "reset the state record and exit"),
		verify:        flag.Bool("verify", false, "verify platform credentials and exit"),
		platforms:     flag.String("platforms", "", "comma-separated subset of platforms to post to (default all configured)"),
		fontPath:      flag.String("font", config.FontPath, "TTF font for captions (overrides $FONT_PATH)"),
		backgroundDir: flag.String("background-dir", config.BackgroundDir, "directory of background images (overrides $BACKGROUND_DIR)"),
		audioDir:      flag.String("audio-dir", config.AudioDir, "directory of audio tracks (overrides $AUDIO_DIR)"),
		ffmpegPath:    flag.String("ffmpeg", config.FFmpegPath, "ffmpeg binary path (overrides $FFMPEG_PATH)"),
		env:           config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"workDir", *flags.workDir,
		"gistID_set", *flags.gistID != "",
		"contentType", *flags.contentType,
		"historyDSN_set", *flags.historyDSN != "",
		"dryRun", *flags.dryRun,
		"reset", *flags.reset,
		"verify", *flags.verify,
		"platforms", *flags.platforms)

	return flags
}

// buildGenerator wires the render pipeline, templates and optional caption
// enhancer into the selected content generator.
func buildGenerator(flags Flags) (generator.Generator, error) {
	renderOpts := []render.Option{
		render.WithOutputDir(*flags.workDir),
	}
	if *flags.fontPath != "" {
		renderOpts = append(renderOpts, render.WithFont(*flags.fontPath, 0))
	}
	if *flags.backgroundDir != "" {
		renderOpts = append(renderOpts, render.WithBackgroundDir(*flags.backgroundDir))
	}
	if *flags.audioDir != "" {
		renderOpts = append(renderOpts, render.WithAudioDir(*flags.audioDir))
	}
	if *flags.ffmpegPath != "" {
		renderOpts = append(renderOpts, render.WithFFmpegPath(*flags.ffmpegPath))
	}
	pipeline, err := render.NewPipeline(renderOpts...)
	if err != nil {
		return nil, fmt.Errorf("build render pipeline: %w", err)
	}

	cfg := generator.Config{Renderer: pipeline}

	if *flags.templatesPath != "" {
		templates, err := generator.LoadTemplates(*flags.templatesPath)
		if err != nil {
			return nil, fmt.Errorf("load caption templates: %w", err)
		}
		cfg.Templates = templates
	}

	if *flags.openaiKey != "" {
		enhancer, err := genai.NewEnhancer(*flags.openaiKey)
		if err != nil {
			return nil, fmt.Errorf("build caption enhancer: %w", err)
		}
		cfg.Enhancer = enhancer
	} else {
		slog.Debug("No OpenAI key configured, captions stay templated")
	}

	return generator.New(*flags.contentType, cfg)
}

// buildOrchestrator constructs an uploader per platform with credentials.
func buildOrchestrator(flags Flags) (*orchestrator.Orchestrator, error) {
	orch := orchestrator.New()

	if flags.env.YouTubeToken != "" {
		yt, err := uploader.NewYouTube(uploader.WithYouTubeToken(flags.env.YouTubeToken))
		if err != nil {
			return nil, fmt.Errorf("configure youtube uploader: %w", err)
		}
		orch.AddUploader(yt)
	}

	if flags.env.FacebookPageID != "" && flags.env.FacebookToken != "" {
		fb, err := uploader.NewFacebook(
			uploader.WithFacebookPage(flags.env.FacebookPageID),
			uploader.WithFacebookToken(flags.env.FacebookToken),
		)
		if err != nil {
			return nil, fmt.Errorf("configure facebook uploader: %w", err)
		}
		orch.AddUploader(fb)
	}

	if flags.env.InstagramUser != "" && flags.env.InstagramToken != "" {
		igOpts := []uploader.InstagramOption{
			uploader.WithInstagramUser(flags.env.InstagramUser),
			uploader.WithInstagramToken(flags.env.InstagramToken),
		}
		if flags.env.HostUploadURL != "" && flags.env.HostPublicURL != "" {
			host, err := uploader.NewHTTPHost(
				uploader.WithHostURLs(flags.env.HostUploadURL, flags.env.HostPublicURL),
				uploader.WithHostToken(flags.env.HostToken),
			)
			if err != nil {
				return nil, fmt.Errorf("configure video host: %w", err)
			}
			igOpts = append(igOpts, uploader.WithInstagramHost(host))
		}
		ig, err := uploader.NewInstagram(igOpts...)
		if err != nil {
			return nil, fmt.Errorf("configure instagram uploader: %w", err)
		}
		orch.AddUploader(ig)
	}

	slog.Debug("uploaders configured", "platforms", orch.Platforms())
	return orch, nil
}

// buildHistoryOptions constructs history store configuration options
func buildHistoryOptions(flags Flags) []history.Option {
	var opts []history.Option
	if *flags.historyDSN != "" {
		if history.DetectDSNType(*flags.historyDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL history", "dsn_type", "postgresql")
			opts = append(opts, history.WithPostgresDSN(*flags.historyDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite history", "dsn_type", "sqlite", "db_path", *flags.historyDSN)
			opts = append(opts, history.WithSQLiteDSN(*flags.historyDSN))
		}
	} else {
		slog.Debug("No history DSN provided, will use in-memory history")
	}
	return opts
}

// buildNotifier constructs the operator alert channel, or a no-op when Twilio
// is not configured.
func buildNotifier() alerts.Notifier {
	notifier, err := alerts.NewClient()
	if err != nil {
		slog.Debug("Operator alerts disabled", "reason", err)
		return alerts.NopNotifier{}
	}
	return notifier
}
