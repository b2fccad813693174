// sceneplay is a headless preview driver for the playback engine: it loads a
// scene file, plays it, and reports progress through the logger. With -feed
// it also serves resolved states to WebSocket clients, and with -watch it
// replays the scene whenever the file changes.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/Robertoarce/wakatto-sub005/internal/config"
	"github.com/Robertoarce/wakatto-sub005/internal/logging"
	"github.com/Robertoarce/wakatto-sub005/internal/playback"
	"github.com/Robertoarce/wakatto-sub005/internal/scene"
	"github.com/Robertoarce/wakatto-sub005/internal/statefeed"
)

type options struct {
	scenePath  string
	configPath string
	feedAddr   string
	watch      bool
	talkSounds bool
	set        map[string]bool
}

func parseFlags() *options {
	opts := &options{}

	flag.StringVar(&opts.scenePath, "scene", "", "Scene YAML file to play (required)")
	flag.StringVar(&opts.configPath, "config", "", "Config file (default: ~/.wakatto/config.yaml)")
	flag.StringVar(&opts.feedAddr, "feed", "", "Serve the WebSocket state feed on host:port")
	flag.BoolVar(&opts.watch, "watch", false, "Replay whenever the scene file changes")
	flag.BoolVar(&opts.talkSounds, "talk-sounds", false, "Log talking-sound cues")

	flag.Parse()

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	return opts
}

func main() {
	opts := parseFlags()
	if opts.scenePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, cfgErr := loadConfig(opts.configPath)

	syslog, err := logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.LogLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	mainLog := syslog.Component("sceneplay")
	fatal := func(msg string, err error) {
		mainLog.Error().Err(err).Msg(msg)
		syslog.Close()
		os.Exit(1)
	}

	if cfgErr != nil {
		mainLog.Warn().Err(cfgErr).Msg("config load failed, using defaults")
	}
	if err := applyFlags(cfg, opts); err != nil {
		fatal("invalid flags", err)
	}

	engine := playback.New(cfg.EngineConfig(), syslog.Component("engine"))
	engine.SetCharacterVoiceProfiles(cfg.VoiceProfiles())
	engine.SetTalkingSoundsEnabled(cfg.Sounds.Enabled)
	engine.SetTalkingSoundsVolume(cfg.Sounds.Volume)

	soundLog := syslog.Component("sounds")
	engine.SetTalkingSoundHandler(func(cue playback.TalkingSound) {
		soundLog.Debug().
			Str("character", cue.CharacterID).
			Float64("volume", cue.Volume).
			Msg("talking sound")
	})

	if cfg.Feed.Enabled {
		feed := statefeed.New(engine, statefeed.Config{
			Host: cfg.Feed.Host,
			Port: cfg.Feed.Port,
		}, syslog.Component("statefeed"))
		if err := feed.Start(); err != nil {
			fatal("state feed failed to start", err)
		}
		defer feed.Stop()
	}

	completed := make(chan struct{}, 1)
	progress := &progressPrinter{log: mainLog}
	unsubscribe := engine.Subscribe(func(snap playback.Snapshot) {
		progress.observe(snap)
		if snap.Status == playback.StatusComplete {
			select {
			case completed <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	s, err := scene.Load(opts.scenePath)
	if err != nil {
		fatal("failed to load scene", err)
	}
	mainLog.Info().
		Str("scene", opts.scenePath).
		Dur("duration", s.Duration).
		Int("timelines", len(s.Timelines)).
		Bool("watch", opts.watch).
		Msg("scene player starting")

	if err := engine.Play(s); err != nil {
		fatal("failed to play scene", err)
	}

	if opts.watch {
		watcher, err := watchScene(opts.scenePath, syslog.Component("watcher"), engine)
		if err != nil {
			fatal("failed to watch scene file", err)
		}
		defer watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-completed:
			if !opts.watch {
				engine.Stop()
				mainLog.Info().Msg("scene complete")
				return
			}
			mainLog.Info().Msg("scene complete, watching for changes")

		case <-sigCh:
			mainLog.Info().Msg("shutdown signal received, finishing current utterance")
			stopped := make(chan struct{})
			engine.GracefulStop(func() { close(stopped) })
			select {
			case <-stopped:
			case <-sigCh:
				mainLog.Warn().Msg("second signal, stopping immediately")
				engine.Stop()
			}
			return
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// applyFlags folds explicit command-line overrides into the loaded config.
func applyFlags(cfg *config.Config, opts *options) error {
	if opts.feedAddr != "" {
		host, portStr, err := net.SplitHostPort(opts.feedAddr)
		if err != nil {
			return err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return err
		}
		cfg.Feed.Enabled = true
		cfg.Feed.Host = host
		cfg.Feed.Port = port
	}
	if opts.set["talk-sounds"] {
		cfg.Sounds.Enabled = opts.talkSounds
	}
	return nil
}

// progressPrinter logs compact progress lines, throttled so a 60 Hz tick
// stream does not flood the console. Status changes always print.
type progressPrinter struct {
	log        zerolog.Logger
	mu         sync.Mutex
	lastPrint  time.Time
	lastStatus playback.Status
}

func (p *progressPrinter) observe(snap playback.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Status == p.lastStatus && time.Since(p.lastPrint) < 250*time.Millisecond {
		return
	}
	p.lastPrint = time.Now()
	p.lastStatus = snap.Status

	talking := 0
	revealed := 0
	for _, st := range snap.States {
		if st.IsTalking {
			talking++
		}
		revealed += utf8.RuneCountInString(st.RevealedText)
	}
	p.log.Info().
		Str("status", string(snap.Status)).
		Dur("elapsed", snap.Elapsed).
		Int("characters", len(snap.States)).
		Int("talking", talking).
		Int("revealedRunes", revealed).
		Msg("progress")
}

// sceneWatcher replays the watched scene file whenever it is rewritten. The
// directory is watched rather than the file so editors that save via rename
// keep triggering events.
type sceneWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	engine  *playback.Engine
	log     zerolog.Logger
	done    chan struct{}
}

func watchScene(path string, log zerolog.Logger, engine *playback.Engine) (*sceneWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	sw := &sceneWatcher{
		watcher: watcher,
		path:    abs,
		engine:  engine,
		log:     log,
		done:    make(chan struct{}),
	}

	go sw.watchLoop()

	return sw, nil
}

func (sw *sceneWatcher) watchLoop() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			sw.reload()
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Error().Err(err).Msg("scene watcher error")
		}
	}
}

func (sw *sceneWatcher) reload() {
	s, err := scene.Load(sw.path)
	if err != nil {
		sw.log.Error().Err(err).Msg("scene reload failed, keeping current playback")
		return
	}
	sw.log.Info().Str("path", sw.path).Msg("scene file changed, replaying")
	if err := sw.engine.Play(s); err != nil {
		sw.log.Error().Err(err).Msg("replay failed")
	}
}

// Close stops the scene watcher.
func (sw *sceneWatcher) Close() error {
	close(sw.done)
	return sw.watcher.Close()
}
