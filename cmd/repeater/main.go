// Command repeater runs a half-duplex radio repeater controller: it records
// what the receiver hears and re-transmits it, driving the radio through GPIO.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/repeater/internal/archive"
	"github.com/sweeney/repeater/internal/audio"
	"github.com/sweeney/repeater/internal/config"
	"github.com/sweeney/repeater/internal/gpio"
	"github.com/sweeney/repeater/internal/logging"
	"github.com/sweeney/repeater/internal/notify"
	"github.com/sweeney/repeater/internal/recordings"
	"github.com/sweeney/repeater/internal/repeater"
	"github.com/sweeney/repeater/internal/status"
	"github.com/sweeney/repeater/internal/web"
)

const (
	shutdownTimeout    = 5 * time.Second
	mqttStatusInterval = 5 * time.Second
)

type flags struct {
	configPath string
	logLevel   string
	printState bool
	archive    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("repeater", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "/etc/repeater/repeater.yaml", "path to the YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	fs.BoolVar(&f.printState, "print-state", false, "print the carrier-detect input and exit")
	fs.BoolVar(&f.archive, "archive", false, "upload stored recordings to the archive server and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(f, os.Stdout, os.Stderr, sigCh); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			reportFatal(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// loggedError is a fatal error already written to the process logger.
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

// reportFatal prints a timestamped fatal line for errors raised before the
// configured logger exists.
func reportFatal(w io.Writer, err error) {
	l, lerr := logging.New(logging.Options{}, w)
	if lerr != nil {
		fmt.Fprintf(w, "%s FTL fatal error=%q\n", time.Now().Format(time.RFC3339), err.Error())
		return
	}
	l.WithLevel(zerolog.FatalLevel).Err(err).Msg("fatal")
}

// loadConfig loads and validates the configuration. Nothing touches the
// hardware before this succeeds.
func loadConfig(f flags) (*config.Config, repeater.Mode, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, 0, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	mode, err := repeater.ParseMode(cfg.Mode)
	if err != nil {
		return nil, 0, err
	}
	return cfg, mode, nil
}

func run(f flags, stdout, stderr io.Writer, sig <-chan os.Signal) error {
	cfg, mode, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogOptions(), stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	if err := serve(f, cfg, mode, logger, stdout, sig); err != nil {
		mlog := logger.Component("main")
		mlog.WithLevel(zerolog.FatalLevel).Err(err).Msg("fatal")
		return loggedError{err}
	}
	return nil
}

// serve runs the configured command until it finishes, a signal arrives or
// the radio fails.
func serve(f flags, cfg *config.Config, mode repeater.Mode, logger *logging.Logger, stdout io.Writer, sig <-chan os.Signal) error {
	log := logger.Component("main")

	if f.archive {
		return runArchive(cfg, logger, stdout)
	}

	backend, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	radio, err := gpio.OpenRadio(backend, cfg.Radio())
	if err != nil {
		backend.Close()
		return fmt.Errorf("open radio interface: %w", err)
	}
	defer func() {
		if err := radio.Close(); err != nil {
			log.Error().Err(err).Msg("release gpio")
		}
	}()
	log.Info().Str("backend", backend.Name()).Msg("radio interface ready")

	if f.printState {
		return printState(radio, stdout)
	}

	var store *recordings.Store
	if cfg.StoreRecordings {
		store, err = recordings.Open(cfg.Paths.Database, cfg.Paths.Recordings)
		if err != nil {
			return fmt.Errorf("open recordings store: %w", err)
		}
		defer store.Close()
	}

	var publisher *notify.MQTTPublisher
	var pub notify.Publisher
	if cfg.MQTT.Enabled {
		publisher = notify.NewMQTTPublisher(notify.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		}, logger.Component("mqtt"))
		pub = publisher
	}
	var hook notify.Poster
	if cfg.Tripwire.Enabled {
		hook = notify.NewWebhook(cfg.Tripwire.URL, cfg.TripwireTimeout())
	}
	dispatcher := notify.NewDispatcher(pub, hook, logger.Component("notify"))
	defer dispatcher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, backend.Name()))

	deps := repeater.Deps{
		Radio:  radio,
		Engine: audio.NewSox(cfg.Audio.RecordBin, cfg.Audio.PlayBin, cfg.Paths.Sounds, cfg.StopGrace()),
		Clock:  repeater.SystemClock{},
		Hooks:  buildHooks(tracker, store, dispatcher, logger.Component("hooks")),
		Log:    logger.Component("controller"),
	}
	runner, err := repeater.Dispatch(mode, deps, repeater.OptionsFromConfig(cfg, mode))
	if err != nil {
		return err
	}

	dispatcher.System(notify.SystemEvent{Timestamp: time.Now(), Event: notify.EventStartup, Mode: mode.String(), Retained: true})
	log.Info().Str("mode", mode.String()).Bool("enabled", cfg.Enabled).Msg("repeater started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, storeLister(store), logger.Component("http"))
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if publisher != nil {
		g.Go(func() error {
			ticker := time.NewTicker(mqttStatusInterval)
			defer ticker.Stop()
			for {
				tracker.SetMQTTConnected(publisher.IsConnected())
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	runErr := g.Wait()

	shutdown := notify.SystemEvent{Timestamp: time.Now(), Event: notify.EventShutdown, Retained: true}
	select {
	case shutdown.Reason = <-reason:
	default:
		shutdown.Reason = "ERROR"
	}
	dispatcher.System(shutdown)
	if !dispatcher.Wait(shutdownTimeout) {
		log.Warn().Msg("notifications still in flight at shutdown")
	}

	if runErr != nil {
		return runErr
	}
	log.Info().Msg("repeater stopped")
	return nil
}

// buildHooks wires the control loop's side effects. store may be nil.
func buildHooks(tracker *status.Tracker, store *recordings.Store, dispatcher *notify.Dispatcher, log zerolog.Logger) repeater.Hooks {
	return repeater.Hooks{
		RecordingComplete: func(ev repeater.RecordingEvent) {
			tracker.RecordingComplete(ev)
			if store == nil {
				return
			}
			r, err := store.Save(ev.Path, ev.Start, ev.End)
			if err != nil {
				log.Warn().Err(err).Msg("could not store recording")
				return
			}
			log.Info().Str("file", r.Name()).Int64("bytes", r.Size).Msg("recording stored")
		},
		TransmissionComplete: func(ev repeater.TransmissionEvent) {
			tracker.TransmissionComplete(ev)
			dispatcher.TransmissionComplete(ev)
		},
		StateChange:  tracker.StateChange,
		AudioFailure: tracker.AudioFailure,
	}
}

func storeLister(store *recordings.Store) web.RecordingLister {
	if store == nil {
		return nil
	}
	return store
}

func statusConfig(cfg *config.Config, backend string) status.Config {
	sc := status.Config{
		Mode:              cfg.Mode,
		Enabled:           cfg.Enabled,
		TimeoutSeconds:    int64(cfg.TransmitTimeout),
		DebounceMs:        int64(cfg.DebounceMs),
		PollMs:            int64(cfg.PollIntervalMs),
		CourtesyTone:      cfg.CourtesyToneName(),
		StoreRecordings:   cfg.StoreRecordings,
		HTTPAddr:          cfg.HTTP.Addr,
		GPIOBackend:       backend,
		TripwireEnabled:   cfg.Tripwire.Enabled,
		ArchiveConfigured: cfg.Archive.Enabled,
	}
	if cfg.MQTT.Enabled {
		sc.Broker = cfg.MQTT.Broker
	}
	return sc
}

func printState(radio *gpio.Radio, w io.Writer) error {
	on, err := radio.Carrier()
	if err != nil {
		return fmt.Errorf("read carrier: %w", err)
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	fmt.Fprintf(w, "COS: %s (carrier %s)\n", level, presence(on))
	return nil
}

func presence(on bool) string {
	if on {
		return "present"
	}
	return "absent"
}

func runArchive(cfg *config.Config, logger *logging.Logger, stdout io.Writer) error {
	log := logger.Component("archive")
	if !cfg.Archive.Enabled {
		log.Info().Msg("archive is not enabled, nothing to do")
		return nil
	}

	store, err := recordings.Open(cfg.Paths.Database, cfg.Paths.Recordings)
	if err != nil {
		return fmt.Errorf("open recordings store: %w", err)
	}
	defer store.Close()

	up := archive.NewUploader(archiveOptions(cfg), store, log)
	res, err := up.Run(context.Background())
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	fmt.Fprintf(stdout, "Remote archive task uploaded %d files.\n", res.Uploaded)
	return nil
}

func archiveOptions(cfg *config.Config) archive.Options {
	return archive.Options{
		Host:            cfg.Archive.Host,
		Port:            cfg.Archive.Port,
		TLS:             cfg.Archive.TLS,
		Timeout:         time.Duration(cfg.Archive.Timeout) * time.Second,
		User:            cfg.Archive.User,
		Pass:            cfg.Archive.Pass,
		Dir:             filepath.ToSlash(cfg.Archive.Path),
		DeleteOnSuccess: cfg.Archive.DeleteOnSuccess,
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
