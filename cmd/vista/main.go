package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"vista/internal/assistant"
	"vista/internal/audio"
	"vista/internal/cache"
	"vista/internal/config"
	"vista/internal/gemini"
	"vista/internal/history"
	"vista/internal/imaging"
	"vista/internal/ipc"
	"vista/internal/notify"
	"vista/internal/proxy"
	"vista/internal/ratelimit"
	"vista/internal/screenshot"
	"vista/internal/textproc"
	"vista/internal/tts"
	"vista/pkg/audioconv"
	"vista/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (empty = direct)")
	modelPath := cli.StringP("model", "m", "third_party/whisper.cpp/models/ggml-medium.bin", "Whisper model path")
	fromFile := cli.StringP("from-file", "f", "", "Answer one question from an audio file and exit")
	pushToTalk := cli.BoolP("push-to-talk", "t", false, "Wait for vista-ctl triggers instead of listening continuously")
	cuePath := cli.String("cue", "beep.mp3", "Listening cue mp3 (empty disables)")
	keepHistory := cli.Bool("keep-history", false, "Keep the conversation history on exit")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg, err := config.Load()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded configuration", "language", cfg.Language)

	var httpClient *http.Client
	if *proxyAddr != "" {
		httpClient, err = proxy.NewSocksClient(*proxyAddr, 2*time.Minute)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", *proxyAddr, "err", err)
			os.Exit(1)
		}
		log.Debug("Loaded proxy", "addr", *proxyAddr)
	}

	respCache := cache.New(cache.Options{
		Enabled:  cfg.CacheEnabled,
		TTL:      cfg.CacheTimeout,
		MaxItems: cfg.MaxCacheItems,
	})

	limiter := ratelimit.New(ratelimit.Options{
		MaxPerMinute: cfg.MaxRequestsPerMinute,
		Budgets: map[ratelimit.Model]ratelimit.Budget{
			ratelimit.ModelPro:   {PerMinute: cfg.ProRPM, PerDay: cfg.ProRPD},
			ratelimit.ModelFlash: {PerMinute: cfg.FlashRPM, PerDay: cfg.FlashRPD},
		},
		Preferred: ratelimit.ModelFlash,
	})

	var hist *history.Store
	var histStore gemini.HistoryStore
	hist, err = history.Open(cfg.HistoryDB)
	if err != nil {
		log.Warn("History disabled", "err", err)
	} else {
		histStore = hist
	}

	constraints := imaging.DefaultConstraints()
	client := gemini.NewClient(gemini.Options{
		APIKey:          cfg.APIKey,
		HTTPClient:      httpClient,
		Language:        cfg.Language,
		MaxOutputTokens: cfg.MaxOutputTokens,
		MaxRetries:      cfg.MaxRetries,
		HistoryContext:  cfg.HistoryContext,
		Constraints:     constraints,
	}, respCache, limiter, histStore)

	shots, err := screenshot.NewManager(screenshot.Options{
		Dir:    cfg.ScreenshotDir,
		Format: cfg.ScreenshotFormat,
		Max:    cfg.MaxScreenshots,
	})
	if err != nil {
		log.Error("Failed to init screenshots", "err", err)
		os.Exit(1)
	}

	speaker := tts.NewSpeaker(cfg.Language)

	var listener assistant.Listener
	var shutdownAudio func()

	if *fromFile != "" {
		tr, err := stt.NewTranscriber(*modelPath)
		if err != nil {
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		shutdownAudio = func() { tr.Close() }
		listener = &fileListener{path: *fromFile, transcriber: tr, language: cfg.Language}
	} else {
		rec := audio.NewRecorder(audio.Options{
			SilenceThreshold: cfg.SilenceThreshold,
			MinSilence:       cfg.MinSilenceDuration,
			SpeechTimeout:    cfg.AudioTimeout,
			MaxPhrase:        cfg.PhraseTimeout,
		})
		if err := rec.Init(); err != nil {
			log.Error("Failed to init audio", "err", err)
			os.Exit(1)
		}

		tr, err := stt.NewTranscriber(*modelPath)
		if err != nil {
			rec.Close()
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		shutdownAudio = func() {
			tr.Close()
			rec.Close()
		}

		listener = &micListener{
			recorder:    rec,
			transcriber: tr,
			ducker:      audio.NewDucker([]string{"vista"}, 20),
			language:    cfg.Language,
		}
	}
	defer shutdownAudio()

	log.Info("Boot up - successful")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var notifier assistant.Notifier
	if *cuePath != "" {
		notifier = &cueNotifier{path: *cuePath}
	}

	asst := assistant.New(listener, shots, client, speaker, notifier, assistant.Options{
		RequireQuestion: *fromFile == "",
	})

	triggers := make(chan struct{}, 1)
	if err := ipc.StartServer(func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			select {
			case triggers <- struct{}{}:
			default:
			}
		case ipc.CmdStop:
			cancel()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	}); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	switch {
	case *fromFile != "":
		asst.Turn(ctx)
	case *pushToTalk:
		asst.RunTriggered(ctx, triggers)
	default:
		asst.Run(ctx)
	}

	log.Info("Shutting down")

	if hist != nil {
		if !*keepHistory {
			if err := hist.Clear(); err != nil {
				log.Warn("Failed to clear history", "err", err)
			}
		}
		hist.Close()
	}
	os.Remove(ipc.SocketPath)
}

// micListener records an utterance from the microphone and transcribes
// it, ducking other audio streams while the mic is open.
type micListener struct {
	recorder    *audio.Recorder
	transcriber *stt.Transcriber
	ducker      *audio.Ducker
	language    string
}

func (m *micListener) Listen(ctx context.Context) (string, error) {
	if err := m.ducker.Duck(ctx, 0.3, 200*time.Millisecond); err != nil {
		log.Debug("Ducking unavailable", "err", err)
	}
	defer func() {
		if err := m.ducker.Restore(ctx, 200*time.Millisecond); err != nil {
			log.Debug("Unducking failed", "err", err)
		}
	}()

	pcm, err := m.recorder.Record()
	if err != nil {
		return "", err
	}

	log.Debug("Recorded", "samples", len(pcm))
	return m.transcribe(ctx, pcm)
}

func (m *micListener) transcribe(ctx context.Context, pcm []float32) (string, error) {
	res, err := m.transcriber.Transcribe(ctx, pcm, stt.Options{
		Language: stt.WhisperLanguage(m.language),
	})
	if err != nil {
		return "", err
	}
	log.Debug("Transcribed", "text", res.Text, "language", res.Language)
	return res.Text, nil
}

// fileListener decodes a recording instead of opening the microphone.
type fileListener struct {
	path        string
	transcriber *stt.Transcriber
	language    string
}

func (f *fileListener) Listen(ctx context.Context) (string, error) {
	pcm, err := audioconv.FileToPCM16k(ctx, f.path, audioconv.Options{})
	if err != nil {
		return "", err
	}
	res, err := f.transcriber.Transcribe(ctx, pcm, stt.Options{
		Language: stt.WhisperLanguage(f.language),
	})
	if err != nil {
		return "", err
	}
	log.Info("Transcribed", "file", f.path, "text", textproc.StripNoise(res.Text))
	return res.Text, nil
}

// cueNotifier plays the listening beep; a broken cue only logs.
type cueNotifier struct {
	path string
}

func (c *cueNotifier) Listening() {
	if err := notify.Cue(c.path); err != nil {
		log.Debug("Cue skipped", "err", err)
	}
}
