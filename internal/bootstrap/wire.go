package bootstrap

import (
	"os"

	"notedeck/internal/audio"
	"notedeck/internal/config"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
	"notedeck/internal/providers/deepgram"
	"notedeck/internal/rules"
	"notedeck/internal/storage/sqlite"
	"notedeck/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Store        *sqlite.Store
	Controller   *usecase.SessionController
	Consolidator *usecase.Consolidator
	Orders       *usecase.OrderRegister
	Uploads      *usecase.UploadManager
	Batch        *usecase.BatchTranscriber
	Converter    ports.AudioConverter
	Log          *logging.Logger
	Config       config.Config
}

// Build wires all backend dependencies for the current runtime. activeMeeting
// reports which meeting the user currently has open, so background completions
// can tell whether their refresh events still matter.
func Build(eventSink ports.EventSink, activeMeeting func() string) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return Services{}, err
	}

	noise, err := rules.NewEngineFromFile(cfg.Rules.Path)
	if err != nil {
		return Services{}, err
	}

	store, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return Services{}, err
	}

	if err := os.MkdirAll(cfg.Storage.RecordingsDir, 0o755); err != nil {
		return Services{}, err
	}

	provider := deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
	})
	converter := audio.NewFFMPEGConverter(cfg.Audio.FFmpegCommand, cfg.Audio.FFprobeCommand)
	consolidator := usecase.NewConsolidator(store, log)

	controller := usecase.NewSessionController(
		audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand),
		provider,
		consolidator,
		store,
		eventSink,
		log,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			RecordingsDir:  cfg.Storage.RecordingsDir,
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
		},
	)

	uploads := usecase.NewUploadManager(
		store, store, provider, converter, noise, eventSink, log,
		cfg.Storage.RecordingsDir, activeMeeting,
	)
	batch := usecase.NewBatchTranscriber(
		store, store, provider, noise, eventSink, log, activeMeeting,
	)

	return Services{
		Store:        store,
		Controller:   controller,
		Consolidator: consolidator,
		Orders:       usecase.NewOrderRegister(store, log),
		Uploads:      uploads,
		Batch:        batch,
		Converter:    converter,
		Log:          log,
		Config:       cfg,
	}, nil
}
