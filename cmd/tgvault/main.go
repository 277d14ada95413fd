package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tgvault/tgvault/config"
	"github.com/tgvault/tgvault/internal/agent"
	"github.com/tgvault/tgvault/internal/credstore"
	"github.com/tgvault/tgvault/internal/manifest"
	"github.com/tgvault/tgvault/internal/retry"
	"github.com/tgvault/tgvault/internal/transfer"
	"github.com/tgvault/tgvault/internal/transport"
	"github.com/tgvault/tgvault/pkg/env"
	"github.com/tgvault/tgvault/pkg/logging"
)

func main() {
	env.LoadEnv()
	logging.InitLogger(env.GetEnv("TGVAULT_DEBUG", "") != "")
	config.LoadConfig(".")

	app := &cli.App{
		Name:  "tgvault",
		Usage: "Private cloud storage on top of a messaging transport",
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "Store the bot token and storage channel for this machine",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bot-token", Required: true, Usage: "personal bot token"},
					&cli.StringFlag{Name: "channel-id", Required: true, Usage: "private storage channel ID"},
				},
				Action: runSetup,
			},
			{
				Name:      "upload",
				Usage:     "Upload a file to the storage channel",
				ArgsUsage: "<path>",
				Action:    runUpload,
			},
			{
				Name:      "download",
				Usage:     "Download a stored file",
				ArgsUsage: "<filename>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dest", Usage: "destination directory"},
				},
				Action: runDownload,
			},
			{
				Name:   "ls",
				Usage:  "List stored files",
				Action: runList,
			},
			{
				Name:  "agent",
				Usage: "Run the background agent and its job API",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "agent API port"},
				},
				Action: runAgent,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func ownerID() string {
	return env.GetEnv("TGVAULT_OWNER", "default")
}

func localSecret() string {
	return env.GetEnv("TGVAULT_SECRET", "tgvault-local-secret")
}

func openCredStore() (*credstore.Store, error) {
	return credstore.OpenStore(filepath.Join(config.Config.DataDir, "credstore"), localSecret())
}

func runSetup(c *cli.Context) error {
	store, err := openCredStore()
	if err != nil {
		return err
	}
	defer store.Close()

	creds := credstore.NewCredentials(ownerID(), c.String("bot-token"), c.String("channel-id"))
	if err := store.PutCredentials(creds); err != nil {
		return err
	}

	logging.Log.Infof("✅ Credentials stored for owner %s", creds.OwnerID)
	logging.Log.Infof("Client ID: %s", creds.ClientID)
	return nil
}

// buildStack wires the transport, manifest store and trackers out of config
// and stored credentials.
func buildStack(ctx context.Context) (transfer.PartTransport, *manifest.Store, error) {
	cfg := config.Config

	manifests, err := manifest.NewStore(cfg.DataDir, ownerID())
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Transport {
	case "minio":
		tp, err := transport.NewMinio(ctx, transport.MinioOptions{
			Endpoint:     cfg.MinioEndpoint,
			AccessKey:    cfg.MinioAccessKey,
			SecretKey:    cfg.MinioSecretKey,
			Bucket:       cfg.MinioBucket,
			UseSSL:       cfg.MinioUseSSL,
			FetchTimeout: cfg.FetchTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return tp, manifests, nil

	default:
		store, err := openCredStore()
		if err != nil {
			return nil, nil, err
		}
		defer store.Close()

		creds, err := store.GetCredentials(ownerID())
		if err != nil {
			return nil, nil, fmt.Errorf("no credentials stored, run 'tgvault setup' first: %v", err)
		}

		tp := transport.NewTelegram(creds.BotToken, creds.ChannelID, transport.TelegramOptions{
			APIBase:      cfg.TelegramAPIBase,
			PutTimeout:   cfg.PutTimeout,
			FetchTimeout: cfg.FetchTimeout,
		})
		return tp, manifests, nil
	}
}

func newUploader(tp transfer.PartTransport, manifests *manifest.Store, tracker *transfer.Tracker) *transfer.Uploader {
	cfg := config.Config
	return transfer.NewUploader(tp, manifests, logging.Log, transfer.UploadOptions{
		ChunkSize:      cfg.ChunkSize,
		InterPartDelay: cfg.InterPartDelay,
		Retry: retry.Policy{
			MaxAttempts: cfg.UploadRetries,
			BaseDelay:   cfg.UploadRetryDelay,
		},
		Tracker: tracker,
	})
}

func newDownloader(tp transfer.PartTransport, tracker *transfer.Tracker) *transfer.Downloader {
	cfg := config.Config
	return transfer.NewDownloader(tp, logging.Log, transfer.DownloadOptions{
		Workers: cfg.DownloadWorkers,
		Retry: retry.Policy{
			MaxAttempts:   cfg.DownloadRetries,
			BaseDelay:     cfg.DownloadBaseDelay,
			Multiplier:    2,
			MaxDelay:      time.Minute,
			InitialJitter: 500 * time.Millisecond,
		},
		Tracker: tracker,
	})
}

func runUpload(c *cli.Context) error {
	sourcePath := c.Args().First()
	if sourcePath == "" {
		return fmt.Errorf("usage: tgvault upload <path>")
	}

	tp, manifests, err := buildStack(c.Context)
	if err != nil {
		return err
	}

	job := transfer.NewJob(transfer.TaskUpload)
	result := newUploader(tp, manifests, nil).Upload(c.Context, job, sourcePath)
	if result.Status != transfer.StatusCompleted {
		return fmt.Errorf("upload %s: %s", result.Status, result.Reason)
	}

	logging.Log.Infof("✅ Uploaded '%s'", filepath.Base(sourcePath))
	return nil
}

func runDownload(c *cli.Context) error {
	filename := c.Args().First()
	if filename == "" {
		return fmt.Errorf("usage: tgvault download <filename>")
	}

	tp, manifests, err := buildStack(c.Context)
	if err != nil {
		return err
	}

	m, ok, err := manifests.Load(filename)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored file named '%s'", filename)
	}

	destDir := c.String("dest")
	if destDir == "" {
		destDir = config.Config.DownloadDir
	}

	job := transfer.NewJob(transfer.TaskDownload)
	result := newDownloader(tp, nil).Download(c.Context, job, m, destDir)
	if result.Status != transfer.StatusCompleted {
		return fmt.Errorf("download %s: %s", result.Status, result.Reason)
	}

	logging.Log.Infof("✅ Downloaded '%s' to %s", filename, destDir)
	return nil
}

func runList(c *cli.Context) error {
	manifests, err := manifest.NewStore(config.Config.DataDir, ownerID())
	if err != nil {
		return err
	}

	entries, err := manifests.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No stored files.")
		return nil
	}

	for _, m := range entries {
		state := "complete"
		if !m.Complete() {
			state = fmt.Sprintf("partial %d/%d", m.RecordedParts(), m.TotalParts)
		}
		fmt.Printf("%-40s %12d bytes  %s\n", m.Filename, m.FileSizeBytes, state)
	}
	return nil
}

func runAgent(c *cli.Context) error {
	tp, manifests, err := buildStack(c.Context)
	if err != nil {
		return err
	}

	tracker := transfer.NewTracker()
	a := agent.New(
		newUploader(tp, manifests, tracker),
		newDownloader(tp, tracker),
		manifests,
		tracker,
		logging.Log,
		config.Config.DownloadDir,
	)

	go a.Run(c.Context)

	port := c.Int("port")
	if port == 0 {
		port = config.Config.Port
	}
	return a.Serve(port)
}
