// Command drivetrain is the entry shim (spec.md section 2, component 8):
// it decodes the trigger event, assembles SyncEngine's collaborators, and
// invokes the run. Modeled on the teacher's cmd/main.go: a signal-derived
// cancellation context wrapping a single urfave/cli/v2 command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/ridelines/drivetrain"
	"github.com/ridelines/drivetrain/blobstore"
	"github.com/ridelines/drivetrain/catalog"
	"github.com/ridelines/drivetrain/internal/config"
	"github.com/ridelines/drivetrain/syncengine"
	"github.com/ridelines/drivetrain/telemetry"
	"github.com/ridelines/drivetrain/tiler"
)

// triggerEvent is the payload shape spec.md section 6 defines.
type triggerEvent struct {
	Detail struct {
		AthleteId string `json:"athlete_id"`
	} `json:"detail"`
}

// readTrigger loads the trigger payload from a file path, "-" for stdin, or
// a literal JSON string passed via --trigger-json.
func readTrigger(triggerPath, triggerJSON string) ([]byte, error) {
	if triggerJSON != "" {
		return []byte(triggerJSON), nil
	}
	if triggerPath == "-" {
		return io.ReadAll(os.Stdin)
	}
	if triggerPath != "" {
		return os.ReadFile(triggerPath)
	}
	return nil, drivetrain.ErrBadTrigger
}

func runSync(ctx context.Context, cCtx *cli.Context) error {
	raw, err := readTrigger(cCtx.String("trigger"), cCtx.String("trigger-json"))
	if err != nil {
		return err
	}

	var event triggerEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("%w: %v", drivetrain.ErrBadTrigger, err)
	}
	if event.Detail.AthleteId == "" {
		return drivetrain.ErrBadTrigger
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Credential retrieval from a secret store is out of scope (spec.md
	// section 1: external collaborator, interface-only per
	// config.SecretResolver); local/dev invocation reads it directly from
	// the environment instead.
	cred := drivetrain.Credential(os.Getenv("DRIVETRAIN_CREDENTIAL"))

	store, err := blobstore.New(cfg.DataBucket, cfg.TileDBConfigURI)
	if err != nil {
		return err
	}
	defer store.Close()

	var cdn *blobstore.CDN
	if cfg.CDNDistribution != "" {
		cdn, err = blobstore.NewCDN(ctx, cfg.CDNDistribution)
		if err != nil {
			log.Printf("drivetrain: cdn client unavailable, invalidation disabled: %v", err)
		}
	}

	catalogClient := catalog.New(cCtx.String("catalog-base-url"))
	tilerDriver := tiler.New(cfg.TilerBinary, cfg.TilerExtraArgs)
	tel := telemetry.New(prometheus.DefaultRegisterer)

	engine := &syncengine.Engine{
		Catalog:        catalogClient,
		Store:          store,
		CDN:            cdn,
		Tiler:          tilerDriver,
		Telemetry:      tel,
		ConcurrencyCap: cfg.ConcurrencyCap,
		TilePrefix:     cfg.TileBucket,
	}

	summary, err := engine.Run(ctx, event.Detail.AthleteId, cred)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(summary)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "drivetrain",
		Usage: "reconcile an athlete's activity archive and rebuild its tile bundle",
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "run one sync for the athlete named in the trigger event",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "trigger",
						Usage: "path to the trigger event JSON file, or - for stdin",
					},
					&cli.StringFlag{
						Name:  "trigger-json",
						Usage: "the trigger event JSON as a literal string",
					},
					&cli.StringFlag{
						Name:  "catalog-base-url",
						Usage: "base URL of the remote activity catalog",
						EnvVars: []string{"CATALOG_BASE_URL"},
					},
				},
				Action: func(cCtx *cli.Context) error {
					return runSync(ctx, cCtx)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
