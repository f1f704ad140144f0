package elevator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"tangled.sh/tangled.sh/elevator/elevator/config"
	"tangled.sh/tangled.sh/elevator/elevator/models"
	"tangled.sh/tangled.sh/elevator/elevator/webhook"
	"tangled.sh/tangled.sh/elevator/log"
)

// DemoteCommand runs a single demotion outside the server, reading the
// same document the scheduler stores.
func DemoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "demote",
		Usage: "reverse one elevation immediately",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input",
				Usage: "path to the demotion JSON document, or - for stdin",
				Value: "-",
			},
		},
		Action: RunDemote,
	}
}

func RunDemote(ctx context.Context, cmd *cli.Command) error {
	logger := log.FromContext(ctx)

	dm, err := readDemotion(cmd.String("input"))
	if err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.SetLevel(cfg.Server.LogLevel)
	logger = log.SubLogger(logger, cmd.Name)
	ctx = log.IntoContext(ctx, logger)

	d, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	exec := d.executor(webhook.NewMetrics(prometheus.NewRegistry()), log.SubLogger(logger, "demoter"))
	return exec(ctx, dm)
}

func readDemotion(input string) (models.Demotion, error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return models.Demotion{}, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeDemotion(r)
}

func decodeDemotion(r io.Reader) (models.Demotion, error) {
	var dm models.Demotion
	if err := json.NewDecoder(r).Decode(&dm); err != nil {
		return models.Demotion{}, fmt.Errorf("failed to decode demotion: %w", err)
	}
	if err := dm.Validate(); err != nil {
		return models.Demotion{}, err
	}
	return dm, nil
}
