package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/turnstream/channel"
	"github.com/pithecene-io/turnstream/cli/config"
	"github.com/pithecene-io/turnstream/iox"
	"github.com/pithecene-io/turnstream/types"
)

// transportReplay labels turns played back from a transcript.
const transportReplay = "replay"

// ReplayCommand returns the replay command.
// Replay runs the stream pipeline over a transcript written by stream --record.
func ReplayCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "transcript",
			Aliases:  []string{"t"},
			Usage:    "Transcript file written by stream --record",
			Required: true,
		},
	}

	return &cli.Command{
		Name:   "replay",
		Usage:  "Replay a recorded turn through the assembler",
		Flags:  append(flags, turnFlags()...),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	path := c.String("transcript")
	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open transcript: %v", err), exitUsage)
	}
	defer iox.DiscardClose(f)

	st, err := resolveSettings(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	st.endpoint = path
	st.transport = transportReplay
	// Replays never publish notifications.
	st.cfg.Adapter = config.AdapterConfig{}
	if st.source == "" {
		st.source = transportReplay
	}

	return runTurn(c, channel.NewReplayOpener(f), &types.ConversationRequest{}, st)
}
