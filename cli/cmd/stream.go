package cmd

import (
	"fmt"
	"net/http"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/turnstream/channel"
	"github.com/pithecene-io/turnstream/cli/config"
	"github.com/pithecene-io/turnstream/types"
)

// StreamCommand returns the stream command.
// Stream runs one conversation turn against a live endpoint.
func StreamCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "prompt",
			Aliases:  []string{"p"},
			Usage:    "Prompt text for the turn",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "Conversation endpoint URL (overrides endpoint.url)",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Transport: http or websocket (overrides endpoint.transport)",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Model name (overrides request.model)",
		},
		&cli.Float64Flag{
			Name:  "temperature",
			Usage: "Sampling temperature in [0, 2] (overrides request.temperature)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID linking turns of one conversation",
		},
		&cli.StringFlag{
			Name:  "record",
			Usage: "Record the channel session to this transcript file",
		},
	}

	return &cli.Command{
		Name:   "stream",
		Usage:  "Run one conversation turn and stream the explanation",
		Flags:  append(flags, turnFlags()...),
		Action: streamAction,
	}
}

func streamAction(c *cli.Context) error {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	endpoint := firstNonEmpty(c.String("url"), cfg.Endpoint.URL)
	if endpoint == "" {
		return cli.Exit("no endpoint: pass --url or set endpoint.url", exitUsage)
	}
	transport := firstNonEmpty(c.String("transport"), cfg.Endpoint.Transport, "http")

	req, err := buildRequest(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	opener, err := buildOpener(transport, endpoint, cfg.Endpoint.Headers)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	st, err := resolveSettings(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	st.endpoint = endpoint
	st.transport = transport
	st.recordPath = c.String("record")
	if st.source == "" {
		st.source = endpointHost(endpoint)
	}

	return runTurn(c, opener, req, st)
}

// buildRequest merges request flags over request.* config defaults.
func buildRequest(c *cli.Context, cfg *config.Config) (*types.ConversationRequest, error) {
	req := &types.ConversationRequest{
		Prompt:      c.String("prompt"),
		Model:       firstNonEmpty(c.String("model"), cfg.Request.Model),
		Temperature: cfg.Request.Temperature,
		SessionID:   firstNonEmpty(c.String("session-id"), cfg.Request.SessionID),
	}
	if c.IsSet("temperature") {
		t := c.Float64("temperature")
		if t < 0 || t > 2 {
			return nil, fmt.Errorf("--temperature must be in [0, 2], got %v", t)
		}
		req.Temperature = &t
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("--prompt must not be empty")
	}
	return req, nil
}

func buildOpener(transport, endpoint string, headers map[string]string) (channel.Opener, error) {
	switch transport {
	case "http":
		return &channel.HTTPOpener{URL: endpoint, Headers: headers, Client: &http.Client{}}, nil
	case "websocket":
		return &channel.WebSocketOpener{URL: endpoint, Headers: headers}, nil
	default:
		return nil, fmt.Errorf("invalid transport %q (must be http or websocket)", transport)
	}
}
