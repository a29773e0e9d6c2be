package cli

import (
	"compass/config"
	"compass/localcache"
	"compass/scene"
	"compass/syncclient"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCanvasCmd(a *app) *cobra.Command {
	var apiURL, token string

	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "Pull or push a project's canvas through the API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if apiURL != "" {
				a.cfg.Client.BaseURL = apiURL
			}
			if token != "" {
				a.cfg.Client.Token = token
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "Canvas API base URL")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for the API")

	cmd.AddCommand(newCanvasPullCmd(a))
	cmd.AddCommand(newCanvasPushCmd(a))
	return cmd
}

func newSyncClient(cfg config.ClientConfig) (*syncclient.Client, *localcache.Cache, error) {
	storage, err := localcache.NewFileStorage(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	local := localcache.New(storage)
	client := syncclient.New(cfg.BaseURL,
		syncclient.WithToken(func() string { return cfg.Token }),
		syncclient.WithLocalCache(local),
		syncclient.WithDelay(cfg.Debounce.Duration()),
		syncclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration()}),
	)
	return client, local, nil
}

func newCanvasPullCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pull <projectId>",
		Short: "Download the latest canvas state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, local, err := newSyncClient(a.cfg.Client)
			if err != nil {
				return err
			}
			defer local.Close()
			defer client.Close()

			snap, source, err := client.LoadCanvasState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if snap == nil {
				empty := scene.Snapshot{}
				snap = &empty
			}
			data, err := snap.Encode()
			if err != nil {
				return err
			}

			logrus.WithFields(logrus.Fields{
				"project_id": args[0],
				"source":     source,
				"elements":   len(snap.Elements),
			}).Info("Pulled canvas")

			if output == "" || output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newCanvasPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push <projectId> <file>",
		Short: "Upload a canvas state file (use - for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			snap, err := scene.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			client, local, err := newSyncClient(a.cfg.Client)
			if err != nil {
				return err
			}
			defer local.Close()
			defer client.Close()

			if err := client.SaveCanvasStateImmediate(cmd.Context(), args[0], snap); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"project_id": args[0],
				"elements":   len(snap.Elements),
			}).Info("Pushed canvas")
			return nil
		},
	}
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}
