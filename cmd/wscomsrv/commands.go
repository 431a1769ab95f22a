package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wscomsrv/wscomsrv/internal/logging"
)

func initCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from defaults, environment and flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.cfgPath)
			}
			// start from defaults rather than the file being replaced
			path := opts.cfgPath
			opts.cfgPath = ""
			cfg, err := loadConfig(opts)
			opts.cfgPath = path
			if err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func sendCmd(opts *options) *cobra.Command {
	var (
		targets []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send CMD [ARG...] [KEY=VALUE...]",
		Short: "Connect once, send a single command and disconnect",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			positional, kwargs := parseCommandArgs(args[1:])

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			ch := newChannel(cfg, log)
			var sendErr error
			sent := false
			ch.OnConnect(func() {
				sendErr = ch.SendCommand(ctx, args[0], positional, kwargs, targets...)
				sent = true
				ch.Disconnect()
			})
			ch.Run(ctx, cfg.URL)

			if !sent {
				return errors.New("no connection before timeout")
			}
			if sendErr != nil {
				return sendErr
			}
			log.Info("command sent", zap.String("cmd", args[0]), zap.Strings("target", targets))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "Recipient(s); defaults to server")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up if no connection is made in time")
	return cmd
}

// parseCommandArgs splits KEY=VALUE pairs into kwargs and keeps the rest as
// positional args. Values that parse as JSON keep their JSON type.
func parseCommandArgs(in []string) ([]any, map[string]any) {
	args := []any{}
	kwargs := map[string]any{}
	for _, a := range in {
		if k, v, ok := strings.Cut(a, "="); ok && k != "" {
			kwargs[k] = jsonOrString(v)
			continue
		}
		args = append(args, jsonOrString(a))
	}
	return args, kwargs
}

func jsonOrString(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
