//go:build linux

// Command daide-client connects to a DAIDE server, sends the initial message
// and logs every message it receives until the server ends the session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zereker/daide"
)

// DAIDE message types.
const (
	typeInitial        = 0
	typeRepresentation = 1
	typeDiplomacy      = 2
	typeFinal          = 3
	typeError          = 4
)

const (
	protocolVersion = 1
	magicNumber     = 0xDA10
)

var typeNames = map[byte]string{
	typeInitial:        "IM",
	typeRepresentation: "RM",
	typeDiplomacy:      "DM",
	typeFinal:          "FM",
	typeError:          "EM",
}

var rootCmd = &cobra.Command{
	Use:   "daide-client",
	Short: "Connect to a DAIDE server and log its messages",
	RunE:  run,
}

func init() {
	rootCmd.Flags().String("config", "", "config file (.toml, .yaml or .yml)")
	rootCmd.Flags().String("address", "", "server IPv4 address (overrides config)")
	rootCmd.Flags().Int("port", 0, "server port (overrides config)")
	rootCmd.Flags().String("log-level", "", "log level (overrides config)")
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("address") {
		cfg.Server.Address, _ = cmd.Flags().GetString("address")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := daide.NewRegistry(cfg.Socket.RegistryCapacity)
	poller, err := daide.NewPoller(reg,
		daide.PollerLoggerOption(daide.ZapLogger(logger)),
		daide.PollerEventsOption(cfg.Socket.PollerEvents),
	)
	if err != nil {
		return err
	}
	defer poller.Close()

	conn, err := daide.Connect(reg, cfg.Server.Address, cfg.Server.Port,
		daide.LoggerOption(daide.ZapLogger(logger)),
		daide.ReadBufferSizeOption(cfg.Socket.ReadBufferSize),
		daide.OnConnectOption(func(c *daide.Conn, err error) {
			if err != nil {
				cancel()
			}
		}),
		daide.OnIncomingOption(func(c *daide.Conn) {
			if handleIncoming(c, logger) {
				cancel()
			}
		}),
		daide.OnCloseOption(func(c *daide.Conn, err error) {
			cancel()
		}),
	)
	if err != nil {
		return err
	}
	defer conn.Destroy() //nolint:errcheck

	im, err := daide.NewWordFrame(typeInitial, 0, []uint16{protocolVersion, magicNumber})
	if err != nil {
		return err
	}
	conn.Send(im)

	logger.Info("connecting",
		zap.String("name", cfg.Server.Name),
		zap.String("address", cfg.Server.Address),
		zap.Int("port", cfg.Server.Port))

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		if connErr := conn.Err(); connErr != nil {
			return connErr
		}
		return nil
	}
	return err
}

// handleIncoming logs every waiting message and reports whether the server
// ended the session.
func handleIncoming(c *daide.Conn, logger *zap.Logger) (done bool) {
	for f, ok := c.Pull(); ok; f, ok = c.Pull() {
		logger.Info("message received",
			zap.String("conn", c.ID()),
			zap.String("type", typeName(f.Type())),
			zap.Int("length", f.Length()),
			zap.String("words", formatWords(f.Words())))

		switch f.Type() {
		case typeFinal:
			done = true
		case typeError:
			code := -1
			if w := f.Words(); len(w) > 0 {
				code = int(w[0])
			}
			logger.Error("server reported an error", zap.Int("code", code))
			done = true
		}
	}
	return done
}

func typeName(t byte) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", t)
}

func formatWords(words []uint16) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%04X", w)
	}
	return strings.Join(parts, " ")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
