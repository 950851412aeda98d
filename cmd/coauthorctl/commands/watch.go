package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"coauthor-backend/internal/infrastructure/observability"
	"coauthor-backend/pkg/client"
	"coauthor-backend/pkg/protocol"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type watchOptions struct {
	url         string
	token       string
	participant string
	name        string
	verbose     bool
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and print every event it receives",
	}
	cmd.PersistentFlags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "Websocket endpoint")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token for the upgrade request")
	cmd.PersistentFlags().StringVar(&opts.participant, "participant", "", "Participant id (random if empty)")
	cmd.PersistentFlags().StringVar(&opts.name, "name", "coauthorctl", "Display name")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log connection attempts to stderr")

	cmd.AddCommand(&cobra.Command{
		Use:   "document <documentId>",
		Short: "Watch a document room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid := opts.participantID()
			join := protocol.JoinDocumentMessage{DocumentID: args[0], ParticipantID: pid, DisplayName: opts.name}
			leave := protocol.LeaveDocumentMessage{DocumentID: args[0], ParticipantID: pid}
			return runWatch(cmd, opts, protocol.JoinDocument, join, protocol.LeaveDocument, leave)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "graph <graphId>",
		Short: "Watch a graph room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid := opts.participantID()
			join := protocol.JoinGraphMessage{GraphID: args[0], ParticipantID: pid, DisplayName: opts.name}
			leave := protocol.LeaveGraphMessage{GraphID: args[0], ParticipantID: pid, DisplayName: opts.name}
			return runWatch(cmd, opts, protocol.JoinGraph, join, protocol.LeaveGraph, leave)
		},
	})
	return cmd
}

func (o *watchOptions) participantID() string {
	if o.participant == "" {
		o.participant = "watch-" + ulid.Make().String()
	}
	return o.participant
}

func (o *watchOptions) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	logger, _, err := observability.NewLogger("debug", "console", false)
	return logger, err
}

func runWatch(cmd *cobra.Command, opts *watchOptions, joinType protocol.EventType, join any, leaveType protocol.EventType, leave any) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := opts.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := client.Dial(ctx, opts.url, client.Options{Token: opts.token, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", opts.url, err)
	}
	defer conn.Close()

	if err := conn.Send(joinType, join); err != nil {
		return err
	}

	err = printEvents(ctx, conn, cmd.OutOrStdout())
	if errors.Is(err, context.Canceled) {
		_ = conn.Send(leaveType, leave)
		return nil
	}
	return err
}

// printEvents writes one line per event until ctx ends or the connection
// closes.
func printEvents(ctx context.Context, conn *client.Conn, w io.Writer) error {
	for {
		ev, err := conn.Next(ctx)
		if errors.Is(err, client.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", ev.Type, payload)
	}
}
