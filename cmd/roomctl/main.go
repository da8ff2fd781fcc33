// roomctl maintains the relay's local room reference data and inspects the
// stored message history. Room lifecycle normally belongs to the gateway;
// this tool covers local deployments and debugging.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"chat-relay/domain/chat"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"

	env "github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "roomctl",
		Usage: "manage chat-relay room records and inspect stored messages",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "create or replace a room record",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.BoolFlag{Name: "private"},
				},
				Action: addRoom,
			},
			{
				Name:   "list",
				Usage:  "list known rooms",
				Action: listRooms,
			},
			{
				Name:  "messages",
				Usage: "show a room's stored messages, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "room", Required: true},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: listMessages,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDB(readOnly bool) (*badger.DB, error) {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	options := badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING)
	if readOnly {
		// BypassLockGuard allows inspection while the relay holds the lock.
		options = options.WithReadOnly(true).WithBypassLockGuard(true)
	}
	return badger.Open(options)
}

func addRoom(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(false)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := storage.NewRoomRepository(db, internal.GetLoggerFromString("INFO"))
	room := chat.Room{
		ID:        cmd.String("id"),
		Name:      cmd.String("name"),
		IsPrivate: cmd.Bool("private"),
	}
	if err := repo.Put(room); err != nil {
		return err
	}
	fmt.Printf("room %s stored\n", room.ID)
	return nil
}

func listRooms(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(true)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := storage.NewRoomRepository(db, internal.GetLoggerFromString("INFO"))
	rooms, err := repo.List()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Private"})
	for _, room := range rooms {
		table.Append([]string{room.ID, room.Name, strconv.FormatBool(room.IsPrivate)})
	}
	table.Render()
	return nil
}

func listMessages(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(true)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := int(cmd.Int("limit"))
	repo := storage.NewMessageRepository(db, internal.GetLoggerFromString("INFO"), &limit)
	messages, _, err := repo.GetMessages(cmd.String("room"), nil)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "User", "Content"})
	for _, env := range messages {
		table.Append([]string{env.CreatedAt.Format("2006-01-02 15:04:05"), env.Username, env.Content})
	}
	table.Render()
	return nil
}
