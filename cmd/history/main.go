package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"live-hub/contract"
	"live-hub/domain"
	"live-hub/errors"
	"live-hub/repositories"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	redisAddr := flag.String("redis", "", "Read from this Redis address instead of badger")
	redisPrefix := flag.String("prefix", "live-hub", "Redis key prefix")
	roomKey := flag.String("room", "", "Room key, e.g. course1-chat, or one incarnation id, e.g. course1-chat#<uuid>")
	since := flag.Uint64("since", 0, "Only records after this seq")
	all := flag.Bool("all", false, "Print every incarnation, not only the latest")
	flag.Parse()

	key, only, err := parseTarget(*roomKey)
	if err != nil {
		log.Fatalf("Invalid room %q: %v", *roomKey, err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var store contract.EventStore
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		store = repositories.NewRedisEventRepository(client, *redisPrefix, logger)
	} else {
		db, err := badger.Open(badger.DefaultOptions(*dbPath).
			WithReadOnly(true).
			WithBypassLockGuard(true).
			WithLogger(nil))
		if err != nil {
			log.Fatal("Error while opening Badger: ", err)
		}
		defer db.Close()
		store = repositories.NewEventRepository(db, logger)
	}

	if err := printHistory(context.Background(), os.Stdout, store, key, only, *since, *all); err != nil {
		log.Fatal(err)
	}
}

// parseTarget accepts a room key or the id of one of its incarnations.
func parseTarget(raw string) (domain.RoomKey, domain.RoomID, error) {
	if !strings.Contains(raw, "#") {
		key, err := domain.ParseRoomKey(raw)
		return key, "", err
	}
	id := domain.RoomID(raw)
	key, err := id.Key()
	return key, id, err
}

// printHistory prints the latest incarnation of the key, every one with all,
// or only the given incarnation when only is set.
func printHistory(ctx context.Context, out io.Writer, store contract.EventStore, key domain.RoomKey,
	only domain.RoomID, since uint64, all bool) error {
	incarnations, err := store.Incarnations(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case only != "":
		incarnations = lo.Filter(incarnations, func(inc domain.RoomIncarnation, _ int) bool { return inc.RoomID == only })
	case !all && len(incarnations) > 0:
		incarnations = incarnations[len(incarnations)-1:]
	}
	if len(incarnations) == 0 {
		fmt.Fprintln(out, color.Yellow.Sprintf("No history for %s", lo.Ternary(only != "", string(only), key.String())))
		return nil
	}

	for _, inc := range incarnations {
		header := fmt.Sprintf(" %s  created %s ", inc.RoomID, inc.CreatedAt.Format(time.RFC3339))
		fmt.Fprintln(out, color.New(color.BgBlack, color.FgGreen).Render(header))

		records, err := store.Fetch(ctx, inc.RoomID, since)
		if errors.Is(err, errors.ErrIncompleteHistory) {
			fmt.Fprintln(out, color.Red.Sprintf("History incomplete, showing the contiguous tail"))
		} else if err != nil {
			return err
		}
		renderRecords(out, records)
	}
	return nil
}

func renderRecords(out io.Writer, records []domain.PersistedRecord) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Seq", "Prev", "Type", "Time", "Sender", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, record := range records {
		table.Append([]string{
			fmt.Sprint(record.Seq),
			fmt.Sprint(record.PrevSeq),
			string(record.Event.Type),
			record.Event.At.Format("15:04:05"),
			string(record.Event.SenderUser),
			detail(record.Event.Payload),
		})
	}
	table.Render()
}

func detail(payload domain.Payload) string {
	switch p := payload.(type) {
	case domain.MessagePayload:
		return p.Text
	case domain.StrokePayload:
		return fmt.Sprintf("%s %s w=%d points=%d", p.Tool, p.Color, p.Width, len(p.Points))
	case domain.ClearPayload:
		return "board cleared"
	default:
		return ""
	}
}
