package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flames/api/internal/moderation"
	"flames/api/internal/store"
)

// importActor is the identity recorded for tickets loaded from the CLI.
var importActor = moderation.Actor{UserID: "cli", Email: "cli@flames.local", Admin: true}

func importTicketsCommand() *cobra.Command {
	var skipDuplicates bool
	cmd := &cobra.Command{
		Use:   "import-tickets <file.csv>",
		Short: "Load ticket sales from a CSV in the dashboard export layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			inputs, err := parseTicketCSV(f)
			if err != nil {
				return err
			}

			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			svc := moderation.NewService(store.NewPostgresStore(db), moderation.WithLogger(logger))

			imported, skipped := 0, 0
			for i, in := range inputs {
				_, err := svc.IssueTicket(ctx, importActor, in)
				var dup *moderation.DuplicateError
				switch {
				case err == nil:
					imported++
				case errors.As(err, &dup) && skipDuplicates:
					skipped++
				default:
					return fmt.Errorf("row %d (%s): %w", i+2, in.ReferenceID, err)
				}
			}
			logger.Info("tickets imported", zap.Int("imported", imported), zap.Int("skipped", skipped))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipDuplicates, "skip-duplicates", false, "skip rows whose reference already exists")
	return cmd
}

var ticketColumns = []string{"ticket ref id", "name", "email", "phone", "ticket type", "quantity", "amount paid", "coupon used", "purchase date"}

// parseTicketCSV reads rows by header name so column order does not matter.
// Extra columns such as "Checked In" are ignored.
func parseTicketCSV(r io.Reader) ([]moderation.TicketInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range ticketColumns {
		if _, ok := index[want]; !ok {
			return nil, fmt.Errorf("missing column %q", want)
		}
	}

	var out []moderation.TicketInput
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string { return strings.TrimSpace(record[index[name]]) }

		quantity, err := strconv.Atoi(field("quantity"))
		if err != nil {
			return nil, fmt.Errorf("line %d: quantity %q", line, field("quantity"))
		}
		amount, err := strconv.ParseFloat(field("amount paid"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: amount paid %q", line, field("amount paid"))
		}
		in := moderation.TicketInput{
			ReferenceID: field("ticket ref id"),
			TicketType:  field("ticket type"),
			FullName:    field("name"),
			Email:       field("email"),
			Phone:       field("phone"),
			Quantity:    quantity,
			AmountPaid:  int64(math.Round(amount * 100)),
			Coupon:      field("coupon used"),
		}
		if strings.EqualFold(in.Coupon, "N/A") {
			in.Coupon = ""
		}
		if raw := field("purchase date"); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: purchase date %q", line, raw)
			}
			in.PurchasedAt = at.UTC()
		}
		out = append(out, in)
	}
}
