package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/loclhse/toolbanhangUIUX/internal/api"
	"github.com/loclhse/toolbanhangUIUX/internal/config"
	"github.com/loclhse/toolbanhangUIUX/internal/logging"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
)

// lineFlag collects repeated -item F[xN] flags.
type lineFlag []pos.OrderLine

func (l *lineFlag) String() string {
	parts := make([]string, len(*l))
	for i, line := range *l {
		parts[i] = fmt.Sprintf("%sx%d", line.FoodItemID, line.Quantity)
	}
	return strings.Join(parts, ",")
}

func (l *lineFlag) Set(v string) error {
	line, err := parseLine(v)
	if err != nil {
		return err
	}
	*l = append(*l, line)
	return nil
}

// parseLine reads "F" or "FxN" as food item F, quantity N (default 1).
func parseLine(v string) (pos.OrderLine, error) {
	v = strings.TrimSpace(v)
	id, qty := v, 1
	if i := strings.LastIndexAny(v, "xX"); i > 0 {
		if n, err := strconv.Atoi(v[i+1:]); err == nil {
			id, qty = v[:i], n
		}
	}
	if id == "" {
		return pos.OrderLine{}, fmt.Errorf("empty food item in %q", v)
	}
	if qty <= 0 {
		return pos.OrderLine{}, fmt.Errorf("quantity must be positive in %q", v)
	}
	return pos.OrderLine{FoodItemID: pos.ID(id), Quantity: qty}, nil
}

var errUsage = errors.New("invalid usage, see -h")

func runCommand(cfg *config.Config, args []string, out io.Writer) error {
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	client := api.NewClient(cfg.API.BaseURL, cfg.Realtime.Token, cfg.API.Timeout, logging.Component("api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return dispatch(ctx, client, args, out)
}

func dispatch(ctx context.Context, client *api.Client, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "orders":
		orders, err := client.ListOrders(ctx)
		if err != nil {
			return err
		}
		printOrders(out, orders)
		return nil

	case "order":
		if len(rest) != 1 {
			return errUsage
		}
		o, err := client.GetOrder(ctx, pos.ID(rest[0]))
		if err != nil {
			return err
		}
		printOrder(out, *o)
		return nil

	case "tables":
		tables, err := client.ListTables(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSEATS")
		for _, t := range tables {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.ID, t.Name, t.Status, t.Capacity)
		}
		return w.Flush()

	case "menu":
		items, err := client.ListFoodItems(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tAVAILABLE")
		for _, f := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%t\n", f.ID, f.Name, f.Category, f.Price, f.Available)
		}
		return w.Flush()

	case "create":
		fs := flag.NewFlagSet("create", flag.ContinueOnError)
		fs.SetOutput(out)
		table := fs.String("table", "", "Table ID")
		note := fs.String("note", "", "Order note")
		var lines lineFlag
		fs.Var(&lines, "item", "Food item as F or FxN (repeatable)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *table == "" || len(lines) == 0 {
			return errUsage
		}
		o, err := client.CreateOrder(ctx, pos.CreateOrderRequest{TableID: pos.ID(*table), Items: lines, Note: *note})
		if err != nil {
			return err
		}
		printOrder(out, *o)
		return nil

	case "update":
		if len(rest) < 1 {
			return errUsage
		}
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		fs.SetOutput(out)
		note := fs.String("note", "", "Order note")
		var lines lineFlag
		fs.Var(&lines, "item", "Food item as F or FxN (repeatable)")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		if len(lines) == 0 {
			return errUsage
		}
		o, err := client.UpdateOrder(ctx, pos.ID(rest[0]), pos.UpdateOrderRequest{Items: lines, Note: *note})
		if err != nil {
			return err
		}
		printOrder(out, *o)
		return nil

	case "delete":
		if len(rest) != 1 {
			return errUsage
		}
		if err := client.DeleteOrder(ctx, pos.ID(rest[0])); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted order %s\n", rest[0])
		return nil

	case "pay":
		fs := flag.NewFlagSet("pay", flag.ContinueOnError)
		fs.SetOutput(out)
		order := fs.String("order", "", "Order ID")
		amount := fs.Float64("amount", 0, "Amount paid")
		method := fs.String("method", "CASH", "Payment method")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *order == "" || *amount <= 0 {
			return errUsage
		}
		p, err := client.CreatePayment(ctx, pos.CreatePaymentRequest{OrderID: pos.ID(*order), Amount: *amount, Method: *method})
		if err != nil {
			return err
		}
		printPayment(out, *p)
		return nil

	case "payment":
		if len(rest) != 1 {
			return errUsage
		}
		p, err := client.GetPaymentByOrder(ctx, pos.ID(rest[0]))
		var se *api.StatusError
		if errors.As(err, &se) && se.NotFound() {
			fmt.Fprintf(out, "order %s has no payment\n", rest[0])
			return nil
		}
		if err != nil {
			return err
		}
		printPayment(out, *p)
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printOrders(out io.Writer, orders []pos.Order) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTABLE\tSTATUS\tITEMS\tTOTAL\tCREATED")
	for _, o := range orders {
		table := o.TableName
		if table == "" {
			table = string(o.TableID)
		}
		created := ""
		if !o.CreatedAt.IsZero() {
			created = o.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f\t%s\n", o.ID, table, o.Status, len(o.Items), o.TotalAmount, created)
	}
	w.Flush()
}

func printOrder(out io.Writer, o pos.Order) {
	fmt.Fprintf(out, "order %s  table %s  %s  total %.0f\n", o.ID, o.TableID, o.Status, o.TotalAmount)
	for _, it := range o.Items {
		fmt.Fprintf(out, "  %s  %d× %s", it.ID, it.Quantity, it.Name)
		if it.Note != "" {
			fmt.Fprintf(out, "  (%s)", it.Note)
		}
		fmt.Fprintln(out)
	}
}

func printPayment(out io.Writer, p pos.Payment) {
	state := "pending"
	if p.IsConfirmed() {
		state = "confirmed"
	}
	fmt.Fprintf(out, "payment %s  order %s  %.0f %s  %s (%s)\n", p.ID, p.OrderID, p.Amount, p.Method, p.Status, state)
}
