package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/example/stampcard/internal/config"
	"github.com/example/stampcard/internal/database"
	"github.com/example/stampcard/internal/repository"
	"github.com/example/stampcard/internal/services"
)

func main() {
	businessFlag := flag.String("business", "", "business ID the terminal scans for")
	operator := flag.String("operator", "", "name recorded on every transaction")
	flag.Parse()

	businessID, err := uuid.Parse(*businessFlag)
	if err != nil {
		log.Fatalf("invalid -business: %v", err)
	}

	cfg := config.LoadShared()
	db := database.Connect(cfg.DatabaseURL, false)
	store := repository.NewGormStore(db)

	telegram := services.NewBusinessTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, db)
	ledger := services.NewLedgerService(store, services.NewActivityLog(cfg.ActivityFeedSize), telegram)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src := newLineSource(os.Stdin)
	session := services.NewScanSession(businessID, *operator, func() (services.Decoder, error) {
		return &lineDecoder{src: src}, nil
	}, services.NewResolver(store), ledger)

	if err := run(ctx, session, src); err != nil && !errors.Is(err, errInputClosed) && !errors.Is(err, context.Canceled) {
		log.Fatalf("[Scan] %v", err)
	}
}

// run alternates between waiting for a code and reviewing the resolved card.
func run(ctx context.Context, session *services.ScanSession, src *lineSource) error {
	for {
		fmt.Println("Ready. Scan a customer card.")
		view, err := session.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errInputClosed) {
				return err
			}
			fmt.Printf("Scan failed: %s\n", describe(err))
			continue
		}

		if err := review(ctx, session, src, view); err != nil {
			return err
		}
	}
}

// review reads operator commands until the card is committed or cancelled:
// "+" and "-" adjust the quantity, a number sets it, an empty line commits
// and "c" cancels.
func review(ctx context.Context, session *services.ScanSession, src *lineSource, view *services.CardView) error {
	printCard(view, session.Quantity())
	for {
		line, err := src.Next(ctx)
		if err != nil {
			session.Cancel()
			return err
		}

		switch line {
		case "":
			if _, err := session.Commit(ctx); err != nil {
				fmt.Printf("Commit failed: %s. Press enter to retry or c to cancel.\n", describe(err))
				continue
			}
			fmt.Println(session.Banner())
			return nil
		case "c", "C":
			session.Cancel()
			fmt.Println("Cancelled.")
			return nil
		case "+":
			_ = session.Increment()
		case "-":
			_ = session.Decrement()
		default:
			n, err := strconv.Atoi(line)
			if err != nil {
				fmt.Println("Use +, -, a number, enter to commit or c to cancel.")
				continue
			}
			_ = session.SetQuantity(n)
		}
		fmt.Printf("Quantity: %d\n", session.Quantity())
	}
}

func printCard(view *services.CardView, quantity int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s (%s)\n", view.CustomerName, view.CardName, view.Kind)
	if view.Goal > 0 {
		fmt.Fprintf(&b, "Balance: %d / %d\n", view.Balance, view.Goal)
	} else {
		fmt.Fprintf(&b, "Balance: %d\n", view.Balance)
	}
	if view.Tier != "" {
		fmt.Fprintf(&b, "Tier: %s\n", view.Tier)
	}
	fmt.Fprintf(&b, "Quantity: %d", quantity)
	fmt.Println(b.String())
}

func describe(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidCode):
		return "not a card code"
	case errors.Is(err, services.ErrNotFound):
		return "card not found"
	case errors.Is(err, services.ErrKindNotScannable):
		return "this card type does not collect stamps or points"
	case services.IsPersistence(err):
		return "could not reach the database"
	}
	return err.Error()
}
