package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/client"
	"github.com/totegamma/bookshelf/internal/application"
	"github.com/totegamma/bookshelf/internal/config"
	"github.com/totegamma/bookshelf/internal/domain"
	"github.com/totegamma/bookshelf/internal/infra/database"
	"github.com/totegamma/bookshelf/internal/infra/gateway"
	"github.com/totegamma/bookshelf/internal/infra/repository"
	"github.com/totegamma/bookshelf/internal/present/rest"
	restmw "github.com/totegamma/bookshelf/internal/present/rest/middleware"
	"github.com/totegamma/bookshelf/internal/service"
	"github.com/totegamma/bookshelf/internal/usecase"
)

const (
	serviceName    = "bookshelf"
	serviceVersion = "1.0"
)

func main() {
	root := &cobra.Command{
		Use:          "bookshelf",
		Short:        "Client core for a single-author book registry",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("server", "http://localhost:8000", "bookshelf server url")
	root.PersistentFlags().Bool("debug", false, "print requests")

	root.AddCommand(
		serveCmd(),
		sessionCmd(),
		booksCmd(),
		connectCmd(),
		buyCmd(),
		readCmd(),
		publishCmd(),
		txCmd(),
		noticesCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/bookshelf/config.yaml", "config file path")
	return cmd
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

func serve(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	slog.Info("bookshelf starting", slog.String("contract", conf.Chain.ContractAddress), slog.String("module", "main"))

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			return fmt.Errorf("failed to setup tracing: %v", err)
		}
		defer shutdown(context.Background())
	}

	keyring, err := gateway.NewKeyring(conf.Wallet.PrivateKeys)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %v", err)
	}

	ledger, err := gateway.Dial(ctx, conf.Chain.RPCURL, conf.Chain.ContractAddress, keyring, conf.Chain.ConfirmTimeout())
	if err != nil {
		return fmt.Errorf("failed to dial ledger: %v", err)
	}
	defer ledger.Close()

	chainID, err := ledger.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %v", err)
	}

	opts := application.Options{
		Contract:       ledger.Contract(),
		ConfirmTimeout: conf.Chain.ConfirmTimeout(),
		Wallet:         keyring,
	}

	if conf.Server.PostgresDsn != "" {
		db, err := database.NewPostgres(conf.Server.PostgresDsn)
		if err != nil {
			return fmt.Errorf("failed to connect database: %v", err)
		}
		err = database.MigratePostgres(db)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %v", err)
		}
		opts.History = repository.NewTransactionRepository(db)
	}

	if conf.Server.MemcachedAddr != "" {
		mc := database.NewMemcached(conf.Server.MemcachedAddr)
		opts.PurchasedCache = repository.NewPurchasedBookCache(mc)
	}

	var signalService *service.SignalService
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
		err = database.PingRedis(ctx, rdb)
		if err != nil {
			return err
		}
		defer rdb.Close()
		signalService = service.NewSignalService(rdb)
		opts.Notifier = signalService
	}

	session := application.NewSession(ledger, opts)
	defer session.Close()

	err = session.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}

	if conf.Wallet.DefaultAccount != "" {
		_, err = session.Connect(conf.Wallet.DefaultAccount)
		if err != nil {
			return fmt.Errorf("failed to connect default account: %v", err)
		}
	}

	handler := rest.NewHandler(
		domain.Config{
			Version:  serviceVersion,
			ChainID:  chainID.String(),
			Contract: ledger.Contract(),
		},
		session,
		signalService,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(restmw.NewSessionMiddleware(session).IdentifyAccount)
	handler.RegisterRoutes(e)

	go func() {
		err := e.Start(conf.Server.ListenAddr)
		if err != nil {
			slog.Info("server stopped", slog.String("error", err.Error()), slog.String("module", "main"))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	c := client.New(server)
	debug, _ := cmd.Flags().GetBool("debug")
	c.SetDebug(debug)
	return c
}

func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid book id %q", arg)
	}
	return id, nil
}

func sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the server's well-known document and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(cmd)
			wk, err := c.GetWellKnown(cmd.Context())
			if err != nil {
				return err
			}
			bookshelf.JsonPrint("wellknown", wk)

			state, err := c.Session(cmd.Context())
			if err != nil {
				return err
			}
			bookshelf.JsonPrint("session", state)
			return nil
		},
	}
}

func booksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the author's books",
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := newClient(cmd).Books(cmd.Context())
			if err != nil {
				return err
			}
			if len(listing.Books) == 0 {
				fmt.Println("No books published yet")
				return nil
			}
			for _, b := range listing.Books {
				buy := ""
				if b.CanBuy {
					buy = " [buy]"
				}
				fmt.Printf("%d. %s by %s (%s) - %s ETH, %d left, %s%s\n",
					b.ID, b.Title, b.AuthorName, b.PublishedDate, b.Price, b.CopiesRemaining, b.Status, buy)
			}
			return nil
		},
	}
	return cmd
}

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect [address]",
		Short: "Select the active account, or disconnect when no address is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(cmd)
			var (
				state domain.SessionState
				err   error
			)
			if len(args) == 0 {
				state, err = c.Disconnect(cmd.Context())
			} else {
				state, err = c.Connect(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("account: %s\nview: %s\n", state.ActiveAccount, state.View)
			return nil
		},
	}
	return cmd
}

func buyCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "buy <book id>",
		Short: "Purchase a book as the active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c := newClient(cmd)
			summary, err := c.Purchase(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("submitted %s\n", summary.ID)
			if wait {
				return waitAndPrint(cmd, c, summary.ID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for confirmation")
	return cmd
}

func readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <book id>",
		Short: "Print the content of a purchased book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			book, err := newClient(cmd).BookContent(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n\n%s\n", book.Title, book.AuthorName, book.Content)
			return nil
		},
	}
	return cmd
}

func publishCmd() *cobra.Command {
	var (
		form usecase.PublishForm
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a book as the author",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(cmd)
			_, err := c.UpdateDraft(cmd.Context(), form)
			if err != nil {
				return err
			}
			summary, err := c.Publish(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("submitted %s\n", summary.ID)
			if wait {
				return waitAndPrint(cmd, c, summary.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Title, "title", "", "book title")
	cmd.Flags().StringVar(&form.Content, "content", "", "book content")
	cmd.Flags().StringVar(&form.AuthorName, "author", "", "author name")
	cmd.Flags().StringVar(&form.PublishedDate, "date", "", "published date")
	cmd.Flags().StringVar(&form.Price, "price", "0", "price in ETH")
	cmd.Flags().StringVar(&form.Copies, "copies", "10", "copies for sale")
	cmd.Flags().StringVar(&form.Status, "status", "Available", "Available or Unavailable")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for confirmation")
	return cmd
}

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx [id]",
		Short: "Show one transaction, or the recent ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(cmd)
			if len(args) == 1 {
				record, err := c.Transaction(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRecord(record)
				return nil
			}
			records, err := c.Transactions(cmd.Context(), 20)
			if err != nil {
				return err
			}
			for _, r := range records {
				printRecord(r)
			}
			return nil
		},
	}
	return cmd
}

func noticesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "Show session notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			notices, err := newClient(cmd).Notices(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range notices {
				fmt.Printf("[%s] %s %s\n", n.Level, n.CreatedAt.Format(time.RFC3339), n.Message)
			}
			return nil
		},
	}
	return cmd
}

func waitAndPrint(cmd *cobra.Command, c *client.Client, id string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*usecase.DefaultConfirmTimeout)
	defer cancel()
	record, err := c.WaitTransaction(ctx, id, 2*time.Second)
	if err != nil {
		return err
	}
	printRecord(record)
	return nil
}

func printRecord(r domain.TransactionRecord) {
	fmt.Printf("%s %s %s\n", r.ID, r.Kind, r.Status)
	if r.TransactionHash != "" {
		fmt.Printf("  from:  %s\n  to:    %s\n  tx:    %s\n  block: %s (%d)\n", r.From, r.To, r.TransactionHash, r.BlockHash, r.BlockNumber)
	}
	if r.Error != "" {
		fmt.Printf("  error: %s\n", r.Error)
	}
}
