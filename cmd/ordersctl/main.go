// Command ordersctl is the operator tool for the order store and event stream.
//
//	ordersctl stats
//	ordersctl recent [-limit 10]
//	ordersctl history <order-id>
//	ordersctl create-admin -username u -email e -password p [-name n] [-role admin]
//	ordersctl watch [-url http://localhost:5000/api/sse/orders] (-token t | -login l -password p)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"vahtook/internal/auth"
	"vahtook/internal/client"
	"vahtook/internal/config"
	"vahtook/internal/db"
	"vahtook/internal/logger"
	"vahtook/models"
	"vahtook/repository"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ordersctl <stats|recent|history|create-admin|watch> [flags]")
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "stats":
		err = runStats(ctx, cfg)
	case "recent":
		err = runRecent(ctx, cfg, args)
	case "history":
		err = runHistory(ctx, cfg, args)
	case "create-admin":
		err = runCreateAdmin(ctx, cfg, args)
	case "watch":
		err = runWatch(ctx, cfg, args)
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func openStore(cfg *config.Config) (*db.DB, error) {
	return db.Open(db.Dialect(cfg.Database.Driver), cfg.Database.DSN)
}

func runStats(ctx context.Context, cfg *config.Config) error {
	d, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	s, err := repository.NewOrderRepository(d).Statistics(ctx)
	if err != nil {
		return err
	}
	return renderStats(os.Stdout, s)
}

func runRecent(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	limit := fs.Int("limit", 10, "number of orders to show")
	_ = fs.Parse(args)

	d, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	list, err := repository.NewOrderRepository(d).Recent(ctx, *limit)
	if err != nil {
		return err
	}
	return renderOrders(os.Stdout, list)
}

func runHistory(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("want exactly one order id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid order id %q", args[0])
	}
	d, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	repo := repository.NewOrderRepository(d)
	o, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order %d not found", id)
	}
	rows, err := repo.StatusHistory(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s  status=%s\n", o.OrderNumber, o.CustomerName, o.Status)
	return renderHistory(os.Stdout, rows)
}

func runCreateAdmin(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "initial password")
	name := fs.String("name", "", "display name (defaults to username)")
	role := fs.String("role", string(models.RoleAdmin), "super_admin, admin or operator")
	_ = fs.Parse(args)

	a, err := newAdmin(*username, *email, *password, *name, models.AdminRole(*role))
	if err != nil {
		return err
	}
	d, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	created, err := repository.NewAdminRepository(d).Create(ctx, a)
	if err != nil {
		if db.IsDuplicate(err) {
			return fmt.Errorf("username or email already exists")
		}
		return err
	}
	fmt.Printf("created admin %d (%s, %s)\n", created.ID, created.Username, created.Role)
	return nil
}

// newAdmin validates the flags and hashes the password.
func newAdmin(username, email, password, name string, role models.AdminRole) (*models.Admin, error) {
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("username, email and password are required")
	}
	switch role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleOperator:
	default:
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if name == "" {
		name = username
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := models.NewAdmin(username, email, name)
	a.PasswordHash = hash
	a.Role = role
	return a, nil
}

func runWatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", "http://localhost"+cfg.HTTP.Address+"/api/sse/orders", "event stream endpoint")
	token := fs.String("token", os.Getenv("ORDERSCTL_TOKEN"), "bearer token")
	login := fs.String("login", "", "admin username or email; mints a token from the local store")
	password := fs.String("password", "", "admin password, with -login")
	_ = fs.Parse(args)

	tokens := client.StaticToken(*token)
	if *login != "" {
		d, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer d.Close()
		authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, repository.NewAdminRepository(d))
		tokens = loginTokens(authn, *login, *password)
	}

	w := newWatcher(os.Stdout, client.NewOrderBook(client.DefaultBookSize))
	agent := client.NewAgent(*url, tokens, w,
		client.WithLogger(logger.New("ordersctl")),
		client.WithStateHook(func(s client.State) {
			fmt.Fprintf(os.Stderr, "[%s]\n", s)
		}),
	)
	if err := agent.Connect(); err != nil {
		return err
	}
	<-ctx.Done()
	agent.Disconnect()
	return nil
}

// loginTokens mints a fresh token for every connection attempt so that a long watch
// survives token expiry.
func loginTokens(a *auth.Authenticator, login, password string) client.TokenSource {
	return func(ctx context.Context) (string, error) {
		tok, _, err := a.Login(ctx, login, password)
		return tok, err
	}
}
