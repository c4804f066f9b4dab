// main.go - Admin control tool for Sitepulse
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"log/slog"

	"sitepulse/internal"
	"sitepulse/internal/seeder"
	"sitepulse/internal/settings"
	"sitepulse/internal/sites"
	"sitepulse/internal/tracking"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateSiteCommand{},
	&ListSitesCommand{},
	&SetAPIKeyCommand{},
	&GenerateAPIKeyCommand{},
	&PurgeSiteCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func connection(app *internal.Application) (*gorm.DB, error) {
	if app == nil {
		return nil, fmt.Errorf("app initialization failed, cannot connect to database")
	}
	return app.DBManager.GetConnection(), nil
}

// CreateSiteCommand registers a new site and prints its tracking ID
type CreateSiteCommand struct{}

func (c *CreateSiteCommand) Name() string        { return "create-site" }
func (c *CreateSiteCommand) Description() string { return "Registers a new site" }

func (c *CreateSiteCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("create-site", flag.ContinueOnError)
	name := fs.String("name", "", "display name for the site")
	domain := fs.String("domain", "", "site domain, e.g. example.com")
	userID := fs.String("user", "", "owner reference from the external auth system")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" || *domain == "" {
		return fmt.Errorf("usage: %s -name <name> -domain <domain> [-user <user-id>]", c.Name())
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	site := &sites.Site{
		UserID: *userID,
		Name:   strings.TrimSpace(*name),
		Domain: strings.ToLower(strings.TrimSpace(*domain)),
	}
	if err := sites.CreateSite(db, site); err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}

	fmt.Printf("Site created (id %d)\n", site.ID)
	fmt.Printf("Tracking ID: %s\n", site.TrackingID)
	return nil
}

// ListSitesCommand prints all registered sites
type ListSitesCommand struct{}

func (c *ListSitesCommand) Name() string        { return "list-sites" }
func (c *ListSitesCommand) Description() string { return "Lists all registered sites" }

func (c *ListSitesCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	all, err := sites.GetAllSites(db)
	if err != nil {
		return err
	}

	if len(all) == 0 {
		fmt.Println("No sites registered")
		return nil
	}

	for _, site := range all {
		state := "active"
		if !site.Active {
			state = "inactive"
		}
		fmt.Printf("%d\t%s\t%s\t%s\t%s\n", site.ID, site.Name, site.Domain, site.TrackingID, state)
	}
	return nil
}

// SetAPIKeyCommand stores a new admin API key, read without echo
type SetAPIKeyCommand struct{}

func (c *SetAPIKeyCommand) Name() string        { return "set-api-key" }
func (c *SetAPIKeyCommand) Description() string { return "Sets the admin API key" }

func (c *SetAPIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	fmt.Print("Enter new admin API key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	fmt.Print("Confirm admin API key: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	if string(key) != string(confirm) {
		return fmt.Errorf("keys do not match")
	}

	if err := settings.SetAdminAPIKey(db, string(key)); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Println("Admin API key updated")
	return nil
}

// GenerateAPIKeyCommand creates a random admin API key and prints it once
type GenerateAPIKeyCommand struct{}

func (c *GenerateAPIKeyCommand) Name() string { return "generate-api-key" }
func (c *GenerateAPIKeyCommand) Description() string {
	return "Generates a random admin API key and prints it"
}

func (c *GenerateAPIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	key, err := settings.GenerateAdminAPIKey(db)
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	fmt.Println("Admin API key (store it now, it is not retrievable later):")
	fmt.Println(key)
	return nil
}

// PurgeSiteCommand deletes all analytics rows for a site
type PurgeSiteCommand struct{}

func (c *PurgeSiteCommand) Name() string        { return "purge-site" }
func (c *PurgeSiteCommand) Description() string { return "Deletes all analytics data for a site" }

func (c *PurgeSiteCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <site-id>", c.Name())
	}

	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid site id: %s", args[0])
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot purge")
	}

	db := app.DBManager.GetConnection()
	site, err := sites.GetSiteByID(db, uint(id))
	if err != nil {
		return fmt.Errorf("site lookup failed: %w", err)
	}

	deleted, err := tracking.PurgeSiteAnalytics(app.DBManager, slog.Default(), site.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Purged analytics for %s: %d sessions, %d page views, %d link clicks, %d events\n",
		site.Domain, deleted.Sessions, deleted.PageViews, deleted.LinkClicks, deleted.CustomEvents)
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := settings.SetupDefaultSettings(app.DBManager.GetConnection()); err != nil {
		return fmt.Errorf("failed to set up default settings: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with demo traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	hits := fs.Int("hits", 10000, "number of page views to generate")
	domain := fs.String("domain", "", "existing domain to seed (creates a demo site if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *hits)

	if *domain != "" {
		return se.SeedDomain(ctx, *domain)
	}
	return se.SeedDemoSite(ctx)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	var siteCount int64
	if err := db.Model(&sites.Site{}).Count(&siteCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var sessionCount int64
	if err := db.Model(&tracking.Session{}).Count(&sessionCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Sites: %d", siteCount)
	log.Printf("- Sessions: %d", sessionCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: spctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: spctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
