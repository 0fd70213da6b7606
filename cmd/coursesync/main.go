package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"coursesync/internal/app"
	"coursesync/internal/config"
	"coursesync/internal/ingest"
	"coursesync/internal/model"
	"coursesync/internal/session"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Crawl", "RemoveCourse").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.New(cmd.Context(), cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:          "coursesync",
	Short:        "Moodle course ingestion",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		cfg.Site.BaseURL, _ = cmd.Flags().GetString("base-url")

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		if cfg.Site.BaseURL == "" {
			fmt.Println("Set site.base_url before crawling.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Site:        %s\n", cfg.Site.BaseURL)
		fmt.Printf("Store:       %s (%s)\n", cfg.Store.Name, cfg.Store.Type)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Spool:       %s\n", cfg.Spool.Type)
		fmt.Printf("Session:     %s\n", cfg.Session.Path)
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and store access",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CheckStore")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckStore(cmd.Context()); err != nil {
			return fmt.Errorf("store check failed: %w", err)
		}
		fmt.Println("Configuration OK")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the course database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database up to date")
		return nil
	},
}

// session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the site session",
}

var sessionImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Encrypt and store exported session cookies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening cookie export: %w", err)
		}
		defer f.Close()

		pass, err := promptPassphrase("Passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		store := session.NewStore(cfg.Session)
		n, err := store.Import(f, pass)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d cookie(s) into %s\n", n, store.Path())
		fmt.Println("The export may be deleted now.")
		return nil
	},
}

// crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Synchronize every visible course into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		cookiesPath, _ := cmd.Flags().GetString("cookies")

		a, err := newApp(cmd, "Crawl")
		if err != nil {
			return err
		}
		defer a.Close()

		cookies, err := a.Cookies(cookiesPath, func() (string, error) {
			return promptPassphrase("Session passphrase: ")
		})
		if err != nil {
			return err
		}

		result, err := a.Crawl(cmd.Context(), owner, cookies)
		if err != nil {
			if errors.Is(err, ingest.ErrSessionExpired) {
				return fmt.Errorf("%w: export fresh cookies and run \"coursesync session import\"", err)
			}
			return fmt.Errorf("crawl failed: %w", err)
		}

		for _, c := range result.Courses {
			fmt.Printf("%-10s  %3d section(s)  %3d stored  %3d local  %3d unbacked\n",
				c.CourseID, c.Sections, c.Stored, c.Local, c.Unbacked)
		}
		fmt.Printf("Crawled %d of %d course(s), %d failed; %d file(s) downloaded, %d missed\n",
			len(result.Courses), result.Listed, result.Failed, result.Fetched, result.Missed)
		return nil
	},
}

// course command
var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Inspect stored courses",
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		a, err := newApp(cmd, "ListCourses")
		if err != nil {
			return err
		}
		defer a.Close()

		courses, err := a.ListCourses(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if len(courses) == 0 {
			fmt.Println("No courses stored.")
			return nil
		}
		for _, c := range courses {
			fmt.Printf("%-10s  %s  %s\n", c.CourseID, c.UpdatedAt.Format("2006-01-02 15:04:05"), c.CourseName)
		}
		return nil
	},
}

var courseShowCmd = &cobra.Command{
	Use:   "show COURSE_ID",
	Short: "Show a course's sections and files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s (owner %s)\n\n", status.Course.CourseID, status.Course.CourseName, status.Course.OwnerID)
		for _, s := range status.Sections {
			fmt.Printf("  [%d] %s\n", s.Position, s.Title)
		}
		if len(status.Files) > 0 {
			fmt.Println()
		}
		for _, fs := range status.Files {
			fmt.Printf("%s %-9s %8d  %s\n", fileIndicator(fs), fs.File.Status, fs.File.Size, fs.File.Path)
		}
		return nil
	},
}

// fileIndicator marks whether the store holds the object (P) and whether the
// file's section is gone (O).
func fileIndicator(fs *ingest.FileState) string {
	switch {
	case fs.Present && fs.Orphaned:
		return "PO"
	case fs.Present:
		return "P "
	case fs.Orphaned:
		return " O"
	default:
		return "  "
	}
}

var courseRmCmd = &cobra.Command{
	Use:   "rm COURSE_ID",
	Short: "Remove a course from the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")

		a, err := newApp(cmd, "RemoveCourse")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.RemoveCourse(cmd.Context(), args[0], purge)
		if err != nil {
			return err
		}
		fmt.Printf("Removed course %s\n", args[0])
		if purge {
			fmt.Printf("Purged %d object(s)\n", n)
		}
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Access stored files",
}

var fileURLCmd = &cobra.Command{
	Use:   "url KEY",
	Short: "Print a time-limited download URL for a file key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expiry, _ := cmd.Flags().GetDuration("expiry")

		a, err := newApp(cmd, "FileURL")
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.FileURL(cmd.Context(), args[0], expiry)
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export COURSE_ID DIR",
	Short: "Write a course's files and section notes to a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Export")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.Export(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		fmt.Printf("Exported %d file(s)\n", len(paths))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View crawl operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			fmt.Printf("#%d  %-13s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration(op),
				op.Parameters,
			)
		}
		return nil
	},
}

func duration(op *model.CrawlOperation) string {
	if !op.FinishedAt.Valid {
		return ""
	}
	return op.FinishedAt.Time.Sub(op.StartedAt).Truncate(time.Millisecond).String()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("base-url", "", "Moodle site URL, e.g. https://moodle.example.edu")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configCheckCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	sessionCmd.AddCommand(sessionImportCmd)

	// course subcommands
	courseCmd.AddCommand(courseListCmd)
	courseListCmd.Flags().String("owner", "", "Only list courses last crawled by this owner")
	courseCmd.AddCommand(courseShowCmd)
	courseCmd.AddCommand(courseRmCmd)
	courseRmCmd.Flags().Bool("purge", false, "Also delete the course's objects from the store")

	fileCmd.AddCommand(fileURLCmd)
	fileURLCmd.Flags().Duration("expiry", time.Hour, "How long the URL stays valid")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().String("owner", "default", "Owner recorded on crawled courses")
	crawlCmd.Flags().String("cookies", "", "Read cookies from a plaintext export instead of the imported session")
	rootCmd.AddCommand(courseCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
