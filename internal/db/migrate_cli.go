package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

// Output and confirmation input of the migrate subcommand.
var (
	migrateOut io.Writer = os.Stdout
	migrateIn  io.Reader = os.Stdin
)

// ErrMigrateUsage is returned for an unknown or incomplete migrate command.
var ErrMigrateUsage = errors.New("invalid migrate usage")

// RunMigrateCommand handles the 'migrate' subcommand.
func RunMigrateCommand(args []string, dbPath string) error {
	if len(args) < 1 {
		PrintMigrateHelp()
		return ErrMigrateUsage
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return nil
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	// Open without running migrations; the subcommand owns the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		return handleMigrateUp(database, migrations)
	case "down":
		return handleMigrateDown(database, migrations)
	case "status":
		return handleMigrateStatus(database, migrations)
	case "detect":
		return handleMigrateDetect(database, migrations)
	case "version", "force", "baseline":
		if len(args) < 2 {
			return fmt.Errorf("%w: dpd-server migrate %s <version_number>", ErrMigrateUsage, action)
		}
		n, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: invalid version number %q", ErrMigrateUsage, args[1])
		}
		switch action {
		case "version":
			return handleMigrateVersion(database, migrations, uint(n))
		case "force":
			return handleMigrateForce(database, migrations, int(n))
		default:
			return handleMigrateBaseline(database, uint(n))
		}
	default:
		fmt.Fprintf(migrateOut, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		return ErrMigrateUsage
	}
}

func handleMigrateUp(database *DB, migrations fs.FS) error {
	monitoring.Logf("running migrations...")
	if err := database.MigrateUp(migrations); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion(migrations)
	monitoring.Logf("all migrations applied; current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateDown(database *DB, migrations fs.FS) error {
	monitoring.Logf("rolling back one migration...")
	if err := database.MigrateDown(migrations); err != nil {
		return err
	}
	version, dirty, _ := database.MigrateVersion(migrations)
	monitoring.Logf("migration rolled back; current version: %d (dirty: %v)", version, dirty)
	return nil
}

func handleMigrateStatus(database *DB, migrations fs.FS) error {
	st, err := database.GetMigrationStatus(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintln(migrateOut, "=== Migration Status ===")
	fmt.Fprintf(migrateOut, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(migrateOut, "Latest available: %d\n", st.LatestVersion)
	fmt.Fprintf(migrateOut, "Dirty: %v\n", st.Dirty)
	fmt.Fprintf(migrateOut, "Schema migrations table exists: %v\n", st.SchemaMigrationsExists)
	if st.Dirty {
		fmt.Fprintln(migrateOut, "\nWARNING: a migration failed mid-execution. Inspect the database, fix it, then run:")
		fmt.Fprintln(migrateOut, "  dpd-server migrate force <version>")
	}
	return nil
}

func handleMigrateVersion(database *DB, migrations fs.FS, target uint) error {
	monitoring.Logf("migrating to version %d...", target)
	if err := database.MigrateTo(migrations, target); err != nil {
		return err
	}
	monitoring.Logf("migrated to version %d", target)
	return nil
}

func handleMigrateForce(database *DB, migrations fs.FS, version int) error {
	fmt.Fprintf(migrateOut, "WARNING: forcing migration version to %d\n", version)
	fmt.Fprintln(migrateOut, "This should only be used to recover from a dirty migration state.")
	fmt.Fprint(migrateOut, "Continue? [y/N]: ")

	response, _ := bufio.NewReader(migrateIn).ReadString('\n')
	if r := strings.TrimSpace(response); r != "y" && r != "Y" {
		fmt.Fprintln(migrateOut, "Aborted")
		return nil
	}
	if err := database.MigrateForce(migrations, version); err != nil {
		return err
	}
	monitoring.Logf("migration version forced to %d", version)
	return nil
}

func handleMigrateBaseline(database *DB, version uint) error {
	return database.BaselineAtVersion(version)
}

// handleMigrateDetect reports the schema state. A database without
// schema_migrations but with the core tables is assumed to be at version 1.
func handleMigrateDetect(database *DB, migrations fs.FS) error {
	tracked, err := database.tableExists("schema_migrations")
	if err != nil {
		return err
	}
	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		return err
	}
	if tracked {
		version, dirty, err := database.MigrateVersion(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintf(migrateOut, "Current version: %d\nLatest available: %d\nDirty: %v\n", version, latest, dirty)
		switch {
		case dirty:
			fmt.Fprintln(migrateOut, "Database is in a dirty state. Recovery needed.")
		case version < latest:
			fmt.Fprintf(migrateOut, "Database is %d version(s) behind. Run 'dpd-server migrate up'.\n", latest-version)
		default:
			fmt.Fprintln(migrateOut, "Database is up to date.")
		}
		return nil
	}

	var missing []string
	for _, table := range []string{"attendance_history", "density_history", "nodes", "locations"} {
		ok, err := database.tableExists(table)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	if len(missing) == 0 {
		fmt.Fprintln(migrateOut, "Untracked database with the initial schema.")
		fmt.Fprintln(migrateOut, "  dpd-server migrate baseline 1")
		if latest > 1 {
			fmt.Fprintln(migrateOut, "  dpd-server migrate up")
		}
		return nil
	}
	fmt.Fprintf(migrateOut, "Untracked database missing tables: %s\n", strings.Join(missing, ", "))
	fmt.Fprintln(migrateOut, "Run 'dpd-server migrate up' on an empty database, or inspect the schema manually.")
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Fprint(migrateOut, `Database Migration Commands

Usage: dpd-server migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  detect          Inspect a database without schema_migrations
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  baseline <N>    Set migration version to N without running migrations
  help            Show this help message

Options:
  --db-path <path>    Path to database file (default: dpd.db)
`)
}
