package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/go-sql-driver/mysql" // Import for side effects
	_ "github.com/mattn/go-sqlite3"    // Import for side effects
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	debugger "github.com/fllarpy/api-debugger"
	"github.com/fllarpy/api-debugger/config"
)

type serveOptions struct {
	configPath string
	addr       string
	driver     string
	dsn        string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a demo JSON API with the debugger attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "directory holding config.yaml")
	flags.StringVar(&opts.addr, "addr", ":8080", "listen address")
	flags.StringVar(&opts.driver, "driver", "sqlite3", "database/sql driver: sqlite3 or mysql")
	flags.StringVar(&opts.dsn, "dsn", "file:api-debugger?mode=memory&cache=shared", "data source name")
	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if opts.driver != "sqlite3" && opts.driver != "mysql" {
		return errors.Newf("unsupported driver %q", opts.driver)
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	d, err := debugger.NewDebugger(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize debugger")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Shutdown(shutdownCtx)
	}()
	logger := d.Logger()

	db, err := d.OpenDB(opts.driver, opts.dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer db.Close()
	if opts.driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := seed(ctx, db); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", userHandler(db))
	mux.HandleFunc("GET /users", usersHandler(d, db))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		debugger.Dump(r.Context(), "not attached to plain text")
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           d.Handler(mux, "http-server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", opts.addr), zap.String("driver", opts.driver))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func seed(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name VARCHAR(64))`); err != nil {
		return errors.Wrap(err, "failed to create table")
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return errors.Wrap(err, "failed to count users")
	}
	if n > 0 {
		return nil
	}
	for i, name := range []string{"Alice", "Bob", "Charlie"} {
		if _, err := db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES (?, ?)`, i+1, name); err != nil {
			return errors.Wrapf(err, "failed to insert %s", name)
		}
	}
	return nil
}

// userHandler writes a plain JSON object; the middleware splices the debug
// key into it.
func userHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}

		var name string
		err = db.QueryRowContext(r.Context(), `SELECT name FROM users WHERE id = ?`, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		debugger.Dump(r.Context(), map[string]any{"id": id, "name": name})

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":` + strconv.Itoa(id) + `,"name":` + strconv.Quote(name) + `}`))
	}
}

// usersHandler answers through the envelope responder.
func usersHandler(d *debugger.Debugger, db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rows, err := db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var ids []int
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ids = append(ids, id)
		}
		rows.Close()

		// One lookup per user, the way a naive handler would.
		users := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			var name string
			if err := db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, id).Scan(&name); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			users = append(users, map[string]any{"id": id, "name": name})
		}
		d.Dump(ctx, len(users))
		d.Respond(w, r, http.StatusOK, users)
	}
}
