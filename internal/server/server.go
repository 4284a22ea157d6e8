package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/mediawatch/internal/database"
	"github.com/TobiSchelling/mediawatch/internal/pipeline"
	"github.com/TobiSchelling/mediawatch/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// runListLimit caps the run history shown on the index page.
const runListLimit = 50

// Server is the HTTP server for browsing stored runs.
type Server struct {
	db     *database.DB
	limits report.Limits
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, limits report.Limits) (*Server, error) {
	funcMap := template.FuncMap{
		"formatWindow": database.FormatWindow,
		"formatTime": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04")
		},
		"failedSources": func(run database.Run) int {
			n := 0
			for _, s := range run.Sources {
				if s.Failed() {
					n++
				}
			}
			return n
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so that {{define "content"}} does
	// not collide between pages.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, limits: limits, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/latest", s.handleLatest)
	s.mux.HandleFunc("/run/", s.handleRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.db.ListRuns(runListLimit)
	if err != nil {
		slog.Error("listing runs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Runs": runs,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.GetLatestRun()
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/run/"+run.ID, http.StatusFound)
}

// handleRun serves /run/{id}, /run/{id}/snapshot.json and /run/{id}/results.csv.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/run/")
	runID, artifact, _ := strings.Cut(path, "/")
	if runID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	run, rep, err := pipeline.LoadRunReport(s.db, runID)
	if errors.Is(err, database.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("loading run", "run", runID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	meta := pipeline.RunMeta(run, s.limits)

	switch artifact {
	case "":
		body, err := report.RenderHTMLFragment(rep, meta)
		if err != nil {
			slog.Error("rendering run", "run", runID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.render(w, "run.html", map[string]any{
			"Run":    run,
			"Report": template.HTML(body), //nolint: gosec
		})
	case report.SnapshotFile, "snapshot.json":
		w.Header().Set("Content-Type", "application/json")
		if err := report.WriteSnapshot(w, rep, meta); err != nil {
			slog.Error("writing snapshot", "run", runID, "error", err)
		}
	case report.CSVFile, "results.csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.CSVFile))
		if err := report.WriteCSV(w, rep); err != nil {
			slog.Error("writing csv", "run", runID, "error", err)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		slog.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		slog.Error("rendering template", "template", name, "error", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, limits report.Limits, port int) error {
	srv, err := New(db, limits)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	slog.Info("server listening", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
