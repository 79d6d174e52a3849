// Package portal implements the read-only skill/status web portal
// (spec §4.11): a dashboard of registered skills, JSON status/skill
// APIs, and a reports directory browser. No mutation endpoints exist.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/protea-dev/protea/internal/skills"
	"github.com/protea-dev/protea/internal/state"
)

// allowedReportExt is the extension allowlist for served report
// files, per spec §4.11.
var allowedReportExt = map[string]bool{".html": true, ".md": true, ".pdf": true}

// Portal serves the read-only dashboard.
type Portal struct {
	catalog     *skills.Catalog
	state       *state.State
	reportsDir  string
	entrypoint  string
	workerDir   string
	server      *http.Server
}

// New returns a Portal bound to addr (host:port). Listening starts
// with Run.
func New(catalog *skills.Catalog, st *state.State, reportsDir, workerDir, entrypoint, addr string) *Portal {
	p := &Portal{catalog: catalog, state: st, reportsDir: reportsDir, workerDir: workerDir, entrypoint: entrypoint}
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleDashboard)
	mux.HandleFunc("/api/skills", p.handleAPISkills)
	mux.HandleFunc("/api/status", p.handleAPIStatus)
	mux.HandleFunc("/skill/", p.handleSkillDetail)
	mux.HandleFunc("/reports", p.handleReportsList)
	mux.HandleFunc("/reports/", p.handleReportFile)
	p.server = &http.Server{Addr: addr, Handler: mux}
	return p
}

// Run starts serving and blocks until the server is shut down.
func (p *Portal) Run() error {
	err := p.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (p *Portal) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}

func (p *Portal) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	entries, err := p.catalog.Active(r.Context(), 100)
	if err != nil {
		entries = nil
	}
	var cards strings.Builder
	for _, s := range entries {
		fmt.Fprintf(&cards, `<a href="/skill/%s" class="card"><h3>%s</h3><div class="desc">%s</div>`+
			`<div class="meta"><span>usage: %d</span></div></a>`,
			html.EscapeString(s.Name), html.EscapeString(s.Name), html.EscapeString(truncate(s.Description, 120)), s.UsageCount)
	}
	body := `<div class="grid">` + cards.String() + `</div>`
	if len(entries) == 0 {
		body = `<p style="color:#777">No skills registered yet.</p>`
	}
	writeHTML(w, page("Dashboard", body, true))
}

func (p *Portal) handleAPISkills(w http.ResponseWriter, r *http.Request) {
	entries, err := p.catalog.Active(r.Context(), 100)
	if err != nil {
		entries = nil
	}
	writeJSON(w, entries)
}

func (p *Portal) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap := p.state.Snapshot()
	writeJSON(w, map[string]interface{}{
		"portal":      "running",
		"phase":       snap.Phase,
		"generation":  snap.Generation,
		"alive":       snap.Alive,
		"pause":       snap.Pause,
		"timestamp":   time.Now().Unix(),
		"worker_dir":  p.workerDir,
	})
}

func (p *Portal) handleSkillDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/skill/")
	if name == "" {
		http.NotFound(w, r)
		return
	}
	s, ok, err := p.catalog.GetByName(r.Context(), name)
	if err != nil || !ok {
		http.Error(w, fmt.Sprintf("Skill %q not found", name), http.StatusNotFound)
		return
	}
	var tags strings.Builder
	for _, t := range s.Tags {
		fmt.Fprintf(&tags, `<span class="tag">%s</span>`, html.EscapeString(t))
	}
	body := fmt.Sprintf(
		`<h2>%s</h2><p style="margin:0.8rem 0;color:#999">%s</p><div class="tags">%s</div><p style="color:#777">Source: %s</p>`,
		html.EscapeString(s.Name), html.EscapeString(s.Description), tags.String(), html.EscapeString(s.Source),
	)
	writeHTML(w, page(s.Name, body, false))
}

type reportEntry struct {
	Name    string
	ModTime time.Time
	SizeKB  float64
}

func (p *Portal) handleReportsList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(p.reportsDir)
	if err != nil {
		writeHTML(w, page("Reports", `<p style="color:#777">No reports directory found.</p>`, false))
		return
	}
	var reports []reportEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !allowedReportExt[filepath.Ext(e.Name())] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, reportEntry{Name: e.Name(), ModTime: info.ModTime(), SizeKB: float64(info.Size()) / 1024})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ModTime.After(reports[j].ModTime) })

	if len(reports) == 0 {
		writeHTML(w, page("Reports", `<p style="color:#777">No reports available yet.</p>`, false))
		return
	}
	var items strings.Builder
	for _, rep := range reports {
		fmt.Fprintf(&items, `<a href="/reports/%s" class="card"><h3>%s</h3><div class="meta"><span>%s</span><span>%.1f KB</span></div></a>`,
			html.EscapeString(rep.Name), html.EscapeString(rep.Name), rep.ModTime.Format("2006-01-02 15:04"), rep.SizeKB)
	}
	writeHTML(w, page("Reports", `<div class="grid">`+items.String()+`</div>`, false))
}

func (p *Portal) handleReportFile(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/reports/")
	ext := filepath.Ext(filename)
	if !allowedReportExt[ext] {
		http.Error(w, "Only html/md/pdf files are served", http.StatusForbidden)
		return
	}

	reportsAbs, err := filepath.Abs(p.reportsDir)
	if err != nil {
		http.Error(w, "Reports directory not configured", http.StatusNotFound)
		return
	}
	target, err := filepath.Abs(filepath.Join(p.reportsDir, filename))
	if err != nil || !strings.HasPrefix(target, reportsAbs+string(filepath.Separator)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, target)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

const baseCSS = `* { margin: 0; padding: 0; box-sizing: border-box; }
body { background: #0a0e27; color: #e0e0e0; font-family: 'Segoe UI', system-ui, sans-serif; }
a { color: #667eea; text-decoration: none; }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 1.2rem 2rem; }
.container { max-width: 1200px; margin: 2rem auto; padding: 0 1.5rem; }
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(280px, 1fr)); gap: 1.2rem; }
.card { background: #151a3a; border: 1px solid #252a4a; border-radius: 10px; padding: 1.2rem; }
.tag { background: #252a4a; color: #aaa; font-size: 0.75rem; padding: 0.15rem 0.5rem; border-radius: 4px; margin-right: 0.3rem; }
`

func page(title, body string, refresh bool) string {
	meta := ""
	if refresh {
		meta = `<meta http-equiv="refresh" content="10">`
	}
	return "<!DOCTYPE html><html><head><meta charset='utf-8'>" +
		"<title>" + html.EscapeString(title) + " — Protea</title>" + meta +
		"<style>" + baseCSS + "</style></head><body>" +
		`<div class="header"><h1>Protea Skill Portal</h1></div>` +
		`<div class="container">` + body + `</div>` +
		"</body></html>"
}
