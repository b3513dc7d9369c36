// Package web holds the embedded page templates and static assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/glycoguard/glycoguard/internal/model"
	"github.com/glycoguard/glycoguard/internal/service"
	"github.com/glycoguard/glycoguard/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	PageLanding   = "landing"
	PageLogin     = "login"
	PageRegister  = "register"
	PageDashboard = "dashboard"
	PagePredict   = "predict"
	PageHistory   = "history"
	PageProfile   = "profile"
	PageError     = "error"
)

var pages = []string{
	PageLanding, PageLogin, PageRegister, PageDashboard,
	PagePredict, PageHistory, PageProfile, PageError,
}

// FeatureField describes one input on the prediction form.
type FeatureField struct {
	Name  string
	Label string
	Help  string
	Min   string
	Max   string
	Step  string
}

// FeatureFields lists the prediction form inputs in classifier order.
var FeatureFields = []FeatureField{
	{model.FeatureHighBP, "High blood pressure", "0 = no, 1 = yes", "0", "1", "1"},
	{model.FeatureGenHlth, "General health", "1 = excellent … 5 = poor", "1", "5", "1"},
	{model.FeatureBMI, "Body mass index", "e.g. 28.5", "0.1", "", "0.1"},
	{model.FeatureAge, "Age", "years or age category", "0", "", "1"},
	{model.FeatureHighChol, "High cholesterol", "0 = no, 1 = yes", "0", "1", "1"},
	{model.FeatureCholCheck, "Cholesterol check in the last 5 years", "0 = no, 1 = yes", "0", "1", "1"},
	{model.FeatureIncome, "Income", "annual income or income category", "0", "", "any"},
	{model.FeaturePhysHlth, "Days of poor physical health", "in the last 30 days", "0", "30", "1"},
}

// Page is the data every template receives.
type Page struct {
	Title     string
	Principal *model.Principal
	Flashes   []session.Flash

	// Form state re-rendered after a failed submission.
	Form map[string]string
	Next string

	Predictions []*model.PredictionRecord
	Stats       service.ProfileStats
	Fields      []FeatureField
	Available   bool

	Status  int
	Message string
}

// Renderer executes page templates.
type Renderer struct {
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"percent": func(p float64) string {
		return fmt.Sprintf("%.1f%%", p*100)
	},
	"datetime": formatTime,
	"feature": func(rec *model.PredictionRecord, name string) string {
		for i, n := range model.FeatureNames() {
			if n == name {
				return strconv.FormatFloat(rec.Features[i], 'f', -1, 64)
			}
		}
		return ""
	},
	"highRisk": func(l model.Label) bool {
		return l == model.LabelHighRisk
	},
	"featureNames": model.FeatureNames,
}

// TimeLayout renders timestamps at seconds precision.
const TimeLayout = "2006-01-02 15:04:05"

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(TimeLayout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(TimeLayout)
	default:
		return ""
	}
}

// NewRenderer parses every page against the shared layout.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render writes the named page. Output is buffered so a template error never yields a half page.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data *Page) error {
	t, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if data.Fields == nil && name == PagePredict {
		data.Fields = FeatureFields
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
