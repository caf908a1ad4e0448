// Package templates parses the embedded page templates. Each page is parsed together with the
// shared layout so every page can define its own "content" block.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"uemfood.app/storefront/internal/storefront/backend"
	"uemfood.app/storefront/internal/storefront/rbac"
)

//go:embed *.tmpl
var files embed.FS

const layoutFile = "layout.tmpl"

// Page names.
const (
	PageHome           = "home"
	PageLogin          = "login"
	PageRegister       = "register"
	PageProfile        = "profile"
	PageAddFood        = "addfood"
	PageProduct        = "product"
	PageOrderHistory   = "orderhistory"
	PageAllUsersOrders = "allusersorders"
	PageStatus         = "status"
)

var pageNames = []string{
	PageHome, PageLogin, PageRegister, PageProfile, PageAddFood,
	PageProduct, PageOrderHistory, PageAllUsersOrders, PageStatus,
}

// Renderer executes parsed page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every embedded page.
func New() (*Renderer, error) {
	funcs := Funcs()
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(files, layoutFile, name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// Render writes the full page layout for page. Callers buffer the output when they need to
// pick a status code after rendering succeeds.
func (r *Renderer) Render(w io.Writer, page string, data any) error {
	return r.execute(w, page, "base", data)
}

// RenderFragment writes a single named block of page, used for htmx partial swaps.
func (r *Renderer) RenderFragment(w io.Writer, page, block string, data any) error {
	return r.execute(w, page, block, data)
}

func (r *Renderer) execute(w io.Writer, page, name string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("templates: unknown page %q", page)
	}
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("templates: execute %s/%s: %w", page, name, err)
	}
	return nil
}

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"currency":    Currency,
		"memberSince": MemberSince,
		"shortID":     ShortID,
		"can":         can,
		"year":        func() int { return time.Now().Year() },
	}
}

// Currency formats an amount in rupees, dropping a zero fractional part.
func Currency(v any) string {
	var f float64
	switch n := v.(type) {
	case backend.Amount:
		f = n.Float64()
	case float64:
		f = n
	case int:
		f = float64(n)
	default:
		return ""
	}
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimSuffix(s, ".00")
	return "₹" + s
}

// MemberSince renders the account creation date or an empty string when unknown.
func MemberSince(p *backend.Profile) string {
	t, ok := p.MemberSince()
	if !ok {
		return ""
	}
	return t.Format("2 Jan 2006")
}

// ShortID truncates record identifiers for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func can(caps map[rbac.Capability]bool, capability string) bool {
	return caps[rbac.Capability(capability)]
}
