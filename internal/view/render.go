package view

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/cartsync/internal/notify"
)

// Server messages may carry markup; anything beyond user-generated-content
// formatting is stripped before it is rendered.
var messagePolicy = bluemonday.UGCPolicy()

var templates = template.Must(template.New("view").Parse(`
{{- define "panel" -}}
<div class="card newsletter-{{.Kind}}-card"><div class="card-body"><h5 class="card-title">{{.Title}}</h5><p class="card-text">{{.Message}}</p></div></div>
{{- end -}}
{{- define "toasts" -}}
<div class="toast-container">{{range .}}<div class="toast" id="toast-{{.ID}}" role="alert"><div class="toast-header bg-{{.Class}} text-white"><strong class="me-auto">{{.Title}}</strong></div><div class="toast-body">{{.Body}}</div></div>{{end}}</div>
{{- end -}}
{{- define "cart" -}}
<div id="cart"><span id="cart-count">{{.Count}}</span><span id="cart-total">{{.Total}}</span>{{if .HasDiscount}}<span id="discount-amount">{{.Discount}}</span>{{end}}<div id="cart-items">{{if .Empty}}<p>{{.EmptyMessage}}</p>{{else}}{{range .Rows}}<div id="cart-item-{{.ItemID}}"><span id="item-total-{{.ItemID}}">{{.Total}}</span></div>{{end}}{{end}}</div></div>
{{- end -}}
`))

// SanitizeMessage strips unsafe markup from a server-supplied message.
func SanitizeMessage(s string) template.HTML {
	return template.HTML(messagePolicy.Sanitize(s))
}

type panelView struct {
	Kind    PanelKind
	Title   string
	Message template.HTML
}

// RenderPanel renders the newsletter acknowledgement panel. A nil panel
// renders as the empty string.
func RenderPanel(p *Panel) (string, error) {
	if p == nil {
		return "", nil
	}
	return execute("panel", panelView{Kind: p.Kind, Title: p.Title, Message: SanitizeMessage(p.Message)})
}

type toastView struct {
	ID    string
	Class string
	Title string
	Body  string
}

// RenderToasts renders the visible notifications.
func RenderToasts(ns []notify.Notification) (string, error) {
	views := make([]toastView, 0, len(ns))
	for _, n := range ns {
		views = append(views, toastView{ID: n.ID, Class: n.Severity.Class(), Title: n.Title, Body: n.Body})
	}
	return execute("toasts", views)
}

type cartView struct {
	Cart
	EmptyMessage string
}

// RenderCart renders the cart widget.
func RenderCart(c Cart) (string, error) {
	return execute("cart", cartView{Cart: c, EmptyMessage: EmptyCartMessage})
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
