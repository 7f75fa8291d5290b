package view

// Submit button labels.
const (
	SubscribeLabel = "Subscribe"
	BusyLabel      = "Subscribing..."
)

// PanelKind selects the acknowledgement panel style.
type PanelKind string

const (
	PanelSuccess PanelKind = "success"
	PanelInfo    PanelKind = "info"
	PanelError   PanelKind = "error"
)

// Panel titles.
const (
	SuccessTitle = "Thank You!"
	InfoTitle    = "Information"
	ErrorTitle   = "Error"
)

// Button is the form's submit control.
type Button struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// Panel is the acknowledgement shown under the form.
type Panel struct {
	Kind    PanelKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Newsletter is the newsletter signup form.
type Newsletter struct {
	Email     string `json:"email"`
	Submit    Button `json:"submit"`
	Panel     *Panel `json:"panel"`
	Validated bool   `json:"validated"`
	Invalid   bool   `json:"invalid"`
}

// NewNewsletter returns an idle, empty form.
func NewNewsletter() Newsletter {
	return Newsletter{Submit: Button{Label: SubscribeLabel}}
}

// Busy disables the submit control while a request is in flight.
func (n *Newsletter) Busy() {
	n.Submit = Button{Label: BusyLabel, Disabled: true}
}

// Restore re-enables the submit control with its original label.
func (n *Newsletter) Restore() {
	n.Submit = Button{Label: SubscribeLabel}
}

// Show replaces the panel.
func (n *Newsletter) Show(kind PanelKind, title, message string) {
	n.Panel = &Panel{Kind: kind, Title: title, Message: message}
}

// ClearPanel empties the panel.
func (n *Newsletter) ClearPanel() {
	n.Panel = nil
}
