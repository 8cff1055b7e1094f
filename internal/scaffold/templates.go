package scaffold

import "text/template"

// moduleParams feeds the module.go template.
type moduleParams struct {
	Package    string
	TypeName   string
	Name       string
	Base       string
	Type       string
	CorePath   string
	Plugin     bool
	Payment    bool
	Shipping   bool
	Design     bool
}

var moduleTmpl = template.Must(template.New("module").Parse(`package {{.Package}}

import (
{{- if or .Payment .Shipping}}
	"context"
{{end}}
	"{{.CorePath}}"
)

// {{.TypeName}} is the {{.Name}} module.
type {{.TypeName}} struct {
	core.{{.Base}}
}

{{if .Plugin -}}
// New is looked up by the module loader when this module is built as a
// plugin.
func New() core.Module { return &{{.TypeName}}{} }
{{- else -}}
func init() {
	core.RegisterModule(&{{.TypeName}}{})
}
{{- end}}

// ModuleInfo implements core.Module.
func (*{{.TypeName}}) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:   "{{.Name}}",
		Type: "{{.Type}}",
		New:  func() core.Module { return &{{.TypeName}}{} },
	}
}
{{- if .Payment}}

// ProcessPayment implements core.PaymentModule.
func (m *{{.TypeName}}) ProcessPayment(ctx context.Context, req core.PaymentRequest) (core.PaymentOutcome, error) {
	m.Logger().InfoContext(ctx, "payment received", "order", req.OrderID)
	return core.PaymentOutcome{Success: true, Status: core.PaymentPending}, nil
}
{{- end}}
{{- if .Shipping}}

// CalculateShipping implements core.ShippingModule.
func (m *{{.TypeName}}) CalculateShipping(ctx context.Context, items []core.CartItem, dest core.Destination) (core.ShippingQuote, error) {
	return core.ShippingQuote{Method: "standard", Currency: "EUR"}, nil
}
{{- end}}
{{- if .Design}}

// ThemeConfig implements core.DesignModule.
func (m *{{.TypeName}}) ThemeConfig() core.ThemeConfig {
	return core.ThemeConfig{Name: "{{.Name}}", Stylesheets: []string{"{{.Name}}/css/style.css"}}
}
{{- end}}
`))

var paymentFormTmpl = template.Must(template.New("payment").Delims("[[", "]]").Parse(`<!-- [[.Name]] payment form -->
<div class="payment-form [[.Name]]-payment">
    <h3>{{ .Module.DisplayName }}</h3>
    <p>{{ .Module.Description }}</p>
    <form method="post" id="[[.Name]]-form">
        <button type="submit" class="btn btn-primary">Pay {{ .Order.Total }}</button>
    </form>
</div>
`))

var adminConfigTmpl = template.Must(template.New("admin").Delims("[[", "]]").Parse(`<!-- [[.Name]] admin configuration -->
<div class="module-config [[.Name]]-config">
    <h3>{{ .Module.DisplayName }} Configuration</h3>
    <form method="post" class="config-form">
        {{ range .Fields }}
        <div class="form-group">
            <label for="{{ .Name }}">{{ .Label }}</label>
            <input id="{{ .Name }}" name="{{ .Name }}" value="{{ .Value }}" class="form-control">
        </div>
        {{ end }}
        <button type="submit" class="btn btn-primary">Save Configuration</button>
    </form>
</div>
`))

var readmeTmpl = template.Must(template.New("readme").Parse(`# {{.Display}}

{{.Description}}

- Type: {{.Type}}
- Version: {{.Version}}
- Author: {{.Author}}

## Settings
{{range $k, $v := .Settings}}
- ` + "`{{$k}}`" + `: {{$v}}
{{- else}}
No settings.
{{- end}}

## Dependencies
{{range .Requires}}
- {{.}}
{{- else}}
No dependencies.
{{- end}}

## Packaging

    storemods modules pack {{.Name}}
`))
