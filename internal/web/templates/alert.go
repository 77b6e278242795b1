// Package templates renders the HTMX fragments returned by the web layer.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ErrorAlert renders an inline error box with the user message, the suggested
// action and the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p class="alert-message">`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(message)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</p>`); err != nil {
			return err
		}
		if action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(action)+`</p>`); err != nil {
				return err
			}
		}
		if code != "" {
			if _, err := io.WriteString(w, `<span class="alert-code">Code: `+templ.EscapeString(code)+`</span>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// Notice renders a short success message, used after commit and teardown.
func Notice(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="alert alert-info" role="status">`+templ.EscapeString(message)+`</div>`)
		return err
	})
}
