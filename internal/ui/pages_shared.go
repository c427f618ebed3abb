package ui

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type navItem struct {
	Label string
	Href  string
	Key   string
	Icon  string
}

var navItems = []navItem{
	{Label: "Console", Href: "/", Key: "console", Icon: "square-terminal"},
	{Label: "Identity", Href: "/me", Key: "me", Icon: "user-round"},
	{Label: "Schema", Href: "/schema", Key: "schema", Icon: "database"},
}

// pageChrome is what every console page shows around its content.
type pageChrome struct {
	Title     string
	Active    string
	Account   string // label of the signed-in account, "" when signed out
	CSRFField Node
}

func appPage(chrome pageChrome, body ...Node) Node {
	nav := make([]Node, 0, len(navItems))
	for _, item := range navItems {
		className := "app-nav-link"
		if item.Key == chrome.Active {
			className += " active"
		}
		nav = append(nav, A(
			Href(item.Href),
			Class(className),
			I(Class("nav-icon"), Attr("data-lucide", item.Icon), Attr("aria-hidden", "true")),
			Span(Text(item.Label)),
		))
	}

	var account Node
	if chrome.Account != "" {
		account = Div(
			Class("d-flex flex-items-center gap-2"),
			P(Class(mutedClass()), Text("Signed in as "+chrome.Account)),
			Form(
				Method("post"),
				Action("/logout"),
				chrome.CSRFField,
				Button(Type("submit"), Class("btn btn-sm"), Text("Sign out")),
			),
		)
	} else {
		account = Div(
			Class("d-flex flex-items-center gap-2"),
			P(Class(mutedClass()), Text("Not signed in")),
			Form(
				Method("post"),
				Action("/auth/signin"),
				chrome.CSRFField,
				Button(Type("submit"), Class("btn btn-sm btn-primary"), Text("Sign in")),
			),
		)
	}

	return HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			TitleEl(Text(chrome.Title+" | SQL-Speak")),
			Link(Rel("icon"), Href("data:,")),
			Link(Rel("stylesheet"), Href(stylesheetPath)),
			Script(Src("https://unpkg.com/lucide@latest/dist/umd/lucide.min.js")),
			Script(
				Type("module"),
				Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.7/bundles/datastar.js"),
			),
		),
		Body(
			Main(Class("app-shell"),
				Aside(
					Class("app-sidebar"),
					Div(
						Class("brand"),
						Strong(Text("SQL-Speak")),
						P(Class(mutedClass()), Text("Ask your data in plain language")),
					),
					Nav(Class("app-nav"), Group(nav)),
				),
				Section(
					Class("app-main"),
					Div(
						Class("topbar"),
						H1(Class("page-title"), Text(chrome.Title)),
						account,
					),
					Div(Class("content"), Group(body)),
				),
			),
			Script(Raw("if (window.lucide) { window.lucide.createIcons(); }")),
		),
	)
}

func errorPage(title, message string) Node {
	return HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			TitleEl(Text(title+" | SQL-Speak")),
			Link(Rel("icon"), Href("data:,")),
			Link(Rel("stylesheet"), Href(stylesheetPath)),
		),
		Body(
			Main(
				Class("layout"),
				H1(Class("page-title"), Text(title)),
				P(Text(message)),
				P(A(Href("/"), Text("Back to the console"))),
			),
		),
	)
}

func cardClass(extra ...string) string {
	parts := []string{"Box", "p-3", "mb-3", "card"}
	parts = append(parts, extra...)
	return strings.Join(parts, " ")
}

func mutedClass() string {
	return "color-fg-muted text-small"
}

func primaryButtonClass() string {
	return "btn btn-primary"
}

func secondaryButtonClass() string {
	return "btn"
}

func statusLabel(text, tone string) Node {
	className := "Label"
	if tone != "" {
		className += " Label--" + tone
	}
	return Span(Class(className), Text(text))
}

// statusTone picks the label colour of a query status.
func statusTone(status string) string {
	switch strings.ToLower(status) {
	case "success":
		return "success"
	case "error":
		return "danger"
	default:
		return "secondary"
	}
}

func errorBanner(message string) Node {
	if message == "" {
		return nil
	}
	return Div(
		Class(cardClass("flash", "flash-error")),
		Attr("role", "alert"),
		Strong(Text("Error: ")),
		Text(message),
	)
}

func noticeBanner(message string) Node {
	if message == "" {
		return nil
	}
	return Div(Class(cardClass("flash")), Text(message))
}

func optionSelected(value, selected string) Node {
	if value == selected {
		return Option(Value(value), Selected(), Text(value))
	}
	return Option(Value(value), Text(value))
}

func optionSelectedValue(value, selected, label string) Node {
	if value == selected {
		return Option(Value(value), Selected(), Text(label))
	}
	return Option(Value(value), Text(label))
}

// containsExpr is a datastar expression matching rows against the quick
// filter signal $q.
func containsExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}

// cellString renders one result value for display.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func formatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64) + " ms"
}
