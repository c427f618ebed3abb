package ui

import (
	"fmt"
	"strconv"

	"sqlspeak-console/internal/domain"

	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"
)

const consoleMaxRows = 500

type consoleView struct {
	Chrome      pageChrome
	Request     domain.QueryRequest
	DataSources []string
	Profiles    []string
	State       domain.SessionState
	Visible     []domain.HistoryEntry
	Notice      string
}

func consolePage(v consoleView) gomponents.Node {
	return appPage(
		v.Chrome,
		queryForm(v),
		noticeBanner(v.Notice),
		errorBanner(v.State.Error),
		resultCard(v.State.LastResult),
		historyCard(v),
	)
}

func queryForm(v consoleView) gomponents.Node {
	dsOptions := make([]gomponents.Node, 0, len(v.DataSources))
	for _, ds := range v.DataSources {
		dsOptions = append(dsOptions, optionSelected(ds, v.Request.DataSource))
	}
	profileOptions := make([]gomponents.Node, 0, len(v.Profiles))
	for _, p := range v.Profiles {
		profileOptions = append(profileOptions, optionSelected(p, v.Request.Profile))
	}

	return html.Div(
		html.Class(cardClass()),
		data.Signals(map[string]any{"running": false}),
		html.Form(
			html.Method("post"),
			html.Action("/query"),
			data.On("submit", "$running = true"),
			v.Chrome.CSRFField,
			html.Div(
				html.Class("form-grid"),
				html.Div(
					html.Label(html.For("data_source"), gomponents.Text("Data source")),
					html.Select(html.ID("data_source"), html.Name("data_source"), gomponents.Group(dsOptions)),
				),
				html.Div(
					html.Label(html.For("profile"), gomponents.Text("Profile")),
					html.Select(html.ID("profile"), html.Name("profile"), gomponents.Group(profileOptions)),
				),
			),
			html.Label(html.For("query"), gomponents.Text("Question")),
			html.Textarea(
				html.ID("query"),
				html.Name("query"),
				html.Required(),
				html.Placeholder("e.g. How many patients are there?"),
				gomponents.Text(v.Request.NaturalLanguageQuery),
			),
			html.Div(
				html.Class("button-row"),
				html.Button(
					html.Type("submit"),
					html.Class(primaryButtonClass()),
					data.Attr("disabled", "$running"),
					gomponents.Text("Run query"),
				),
				html.Span(html.Class(mutedClass()), data.Show("$running"), gomponents.Text("Running...")),
			),
		),
	)
}

func resultCard(result *domain.QueryResult) gomponents.Node {
	if result == nil {
		return html.Div(html.Class(cardClass()), html.P(html.Class(mutedClass()), gomponents.Text("Run a query to see results.")))
	}

	meta := []gomponents.Node{
		statusLabel(result.Meta.Status, statusTone(result.Meta.Status)),
		html.Span(html.Class(mutedClass()), gomponents.Text("Profile: "+result.Meta.Profile)),
		html.Span(html.Class(mutedClass()), gomponents.Text("Time: "+formatMillis(result.Meta.ExecutionTimeMs))),
	}
	if result.Meta.RowCount != nil {
		meta = append(meta, html.Span(html.Class(mutedClass()), gomponents.Text("Rows: "+strconv.FormatInt(*result.Meta.RowCount, 10))))
	}

	return html.Div(
		html.Class(cardClass("table-wrap")),
		html.H2(gomponents.Text("Result")),
		html.Div(html.Class("meta-row"), gomponents.Group(meta)),
		html.H3(gomponents.Text("Generated SQL")),
		html.Pre(html.Code(gomponents.Text(result.GeneratedSQL))),
		resultTable(result),
	)
}

func resultTable(result *domain.QueryResult) gomponents.Node {
	cols := result.Columns()
	if len(cols) == 0 {
		return html.P(html.Class(mutedClass()), gomponents.Text("The query returned no rows."))
	}

	headerCols := make([]gomponents.Node, 0, len(cols))
	for _, c := range cols {
		headerCols = append(headerCols, html.Th(gomponents.Text(c)))
	}

	displayRows := result.Rows
	truncated := len(displayRows) > consoleMaxRows
	if truncated {
		displayRows = displayRows[:consoleMaxRows]
	}

	rows := make([]gomponents.Node, 0, len(displayRows))
	for i := range displayRows {
		cells := make([]gomponents.Node, 0, len(cols))
		filter := ""
		for _, c := range cols {
			v, ok := displayRows[i].Get(c)
			text := ""
			if ok {
				text = cellString(v)
			}
			filter += text + " "
			cells = append(cells, html.Td(gomponents.Text(text)))
		}
		rows = append(rows, html.Tr(data.Show(containsExpr(filter)), gomponents.Group(cells)))
	}

	var note gomponents.Node
	if truncated {
		note = html.P(html.Class(mutedClass()), gomponents.Text(fmt.Sprintf("Showing first %d of %d rows.", consoleMaxRows, len(result.Rows))))
	}

	return html.Div(
		data.Signals(map[string]any{"q": ""}),
		html.Input(html.Type("search"), data.Bind("q"), html.Placeholder("Filter rows"), html.AutoComplete("off")),
		note,
		html.Table(
			html.THead(html.Tr(gomponents.Group(headerCols))),
			html.TBody(gomponents.Group(rows)),
		),
	)
}

func historyCard(v consoleView) gomponents.Node {
	filters := v.State.Filters
	statusOptions := []gomponents.Node{
		optionSelectedValue(string(domain.StatusAll), string(filters.Status), "All statuses"),
		optionSelectedValue(string(domain.StatusSuccess), string(filters.Status), "Success"),
		optionSelectedValue(string(domain.StatusError), string(filters.Status), "Error"),
	}

	rows := make([]gomponents.Node, 0, len(v.Visible))
	for _, e := range v.Visible {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(e.Timestamp)),
			html.Td(gomponents.Text(e.DataSource)),
			html.Td(gomponents.Text(e.Profile)),
			html.Td(gomponents.Text(e.NaturalLanguageQuery)),
			html.Td(html.Code(gomponents.Text(e.GeneratedSQL))),
			html.Td(statusLabel(e.Status, statusTone(e.Status))),
			html.Td(gomponents.Text(strconv.FormatInt(e.RowCount, 10))),
		))
	}

	var table gomponents.Node
	if len(rows) == 0 {
		table = html.P(html.Class(mutedClass()), gomponents.Text("No history entries match."))
	} else {
		table = html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Time")),
				html.Th(gomponents.Text("Data source")),
				html.Th(gomponents.Text("Profile")),
				html.Th(gomponents.Text("Question")),
				html.Th(gomponents.Text("SQL")),
				html.Th(gomponents.Text("Status")),
				html.Th(gomponents.Text("Rows")),
			)),
			html.TBody(gomponents.Group(rows)),
		)
	}

	return html.Div(
		html.Class(cardClass("table-wrap")),
		html.H2(gomponents.Text("History")),
		html.Div(
			html.Class("d-flex flex-wrap flex-items-center gap-2"),
			html.Form(
				html.Method("get"),
				html.Action("/"),
				html.Class("d-flex flex-items-center gap-2"),
				html.Select(html.Name("status"), gomponents.Group(statusOptions)),
				html.Input(html.Type("text"), html.Name("time"), html.Value(filters.TimeContains), html.Placeholder("Time contains, e.g. 2026-01-28")),
				html.Button(html.Type("submit"), html.Class(secondaryButtonClass()), gomponents.Text("Filter")),
			),
			html.Form(
				html.Method("post"),
				html.Action("/history/refresh"),
				v.Chrome.CSRFField,
				html.Button(html.Type("submit"), html.Class(secondaryButtonClass()), gomponents.Text("Refresh")),
			),
		),
		html.P(html.Class(mutedClass()), gomponents.Text(fmt.Sprintf("%d of %d entries", len(v.Visible), len(v.State.History)))),
		table,
	)
}
